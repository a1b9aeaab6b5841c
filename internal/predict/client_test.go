package predict

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/moodmate/internal/metrics"
	"github.com/hitoshi/moodmate/internal/model"
)

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

// --- モック定義 ---

type predictionRecorder struct {
	metrics.Nop
	outcomes []string
}

func (r *predictionRecorder) RecordPrediction(outcome string, _ time.Duration) {
	r.outcomes = append(r.outcomes, outcome)
}

func assertPredictionFailed(t *testing.T, err error, wantMessage string) {
	t.Helper()
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *model.APIError", err)
	}
	if apiErr.Code != model.ErrCodePredictionFailed {
		t.Errorf("Code = %s, want %s", apiErr.Code, model.ErrCodePredictionFailed)
	}
	if apiErr.Kind == model.KindUnauthorized {
		t.Error("prediction failure must not be reported as an auth failure")
	}
	if wantMessage != "" && apiErr.Message != wantMessage {
		t.Errorf("Message = %q, want %q", apiErr.Message, wantMessage)
	}
}

// --- テスト ---

// リクエストがPOST /predict {"text": ...} で送信され、レスポンスがそのまま返されることを検証
func TestClient_Predict_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("HTTPメソッド = %s, want POST", r.Method)
		}
		if r.URL.Path != "/predict" {
			t.Errorf("パス = %s, want /predict", r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %s, want application/json", ct)
		}
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("リクエストボディのデコードに失敗: %v", err)
		}
		if body["text"] != "hari ini senang" {
			t.Errorf("text = %q, want %q", body["text"], "hari ini senang")
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"mood":"senang","confidence":0.93}`)
	}))
	defer server.Close()

	var buf bytes.Buffer
	rec := &predictionRecorder{}
	c := NewClient(server.Client(), newTestLogger(&buf), server.URL+"/", rec)

	result, err := c.Predict(context.Background(), "hari ini senang")
	if err != nil {
		t.Fatalf("Predict がエラーを返した: %v", err)
	}
	if string(result) != `{"mood":"senang","confidence":0.93}` {
		t.Errorf("result = %s", result)
	}
	if len(rec.outcomes) != 1 || rec.outcomes[0] != metrics.OutcomeSuccess {
		t.Errorf("outcomes = %v, want [success]", rec.outcomes)
	}
}

// 非2xx応答のdetailがエラーメッセージに含まれることを検証
func TestClient_Predict_ErrorDetail(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		wantMessage string
	}{
		{
			name:        "文字列のdetail",
			status:      http.StatusUnprocessableEntity,
			body:        `{"detail":"text is empty"}`,
			wantMessage: "Prediction failed: text is empty",
		},
		{
			name:        "detailなし",
			status:      http.StatusInternalServerError,
			body:        `{"error":"boom"}`,
			wantMessage: "Prediction failed: ML service returned an error",
		},
		{
			name:        "JSONでないボディ",
			status:      http.StatusBadGateway,
			body:        `<html>bad gateway</html>`,
			wantMessage: "Prediction failed: ML service returned an error",
		},
		{
			name:        "配列のdetail",
			status:      http.StatusUnprocessableEntity,
			body:        `{"detail":[{"loc":["body","text"]}]}`,
			wantMessage: `Prediction failed: [{"loc":["body","text"]}]`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			}))
			defer server.Close()

			var buf bytes.Buffer
			rec := &predictionRecorder{}
			c := NewClient(server.Client(), newTestLogger(&buf), server.URL, rec)

			_, err := c.Predict(context.Background(), "x")
			assertPredictionFailed(t, err, tt.wantMessage)
			if len(rec.outcomes) != 1 || rec.outcomes[0] != metrics.OutcomeError {
				t.Errorf("outcomes = %v, want [error]", rec.outcomes)
			}
			if !strings.Contains(buf.String(), "気分予測APIがエラーステータスを返しました") {
				t.Errorf("エラーログが出力されていない: %s", buf.String())
			}
		})
	}
}

// 2xxでもJSONでない応答は失敗として扱うことを検証
func TestClient_Predict_InvalidJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "not json")
	}))
	defer server.Close()

	var buf bytes.Buffer
	c := NewClient(server.Client(), newTestLogger(&buf), server.URL, nil)

	_, err := c.Predict(context.Background(), "x")
	assertPredictionFailed(t, err, "")
}

// 接続できない場合はPredictionFailedを返すことを検証
func TestClient_Predict_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	var buf bytes.Buffer
	c := NewClient(http.DefaultClient, newTestLogger(&buf), url, nil)

	_, err := c.Predict(context.Background(), "x")
	assertPredictionFailed(t, err, "Prediction failed: ML service unreachable")
}

// タイムアウトした場合はPredictionFailedを返すことを検証
func TestClient_Predict_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	var buf bytes.Buffer
	httpClient := &http.Client{Timeout: 50 * time.Millisecond}
	c := NewClient(httpClient, newTestLogger(&buf), server.URL, nil)

	_, err := c.Predict(context.Background(), "x")
	assertPredictionFailed(t, err, "Prediction failed: ML service timed out")
}
