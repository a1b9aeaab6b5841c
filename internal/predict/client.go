// Package predict は気分予測サービス（ML API）との連携機能を提供する。
package predict

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/hitoshi/moodmate/internal/metrics"
	"github.com/hitoshi/moodmate/internal/model"
)

// maxResponseBytes はML APIレスポンスの最大読み取りサイズ。
const maxResponseBytes = 1 << 20

// Client は気分予測APIのクライアント。
// POST {baseURL}/predict に {"text": ...} を送信し、レスポンスJSONをそのまま返す。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	endpoint   string
	metrics    metrics.MetricsCollector
}

// NewClient はClientの新しいインスタンスを生成する。
func NewClient(httpClient *http.Client, logger *slog.Logger, baseURL string, collector metrics.MetricsCollector) *Client {
	if collector == nil {
		collector = metrics.Nop{}
	}
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		endpoint:   strings.TrimRight(baseURL, "/") + "/predict",
		metrics:    collector,
	}
}

type predictRequest struct {
	Text string `json:"text"`
}

type errorBody struct {
	Detail json.RawMessage `json:"detail"`
}

// Predict はテキストの気分を予測する。
// 通信失敗や非2xx応答はPredictionFailedエラーとして返し、認証エラーとは区別する。
func (c *Client) Predict(ctx context.Context, text string) (result json.RawMessage, err error) {
	start := time.Now()
	defer func() {
		outcome := metrics.OutcomeSuccess
		if err != nil {
			outcome = metrics.OutcomeError
		}
		c.metrics.RecordPrediction(outcome, time.Since(start))
	}()

	payload, err := json.Marshal(predictRequest{Text: text})
	if err != nil {
		return nil, model.NewPredictionFailedError(err.Error())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, model.NewPredictionFailedError(err.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("気分予測APIの呼び出しに失敗しました",
			slog.String("error", err.Error()),
		)
		return nil, model.NewPredictionFailedError(describeTransportError(err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		c.logger.Error("レスポンスボディの読み取りに失敗しました",
			slog.String("error", err.Error()),
		)
		return nil, model.NewPredictionFailedError(err.Error())
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Error("気分予測APIがエラーステータスを返しました",
			slog.Int("http_status", resp.StatusCode),
		)
		return nil, model.NewPredictionFailedError(detailOf(body))
	}

	if !json.Valid(body) {
		c.logger.Error("気分予測APIのレスポンスのパースに失敗しました",
			slog.Int("body_bytes", len(body)),
		)
		return nil, model.NewPredictionFailedError("invalid JSON response from ML service")
	}

	return json.RawMessage(body), nil
}

// detailOf はエラーレスポンスのdetailフィールドを取り出す。
// detailが文字列以外の場合はJSONのまま返し、存在しない場合は既定の文言を返す。
func detailOf(body []byte) string {
	const fallback = "ML service returned an error"

	var eb errorBody
	if err := json.Unmarshal(body, &eb); err != nil || len(eb.Detail) == 0 || string(eb.Detail) == "null" {
		return fallback
	}
	var s string
	if err := json.Unmarshal(eb.Detail, &s); err == nil {
		if s == "" {
			return fallback
		}
		return s
	}
	return string(eb.Detail)
}

func describeTransportError(err error) string {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return "ML service timed out"
	}
	return "ML service unreachable"
}
