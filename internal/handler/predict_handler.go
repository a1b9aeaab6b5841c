package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/hitoshi/moodmate/internal/middleware"
)

// PredictorInterface は気分予測ハンドラーが必要とするインターフェース。
type PredictorInterface interface {
	Predict(ctx context.Context, text string) (json.RawMessage, error)
}

// PredictHandler は気分予測のHTTPハンドラー。
// セッション検証はSessionMiddlewareで予測APIの呼び出しより先に行う。
type PredictHandler struct {
	predictor PredictorInterface
}

// NewPredictHandler はPredictHandlerを生成する。
func NewPredictHandler(predictor PredictorInterface) *PredictHandler {
	return &PredictHandler{predictor: predictor}
}

type predictRequest struct {
	Text string `json:"text"`
}

// PredictMood はテキストを予測APIへ転送し、結果のJSONをそのまま返す。
// POST /api/predict-mood
func (h *PredictHandler) PredictMood(w http.ResponseWriter, r *http.Request) {
	var req predictRequest
	if err := decodeJSON(w, r, &req); err != nil {
		middleware.WriteError(w, r, "predict_mood", err)
		return
	}

	result, err := h.predictor.Predict(r.Context(), req.Text)
	if err != nil {
		middleware.WriteError(w, r, "predict_mood", err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(result)
}
