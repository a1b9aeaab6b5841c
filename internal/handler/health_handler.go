package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// HealthChecker は依存サービスの稼働確認を行う関数。
type HealthChecker func(ctx context.Context) error

// HealthHandler はヘルスチェックのHTTPハンドラー。
type HealthHandler struct {
	check HealthChecker
	now   func() time.Time
}

// NewHealthHandler はHealthHandlerを生成する。checkがnilの場合は常に正常とする。
func NewHealthHandler(check HealthChecker) *HealthHandler {
	return &HealthHandler{check: check, now: time.Now}
}

type healthResponse struct {
	Status    string    `json:"status"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Health はAPIとデータベースの稼働状態を返す。データベースに到達できない場合は503。
// GET /api/health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	if h.check != nil {
		if err := h.check(r.Context()); err != nil {
			slog.Error("health check failed", slog.String("error", err.Error()))
			writeJSON(w, http.StatusServiceUnavailable, healthResponse{
				Status:    "UNAVAILABLE",
				Message:   "database unreachable",
				Timestamp: h.now().UTC(),
			})
			return
		}
	}

	writeJSON(w, http.StatusOK, healthResponse{
		Status:    "OK",
		Message:   "MoodMate Auth API is running",
		Timestamp: h.now().UTC(),
	})
}
