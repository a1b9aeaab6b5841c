package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/moodmate/internal/journal"
	"github.com/hitoshi/moodmate/internal/middleware"
	"github.com/hitoshi/moodmate/internal/model"
)

// JournalServiceInterface はジャーナルハンドラーが必要とするサービスインターフェース。
type JournalServiceInterface interface {
	Create(ctx context.Context, ownerKey string, in journal.CreateInput) (*model.Journal, error)
	List(ctx context.Context, ownerKey string) ([]*model.Journal, error)
	Get(ctx context.Context, ownerKey, id string) (*model.Journal, error)
	Delete(ctx context.Context, ownerKey, id string) error
}

// JournalHandler はジャーナル管理のHTTPハンドラー。
// SessionMiddlewareの後段に配置する。
type JournalHandler struct {
	service JournalServiceInterface
}

// NewJournalHandler はJournalHandlerを生成する。
func NewJournalHandler(service JournalServiceInterface) *JournalHandler {
	return &JournalHandler{service: service}
}

type createJournalRequest struct {
	Note            string          `json:"catatan"`
	Mood            string          `json:"mood"`
	Activities      []string        `json:"aktivitas"`
	ActivityDetails json.RawMessage `json:"detailAktivitas"`
}

// Create はジャーナルを作成する。
// POST /api/journal
func (h *JournalHandler) Create(w http.ResponseWriter, r *http.Request) {
	ownerKey, ok := h.ownerKey(w, r)
	if !ok {
		return
	}

	var req createJournalRequest
	if err := decodeJSON(w, r, &req); err != nil {
		middleware.WriteError(w, r, "create_journal", err)
		return
	}

	created, err := h.service.Create(r.Context(), ownerKey, journal.CreateInput{
		Note:            req.Note,
		Mood:            req.Mood,
		Activities:      req.Activities,
		ActivityDetails: req.ActivityDetails,
	})
	if err != nil {
		middleware.WriteError(w, r, "create_journal", err)
		return
	}

	writeSuccess(w, http.StatusCreated, "ジャーナルを作成しました。", created)
}

// List は所有者のジャーナル一覧を返す。
// GET /api/journal
func (h *JournalHandler) List(w http.ResponseWriter, r *http.Request) {
	ownerKey, ok := h.ownerKey(w, r)
	if !ok {
		return
	}

	journals, err := h.service.List(r.Context(), ownerKey)
	if err != nil {
		middleware.WriteError(w, r, "list_journals", err)
		return
	}

	total := len(journals)
	writeJSON(w, http.StatusOK, successResponse{
		Success: true,
		Message: "ジャーナル一覧を取得しました。",
		Data:    journals,
		Total:   &total,
	})
}

// Get は指定IDのジャーナルを返す。
// GET /api/journal/{id}
func (h *JournalHandler) Get(w http.ResponseWriter, r *http.Request) {
	ownerKey, ok := h.ownerKey(w, r)
	if !ok {
		return
	}

	j, err := h.service.Get(r.Context(), ownerKey, chi.URLParam(r, "id"))
	if err != nil {
		middleware.WriteError(w, r, "get_journal", err)
		return
	}

	writeSuccess(w, http.StatusOK, "", j)
}

// Delete は指定IDのジャーナルを削除する。
// DELETE /api/journal/{id}
func (h *JournalHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ownerKey, ok := h.ownerKey(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), ownerKey, chi.URLParam(r, "id")); err != nil {
		middleware.WriteError(w, r, "delete_journal", err)
		return
	}

	writeSuccess(w, http.StatusOK, "ジャーナルを削除しました。", nil)
}

func (h *JournalHandler) ownerKey(w http.ResponseWriter, r *http.Request) (string, bool) {
	ownerKey, err := middleware.OwnerKeyFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, model.NewInvalidSessionError())
		return "", false
	}
	return ownerKey, true
}
