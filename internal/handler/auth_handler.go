// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/hitoshi/moodmate/internal/middleware"
	"github.com/hitoshi/moodmate/internal/model"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	Register(ctx context.Context, name, email, password string) (*model.Profile, error)
	Login(ctx context.Context, email, password string) (string, *model.PublicUser, error)
	Logout(ctx context.Context, token string) error
	GetProfile(ctx context.Context, token string) (*model.Profile, error)
	UpdateProfile(ctx context.Context, token, name, email string) (*model.Profile, error)
	ChangePassword(ctx context.Context, token, currentPassword, newPassword string) (time.Time, error)
	UpdateProfilePhoto(ctx context.Context, token, photo string) error
	ResetProfilePhoto(ctx context.Context, token string) error
}

// AuthHandler は認証・プロフィール関連のHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface) *AuthHandler {
	return &AuthHandler{service: service}
}

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type updateProfileRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

// profilePhotoRequest は文字列以外の値を検出するためRawMessageで受ける。
type profilePhotoRequest struct {
	ProfilePhoto json.RawMessage `json:"profilePhoto"`
}

type loginData struct {
	SessionID string            `json:"sessionId"`
	User      *model.PublicUser `json:"user"`
}

type profileData struct {
	User *model.Profile `json:"user"`
}

type passwordChangedData struct {
	UpdatedAt time.Time `json:"updatedAt"`
}

// Register はユーザー登録を処理する。
// POST /api/auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		middleware.WriteError(w, r, "register", err)
		return
	}

	if _, err := h.service.Register(r.Context(), req.Name, req.Email, req.Password); err != nil {
		middleware.WriteError(w, r, "register", err)
		return
	}

	writeSuccess(w, http.StatusCreated, "ユーザー登録が完了しました。", nil)
}

// Login はログインを処理し、セッショントークンをヘッダーとボディの両方で返す。
// POST /api/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		middleware.WriteError(w, r, "login", err)
		return
	}

	token, user, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		middleware.WriteError(w, r, "login", err)
		return
	}

	w.Header().Set(middleware.SessionHeader, token)
	writeSuccess(w, http.StatusOK, "ログインしました。", loginData{
		SessionID: token,
		User:      user,
	})
}

// Logout はセッションを破棄する。トークンがない場合や既に無効な場合も成功を返す。
// POST /api/auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Logout(r.Context(), middleware.TokenFromRequest(r)); err != nil {
		middleware.WriteError(w, r, "logout", err)
		return
	}

	writeSuccess(w, http.StatusOK, "ログアウトしました。", nil)
}

// GetProfile はプロフィールを返す。
// GET /api/auth/profile
func (h *AuthHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := h.service.GetProfile(r.Context(), middleware.TokenFromRequest(r))
	if err != nil {
		middleware.WriteError(w, r, "get_profile", err)
		return
	}

	writeSuccess(w, http.StatusOK, "プロフィールを取得しました。", profileData{User: profile})
}

// UpdateProfile は名前とメールアドレスを更新する。
// PUT /api/auth/profile
func (h *AuthHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req updateProfileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		middleware.WriteError(w, r, "update_profile", err)
		return
	}

	profile, err := h.service.UpdateProfile(r.Context(), middleware.TokenFromRequest(r), req.Name, req.Email)
	if err != nil {
		middleware.WriteError(w, r, "update_profile", err)
		return
	}

	writeSuccess(w, http.StatusOK, "プロフィールを更新しました。", profileData{User: profile})
}

// UpdateProfilePhoto はプロフィール写真を設定する。写真は文字列であること（空文字列を含む）。
// PUT /api/auth/profile-photo
func (h *AuthHandler) UpdateProfilePhoto(w http.ResponseWriter, r *http.Request) {
	var req profilePhotoRequest
	if err := decodeJSON(w, r, &req); err != nil {
		middleware.WriteError(w, r, "update_photo", err)
		return
	}

	var photo string
	if !isJSONString(req.ProfilePhoto) || json.Unmarshal(req.ProfilePhoto, &photo) != nil {
		middleware.WriteError(w, r, "update_photo", model.NewInvalidInputError("写真データが正しくありません。"))
		return
	}

	if err := h.service.UpdateProfilePhoto(r.Context(), middleware.TokenFromRequest(r), photo); err != nil {
		middleware.WriteError(w, r, "update_photo", err)
		return
	}

	writeSuccess(w, http.StatusOK, "プロフィール写真を更新しました。", nil)
}

// ResetProfilePhoto はプロフィール写真を未設定に戻す。
// DELETE /api/auth/profile-photo
func (h *AuthHandler) ResetProfilePhoto(w http.ResponseWriter, r *http.Request) {
	if err := h.service.ResetProfilePhoto(r.Context(), middleware.TokenFromRequest(r)); err != nil {
		middleware.WriteError(w, r, "reset_photo", err)
		return
	}

	writeSuccess(w, http.StatusOK, "プロフィール写真をリセットしました。", nil)
}

// ChangePassword はパスワードを変更する。
// PUT /api/auth/change-password
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		middleware.WriteError(w, r, "change_password", err)
		return
	}

	updatedAt, err := h.service.ChangePassword(r.Context(), middleware.TokenFromRequest(r), req.CurrentPassword, req.NewPassword)
	if err != nil {
		middleware.WriteError(w, r, "change_password", err)
		return
	}

	writeSuccess(w, http.StatusOK, "パスワードを変更しました。", passwordChangedData{UpdatedAt: updatedAt})
}

func isJSONString(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) >= 2 && raw[0] == '"'
}
