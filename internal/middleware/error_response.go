package middleware

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/moodmate/internal/model"
)

// ErrorResponseBody はAPIエラーレスポンスの統一フォーマット。
type ErrorResponseBody struct {
	Success bool   `json:"success"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// WriteErrorResponse は統一エラーフォーマットでHTTPエラーレスポンスを書き込む。
// ステータスコードはエラー分類から決定する。
func WriteErrorResponse(w http.ResponseWriter, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apiErr.Kind.HTTPStatus())
	json.NewEncoder(w).Encode(ErrorResponseBody{
		Success: false,
		Code:    apiErr.Code,
		Message: apiErr.Message,
	})
}

// WriteInternalServerError は内部サーバーエラーの統一レスポンスを書き込む。
// 詳細はログのみに記録し、ユーザーには一般的なメッセージを返す。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, model.NewInternalError())
}

// WriteError はエラーをレスポンスに変換する。
// *model.APIErrorはその分類どおりに返し、それ以外は操作名と所有者キーをログに記録して500を返す。
func WriteError(w http.ResponseWriter, r *http.Request, operation string, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Kind == model.KindInternal {
			slog.Error("operation failed",
				slog.String("operation", operation),
				slog.String("owner_key", ownerKeyOrEmpty(r)),
				slog.String("code", apiErr.Code),
			)
		}
		WriteErrorResponse(w, apiErr)
		return
	}

	slog.Error("operation failed",
		slog.String("operation", operation),
		slog.String("owner_key", ownerKeyOrEmpty(r)),
		slog.String("error", err.Error()),
	)
	WriteInternalServerError(w)
}

func ownerKeyOrEmpty(r *http.Request) string {
	if r == nil {
		return ""
	}
	key, _ := OwnerKeyFromContext(r.Context())
	return key
}
