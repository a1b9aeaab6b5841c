package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/hitoshi/moodmate/internal/model"
)

// maxRequestBodyBytes はリクエストボディの最大サイズ。プロフィール写真のdata URLを許容する。
const maxRequestBodyBytes = 5 << 20

// successResponse は成功レスポンスの統一フォーマット。
type successResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
	Total   *int   `json:"total,omitempty"`
}

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body)
}

// writeSuccess は成功レスポンスを書き込む。
func writeSuccess(w http.ResponseWriter, statusCode int, message string, data any) {
	writeJSON(w, statusCode, successResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// decodeJSON はリクエストボディをdstにデコードする。
// ボディが空、JSONとして不正、または大きすぎる場合はInvalidInputを返す。
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			return model.NewInvalidInputError("リクエストボディが大きすぎます。")
		case errors.Is(err, io.EOF):
			return model.NewInvalidInputError("リクエストボディが空です。")
		default:
			return model.NewInvalidInputError("リクエストボディの形式が正しくありません。")
		}
	}
	return nil
}
