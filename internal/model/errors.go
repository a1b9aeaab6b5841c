// Package model はドメインモデルを定義する。
package model

import (
	"fmt"
	"net/http"
)

// ErrorKind はエラーの分類を表す。HTTPステータスへの対応付けに使用する。
type ErrorKind string

const (
	KindInvalidInput ErrorKind = "invalid_input"
	KindUnauthorized ErrorKind = "unauthorized"
	KindForbidden    ErrorKind = "forbidden"
	KindNotFound     ErrorKind = "not_found"
	KindConflict     ErrorKind = "conflict"
	KindInternal     ErrorKind = "internal"
)

// HTTPStatus はErrorKindに対応するHTTPステータスコードを返す。
func (k ErrorKind) HTTPStatus() int {
	switch k {
	case KindInvalidInput:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// APIError は統一エラーフォーマットを表す。
// Messageはそのままクライアントに返されるため、内部情報を含めないこと。
type APIError struct {
	Kind    ErrorKind // エラー分類
	Code    string    // エラーコード
	Message string    // エラーメッセージ
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidInput       = "INVALID_INPUT"
	ErrCodeInvalidCredentials = "INVALID_CREDENTIALS"
	ErrCodeInvalidSession     = "INVALID_SESSION"
	ErrCodeWrongPassword      = "WRONG_PASSWORD"
	ErrCodeSamePassword       = "SAME_PASSWORD"
	ErrCodeEmailTaken         = "EMAIL_TAKEN"
	ErrCodeUserNotFound       = "USER_NOT_FOUND"
	ErrCodeJournalNotFound    = "JOURNAL_NOT_FOUND"
	ErrCodeJournalForbidden   = "JOURNAL_FORBIDDEN"
	ErrCodePredictionFailed   = "PREDICTION_FAILED"
	ErrCodeInternal           = "INTERNAL_ERROR"
	ErrCodeRateLimitExceeded  = "RATE_LIMIT_EXCEEDED"
)

// NewInvalidInputError は入力値不正エラーを生成する。
func NewInvalidInputError(message string) *APIError {
	return &APIError{
		Kind:    KindInvalidInput,
		Code:    ErrCodeInvalidInput,
		Message: message,
	}
}

// NewInvalidCredentialsError はログイン失敗エラーを生成する。
// ユーザー不在とパスワード不一致を区別しない。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Kind:    KindUnauthorized,
		Code:    ErrCodeInvalidCredentials,
		Message: "メールアドレスまたはパスワードが正しくありません。",
	}
}

// NewInvalidSessionError はセッション不正エラーを生成する。
func NewInvalidSessionError() *APIError {
	return &APIError{
		Kind:    KindUnauthorized,
		Code:    ErrCodeInvalidSession,
		Message: "セッションが無効です。ログインしてください。",
	}
}

// NewWrongPasswordError は現在のパスワード不一致エラーを生成する。
func NewWrongPasswordError() *APIError {
	return &APIError{
		Kind:    KindUnauthorized,
		Code:    ErrCodeWrongPassword,
		Message: "現在のパスワードが正しくありません。",
	}
}

// NewSamePasswordError は新旧パスワードが同一の場合のエラーを生成する。
func NewSamePasswordError() *APIError {
	return &APIError{
		Kind:    KindInvalidInput,
		Code:    ErrCodeSamePassword,
		Message: "新しいパスワードは現在のパスワードと異なるものにしてください。",
	}
}

// NewEmailTakenError はメールアドレス重複エラーを生成する。
func NewEmailTakenError() *APIError {
	return &APIError{
		Kind:    KindConflict,
		Code:    ErrCodeEmailTaken,
		Message: "このメールアドレスは既に使用されています。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Kind:    KindNotFound,
		Code:    ErrCodeUserNotFound,
		Message: "ユーザーが見つかりません。",
	}
}

// NewJournalNotFoundError はジャーナル未検出エラーを生成する。
func NewJournalNotFoundError(journalID string) *APIError {
	return &APIError{
		Kind:    KindNotFound,
		Code:    ErrCodeJournalNotFound,
		Message: fmt.Sprintf("指定されたジャーナルが見つかりません: %s", journalID),
	}
}

// NewJournalForbiddenError は他ユーザーのジャーナルへのアクセスエラーを生成する。
func NewJournalForbiddenError() *APIError {
	return &APIError{
		Kind:    KindForbidden,
		Code:    ErrCodeJournalForbidden,
		Message: "このジャーナルへのアクセス権がありません。",
	}
}

// NewPredictionFailedError は気分予測の失敗エラーを生成する。
// 認証エラーとは区別して扱う。
func NewPredictionFailedError(reason string) *APIError {
	return &APIError{
		Kind:    KindInternal,
		Code:    ErrCodePredictionFailed,
		Message: fmt.Sprintf("Prediction failed: %s", reason),
	}
}

// NewInternalError は内部エラーを生成する。
// 詳細はログのみに記録し、クライアントには一般的なメッセージを返す。
func NewInternalError() *APIError {
	return &APIError{
		Kind:    KindInternal,
		Code:    ErrCodeInternal,
		Message: "内部エラーが発生しました。しばらく待ってから再度お試しください。",
	}
}
