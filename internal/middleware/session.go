// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/hitoshi/moodmate/internal/model"
)

// SessionHeader はセッショントークンを運ぶリクエスト/レスポンスヘッダー名。
const SessionHeader = "x-session-id"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// sessionContextKey はリクエストコンテキストに検証済みセッションを格納するためのキー。
var sessionContextKey = contextKey("session")

// Authenticator はセッショントークンの検証に必要なインターフェース。
// auth.Serviceが実装する。
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*model.Session, error)
}

// NewSessionMiddleware はx-session-idヘッダーからトークンを読み取り、
// 有効性を検証するミドルウェアを返す。
// 検証済みセッションをリクエストコンテキストに注入する。
// 無効なセッションには401、ストア障害には500を返す。
func NewSessionMiddleware(authenticator Authenticator) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session, err := authenticator.Authenticate(r.Context(), TokenFromRequest(r))
			if err != nil {
				WriteError(w, r, "authenticate", err)
				return
			}

			setRequestOwner(r.Context(), session.OwnerKey)
			ctx := ContextWithSession(r.Context(), session)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// TokenFromRequest はリクエストヘッダーからセッショントークンを取得する。
func TokenFromRequest(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(SessionHeader))
}

// SessionFromContext はリクエストコンテキストから検証済みセッションを取得する。
func SessionFromContext(ctx context.Context) (*model.Session, bool) {
	session, ok := ctx.Value(sessionContextKey).(*model.Session)
	return session, ok && session != nil
}

// OwnerKeyFromContext はリクエストコンテキストからセッション所有者のキーを取得する。
// セッションミドルウェアを通過したリクエストでのみ有効。
func OwnerKeyFromContext(ctx context.Context) (string, error) {
	session, ok := SessionFromContext(ctx)
	if !ok || session.OwnerKey == "" {
		return "", fmt.Errorf("owner key not found in context")
	}
	return session.OwnerKey, nil
}

// ContextWithSession はコンテキストにセッションを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithSession(ctx context.Context, session *model.Session) context.Context {
	return context.WithValue(ctx, sessionContextKey, session)
}
