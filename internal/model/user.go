// Package model はドメインモデルを定義する。
package model

import (
	"strings"
	"time"
)

// OptionalString は「未設定」と「空文字列」を区別できる任意文字列。
type OptionalString struct {
	Value string
	Valid bool
}

// SomeString は値が設定されたOptionalStringを返す。
func SomeString(v string) OptionalString {
	return OptionalString{Value: v, Valid: true}
}

// Ptr はJSON出力用のポインタを返す。未設定の場合はnil。
func (o OptionalString) Ptr() *string {
	if !o.Valid {
		return nil
	}
	v := o.Value
	return &v
}

// Identity は永続化されるユーザーの認証情報を表す。
// Keyは正規化済みメールアドレスで、ストレージ上の主キーを兼ねる。
type Identity struct {
	Key          string
	Email        string
	DisplayName  string
	PasswordHash string
	ProfilePhoto OptionalString
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Session はログイン成功によって発行される不透明トークンのセッションを表す。
// 既定では有効期限を持たず、ログアウトで破棄される。SESSION_MAX_AGEを設定した場合は作成からの経過時間で失効する。
type Session struct {
	Token      string
	OwnerKey   string
	OwnerEmail string
	CreatedAt  time.Time
}

// PublicUser はログイン応答で返す公開ユーザー情報。
type PublicUser struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Profile はプロフィール取得・更新で返すユーザー情報。
// パスワードハッシュは含まない。
type Profile struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
	ProfilePhoto *string   `json:"profilePhoto"`
}

// NormalizeEmail はメールアドレスをストレージキーに正規化する。
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Public はIdentityの公開ビューを返す。
func (i *Identity) Public() *PublicUser {
	return &PublicUser{
		ID:    i.Key,
		Name:  i.DisplayName,
		Email: i.Email,
	}
}

// Profile はIdentityのプロフィールビューを返す。
func (i *Identity) Profile() *Profile {
	return &Profile{
		ID:           i.Key,
		Name:         i.DisplayName,
		Email:        i.Email,
		CreatedAt:    i.CreatedAt,
		UpdatedAt:    i.UpdatedAt,
		ProfilePhoto: i.ProfilePhoto.Ptr(),
	}
}
