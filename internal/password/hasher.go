// Package password はパスワードのハッシュ化と照合を提供する。
package password

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// DefaultCost は既定のbcryptコスト。
const DefaultCost = 10

// maxInputBytes はbcryptが扱える入力長の上限。
// これを超える部分は既存のダイジェストとの互換のため切り捨てる。
const maxInputBytes = 72

// Hasher はbcryptを使用したパスワードハッシャー。
// ソルトはダイジェストに埋め込まれる。
type Hasher struct {
	cost int
}

// NewHasher は指定コストのHasherを生成する。範囲外のコストはDefaultCostに置き換える。
func NewHasher(cost int) *Hasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultCost
	}
	return &Hasher{cost: cost}
}

// Hash は平文パスワードのダイジェストを生成する。
func (h *Hasher) Hash(plaintext string) (string, error) {
	digest, err := bcrypt.GenerateFromPassword(truncate(plaintext), h.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(digest), nil
}

// Verify は平文パスワードがダイジェストと一致するかを返す。
// 不正な形式のダイジェストに対してはfalseを返す。
func (h *Hasher) Verify(plaintext, digest string) bool {
	return bcrypt.CompareHashAndPassword([]byte(digest), truncate(plaintext)) == nil
}

func truncate(plaintext string) []byte {
	b := []byte(plaintext)
	if len(b) > maxInputBytes {
		b = b[:maxInputBytes]
	}
	return b
}
