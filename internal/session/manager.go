// Package session は不透明トークンによるセッションの発行・検証・失効を提供する。
package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/hitoshi/moodmate/internal/model"
	"github.com/hitoshi/moodmate/internal/repository"
)

const (
	tokenPrefix      = "s_"
	tokenRandomBytes = 32
)

// Manager はセッションのライフサイクルを管理する。
// セッションストアへのアクセスはすべてManagerを経由する。
type Manager struct {
	store  repository.SessionStore
	maxAge time.Duration
	now    func() time.Time
	random io.Reader
}

// Option はManagerの設定を変更する関数。
type Option func(*Manager)

// WithMaxAge はセッションの最大有効期間を設定する。0以下の場合は失効しない。
func WithMaxAge(d time.Duration) Option {
	return func(m *Manager) { m.maxAge = d }
}

// WithClock は現在時刻の取得関数を差し替える。
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithRandom はトークン生成に使う乱数源を差し替える。
func WithRandom(r io.Reader) Option {
	return func(m *Manager) { m.random = r }
}

// NewManager はManagerを生成する。
func NewManager(store repository.SessionStore, opts ...Option) *Manager {
	m := &Manager{
		store:  store,
		now:    time.Now,
		random: rand.Reader,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Issue は新しいセッションを発行して永続化し、トークンを返す。
func (m *Manager) Issue(ctx context.Context, ownerKey, ownerEmail string) (string, error) {
	now := m.now()
	token, err := m.generateToken(now)
	if err != nil {
		return "", fmt.Errorf("failed to generate session token: %w", err)
	}

	session := &model.Session{
		Token:      token,
		OwnerKey:   ownerKey,
		OwnerEmail: ownerEmail,
		CreatedAt:  now,
	}
	if err := m.store.Create(ctx, session); err != nil {
		return "", fmt.Errorf("failed to save session: %w", err)
	}

	slog.Debug("session issued", slog.String("owner_key", ownerKey))
	return token, nil
}

// Validate はトークンに対応する有効なセッションを返す。
// 形式不正・未登録・期限切れの場合はnil, nilを返す。
// ストア障害はエラーとして返し、未認証としては扱わない。
func (m *Manager) Validate(ctx context.Context, token string) (*model.Session, error) {
	if !ValidTokenFormat(token) {
		return nil, nil
	}

	session, err := m.store.FindByToken(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	if session == nil {
		return nil, nil
	}
	if m.expired(session) {
		return nil, nil
	}
	return session, nil
}

// Revoke はセッションを破棄する。存在しないトークンでもエラーにしない。
func (m *Manager) Revoke(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := m.store.DeleteByToken(ctx, token); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// RewriteOwner はoldKeyが所有する全セッションの所有者をnewKeyに書き換え、件数を返す。
func (m *Manager) RewriteOwner(ctx context.Context, oldKey, newKey, newEmail string) (int, error) {
	n, err := m.store.RewriteOwner(ctx, oldKey, newKey, newEmail)
	if err != nil {
		return 0, fmt.Errorf("failed to rewrite session owner: %w", err)
	}
	slog.Info("session owner rewritten",
		slog.String("old_key", oldKey),
		slog.String("new_key", newKey),
		slog.Int("sessions", n),
	)
	return n, nil
}

// MaxAge はセッションの最大有効期間を返す。0の場合は失効しない。
func (m *Manager) MaxAge() time.Duration {
	return m.maxAge
}

func (m *Manager) expired(s *model.Session) bool {
	if m.maxAge <= 0 {
		return false
	}
	return m.now().Sub(s.CreatedAt) > m.maxAge
}

// generateToken は "s_" + 36進のUnixナノ秒 + "_" + 32バイト乱数の16進表現 を生成する。
func (m *Manager) generateToken(now time.Time) (string, error) {
	b := make([]byte, tokenRandomBytes)
	if _, err := io.ReadFull(m.random, b); err != nil {
		return "", err
	}
	return tokenPrefix + strconv.FormatInt(now.UnixNano(), 36) + "_" + hex.EncodeToString(b), nil
}

// ValidTokenFormat はトークンが発行形式に合致するかを返す。
func ValidTokenFormat(token string) bool {
	rest, ok := strings.CutPrefix(token, tokenPrefix)
	if !ok {
		return false
	}
	stamp, random, ok := strings.Cut(rest, "_")
	if !ok || stamp == "" {
		return false
	}
	if _, err := strconv.ParseInt(stamp, 36, 64); err != nil {
		return false
	}
	if len(random) != tokenRandomBytes*2 {
		return false
	}
	_, err := hex.DecodeString(random)
	return err == nil
}
