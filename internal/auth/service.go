// Package auth はメールアドレスとパスワードによる認証と、プロフィール管理を提供する。
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/hitoshi/moodmate/internal/lock"
	"github.com/hitoshi/moodmate/internal/metrics"
	"github.com/hitoshi/moodmate/internal/model"
	"github.com/hitoshi/moodmate/internal/repository"
)

// パスワード変更時の長さ制限（文字数）
const (
	MinPasswordLength = 6
	MaxPasswordLength = 100
)

// ownerLockRetries はロック取得中にセッション所有者が変わった場合の再試行回数。
const ownerLockRetries = 3

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// SessionManager はセッションのライフサイクル管理のインターフェース。
type SessionManager interface {
	Issue(ctx context.Context, ownerKey, ownerEmail string) (string, error)
	Validate(ctx context.Context, token string) (*model.Session, error)
	Revoke(ctx context.Context, token string) error
	RewriteOwner(ctx context.Context, oldKey, newKey, newEmail string) (int, error)
}

// PasswordHasher はパスワードのハッシュ化と照合のインターフェース。
type PasswordHasher interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext, digest string) bool
}

// OwnerReassigner はIdentityのリネーム時に所有データを新しいキーへ付け替える。
type OwnerReassigner interface {
	RewriteOwner(ctx context.Context, oldKey, newKey string) (int, error)
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	store    repository.CredentialStore
	sessions SessionManager
	hasher   PasswordHasher
	locker   lock.Locker
	owned    []OwnerReassigner
	metrics  metrics.MetricsCollector
	now      func() time.Time
}

// Option はServiceの設定を変更する関数。
type Option func(*Service)

// WithLocker はIdentity単位のロックを差し替える。
func WithLocker(l lock.Locker) Option {
	return func(s *Service) { s.locker = l }
}

// WithOwnedData はリネーム時に所有者を付け替えるデータを登録する。
func WithOwnedData(r ...OwnerReassigner) Option {
	return func(s *Service) { s.owned = append(s.owned, r...) }
}

// WithMetrics はメトリクスコレクターを設定する。
func WithMetrics(m metrics.MetricsCollector) Option {
	return func(s *Service) { s.metrics = m }
}

// WithClock は現在時刻の取得関数を差し替える。
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService はServiceを生成する。
func NewService(
	store repository.CredentialStore,
	sessions SessionManager,
	hasher PasswordHasher,
	opts ...Option,
) *Service {
	s := &Service{
		store:    store,
		sessions: sessions,
		hasher:   hasher,
		locker:   lock.NewLocalLocker(),
		metrics:  metrics.Nop{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register は新しいIdentityを作成する。
// メールアドレスは小文字に正規化してキーとし、既に存在する場合はConflictを返す。
func (s *Service) Register(ctx context.Context, name, email, password string) (profile *model.Profile, err error) {
	defer func() { s.recordAttempt("register", err) }()

	name = strings.TrimSpace(name)
	email = strings.TrimSpace(email)
	if name == "" {
		return nil, model.NewInvalidInputError("名前を入力してください。")
	}
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if password == "" {
		return nil, model.NewInvalidInputError("パスワードを入力してください。")
	}

	key := model.NormalizeEmail(email)
	exists, err := s.store.Exists(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to check identity %s: %w", key, err)
	}
	if exists {
		return nil, model.NewEmailTakenError()
	}

	digest, err := s.hasher.Hash(password)
	if err != nil {
		return nil, err
	}

	now := s.now()
	identity := &model.Identity{
		Key:          key,
		Email:        email,
		DisplayName:  name,
		PasswordHash: digest,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.Create(ctx, identity); err != nil {
		if errors.Is(err, repository.ErrIdentityConflict) {
			return nil, model.NewEmailTakenError()
		}
		return nil, fmt.Errorf("failed to create identity %s: %w", key, err)
	}

	slog.Info("user registered", slog.String("key", key))
	return identity.Profile(), nil
}

// Login は認証情報を検証してセッションを発行する。
// ユーザー不在とパスワード不一致は同一のエラーを返す。
func (s *Service) Login(ctx context.Context, email, password string) (token string, user *model.PublicUser, err error) {
	defer func() { s.recordAttempt("login", err) }()

	key := model.NormalizeEmail(email)
	if key == "" || password == "" {
		return "", nil, model.NewInvalidCredentialsError()
	}

	identity, err := s.store.FindByKey(ctx, key)
	if err != nil {
		return "", nil, fmt.Errorf("failed to find identity %s: %w", key, err)
	}
	if identity == nil {
		slog.Info("login rejected", slog.String("key", key), slog.String("reason", "not_found"))
		return "", nil, model.NewInvalidCredentialsError()
	}
	if !s.hasher.Verify(password, identity.PasswordHash) {
		slog.Info("login rejected", slog.String("key", key), slog.String("reason", "password_mismatch"))
		return "", nil, model.NewInvalidCredentialsError()
	}

	token, err = s.sessions.Issue(ctx, identity.Key, identity.Email)
	if err != nil {
		return "", nil, err
	}
	s.metrics.RecordSessionIssued()

	slog.Info("user logged in", slog.String("key", identity.Key))
	return token, identity.Public(), nil
}

// Logout はセッションを破棄する。トークンが存在しない場合も成功とする。
func (s *Service) Logout(ctx context.Context, token string) error {
	if err := s.sessions.Revoke(ctx, token); err != nil {
		s.recordAttempt("logout", err)
		return err
	}
	if token != "" {
		s.metrics.RecordSessionRevoked()
	}
	s.recordAttempt("logout", nil)
	return nil
}

// Authenticate はトークンを検証し、有効なセッションを返す。
// 無効なセッションはUnauthorized、ストア障害はそのままエラーを返す。
func (s *Service) Authenticate(ctx context.Context, token string) (*model.Session, error) {
	session, err := s.sessions.Validate(ctx, token)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, model.NewInvalidSessionError()
	}
	return session, nil
}

// GetProfile はセッション所有者のプロフィールを返す。
func (s *Service) GetProfile(ctx context.Context, token string) (*model.Profile, error) {
	session, err := s.Authenticate(ctx, token)
	if err != nil {
		return nil, err
	}

	identity, err := s.findIdentity(ctx, session.OwnerKey)
	if err != nil {
		return nil, err
	}
	if identity == nil {
		// リネームのコミットがセッションとIdentityの読み込みの間に入った場合は新しい所有者で読み直す
		current, err := s.Authenticate(ctx, token)
		if err != nil {
			return nil, err
		}
		if identity, err = s.loadIdentity(ctx, current); err != nil {
			return nil, err
		}
	}
	return identity.Profile(), nil
}

// UpdateProfile は名前とメールアドレスを更新する。
// メールアドレスのキーが変わる場合はIdentityをリネームし、
// セッションと所有データの付け替えも同じトランザクションでコミットする。
func (s *Service) UpdateProfile(ctx context.Context, token, name, email string) (profile *model.Profile, err error) {
	defer func() { s.recordAttempt("update_profile", err) }()

	session, unlock, err := s.lockOwner(ctx, token)
	if err != nil {
		return nil, err
	}
	defer unlock()

	name = strings.TrimSpace(name)
	email = strings.TrimSpace(email)
	if name == "" {
		return nil, model.NewInvalidInputError("名前を入力してください。")
	}
	if err := validateEmail(email); err != nil {
		return nil, err
	}

	identity, err := s.loadIdentity(ctx, session)
	if err != nil {
		return nil, err
	}

	oldKey := identity.Key
	newKey := model.NormalizeEmail(email)
	now := s.now()

	if newKey == oldKey {
		emailChanged := identity.Email != email
		identity.DisplayName = name
		identity.Email = email
		identity.UpdatedAt = now
		if err := s.store.Put(ctx, identity); err != nil {
			return nil, fmt.Errorf("failed to update identity: %w", err)
		}
		if emailChanged {
			if _, err := s.sessions.RewriteOwner(ctx, oldKey, oldKey, email); err != nil {
				return nil, err
			}
		}
		slog.Info("profile updated", slog.String("key", oldKey))
		return identity.Profile(), nil
	}

	exists, err := s.store.Exists(ctx, newKey)
	if err != nil {
		return nil, fmt.Errorf("failed to check identity %s: %w", newKey, err)
	}
	if exists {
		return nil, model.NewEmailTakenError()
	}

	var rewritten int
	renamed, err := s.store.Rename(ctx, oldKey, newKey, func(i *model.Identity) {
		i.DisplayName = name
		i.Email = email
		i.UpdatedAt = now
	}, func(txCtx context.Context) error {
		n, err := s.sessions.RewriteOwner(txCtx, oldKey, newKey, email)
		if err != nil {
			return fmt.Errorf("failed to rewrite sessions: %w", err)
		}
		rewritten = n
		for _, r := range s.owned {
			if _, err := r.RewriteOwner(txCtx, oldKey, newKey); err != nil {
				return fmt.Errorf("failed to reassign owned data: %w", err)
			}
		}
		return nil
	})
	switch {
	case errors.Is(err, repository.ErrIdentityConflict):
		return nil, model.NewEmailTakenError()
	case errors.Is(err, repository.ErrIdentityNotFound):
		return nil, model.NewUserNotFoundError()
	case err != nil:
		return nil, fmt.Errorf("failed to rename identity %s to %s: %w", oldKey, newKey, err)
	}
	s.metrics.RecordSessionsRewritten(rewritten)

	slog.Info("identity renamed",
		slog.String("old_key", oldKey),
		slog.String("new_key", newKey),
		slog.Int("sessions", rewritten),
	)
	return renamed.Profile(), nil
}

// ChangePassword はパスワードを変更し、更新日時を返す。
func (s *Service) ChangePassword(ctx context.Context, token, currentPassword, newPassword string) (updatedAt time.Time, err error) {
	defer func() { s.recordAttempt("change_password", err) }()

	session, unlock, err := s.lockOwner(ctx, token)
	if err != nil {
		return time.Time{}, err
	}
	defer unlock()

	if strings.TrimSpace(currentPassword) == "" {
		return time.Time{}, model.NewInvalidInputError("現在のパスワードを入力してください。")
	}
	if strings.TrimSpace(newPassword) == "" {
		return time.Time{}, model.NewInvalidInputError("新しいパスワードを入力してください。")
	}
	if n := utf8.RuneCountInString(newPassword); n < MinPasswordLength {
		return time.Time{}, model.NewInvalidInputError(fmt.Sprintf("新しいパスワードは%d文字以上で入力してください。", MinPasswordLength))
	} else if n > MaxPasswordLength {
		return time.Time{}, model.NewInvalidInputError(fmt.Sprintf("新しいパスワードは%d文字以内で入力してください。", MaxPasswordLength))
	}

	identity, err := s.loadIdentity(ctx, session)
	if err != nil {
		return time.Time{}, err
	}

	if !s.hasher.Verify(currentPassword, identity.PasswordHash) {
		return time.Time{}, model.NewWrongPasswordError()
	}
	if s.hasher.Verify(newPassword, identity.PasswordHash) {
		return time.Time{}, model.NewSamePasswordError()
	}

	digest, err := s.hasher.Hash(newPassword)
	if err != nil {
		return time.Time{}, err
	}
	identity.PasswordHash = digest
	identity.UpdatedAt = s.now()
	if err := s.store.Put(ctx, identity); err != nil {
		return time.Time{}, fmt.Errorf("failed to update password: %w", err)
	}

	slog.Info("password changed", slog.String("key", identity.Key))
	return identity.UpdatedAt, nil
}

// UpdateProfilePhoto はプロフィール写真を設定する。
func (s *Service) UpdateProfilePhoto(ctx context.Context, token, photo string) error {
	return s.mutatePhoto(ctx, token, "update_photo", func(key string, at time.Time) error {
		return s.store.SetProfilePhoto(ctx, key, photo, at)
	})
}

// ResetProfilePhoto はプロフィール写真を未設定に戻す。
func (s *Service) ResetProfilePhoto(ctx context.Context, token string) error {
	return s.mutatePhoto(ctx, token, "reset_photo", func(key string, at time.Time) error {
		return s.store.UnsetProfilePhoto(ctx, key, at)
	})
}

func (s *Service) mutatePhoto(ctx context.Context, token, operation string, apply func(key string, at time.Time) error) (err error) {
	defer func() { s.recordAttempt(operation, err) }()

	session, unlock, err := s.lockOwner(ctx, token)
	if err != nil {
		return err
	}
	defer unlock()

	if err := apply(session.OwnerKey, s.now()); err != nil {
		if errors.Is(err, repository.ErrIdentityNotFound) {
			slog.Error("session references missing identity", slog.String("key", session.OwnerKey))
			return model.NewUserNotFoundError()
		}
		return fmt.Errorf("failed to %s: %w", strings.ReplaceAll(operation, "_", " "), err)
	}

	slog.Info("profile photo changed", slog.String("key", session.OwnerKey), slog.String("operation", operation))
	return nil
}

// lockOwner はセッション所有者のIdentityロックを取得し、ロック下で再検証したセッションを返す。
// 待機中にリネームで所有者が変わった場合は新しいキーで取り直す。
func (s *Service) lockOwner(ctx context.Context, token string) (*model.Session, func(), error) {
	session, err := s.Authenticate(ctx, token)
	if err != nil {
		return nil, nil, err
	}

	for i := 0; i < ownerLockRetries; i++ {
		unlock, err := s.locker.Lock(ctx, session.OwnerKey)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to lock identity: %w", err)
		}

		current, err := s.Authenticate(ctx, token)
		if err != nil {
			unlock()
			return nil, nil, err
		}
		if current.OwnerKey == session.OwnerKey {
			return current, unlock, nil
		}
		unlock()
		session = current
	}
	return nil, nil, fmt.Errorf("identity lock for %s: owner kept changing", session.OwnerKey)
}

// loadIdentity はセッション所有者のIdentityを取得する。
// 有効なセッションに対応するIdentityが存在しない場合は整合性違反としてNotFoundを返す。
func (s *Service) loadIdentity(ctx context.Context, session *model.Session) (*model.Identity, error) {
	identity, err := s.findIdentity(ctx, session.OwnerKey)
	if err != nil {
		return nil, err
	}
	if identity == nil {
		slog.Error("session references missing identity", slog.String("key", session.OwnerKey))
		return nil, model.NewUserNotFoundError()
	}
	return identity, nil
}

func (s *Service) findIdentity(ctx context.Context, key string) (*model.Identity, error) {
	identity, err := s.store.FindByKey(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to find identity %s: %w", key, err)
	}
	return identity, nil
}

func (s *Service) recordAttempt(operation string, err error) {
	s.metrics.RecordAuthAttempt(operation, outcomeOf(err))
}

func outcomeOf(err error) string {
	if err == nil {
		return metrics.OutcomeSuccess
	}
	var apiErr *model.APIError
	if errors.As(err, &apiErr) && apiErr.Kind != model.KindInternal {
		return metrics.OutcomeRejected
	}
	return metrics.OutcomeError
}

func validateEmail(email string) error {
	if email == "" {
		return model.NewInvalidInputError("メールアドレスを入力してください。")
	}
	if !emailPattern.MatchString(email) {
		return model.NewInvalidInputError("メールアドレスの形式が正しくありません。")
	}
	return nil
}
