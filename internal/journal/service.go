// Package journal は気分ジャーナルのドメインロジックを提供する。
package journal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/moodmate/internal/model"
	"github.com/hitoshi/moodmate/internal/repository"
	"github.com/hitoshi/moodmate/internal/security"
)

// CreateInput はジャーナル作成時の入力。
type CreateInput struct {
	Note            string
	Mood            string
	Activities      []string
	ActivityDetails json.RawMessage
}

// Service はジャーナル管理のサービス層。
// すべての操作は認証済みセッションの所有者キーを受け取り、他ユーザーのジャーナルへのアクセスを拒否する。
type Service struct {
	repo      repository.JournalRepository
	sanitizer security.TextSanitizer
	now       func() time.Time
	newID     func() string
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(repo repository.JournalRepository, sanitizer security.TextSanitizer) *Service {
	return &Service{
		repo:      repo,
		sanitizer: sanitizer,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// Create はジャーナルを作成する。本文と気分は必須。
func (s *Service) Create(ctx context.Context, ownerKey string, in CreateInput) (*model.Journal, error) {
	note := s.sanitizer.Sanitize(in.Note)
	mood := s.sanitizer.Sanitize(in.Mood)
	if note == "" || mood == "" {
		return nil, model.NewInvalidInputError("本文と気分を入力してください。")
	}

	details, err := normalizeDetails(in.ActivityDetails)
	if err != nil {
		return nil, err
	}

	now := s.now()
	journal := &model.Journal{
		ID:              s.newID(),
		OwnerKey:        ownerKey,
		Note:            note,
		Mood:            mood,
		Activities:      security.SanitizeAll(s.sanitizer, in.Activities),
		ActivityDetails: details,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.repo.Create(ctx, journal); err != nil {
		// 作成中に所有者がリネームされた場合は旧キーにジャーナルを残さない
		if errors.Is(err, repository.ErrIdentityNotFound) {
			return nil, model.NewUserNotFoundError()
		}
		return nil, fmt.Errorf("ジャーナルの作成に失敗しました: %w", err)
	}

	slog.Info("journal created",
		slog.String("owner_key", ownerKey),
		slog.String("journal_id", journal.ID),
	)
	return journal, nil
}

// List は所有者のジャーナル一覧を新しい順に返す。
func (s *Service) List(ctx context.Context, ownerKey string) ([]*model.Journal, error) {
	journals, err := s.repo.ListByOwner(ctx, ownerKey)
	if err != nil {
		return nil, fmt.Errorf("ジャーナル一覧の取得に失敗しました: %w", err)
	}
	for _, j := range journals {
		fillDefaults(j)
	}
	return journals, nil
}

// Get は指定IDのジャーナルを返す。存在しない場合はNotFound、所有者が異なる場合はForbidden。
func (s *Service) Get(ctx context.Context, ownerKey, id string) (*model.Journal, error) {
	return s.findOwned(ctx, ownerKey, id)
}

// Delete は指定IDのジャーナルを削除する。
func (s *Service) Delete(ctx context.Context, ownerKey, id string) error {
	if _, err := s.findOwned(ctx, ownerKey, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("ジャーナルの削除に失敗しました: %w", err)
	}

	slog.Info("journal deleted",
		slog.String("owner_key", ownerKey),
		slog.String("journal_id", id),
	)
	return nil
}

// RewriteOwner はIdentityのリネームに合わせてジャーナルの所有者を付け替える。
func (s *Service) RewriteOwner(ctx context.Context, oldKey, newKey string) (int, error) {
	n, err := s.repo.RewriteOwner(ctx, oldKey, newKey)
	if err != nil {
		return 0, fmt.Errorf("ジャーナル所有者の付け替えに失敗しました: %w", err)
	}
	slog.Info("journal owner rewritten",
		slog.String("old_key", oldKey),
		slog.String("new_key", newKey),
		slog.Int("journals", n),
	)
	return n, nil
}

func (s *Service) findOwned(ctx context.Context, ownerKey, id string) (*model.Journal, error) {
	// UUID形式でないIDはストアに問い合わせずに未検出とする
	if _, err := uuid.Parse(id); err != nil {
		return nil, model.NewJournalNotFoundError(id)
	}

	journal, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("ジャーナルの取得に失敗しました: %w", err)
	}
	if journal == nil {
		return nil, model.NewJournalNotFoundError(id)
	}
	if journal.OwnerKey != ownerKey {
		slog.Warn("journal access denied",
			slog.String("owner_key", ownerKey),
			slog.String("journal_id", id),
		)
		return nil, model.NewJournalForbiddenError()
	}
	fillDefaults(journal)
	return journal, nil
}

// normalizeDetails は活動詳細を検証する。未指定やnullは空オブジェクトとして扱う。
func normalizeDetails(raw json.RawMessage) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return json.RawMessage("{}"), nil
	}
	var obj map[string]any
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		return nil, model.NewInvalidInputError("活動詳細はオブジェクトで指定してください。")
	}
	return json.RawMessage(trimmed), nil
}

func fillDefaults(j *model.Journal) {
	if j.Activities == nil {
		j.Activities = []string{}
	}
	if len(j.ActivityDetails) == 0 {
		j.ActivityDetails = json.RawMessage("{}")
	}
}

