package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/moodmate/internal/model"
)

const journalColumns = `id, owner_key, note, mood, activities, activity_details, created_at, updated_at`

// PostgresJournalRepo はPostgreSQLを使用したジャーナルリポジトリ。
type PostgresJournalRepo struct {
	db *sql.DB
}

// NewPostgresJournalRepo はPostgresJournalRepoを生成する。
func NewPostgresJournalRepo(db *sql.DB) *PostgresJournalRepo {
	return &PostgresJournalRepo{db: db}
}

func scanJournal(row rowScanner) (*model.Journal, error) {
	j := &model.Journal{}
	var details []byte
	err := row.Scan(
		&j.ID, &j.OwnerKey, &j.Note, &j.Mood, pq.Array(&j.Activities),
		&details, &j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(details) > 0 {
		j.ActivityDetails = json.RawMessage(details)
	}
	if j.Activities == nil {
		j.Activities = []string{}
	}
	return j, nil
}

// Create はジャーナルを作成する。
func (r *PostgresJournalRepo) Create(ctx context.Context, journal *model.Journal) error {
	var details any
	if len(journal.ActivityDetails) > 0 {
		details = string(journal.ActivityDetails)
	}
	// 所有者の行をFOR SHAREで確認する。進行中のリネームが旧キーを削除していれば待機後に0行となる
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO journals (`+journalColumns+`)
		 SELECT $1::uuid, $2::varchar, $3::text, $4::varchar, $5::text[], $6::jsonb, $7::timestamptz, $8::timestamptz
		 WHERE EXISTS (SELECT 1 FROM users WHERE key = $2 FOR SHARE)`,
		journal.ID, journal.OwnerKey, journal.Note, journal.Mood, pq.Array(journal.Activities),
		details, journal.CreatedAt, journal.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create journal: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrIdentityNotFound
	}
	return nil
}

// FindByID は指定IDのジャーナルを取得する。見つからない場合はnilを返す。
func (r *PostgresJournalRepo) FindByID(ctx context.Context, id string) (*model.Journal, error) {
	journal, err := scanJournal(r.db.QueryRowContext(ctx,
		`SELECT `+journalColumns+` FROM journals WHERE id = $1`,
		id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find journal: %w", err)
	}
	return journal, nil
}

// ListByOwner は所有者のジャーナル一覧を作成日時の降順で返す。
func (r *PostgresJournalRepo) ListByOwner(ctx context.Context, ownerKey string) ([]*model.Journal, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+journalColumns+`
		 FROM journals
		 WHERE owner_key = $1
		 ORDER BY created_at DESC`,
		ownerKey,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list journals: %w", err)
	}
	defer rows.Close()

	journals := []*model.Journal{}
	for rows.Next() {
		j, err := scanJournal(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan journal: %w", err)
		}
		journals = append(journals, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate journals: %w", err)
	}
	return journals, nil
}

// Delete は指定IDのジャーナルを削除する。
func (r *PostgresJournalRepo) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM journals WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete journal: %w", err)
	}
	return nil
}

// RewriteOwner はoldKeyが所有する全ジャーナルをnewKeyに付け替える。
// コンテキストがリネームのトランザクションを運んでいればその中で実行する。
func (r *PostgresJournalRepo) RewriteOwner(ctx context.Context, oldKey, newKey string) (int, error) {
	result, err := conn(ctx, r.db).ExecContext(ctx,
		`UPDATE journals SET owner_key = $2 WHERE owner_key = $1`,
		oldKey, newKey,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to rewrite journal owner: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(rows), nil
}

// compile-time interface check
var _ JournalRepository = (*PostgresJournalRepo)(nil)
