package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/moodmate/internal/model"
)

// PostgresSessionRepo はPostgreSQLを使用したセッションストア。
type PostgresSessionRepo struct {
	db *sql.DB
}

// NewPostgresSessionRepo はPostgresSessionRepoを生成する。
func NewPostgresSessionRepo(db *sql.DB) *PostgresSessionRepo {
	return &PostgresSessionRepo{db: db}
}

// Create はセッションを作成する。
func (r *PostgresSessionRepo) Create(ctx context.Context, session *model.Session) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sessions (token, owner_key, owner_email, created_at)
		 VALUES ($1, $2, $3, $4)`,
		session.Token, session.OwnerKey, session.OwnerEmail, session.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// FindByToken は指定トークンのセッションを取得する。見つからない場合はnilを返す。
func (r *PostgresSessionRepo) FindByToken(ctx context.Context, token string) (*model.Session, error) {
	session := &model.Session{}
	err := r.db.QueryRowContext(ctx,
		`SELECT token, owner_key, owner_email, created_at
		 FROM sessions
		 WHERE token = $1`,
		token,
	).Scan(&session.Token, &session.OwnerKey, &session.OwnerEmail, &session.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}

	return session, nil
}

// DeleteByToken は指定トークンのセッションを削除する。
func (r *PostgresSessionRepo) DeleteByToken(ctx context.Context, token string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE token = $1`,
		token,
	)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// RewriteOwner はoldKeyが所有する全セッションの所有者を単一のUPDATE文で書き換える。
// コンテキストがリネームのトランザクションを運んでいればその中で実行する。
func (r *PostgresSessionRepo) RewriteOwner(ctx context.Context, oldKey, newKey, newEmail string) (int, error) {
	result, err := conn(ctx, r.db).ExecContext(ctx,
		`UPDATE sessions SET owner_key = $2, owner_email = $3 WHERE owner_key = $1`,
		oldKey, newKey, newEmail,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to rewrite session owner: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(rows), nil
}

// DeleteCreatedBefore はcutoffより前に作成されたセッションを削除し、件数を返す。
func (r *PostgresSessionRepo) DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE created_at < $1`,
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows, nil
}

// compile-time interface check
var _ SessionStore = (*PostgresSessionRepo)(nil)
