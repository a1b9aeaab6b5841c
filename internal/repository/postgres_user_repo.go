package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/hitoshi/moodmate/internal/model"
)

// pqUniqueViolation はPostgreSQLの一意制約違反のエラーコード。
const pqUniqueViolation = "23505"

const identityColumns = `key, email, display_name, password_hash, profile_photo, created_at, updated_at`

// PostgresUserRepo はPostgreSQLを使用した認証情報ストア。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

// rowScanner は*sql.Rowと*sql.Rowsの共通インターフェース。
type rowScanner interface {
	Scan(dest ...any) error
}

func scanIdentity(row rowScanner) (*model.Identity, error) {
	identity := &model.Identity{}
	var photo sql.NullString
	err := row.Scan(
		&identity.Key, &identity.Email, &identity.DisplayName, &identity.PasswordHash,
		&photo, &identity.CreatedAt, &identity.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	identity.ProfilePhoto = model.OptionalString{Value: photo.String, Valid: photo.Valid}
	return identity, nil
}

func nullableString(o model.OptionalString) sql.NullString {
	return sql.NullString{String: o.Value, Valid: o.Valid}
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation
}

// Exists は指定キーのIdentityが存在するかを返す。
func (r *PostgresUserRepo) Exists(ctx context.Context, key string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE key = $1)`,
		key,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check user existence: %w", err)
	}
	return exists, nil
}

// FindByKey は指定キーのIdentityを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByKey(ctx context.Context, key string) (*model.Identity, error) {
	identity, err := scanIdentity(r.db.QueryRowContext(ctx,
		`SELECT `+identityColumns+` FROM users WHERE key = $1`,
		key,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by key: %w", err)
	}
	return identity, nil
}

// Create はIdentityを新規作成する。
func (r *PostgresUserRepo) Create(ctx context.Context, identity *model.Identity) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (`+identityColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		identity.Key, identity.Email, identity.DisplayName, identity.PasswordHash,
		nullableString(identity.ProfilePhoto), identity.CreatedAt, identity.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return ErrIdentityConflict
	}
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// Put はIdentityをUPSERTする。
func (r *PostgresUserRepo) Put(ctx context.Context, identity *model.Identity) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (`+identityColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (key) DO UPDATE SET
		   email = EXCLUDED.email,
		   display_name = EXCLUDED.display_name,
		   password_hash = EXCLUDED.password_hash,
		   profile_photo = EXCLUDED.profile_photo,
		   updated_at = EXCLUDED.updated_at`,
		identity.Key, identity.Email, identity.DisplayName, identity.PasswordHash,
		nullableString(identity.ProfilePhoto), identity.CreatedAt, identity.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to put user: %w", err)
	}
	return nil
}

// Delete は指定キーのIdentityを削除する。
func (r *PostgresUserRepo) Delete(ctx context.Context, key string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM users WHERE key = $1`,
		key,
	)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	return nil
}

// SetProfilePhoto はプロフィール写真を設定する。
func (r *PostgresUserRepo) SetProfilePhoto(ctx context.Context, key, photo string, updatedAt time.Time) error {
	return r.updatePhoto(ctx, key, sql.NullString{String: photo, Valid: true}, updatedAt)
}

// UnsetProfilePhoto はプロフィール写真をNULLに戻す。
func (r *PostgresUserRepo) UnsetProfilePhoto(ctx context.Context, key string, updatedAt time.Time) error {
	return r.updatePhoto(ctx, key, sql.NullString{}, updatedAt)
}

func (r *PostgresUserRepo) updatePhoto(ctx context.Context, key string, photo sql.NullString, updatedAt time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE users SET profile_photo = $2, updated_at = $3 WHERE key = $1`,
		key, photo, updatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update profile photo: %w", err)
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

// Rename はoldKeyのIdentityをnewKeyへ移す。
// 旧行をFOR UPDATEでロックし、新行のINSERTを旧行のDELETEより先に同一トランザクションで行う。
// cascadeもコミット前に同じトランザクションで実行される。
func (r *PostgresUserRepo) Rename(ctx context.Context, oldKey, newKey string, mutate IdentityMutator, cascade RenameCascade) (*model.Identity, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	identity, err := scanIdentity(tx.QueryRowContext(ctx,
		`SELECT `+identityColumns+` FROM users WHERE key = $1 FOR UPDATE`,
		oldKey,
	))
	if err == sql.ErrNoRows {
		return nil, ErrIdentityNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock user: %w", err)
	}

	if mutate != nil {
		mutate(identity)
	}
	identity.Key = newKey

	if newKey == oldKey {
		_, err = tx.ExecContext(ctx,
			`UPDATE users SET email = $2, display_name = $3, password_hash = $4, profile_photo = $5, updated_at = $6
			 WHERE key = $1`,
			identity.Key, identity.Email, identity.DisplayName, identity.PasswordHash,
			nullableString(identity.ProfilePhoto), identity.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to update user: %w", err)
		}
	} else {
		// 新キーの書き込み
		result, err := tx.ExecContext(ctx,
			`INSERT INTO users (`+identityColumns+`)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)
			 ON CONFLICT (key) DO NOTHING`,
			identity.Key, identity.Email, identity.DisplayName, identity.PasswordHash,
			nullableString(identity.ProfilePhoto), identity.CreatedAt, identity.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to insert renamed user: %w", err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("failed to get rows affected: %w", err)
		}
		if rows == 0 {
			return nil, ErrIdentityConflict
		}

		// 旧キーの削除
		if _, err := tx.ExecContext(ctx, `DELETE FROM users WHERE key = $1`, oldKey); err != nil {
			return nil, fmt.Errorf("failed to delete old user: %w", err)
		}
	}

	if cascade != nil {
		if err := cascade(withTx(ctx, tx)); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return identity, nil
}

// compile-time interface check
var _ CredentialStore = (*PostgresUserRepo)(nil)
