// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/hitoshi/moodmate/internal/model"
)

var (
	// ErrIdentityNotFound は対象のIdentityが存在しない場合に返される。
	ErrIdentityNotFound = errors.New("identity not found")
	// ErrIdentityConflict は同一キーのIdentityが既に存在する場合に返される。
	ErrIdentityConflict = errors.New("identity already exists")
)

// IdentityMutator はリネーム時に新しいキーへ書き込む前のIdentityを書き換える関数。
type IdentityMutator func(identity *model.Identity)

// RenameCascade はリネームのトランザクション内で、旧キーの削除後かつコミット前に呼ばれる。
// 渡されるコンテキストはトランザクションを運ぶため、SessionStore.RewriteOwnerと
// JournalRepository.RewriteOwnerはこれを使うと同じトランザクションで実行される。
// エラーを返すとリネーム全体がロールバックされる。
type RenameCascade func(ctx context.Context) error

// CredentialStore はユーザー認証情報（Identity）の永続化インターフェース。
// キーは正規化済みメールアドレス。
type CredentialStore interface {
	// Exists は指定キーのIdentityが存在するかを返す。
	Exists(ctx context.Context, key string) (bool, error)

	// FindByKey は指定キーのIdentityを取得する。見つからない場合はnilを返す。
	FindByKey(ctx context.Context, key string) (*model.Identity, error)

	// Create はIdentityを新規作成する。キーが既に存在する場合はErrIdentityConflictを返す。
	Create(ctx context.Context, identity *model.Identity) error

	// Put はIdentityをUPSERTする。
	Put(ctx context.Context, identity *model.Identity) error

	// Delete は指定キーのIdentityを削除する。存在しない場合もエラーにしない。
	Delete(ctx context.Context, key string) error

	// SetProfilePhoto はプロフィール写真を設定する。
	SetProfilePhoto(ctx context.Context, key, photo string, updatedAt time.Time) error

	// UnsetProfilePhoto はプロフィール写真を未設定に戻す。
	// 空文字列の設定とは区別され、フィールド自体が削除される。
	UnsetProfilePhoto(ctx context.Context, key string, updatedAt time.Time) error

	// Rename はoldKeyのIdentityを読み込みmutateを適用してnewKeyに書き込み、その後oldKeyを削除する。
	// 新キーの書き込みは必ず旧キーの削除より先に完了する。
	// oldKeyが存在しない場合はErrIdentityNotFound、
	// newKeyが既に存在しoldKeyと異なる場合はErrIdentityConflictを返す。
	// cascadeがnilでなければコミット前に呼ばれ、そのエラーはそのまま返される。
	Rename(ctx context.Context, oldKey, newKey string, mutate IdentityMutator, cascade RenameCascade) (*model.Identity, error)
}

// SessionStore はセッションデータの永続化インターフェース。
type SessionStore interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error

	// FindByToken は指定トークンのセッションを取得する。見つからない場合はnilを返す。
	FindByToken(ctx context.Context, token string) (*model.Session, error)

	// DeleteByToken は指定トークンのセッションを削除する。存在しない場合もエラーにしない。
	DeleteByToken(ctx context.Context, token string) error

	// RewriteOwner はoldKeyが所有する全セッションの所有者を一括で書き換え、件数を返す。
	// 所有者での絞り込みと書き換えは単一のアトミックなバッチとして適用される。
	RewriteOwner(ctx context.Context, oldKey, newKey, newEmail string) (int, error)
}

// JournalRepository はジャーナルデータの永続化インターフェース。
type JournalRepository interface {
	// Create はジャーナルを作成する。
	// 所有者のIdentityが存在しない場合はErrIdentityNotFoundを返す。
	Create(ctx context.Context, journal *model.Journal) error

	// FindByID は指定IDのジャーナルを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Journal, error)

	// ListByOwner は所有者のジャーナル一覧を作成日時の降順で返す。
	ListByOwner(ctx context.Context, ownerKey string) ([]*model.Journal, error)

	// Delete は指定IDのジャーナルを削除する。
	Delete(ctx context.Context, id string) error

	// RewriteOwner はoldKeyが所有する全ジャーナルをnewKeyに付け替え、件数を返す。
	RewriteOwner(ctx context.Context, oldKey, newKey string) (int, error)
}
