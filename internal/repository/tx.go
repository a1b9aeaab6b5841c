package repository

import (
	"context"
	"database/sql"
)

// execer は*sql.DBと*sql.Txに共通するクエリ実行メソッド。
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type txKey struct{}

// withTx はトランザクションをコンテキストに載せる。
// RenameCascadeに渡されるコンテキストはこの形でリネームのトランザクションを運ぶ。
func withTx(ctx context.Context, tx *sql.Tx) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

// conn はコンテキストにトランザクションがあればそれを、なければdbを返す。
func conn(ctx context.Context, db *sql.DB) execer {
	if tx, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return tx
	}
	return db
}
