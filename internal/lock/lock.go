// Package lock はIdentity単位の排他制御を提供する。
// 単一プロセスではLocalLocker、複数レプリカ構成ではRedisLockerを使用する。
package lock

import (
	"context"
	"errors"
	"sync"
)

// ErrNotAcquired はタイムアウトまでにロックを取得できなかった場合に返される。
var ErrNotAcquired = errors.New("lock not acquired")

// Locker はキー単位の排他ロックのインターフェース。
// 取得に成功した場合は解放関数を返す。解放関数は1回だけ呼び出すこと。
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// LocalLocker はプロセス内のキー単位ロック。
// 使用中のキーのみをマップに保持し、解放時に参照がなくなれば削除する。
type LocalLocker struct {
	mu      sync.Mutex
	entries map[string]*localEntry
}

type localEntry struct {
	sem  chan struct{}
	refs int
}

// NewLocalLocker はLocalLockerを生成する。
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{entries: make(map[string]*localEntry)}
}

// Lock はkeyのロックを取得する。ctxがキャンセルされた場合はctx.Err()を返す。
func (l *LocalLocker) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	e, ok := l.entries[key]
	if !ok {
		e = &localEntry{sem: make(chan struct{}, 1)}
		l.entries[key] = e
	}
	e.refs++
	l.mu.Unlock()

	select {
	case e.sem <- struct{}{}:
	case <-ctx.Done():
		l.release(key, e)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.sem
			l.release(key, e)
		})
	}, nil
}

func (l *LocalLocker) release(key string, e *localEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.entries, key)
	}
}

// size は保持中のキー数を返す。
func (l *LocalLocker) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

var _ Locker = (*LocalLocker)(nil)
