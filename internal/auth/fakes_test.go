package auth

import (
	"context"
	"sync"
	"time"

	"github.com/hitoshi/moodmate/internal/model"
	"github.com/hitoshi/moodmate/internal/repository"
)

// --- モック定義 ---

// opLog はストア操作の順序を記録する。
type opLog struct {
	mu  sync.Mutex
	ops []string
}

func (l *opLog) add(op string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ops = append(l.ops, op)
}

func (l *opLog) list() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.ops...)
}

// memTx はリネーム中に付け替え処理を保留し、コミット時にまとめて適用する。
type memTx struct {
	staged []func()
}

type memTxKey struct{}

func stagedIn(ctx context.Context) *memTx {
	tx, _ := ctx.Value(memTxKey{}).(*memTx)
	return tx
}

// memCredentialStoreとmemSessionStoreはコミットを原子的に見せるためmuを共有する。
type memCredentialStore struct {
	mu         *sync.Mutex
	identities map[string]*model.Identity
	log        *opLog

	existsErr error
	findErr   error
	renameErr error
}

func newMemCredentialStore(log *opLog) *memCredentialStore {
	return &memCredentialStore{mu: &sync.Mutex{}, identities: make(map[string]*model.Identity), log: log}
}

func (s *memCredentialStore) Exists(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.existsErr != nil {
		return false, s.existsErr
	}
	_, ok := s.identities[key]
	return ok, nil
}

func (s *memCredentialStore) FindByKey(_ context.Context, key string) (*model.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findErr != nil {
		return nil, s.findErr
	}
	identity, ok := s.identities[key]
	if !ok {
		return nil, nil
	}
	cp := *identity
	return &cp, nil
}

func (s *memCredentialStore) Create(_ context.Context, identity *model.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.identities[identity.Key]; ok {
		return repository.ErrIdentityConflict
	}
	cp := *identity
	s.identities[identity.Key] = &cp
	return nil
}

func (s *memCredentialStore) Put(_ context.Context, identity *model.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *identity
	s.identities[identity.Key] = &cp
	s.log.add("put:" + identity.Key)
	return nil
}

func (s *memCredentialStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.identities, key)
	s.log.add("delete:" + key)
	return nil
}

func (s *memCredentialStore) SetProfilePhoto(_ context.Context, key, photo string, updatedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	identity, ok := s.identities[key]
	if !ok {
		return repository.ErrIdentityNotFound
	}
	identity.ProfilePhoto = model.SomeString(photo)
	identity.UpdatedAt = updatedAt
	return nil
}

func (s *memCredentialStore) UnsetProfilePhoto(_ context.Context, key string, updatedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	identity, ok := s.identities[key]
	if !ok {
		return repository.ErrIdentityNotFound
	}
	identity.ProfilePhoto = model.OptionalString{}
	identity.UpdatedAt = updatedAt
	return nil
}

func (s *memCredentialStore) Rename(ctx context.Context, oldKey, newKey string, mutate repository.IdentityMutator, cascade repository.RenameCascade) (*model.Identity, error) {
	s.mu.Lock()
	if s.renameErr != nil {
		s.mu.Unlock()
		return nil, s.renameErr
	}
	if err := s.checkRename(oldKey, newKey); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	cp := *s.identities[oldKey]
	s.mu.Unlock()

	if mutate != nil {
		mutate(&cp)
	}
	cp.Key = newKey
	s.log.add("write:" + newKey)
	if newKey != oldKey {
		s.log.add("delete:" + oldKey)
	}

	// コミット前は他の読み手から旧キーのIdentityと旧所有者のセッションが見える
	tx := &memTx{}
	if cascade != nil {
		if err := cascade(context.WithValue(ctx, memTxKey{}, tx)); err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkRename(oldKey, newKey); err != nil {
		return nil, err
	}
	s.identities[newKey] = &cp
	if newKey != oldKey {
		delete(s.identities, oldKey)
	}
	for _, apply := range tx.staged {
		apply()
	}
	out := cp
	return &out, nil
}

func (s *memCredentialStore) checkRename(oldKey, newKey string) error {
	if _, ok := s.identities[oldKey]; !ok {
		return repository.ErrIdentityNotFound
	}
	if _, taken := s.identities[newKey]; taken && newKey != oldKey {
		return repository.ErrIdentityConflict
	}
	return nil
}

func (s *memCredentialStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.identities)
}

type memSessionStore struct {
	mu       *sync.Mutex
	sessions map[string]*model.Session
	log      *opLog

	findErr    error
	rewriteErr error
}

func newMemSessionStore(log *opLog, mu *sync.Mutex) *memSessionStore {
	return &memSessionStore{mu: mu, sessions: make(map[string]*model.Session), log: log}
}

func (s *memSessionStore) Create(_ context.Context, session *model.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *session
	s.sessions[session.Token] = &cp
	return nil
}

func (s *memSessionStore) FindByToken(_ context.Context, token string) (*model.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findErr != nil {
		return nil, s.findErr
	}
	session, ok := s.sessions[token]
	if !ok {
		return nil, nil
	}
	cp := *session
	return &cp, nil
}

func (s *memSessionStore) DeleteByToken(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, token)
	return nil
}

func (s *memSessionStore) RewriteOwner(ctx context.Context, oldKey, newKey, newEmail string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rewriteErr != nil {
		return 0, s.rewriteErr
	}
	var targets []*model.Session
	for _, session := range s.sessions {
		if session.OwnerKey == oldKey {
			targets = append(targets, session)
		}
	}
	apply := func() {
		for _, session := range targets {
			session.OwnerKey = newKey
			session.OwnerEmail = newEmail
		}
	}
	if tx := stagedIn(ctx); tx != nil {
		tx.staged = append(tx.staged, apply)
	} else {
		apply()
	}
	s.log.add("rewrite:" + oldKey + "->" + newKey)
	return len(targets), nil
}

// fakeReassigner はトランザクション内で呼ばれた付け替えをコミット時にのみcallsへ記録する。
type fakeReassigner struct {
	mu    sync.Mutex
	calls [][2]string
	log   *opLog
	err   error
}

func (f *fakeReassigner) RewriteOwner(ctx context.Context, oldKey, newKey string) (int, error) {
	f.mu.Lock()
	err := f.err
	f.mu.Unlock()
	if err != nil {
		return 0, err
	}
	apply := func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.calls = append(f.calls, [2]string{oldKey, newKey})
	}
	if tx := stagedIn(ctx); tx != nil {
		tx.staged = append(tx.staged, apply)
	} else {
		apply()
	}
	f.log.add("journals:" + oldKey + "->" + newKey)
	return 1, nil
}

func (f *fakeReassigner) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeReassigner) recorded() [][2]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][2]string(nil), f.calls...)
}

// findHookStore は最初のFindByKeyの直前に一度だけbeforeFindを呼ぶ。
type findHookStore struct {
	*memCredentialStore
	fired      bool
	beforeFind func()
}

func (s *findHookStore) FindByKey(ctx context.Context, key string) (*model.Identity, error) {
	if !s.fired && s.beforeFind != nil {
		s.fired = true
		s.beforeFind()
	}
	return s.memCredentialStore.FindByKey(ctx, key)
}

// rewriteHookSessions はセッション付け替えの直前にbeforeRewriteを呼ぶ。
type rewriteHookSessions struct {
	SessionManager
	beforeRewrite func()
}

func (s *rewriteHookSessions) RewriteOwner(ctx context.Context, oldKey, newKey, newEmail string) (int, error) {
	if s.beforeRewrite != nil {
		s.beforeRewrite()
	}
	return s.SessionManager.RewriteOwner(ctx, oldKey, newKey, newEmail)
}

type recordingMetrics struct {
	mu       sync.Mutex
	attempts map[string]int
	issued   int
	revoked  int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{attempts: make(map[string]int)}
}

func (m *recordingMetrics) RecordAuthAttempt(operation, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts[operation+"/"+outcome]++
}
func (m *recordingMetrics) RecordSessionIssued() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.issued++
}
func (m *recordingMetrics) RecordSessionRevoked() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.revoked++
}
func (m *recordingMetrics) RecordSessionsRewritten(int)            {}
func (m *recordingMetrics) RecordSessionsCleaned(int64)            {}
func (m *recordingMetrics) RecordPrediction(string, time.Duration) {}
func (m *recordingMetrics) RecordHTTPStatus(int)                   {}
