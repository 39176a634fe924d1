package keys

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventlens/internal/db"
	"eventlens/internal/errs"
)

// fakeStore is an in-memory Store. Safe for concurrent use so the
// background last-used writes can race with assertions.
type fakeStore struct {
	mu   sync.Mutex
	apps map[string]*db.Application
	keys map[string]*db.APIKey
	seq  int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		apps: make(map[string]*db.Application),
		keys: make(map[string]*db.APIKey),
	}
}

func (s *fakeStore) CreateApplication(ctx context.Context, app *db.Application) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if app.ID == "" {
		app.ID = uuid.NewString()
	}
	clone := *app
	s.apps[app.ID] = &clone
	return nil
}

func (s *fakeStore) FindApplicationByID(ctx context.Context, id, ownerID string) (*db.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	app, ok := s.apps[id]
	if !ok || app.OwnerID != ownerID {
		return nil, errs.ErrNotFound
	}
	clone := *app
	return &clone, nil
}

func (s *fakeStore) createKeyLocked(key *db.APIKey) {
	if key.ID == "" {
		key.ID = uuid.NewString()
	}
	if key.CreatedAt.IsZero() {
		s.seq++
		key.CreatedAt = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(s.seq) * time.Second)
	}
	clone := *key
	s.keys[key.ID] = &clone
}

func (s *fakeStore) CreateAPIKey(ctx context.Context, key *db.APIKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.createKeyLocked(key)
	return nil
}

func (s *fakeStore) loadLocked(key *db.APIKey) db.APIKey {
	clone := *key
	if app, ok := s.apps[key.ApplicationID]; ok {
		clone.Application = *app
	}
	return clone
}

func (s *fakeStore) FindAPIKeyByID(ctx context.Context, id string) (*db.APIKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key, ok := s.keys[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	clone := s.loadLocked(key)
	return &clone, nil
}

func (s *fakeStore) FindAPIKeysByApplication(ctx context.Context, applicationID string) ([]db.APIKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []db.APIKey
	for _, key := range s.keys {
		if key.ApplicationID == applicationID {
			out = append(out, s.loadLocked(key))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *fakeStore) FindAPIKeysByPrefix(ctx context.Context, prefix string) ([]db.APIKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []db.APIKey
	for _, key := range s.keys {
		if key.KeyPrefix == prefix {
			out = append(out, s.loadLocked(key))
		}
	}
	return out, nil
}

func (s *fakeStore) FindAllAPIKeysWithApplication(ctx context.Context) ([]db.APIKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []db.APIKey
	for _, key := range s.keys {
		out = append(out, s.loadLocked(key))
	}
	return out, nil
}

func (s *fakeStore) UpdateAPIKey(ctx context.Context, id string, fields map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key, ok := s.keys[id]
	if !ok {
		return errs.ErrNotFound
	}
	if v, ok := fields["revoked_at"]; ok {
		t := v.(time.Time)
		key.RevokedAt = &t
	}
	if v, ok := fields["last_used_at"]; ok {
		t := v.(time.Time)
		key.LastUsedAt = &t
	}
	return nil
}

func (s *fakeStore) ReplaceAPIKeys(ctx context.Context, revokeIDs []string, revokedAt time.Time, newKey *db.APIKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range revokeIDs {
		if key, ok := s.keys[id]; ok {
			t := revokedAt
			key.RevokedAt = &t
		}
	}
	s.createKeyLocked(newKey)
	return nil
}

func (s *fakeStore) lastUsedAt(id string) *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if key, ok := s.keys[id]; ok {
		return key.LastUsedAt
	}
	return nil
}

func newTestManager(t *testing.T) (*Manager, *fakeStore) {
	t.Helper()
	store := newFakeStore()
	return NewManager(store, testHasher(), 365), store
}

func registerApp(t *testing.T, m *Manager, name, ownerID string) (*db.Application, string, *db.APIKey) {
	t.Helper()
	app, plaintext, key, err := m.RegisterApplication(context.Background(), name, ownerID)
	require.NoError(t, err)
	return app, plaintext, key
}

func TestIssueKeyNeverStoresPlaintext(t *testing.T) {
	m, store := newTestManager(t)
	_, plaintext, key := registerApp(t, m, "acme", "owner-1")

	assert.Len(t, plaintext, DefaultSecretLength)
	assert.Equal(t, plaintext[:prefixLength], key.KeyPrefix)
	assert.NotContains(t, key.KeyHash, plaintext)

	stored := store.keys[key.ID]
	require.NotNil(t, stored)
	assert.NotContains(t, stored.KeyHash, plaintext)
}

func TestIssueKeyExpiry(t *testing.T) {
	m, _ := newTestManager(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	_, _, key := registerApp(t, m, "acme", "owner-1")
	assert.Equal(t, now.AddDate(0, 0, 365), key.ExpiresAt)
}

func TestValidateKeyReturnsOwningApplication(t *testing.T) {
	m, _ := newTestManager(t)
	app, plaintext, _ := registerApp(t, m, "acme", "owner-1")

	got, err := m.ValidateKey(context.Background(), plaintext)
	require.NoError(t, err)
	assert.Equal(t, app.ID, got.ID)
	assert.Equal(t, "owner-1", got.OwnerID)
}

func TestValidateKeyUnknownSecret(t *testing.T) {
	m, _ := newTestManager(t)
	registerApp(t, m, "acme", "owner-1")

	for _, secret := range []string{"", "short", "deadbeefdeadbeefdeadbeefdeadbeef"} {
		_, err := m.ValidateKey(context.Background(), secret)
		assert.ErrorIs(t, err, errs.ErrUnauthenticated, "secret %q", secret)
	}
}

func TestValidateKeyRevoked(t *testing.T) {
	m, _ := newTestManager(t)
	_, plaintext, key := registerApp(t, m, "acme", "owner-1")

	_, err := m.Revoke(context.Background(), key.ID, "owner-1")
	require.NoError(t, err)

	_, err = m.ValidateKey(context.Background(), plaintext)
	assert.ErrorIs(t, err, errs.ErrUnauthenticated)
}

func TestValidateKeyExpired(t *testing.T) {
	m, _ := newTestManager(t)
	_, plaintext, _ := registerApp(t, m, "acme", "owner-1")

	m.now = func() time.Time { return time.Now().AddDate(1, 0, 1) }
	_, err := m.ValidateKey(context.Background(), plaintext)
	assert.ErrorIs(t, err, errs.ErrUnauthenticated)
}

func TestValidateKeyTouchesLastUsed(t *testing.T) {
	m, store := newTestManager(t)
	_, plaintext, key := registerApp(t, m, "acme", "owner-1")

	_, err := m.ValidateKey(context.Background(), plaintext)
	require.NoError(t, err)

	// The write is fire-and-forget; wait for it to land.
	assert.Eventually(t, func() bool {
		return store.lastUsedAt(key.ID) != nil
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRevokeErrors(t *testing.T) {
	m, _ := newTestManager(t)
	_, _, key := registerApp(t, m, "acme", "owner-1")

	_, err := m.Revoke(context.Background(), "no-such-key", "owner-1")
	assert.ErrorIs(t, err, errs.ErrNotFound)

	_, err = m.Revoke(context.Background(), key.ID, "other-owner")
	assert.ErrorIs(t, err, errs.ErrForbidden)

	_, err = m.Revoke(context.Background(), key.ID, "owner-1")
	require.NoError(t, err)

	_, err = m.Revoke(context.Background(), key.ID, "owner-1")
	assert.ErrorIs(t, err, errs.ErrAlreadyRevoked)
}

func TestRevokeIsMonotonic(t *testing.T) {
	m, store := newTestManager(t)
	_, _, key := registerApp(t, m, "acme", "owner-1")

	revoked, err := m.Revoke(context.Background(), key.ID, "owner-1")
	require.NoError(t, err)
	require.NotNil(t, revoked.RevokedAt)

	first := *store.keys[key.ID].RevokedAt
	_, err = m.Revoke(context.Background(), key.ID, "owner-1")
	assert.ErrorIs(t, err, errs.ErrAlreadyRevoked)
	assert.Equal(t, first, *store.keys[key.ID].RevokedAt)
}

func TestRegenerateReplacesAllUsableKeys(t *testing.T) {
	m, _ := newTestManager(t)
	app, firstPlaintext, _ := registerApp(t, m, "acme", "owner-1")

	// Issue two more keys so the application has three usable ones.
	secondPlaintext, _, err := m.IssueKey(context.Background(), app)
	require.NoError(t, err)
	thirdPlaintext, _, err := m.IssueKey(context.Background(), app)
	require.NoError(t, err)

	newPlaintext, newKey, err := m.Regenerate(context.Background(), app.ID, "owner-1")
	require.NoError(t, err)
	assert.NotEmpty(t, newPlaintext)

	for _, old := range []string{firstPlaintext, secondPlaintext, thirdPlaintext} {
		_, err := m.ValidateKey(context.Background(), old)
		assert.ErrorIs(t, err, errs.ErrUnauthenticated)
	}

	got, err := m.ValidateKey(context.Background(), newPlaintext)
	require.NoError(t, err)
	assert.Equal(t, app.ID, got.ID)

	metadata, err := m.ListKeyMetadata(context.Background(), app.ID, "owner-1")
	require.NoError(t, err)
	usable := 0
	for _, meta := range metadata {
		if meta.RevokedAt == nil {
			usable++
			assert.Equal(t, newKey.ID, meta.ID)
		}
	}
	assert.Equal(t, 1, usable)
}

func TestRegenerateUnknownApplication(t *testing.T) {
	m, _ := newTestManager(t)
	app, _, _ := registerApp(t, m, "acme", "owner-1")

	_, _, err := m.Regenerate(context.Background(), app.ID, "other-owner")
	assert.ErrorIs(t, err, errs.ErrNotFound)

	_, _, err = m.Regenerate(context.Background(), "no-such-app", "owner-1")
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestListKeyMetadata(t *testing.T) {
	m, _ := newTestManager(t)
	app, _, first := registerApp(t, m, "acme", "owner-1")
	_, second, err := m.IssueKey(context.Background(), app)
	require.NoError(t, err)

	metadata, err := m.ListKeyMetadata(context.Background(), app.ID, "owner-1")
	require.NoError(t, err)
	require.Len(t, metadata, 2)

	// Newest first.
	assert.Equal(t, second.ID, metadata[0].ID)
	assert.Equal(t, first.ID, metadata[1].ID)
	for _, meta := range metadata {
		assert.Len(t, meta.KeyPrefix, prefixLength)
	}

	_, err = m.ListKeyMetadata(context.Background(), app.ID, "other-owner")
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestKeysAreScopedToTheirApplication(t *testing.T) {
	m, _ := newTestManager(t)
	appA, plaintextA, _ := registerApp(t, m, "acme", "owner-1")
	appB, plaintextB, _ := registerApp(t, m, "globex", "owner-2")

	gotA, err := m.ValidateKey(context.Background(), plaintextA)
	require.NoError(t, err)
	gotB, err := m.ValidateKey(context.Background(), plaintextB)
	require.NoError(t, err)

	assert.Equal(t, appA.ID, gotA.ID)
	assert.Equal(t, appB.ID, gotB.ID)
	assert.NotEqual(t, gotA.ID, gotB.ID)
}

func TestValidateKeyStoreFailure(t *testing.T) {
	m, _ := newTestManager(t)
	m.store = failingStore{}

	_, err := m.ValidateKey(context.Background(), "deadbeefdeadbeefdeadbeefdeadbeef")
	require.Error(t, err)
	assert.False(t, errors.Is(err, errs.ErrUnauthenticated))
}

type failingStore struct{ Store }

func (failingStore) FindAPIKeysByPrefix(ctx context.Context, prefix string) ([]db.APIKey, error) {
	return nil, errors.New("store down")
}
