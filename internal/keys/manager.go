// Package keys owns the API-key lifecycle: issuance, validation
// against revocation and expiry, revocation and rotation. Plaintext
// secrets exist only in the responses of IssueKey and Regenerate;
// storage only ever sees the bcrypt digest and a short display prefix.
package keys

import (
	"context"
	"log"
	"time"

	"eventlens/internal/db"
	"eventlens/internal/errs"
)

// prefixLength is how many leading plaintext characters are retained
// in clear for display and candidate lookup. Short enough to be
// useless to an attacker, long enough to make prefix collisions rare.
const prefixLength = 6

// lastUsedTimeout bounds the background last-used write, which runs
// detached from the request context.
const lastUsedTimeout = 5 * time.Second

// Store is the durable credential storage the manager drives.
// Implemented by db.CredentialStore.
type Store interface {
	CreateApplication(ctx context.Context, app *db.Application) error
	FindApplicationByID(ctx context.Context, id, ownerID string) (*db.Application, error)
	CreateAPIKey(ctx context.Context, key *db.APIKey) error
	FindAPIKeyByID(ctx context.Context, id string) (*db.APIKey, error)
	FindAPIKeysByApplication(ctx context.Context, applicationID string) ([]db.APIKey, error)
	FindAPIKeysByPrefix(ctx context.Context, prefix string) ([]db.APIKey, error)
	FindAllAPIKeysWithApplication(ctx context.Context) ([]db.APIKey, error)
	UpdateAPIKey(ctx context.Context, id string, fields map[string]any) error
	ReplaceAPIKeys(ctx context.Context, revokeIDs []string, revokedAt time.Time, newKey *db.APIKey) error
}

// KeyMetadata is the owner-visible view of a key. It never carries the
// hash or the plaintext.
type KeyMetadata struct {
	ID         string     `json:"id"`
	KeyPrefix  string     `json:"keyPrefix"`
	CreatedAt  time.Time  `json:"createdAt"`
	ExpiresAt  time.Time  `json:"expiresAt"`
	RevokedAt  *time.Time `json:"revokedAt,omitempty"`
	LastUsedAt *time.Time `json:"lastUsedAt,omitempty"`
}

// Manager issues, validates, revokes and rotates API keys.
type Manager struct {
	store          Store
	hasher         *Hasher
	expirationDays int

	// now is the clock; swapped in tests.
	now func() time.Time
}

func NewManager(store Store, hasher *Hasher, expirationDays int) *Manager {
	return &Manager{
		store:          store,
		hasher:         hasher,
		expirationDays: expirationDays,
		now:            time.Now,
	}
}

// RegisterApplication creates an application for owner and issues its
// first API key. The returned plaintext is shown to the caller exactly
// once and never persisted.
func (m *Manager) RegisterApplication(ctx context.Context, name, ownerID string) (*db.Application, string, *db.APIKey, error) {
	app := &db.Application{Name: name, OwnerID: ownerID}
	if err := m.store.CreateApplication(ctx, app); err != nil {
		return nil, "", nil, err
	}
	plaintext, key, err := m.IssueKey(ctx, app)
	if err != nil {
		return nil, "", nil, err
	}
	return app, plaintext, key, nil
}

// IssueKey mints a new key for app and returns the plaintext exactly
// once alongside the stored record.
func (m *Manager) IssueKey(ctx context.Context, app *db.Application) (string, *db.APIKey, error) {
	plaintext, key, err := m.mintKey(app.ID)
	if err != nil {
		return "", nil, err
	}
	if err := m.store.CreateAPIKey(ctx, key); err != nil {
		return "", nil, err
	}
	return plaintext, key, nil
}

func (m *Manager) mintKey(applicationID string) (string, *db.APIKey, error) {
	plaintext, err := m.hasher.GenerateSecret(DefaultSecretLength)
	if err != nil {
		return "", nil, err
	}
	digest, err := m.hasher.Hash(plaintext)
	if err != nil {
		return "", nil, err
	}
	key := &db.APIKey{
		KeyHash:       digest,
		KeyPrefix:     plaintext[:prefixLength],
		ApplicationID: applicationID,
		ExpiresAt:     m.now().AddDate(0, 0, m.expirationDays),
	}
	return plaintext, key, nil
}

// ValidateKey resolves a presented secret to its owning application.
// Unknown, revoked and expired keys all fail with ErrUnauthenticated;
// callers cannot tell the cases apart. On success the key's last-used
// timestamp is updated in the background, best effort.
//
// Secrets are one-way hashed, so there is no lookup by value: the
// candidate set is narrowed by the stored plaintext prefix and the
// presented secret is then compared against each candidate's digest.
func (m *Manager) ValidateKey(ctx context.Context, plaintext string) (*db.Application, error) {
	if plaintext == "" {
		return nil, errs.ErrUnauthenticated
	}

	var (
		candidates []db.APIKey
		err        error
	)
	if len(plaintext) >= prefixLength {
		candidates, err = m.store.FindAPIKeysByPrefix(ctx, plaintext[:prefixLength])
	} else {
		candidates, err = m.store.FindAllAPIKeysWithApplication(ctx)
	}
	if err != nil {
		return nil, err
	}

	now := m.now()
	for i := range candidates {
		key := &candidates[i]
		if !m.hasher.Verify(plaintext, key.KeyHash) {
			continue
		}
		if !key.Usable(now) {
			log.Printf("rejected unusable api key %s for application %s", key.ID, key.ApplicationID)
			return nil, errs.ErrUnauthenticated
		}
		m.touchLastUsed(key.ID, now)
		app := key.Application
		return &app, nil
	}
	return nil, errs.ErrUnauthenticated
}

// touchLastUsed records key usage without blocking or failing the
// validation that triggered it. Concurrent writers may race; last
// writer wins and staleness is acceptable.
func (m *Manager) touchLastUsed(keyID string, now time.Time) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), lastUsedTimeout)
		defer cancel()
		if err := m.store.UpdateAPIKey(ctx, keyID, map[string]any{"last_used_at": now}); err != nil {
			log.Printf("failed to update last_used_at for api key %s: %v", keyID, err)
		}
	}()
}

// Revoke permanently disables a key. Revocation is monotonic: a
// revoked key never becomes usable again.
func (m *Manager) Revoke(ctx context.Context, apiKeyID, ownerID string) (*db.APIKey, error) {
	key, err := m.store.FindAPIKeyByID(ctx, apiKeyID)
	if err != nil {
		return nil, err
	}
	if key.Application.OwnerID != ownerID {
		return nil, errs.ErrForbidden
	}
	if key.RevokedAt != nil {
		return nil, errs.ErrAlreadyRevoked
	}

	now := m.now()
	if err := m.store.UpdateAPIKey(ctx, key.ID, map[string]any{"revoked_at": now}); err != nil {
		return nil, err
	}
	key.RevokedAt = &now
	return key, nil
}

// Regenerate revokes every unrevoked key of the application and issues
// one replacement, atomically. The new plaintext is returned exactly
// once.
func (m *Manager) Regenerate(ctx context.Context, applicationID, ownerID string) (string, *db.APIKey, error) {
	app, err := m.store.FindApplicationByID(ctx, applicationID, ownerID)
	if err != nil {
		return "", nil, err
	}

	existing, err := m.store.FindAPIKeysByApplication(ctx, app.ID)
	if err != nil {
		return "", nil, err
	}
	var revokeIDs []string
	for _, key := range existing {
		if key.RevokedAt == nil {
			revokeIDs = append(revokeIDs, key.ID)
		}
	}

	plaintext, newKey, err := m.mintKey(app.ID)
	if err != nil {
		return "", nil, err
	}
	if err := m.store.ReplaceAPIKeys(ctx, revokeIDs, m.now(), newKey); err != nil {
		return "", nil, err
	}
	if len(revokeIDs) > 0 {
		log.Printf("revoked %d api keys for application %s during regenerate", len(revokeIDs), app.ID)
	}
	return plaintext, newKey, nil
}

// ListKeyMetadata returns the owner-visible key records for an
// application, newest first.
func (m *Manager) ListKeyMetadata(ctx context.Context, applicationID, ownerID string) ([]KeyMetadata, error) {
	app, err := m.store.FindApplicationByID(ctx, applicationID, ownerID)
	if err != nil {
		return nil, err
	}
	records, err := m.store.FindAPIKeysByApplication(ctx, app.ID)
	if err != nil {
		return nil, err
	}

	metadata := make([]KeyMetadata, 0, len(records))
	for _, key := range records {
		metadata = append(metadata, KeyMetadata{
			ID:         key.ID,
			KeyPrefix:  key.KeyPrefix,
			CreatedAt:  key.CreatedAt,
			ExpiresAt:  key.ExpiresAt,
			RevokedAt:  key.RevokedAt,
			LastUsedAt: key.LastUsedAt,
		})
	}
	return metadata, nil
}
