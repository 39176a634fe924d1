package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"eventlens/internal/errs"
)

// CredentialStore persists applications and API-key records. It backs
// the keys.Store interface.
type CredentialStore struct {
	db *gorm.DB
}

func NewCredentialStore(db *gorm.DB) *CredentialStore {
	return &CredentialStore{db: db}
}

func (s *CredentialStore) CreateApplication(ctx context.Context, app *Application) error {
	if err := s.db.WithContext(ctx).Create(app).Error; err != nil {
		return fmt.Errorf("create application: %w", err)
	}
	return nil
}

// FindApplicationByID loads an application scoped to its owner. A miss
// and an ownership mismatch are indistinguishable to the caller.
func (s *CredentialStore) FindApplicationByID(ctx context.Context, id, ownerID string) (*Application, error) {
	var app Application
	err := s.db.WithContext(ctx).
		Where("id = ? AND owner_id = ?", id, ownerID).
		First(&app).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errs.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find application %s: %w", id, err)
	}
	return &app, nil
}

func (s *CredentialStore) CreateAPIKey(ctx context.Context, key *APIKey) error {
	if err := s.db.WithContext(ctx).Create(key).Error; err != nil {
		return fmt.Errorf("create api key: %w", err)
	}
	return nil
}

func (s *CredentialStore) FindAPIKeyByID(ctx context.Context, id string) (*APIKey, error) {
	var key APIKey
	err := s.db.WithContext(ctx).Preload("Application").First(&key, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errs.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find api key %s: %w", id, err)
	}
	return &key, nil
}

// FindAPIKeysByApplication returns all keys of one application,
// newest first.
func (s *CredentialStore) FindAPIKeysByApplication(ctx context.Context, applicationID string) ([]APIKey, error) {
	var keys []APIKey
	err := s.db.WithContext(ctx).
		Where("application_id = ?", applicationID).
		Order("created_at DESC").
		Find(&keys).Error
	if err != nil {
		return nil, fmt.Errorf("find api keys for application %s: %w", applicationID, err)
	}
	return keys, nil
}

// FindAPIKeysByPrefix returns candidate keys for validation, with the
// owning application preloaded. The prefix column is indexed, so this
// narrows the expensive hash comparison to matching rows only.
func (s *CredentialStore) FindAPIKeysByPrefix(ctx context.Context, prefix string) ([]APIKey, error) {
	var keys []APIKey
	err := s.db.WithContext(ctx).
		Preload("Application").
		Where("key_prefix = ?", prefix).
		Find(&keys).Error
	if err != nil {
		return nil, fmt.Errorf("find api keys by prefix: %w", err)
	}
	return keys, nil
}

// FindAllAPIKeysWithApplication returns every key with its owning
// application. Validation only falls back to this when the presented
// secret is too short to carry a prefix.
func (s *CredentialStore) FindAllAPIKeysWithApplication(ctx context.Context) ([]APIKey, error) {
	var keys []APIKey
	if err := s.db.WithContext(ctx).Preload("Application").Find(&keys).Error; err != nil {
		return nil, fmt.Errorf("find all api keys: %w", err)
	}
	return keys, nil
}

func (s *CredentialStore) UpdateAPIKey(ctx context.Context, id string, fields map[string]any) error {
	err := s.db.WithContext(ctx).Model(&APIKey{}).Where("id = ?", id).Updates(fields).Error
	if err != nil {
		return fmt.Errorf("update api key %s: %w", id, err)
	}
	return nil
}

func (s *CredentialStore) BulkUpdateAPIKeys(ctx context.Context, ids []string, fields map[string]any) error {
	if len(ids) == 0 {
		return nil
	}
	err := s.db.WithContext(ctx).Model(&APIKey{}).Where("id IN ?", ids).Updates(fields).Error
	if err != nil {
		return fmt.Errorf("bulk update api keys: %w", err)
	}
	return nil
}

// ReplaceAPIKeys revokes the given keys and inserts the replacement in
// a single transaction. Either both phases commit or neither does, so
// a concurrent validate never observes a successful regenerate that
// left the application without a usable key.
func (s *CredentialStore) ReplaceAPIKeys(ctx context.Context, revokeIDs []string, revokedAt time.Time, newKey *APIKey) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txStore := &CredentialStore{db: tx}
		if err := txStore.BulkUpdateAPIKeys(ctx, revokeIDs, map[string]any{"revoked_at": revokedAt}); err != nil {
			return err
		}
		return txStore.CreateAPIKey(ctx, newKey)
	})
	if err != nil {
		return fmt.Errorf("replace api keys: %w", err)
	}
	return nil
}
