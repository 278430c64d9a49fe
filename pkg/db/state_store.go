package db

import (
	"context"
	"errors"
	"time"

	"github.com/angelmondragon/ajshoes-client/pkg/db/models"
	pkgerrors "github.com/angelmondragon/ajshoes-client/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// StateStore persists key/value state in the local database.
type StateStore struct {
	client *Client
	now    func() time.Time
}

func NewStateStore(client *Client) *StateStore {
	return &StateStore{client: client, now: time.Now}
}

func (s *StateStore) Get(ctx context.Context, key string) (string, error) {
	var entry models.StateEntry
	err := s.client.conn.WithContext(ctx).Where("state_key = ?", key).Take(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", pkgerrors.New(pkgerrors.CodeNotFound, "key not found")
	}
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "read state entry")
	}
	if entry.ExpiresAt != nil && !s.now().Before(*entry.ExpiresAt) {
		_ = s.Del(ctx, key)
		return "", pkgerrors.New(pkgerrors.CodeNotFound, "key not found")
	}
	return entry.Value, nil
}

func (s *StateStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	entry := models.StateEntry{Key: key, Value: value, UpdatedAt: s.now()}
	if ttl > 0 {
		exp := s.now().Add(ttl)
		entry.ExpiresAt = &exp
	}
	err := s.client.conn.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "state_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "expires_at", "updated_at"}),
	}).Create(&entry).Error
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "write state entry")
	}
	return nil
}

func (s *StateStore) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	err := s.client.conn.WithContext(ctx).Where("state_key IN ?", keys).Delete(&models.StateEntry{}).Error
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "delete state entries")
	}
	return nil
}

// PurgeExpired removes expired entries and returns how many were dropped.
func (s *StateStore) PurgeExpired(ctx context.Context) (int64, error) {
	res := s.client.conn.WithContext(ctx).
		Where("expires_at IS NOT NULL AND expires_at <= ?", s.now()).
		Delete(&models.StateEntry{})
	return res.RowsAffected, res.Error
}
