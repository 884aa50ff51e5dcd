package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"

	tenantauth "github.com/goliatone/go-tenant-auth"
)

var _ tenantauth.Storage = (*StorageEntries)(nil)

// StorageEntryModel is the Bun model for durable session records.
type StorageEntryModel struct {
	bun.BaseModel `bun:"table:tenantauth_storage_entries"`

	Key       string    `bun:"entry_key,pk"`
	Value     string    `bun:"entry_value,notnull"`
	CreatedAt time.Time `bun:"created_at,nullzero,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,nullzero,default:current_timestamp"`
}

// StorageEntriesOption customizes StorageEntries.
type StorageEntriesOption func(*StorageEntries)

// WithEntriesClock injects a custom clock (useful for tests).
func WithEntriesClock(clock func() time.Time) StorageEntriesOption {
	return func(r *StorageEntries) {
		if clock != nil {
			r.now = clock
		}
	}
}

// StorageEntries implements tenantauth.Storage on a SQL table using Bun,
// so session records survive process restarts.
type StorageEntries struct {
	db  bun.IDB
	now func() time.Time
}

// NewStorageEntries creates a new repository.
func NewStorageEntries(db bun.IDB, opts ...StorageEntriesOption) *StorageEntries {
	r := &StorageEntries{db: db, now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Get implements tenantauth.Storage.
func (r *StorageEntries) Get(ctx context.Context, key string) (string, bool, error) {
	var model StorageEntryModel
	err := r.db.NewSelect().
		Model(&model).
		Where("entry_key = ?", key).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, err
	}
	return model.Value, true, nil
}

// Set implements tenantauth.Storage.
func (r *StorageEntries) Set(ctx context.Context, key, value string) error {
	now := r.now().UTC()
	model := &StorageEntryModel{
		Key:       key,
		Value:     value,
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err := r.db.NewInsert().
		Model(model).
		On("CONFLICT (entry_key) DO UPDATE").
		Set("entry_value = EXCLUDED.entry_value").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}

// Remove implements tenantauth.Storage.
func (r *StorageEntries) Remove(ctx context.Context, key string) error {
	_, err := r.db.NewDelete().
		Model((*StorageEntryModel)(nil)).
		Where("entry_key = ?", key).
		Exec(ctx)
	return err
}

// Keys implements tenantauth.Storage.
func (r *StorageEntries) Keys(ctx context.Context) ([]string, error) {
	var keys []string
	err := r.db.NewSelect().
		Model((*StorageEntryModel)(nil)).
		Column("entry_key").
		Order("entry_key ASC").
		Scan(ctx, &keys)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return []string{}, nil
		}
		return nil, err
	}
	return keys, nil
}

// DeleteUpdatedBefore removes records not written since cutoff and returns
// how many were removed.
func (r *StorageEntries) DeleteUpdatedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.NewDelete().
		Model((*StorageEntryModel)(nil)).
		Where("updated_at < ?", cutoff.UTC()).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Migrate applies the embedded migrations to db.
func Migrate(ctx context.Context, db *bun.DB) error {
	migrations := migrate.NewMigrations()
	if err := migrations.Discover(tenantauth.GetMigrationsFS()); err != nil {
		return fmt.Errorf("discover migrations: %w", err)
	}

	migrator := migrate.NewMigrator(db, migrations)
	if err := migrator.Init(ctx); err != nil {
		return fmt.Errorf("init migrations: %w", err)
	}

	if _, err := migrator.Migrate(ctx); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}
