package repository

import (
	"context"
	"errors"
	"log"

	"github.com/uptrace/bun"
)

// Manager groups the repositories backed by one database.
type Manager struct {
	db      *bun.DB
	entries *StorageEntries
}

// NewRepositoryManager creates a Manager for db.
func NewRepositoryManager(db *bun.DB, opts ...StorageEntriesOption) *Manager {
	return &Manager{
		db:      db,
		entries: NewStorageEntries(db, opts...),
	}
}

func (m *Manager) Validate() error {
	if m.db == nil {
		return errors.New("repository db should be initialized")
	}

	if m.entries == nil {
		return errors.New("repository storage entries should be initialized")
	}

	return nil
}

func (m *Manager) MustValidate() {
	if err := m.Validate(); err != nil {
		log.Panic(err)
	}
}

// StorageEntries returns the durable key/value repository.
func (m *Manager) StorageEntries() *StorageEntries {
	return m.entries
}

// Migrate applies the embedded migrations.
func (m *Manager) Migrate(ctx context.Context) error {
	return Migrate(ctx, m.db)
}
