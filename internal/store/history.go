package store

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// HistoryRepository defines chat and log history operations.
type HistoryRepository interface {
	Append(ctx context.Context, entry LogEntry) error
	Recent(ctx context.Context, room string, limit int) ([]LogEntry, error)
}

type HistoryStore struct {
	db *gorm.DB
}

func NewHistoryStore(db *gorm.DB) *HistoryStore {
	return &HistoryStore{db: db}
}

func (hs *HistoryStore) Append(ctx context.Context, entry LogEntry) error {
	entry.ID = 0
	if err := hs.db.WithContext(ctx).Create(&entry).Error; err != nil {
		return fmt.Errorf("failed to append history: %w", err)
	}
	return nil
}

// Recent returns the last limit entries of room, oldest first. A limit of
// zero or less returns everything.
func (hs *HistoryStore) Recent(ctx context.Context, room string, limit int) ([]LogEntry, error) {
	q := hs.db.WithContext(ctx).Where("room = ?", room).Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	var entries []LogEntry
	if err := q.Find(&entries).Error; err != nil {
		return nil, err
	}
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, nil
}
