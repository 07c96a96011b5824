package cmd

import (
	"fmt"

	"github.com/rudransh-shrivastava/peer-watch/internal/store"
	"gorm.io/gorm"
)

func openDB() (*gorm.DB, error) {
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", dbPath, err)
	}
	return db, nil
}
