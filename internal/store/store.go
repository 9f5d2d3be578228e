package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/voyagen/tvvault/internal/models"
)

// ErrNotFound is returned by read queries when no matching row exists.
var ErrNotFound = errors.New("not found")

// PersistError signals a storage failure during the replace-all transaction.
// By the time it surfaces, the transaction has been rolled back and the
// store holds exactly what it held before the write began.
type PersistError struct {
	Err error
}

func (e *PersistError) Error() string { return fmt.Sprintf("persist: %v", e.Err) }
func (e *PersistError) Unwrap() error { return e.Err }

// Store defines persistence for the catalog and the provider account.
type Store interface {
	// ReplaceCatalog atomically replaces the entire persisted catalog with
	// categories: all prior items and categories are deleted and the new set
	// inserted inside one transaction. Progress is reported per category
	// insert and per item batch.
	ReplaceCatalog(ctx context.Context, categories []models.Category, onProgress models.ProgressFunc) error
	// ListCategoriesByKind returns persisted categories of the given kind,
	// without their items.
	ListCategoriesByKind(ctx context.Context, kind models.Kind) ([]models.Category, error)
	// GetCategoryWithItems returns one category with its full item list.
	// Returns ErrNotFound when no category has that id.
	GetCategoryWithItems(ctx context.Context, categoryID int64) (*models.Category, error)

	// SaveAccount durably stores the provider credentials, replacing any
	// previously stored account.
	SaveAccount(ctx context.Context, creds models.Credentials) error
	// GetAccount returns the stored credentials, or ErrNotFound when no
	// account has been saved yet.
	GetAccount(ctx context.Context) (*models.Credentials, error)
}
