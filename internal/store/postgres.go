package store

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/voyagen/tvvault/internal/models"
)

// itemBatchSize is the number of rows per multi-row item INSERT.
const itemBatchSize = 500

// Postgres implements Store using PostgreSQL.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres creates a Postgres store from a DSN. Caller must call Close when done.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// Close closes the connection pool.
func (p *Postgres) Close() {
	p.pool.Close()
}

// ReplaceCatalog replaces the whole persisted catalog inside one transaction.
// Items are deleted before categories (they reference them), categories are
// inserted one by one to capture their ids, and items go in batches of
// itemBatchSize rows. Any failure rolls the transaction back, leaving the
// previous catalog untouched.
func (p *Postgres) ReplaceCatalog(ctx context.Context, categories []models.Category, onProgress models.ProgressFunc) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return &PersistError{Err: fmt.Errorf("begin: %w", err)}
	}
	// No-op once the transaction has committed.
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM items`); err != nil {
		return &PersistError{Err: fmt.Errorf("delete items: %w", err)}
	}
	if _, err := tx.Exec(ctx, `DELETE FROM categories`); err != nil {
		return &PersistError{Err: fmt.Errorf("delete categories: %w", err)}
	}

	onProgress.Emit("Saving categories: 0%", models.Pct(0))

	categoryIDs := make([]int64, len(categories))
	for i, cat := range categories {
		if err := tx.QueryRow(ctx,
			`INSERT INTO categories (name, type) VALUES ($1, $2) RETURNING id`,
			cat.Name, string(cat.Kind),
		).Scan(&categoryIDs[i]); err != nil {
			return &PersistError{Err: fmt.Errorf("insert category %q: %w", cat.Name, err)}
		}
		pct := int(math.Round(float64(i+1) / float64(len(categories)) * 100))
		onProgress.Emit(fmt.Sprintf("Saving categories: %d%%", pct), models.Pct(pct))
	}

	totalItems := 0
	for _, cat := range categories {
		totalItems += len(cat.Items)
	}

	processed := 0
	for i, cat := range categories {
		items := cat.Items
		for start := 0; start < len(items); start += itemBatchSize {
			end := min(start+itemBatchSize, len(items))
			batch := items[start:end]
			sql, args := buildItemInsert(categoryIDs[i], batch)
			if _, err := tx.Exec(ctx, sql, args...); err != nil {
				return &PersistError{Err: fmt.Errorf("insert items for %q: %w", cat.Name, err)}
			}
			processed += len(batch)
			pct := int(math.Round(float64(processed) / float64(totalItems) * 100))
			onProgress.Emit(fmt.Sprintf("Saving items: %d%% (%d/%d)", pct, processed, totalItems), models.Pct(pct))
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return &PersistError{Err: fmt.Errorf("commit: %w", err)}
	}
	return nil
}

// buildItemInsert builds one parameterized multi-row INSERT for a batch of
// items. Bound parameters keep quote characters in names, logos and URLs
// from ever terminating a literal.
func buildItemInsert(categoryID int64, items []models.Item) (string, []any) {
	var sb strings.Builder
	sb.WriteString(`INSERT INTO items (name, logo, url, category_id) VALUES `)
	args := make([]any, 0, len(items)*4)
	for i, it := range items {
		if i > 0 {
			sb.WriteByte(',')
		}
		n := i * 4
		fmt.Fprintf(&sb, "($%d,$%d,$%d,$%d)", n+1, n+2, n+3, n+4)
		args = append(args, it.Name, it.Logo, it.URL, categoryID)
	}
	return sb.String(), args
}

// ListCategoriesByKind returns categories of the given kind without items.
func (p *Postgres) ListCategoriesByKind(ctx context.Context, kind models.Kind) ([]models.Category, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT id, name, type FROM categories WHERE type = $1 ORDER BY id`,
		string(kind),
	)
	if err != nil {
		return nil, fmt.Errorf("ListCategoriesByKind: %w", err)
	}
	defer rows.Close()

	var categories []models.Category
	for rows.Next() {
		var cat models.Category
		var kindStr string
		if err := rows.Scan(&cat.ID, &cat.Name, &kindStr); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		cat.Kind = models.Kind(kindStr)
		categories = append(categories, cat)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return categories, nil
}

// GetCategoryWithItems returns one category with its items eagerly loaded.
func (p *Postgres) GetCategoryWithItems(ctx context.Context, categoryID int64) (*models.Category, error) {
	var cat models.Category
	var kindStr string
	err := p.pool.QueryRow(ctx,
		`SELECT id, name, type FROM categories WHERE id = $1`,
		categoryID,
	).Scan(&cat.ID, &cat.Name, &kindStr)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("GetCategoryWithItems: %w", err)
	}
	cat.Kind = models.Kind(kindStr)

	rows, err := p.pool.Query(ctx,
		`SELECT id, name, logo, url, category_id FROM items WHERE category_id = $1 ORDER BY id`,
		categoryID,
	)
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	defer rows.Close()

	cat.Items = []models.Item{}
	for rows.Next() {
		var it models.Item
		if err := rows.Scan(&it.ID, &it.Name, &it.Logo, &it.URL, &it.CategoryID); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		cat.Items = append(cat.Items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return &cat, nil
}

// SaveAccount replaces any stored account row with creds.
func (p *Postgres) SaveAccount(ctx context.Context, creds models.Credentials) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Single-account model: the newest login wins.
	if _, err := tx.Exec(ctx, `DELETE FROM account`); err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO account (username, password, server) VALUES ($1, $2, $3)`,
		creds.Username, creds.Password, creds.Server,
	); err != nil {
		return fmt.Errorf("insert account: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// GetAccount returns the stored credentials.
func (p *Postgres) GetAccount(ctx context.Context) (*models.Credentials, error) {
	var creds models.Credentials
	err := p.pool.QueryRow(ctx,
		`SELECT username, password, server FROM account ORDER BY id DESC LIMIT 1`,
	).Scan(&creds.Username, &creds.Password, &creds.Server)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("GetAccount: %w", err)
	}
	return &creds, nil
}
