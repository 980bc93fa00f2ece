package db

import (
	"context"
	"time"

	"github.com/lib/pq"
	"github.com/sqlc-dev/pqtype"
)

// Watchlist is one named set of symbols. Settings holds per-watchlist view
// preferences (chart type, columns, refresh cadence) as opaque JSON owned by
// the frontend.
type Watchlist struct {
	ID        int64
	OwnerID   string
	Name      string
	Symbols   []string
	Settings  pqtype.NullRawMessage
	CreatedAt time.Time
	UpdatedAt time.Time
}

const createWatchlist = `
INSERT INTO watchlists (owner_id, name, symbols, settings)
VALUES ($1, $2, $3, $4)
RETURNING id, owner_id, name, symbols, settings, created_at, updated_at
`

// CreateWatchlistParams are the inputs for CreateWatchlist.
type CreateWatchlistParams struct {
	OwnerID  string
	Name     string
	Symbols  []string
	Settings pqtype.NullRawMessage
}

// CreateWatchlist inserts a new watchlist and returns the stored row.
func (q *Queries) CreateWatchlist(ctx context.Context, arg CreateWatchlistParams) (Watchlist, error) {
	row := q.db.QueryRowContext(ctx, createWatchlist,
		arg.OwnerID, arg.Name, pq.Array(arg.Symbols), arg.Settings)
	var w Watchlist
	err := row.Scan(&w.ID, &w.OwnerID, &w.Name, pq.Array(&w.Symbols), &w.Settings, &w.CreatedAt, &w.UpdatedAt)
	return w, err
}

const listWatchlists = `
SELECT id, owner_id, name, symbols, settings, created_at, updated_at
FROM watchlists
WHERE owner_id = $1
ORDER BY created_at
`

// ListWatchlists returns all watchlists for an owner.
func (q *Queries) ListWatchlists(ctx context.Context, ownerID string) ([]Watchlist, error) {
	rows, err := q.db.QueryContext(ctx, listWatchlists, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Watchlist
	for rows.Next() {
		var w Watchlist
		if err := rows.Scan(&w.ID, &w.OwnerID, &w.Name, pq.Array(&w.Symbols), &w.Settings, &w.CreatedAt, &w.UpdatedAt); err != nil {
			return nil, err
		}
		items = append(items, w)
	}
	return items, rows.Err()
}

const getWatchlist = `
SELECT id, owner_id, name, symbols, settings, created_at, updated_at
FROM watchlists
WHERE id = $1 AND owner_id = $2
`

// GetWatchlist returns one watchlist if it belongs to the owner.
func (q *Queries) GetWatchlist(ctx context.Context, id int64, ownerID string) (Watchlist, error) {
	row := q.db.QueryRowContext(ctx, getWatchlist, id, ownerID)
	var w Watchlist
	err := row.Scan(&w.ID, &w.OwnerID, &w.Name, pq.Array(&w.Symbols), &w.Settings, &w.CreatedAt, &w.UpdatedAt)
	return w, err
}

const updateWatchlist = `
UPDATE watchlists
SET name = $3, symbols = $4, settings = $5, updated_at = now()
WHERE id = $1 AND owner_id = $2
RETURNING id, owner_id, name, symbols, settings, created_at, updated_at
`

// UpdateWatchlistParams are the inputs for UpdateWatchlist.
type UpdateWatchlistParams struct {
	ID       int64
	OwnerID  string
	Name     string
	Symbols  []string
	Settings pqtype.NullRawMessage
}

// UpdateWatchlist replaces a watchlist's name, symbols, and settings.
func (q *Queries) UpdateWatchlist(ctx context.Context, arg UpdateWatchlistParams) (Watchlist, error) {
	row := q.db.QueryRowContext(ctx, updateWatchlist,
		arg.ID, arg.OwnerID, arg.Name, pq.Array(arg.Symbols), arg.Settings)
	var w Watchlist
	err := row.Scan(&w.ID, &w.OwnerID, &w.Name, pq.Array(&w.Symbols), &w.Settings, &w.CreatedAt, &w.UpdatedAt)
	return w, err
}

const deleteWatchlist = `
DELETE FROM watchlists WHERE id = $1 AND owner_id = $2
`

// DeleteWatchlist removes a watchlist. Returns the number of rows removed so
// handlers can distinguish not-found.
func (q *Queries) DeleteWatchlist(ctx context.Context, id int64, ownerID string) (int64, error) {
	res, err := q.db.ExecContext(ctx, deleteWatchlist, id, ownerID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
