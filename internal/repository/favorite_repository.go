package repository

import (
	"context"
	"database/sql"
	"time"
)

// FavoriteRepo stores listings saved by users.
type FavoriteRepo struct{ db *sql.DB }

func NewFavoriteRepo(db *sql.DB) *FavoriteRepo { return &FavoriteRepo{db: db} }

// Add saves a favorite.  Adding the same listing twice is a no-op.
func (r *FavoriteRepo) Add(ctx context.Context, userID, listingID uint64) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT IGNORE INTO favorites (user_id, listing_id, created_at) VALUES (?, ?, ?)`,
		userID, listingID, time.Now().UTC())
	return err
}

// Remove deletes a favorite.  It reports whether a row existed.
func (r *FavoriteRepo) Remove(ctx context.Context, userID, listingID uint64) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM favorites WHERE user_id = ? AND listing_id = ?`, userID, listingID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// FavoriteListing is a favorited listing summary.
type FavoriteListing struct {
	ListingID   uint64    `json:"listing_id"`
	Name        string    `json:"name"`
	PriceCents  uint32    `json:"price_cents"`
	Category    string    `json:"category"`
	Status      string    `json:"status"`
	FavoritedAt time.Time `json:"favorited_at"`
}

// ListByUser returns the user's favorites, most recent first.  The inner
// join drops favorites whose listing no longer exists.
func (r *FavoriteRepo) ListByUser(ctx context.Context, userID uint64) ([]FavoriteListing, error) {
	const q = `SELECT l.id, l.name, l.price_cents, l.category, l.status, f.created_at
		FROM favorites f JOIN listings l ON l.id = f.listing_id
		WHERE f.user_id = ? ORDER BY f.created_at DESC`
	rows, err := r.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]FavoriteListing, 0)
	for rows.Next() {
		var f FavoriteListing
		if err := rows.Scan(&f.ListingID, &f.Name, &f.PriceCents, &f.Category, &f.Status, &f.FavoritedAt); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}
