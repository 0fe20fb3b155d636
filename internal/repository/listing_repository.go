package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/campus-marketplace/internal/model"
)

// ListingRepo reads and writes the listings table.  The booking flow locks
// listing rows with LockTx; everything else goes through the plain methods.
type ListingRepo struct {
	db *sql.DB
}

// NewListingRepo returns a new ListingRepo bound to the given database.
func NewListingRepo(db *sql.DB) *ListingRepo { return &ListingRepo{db: db} }

const listingColumns = `id, owner_id, name, price_cents, description, category, status, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanListing(row rowScanner) (model.Listing, error) {
	var (
		l    model.Listing
		desc sql.NullString
	)
	err := row.Scan(&l.ID, &l.OwnerID, &l.Name, &l.PriceCents, &desc, &l.Category, &l.Status, &l.CreatedAt, &l.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Listing{}, ErrListingNotFound
	}
	if err != nil {
		return model.Listing{}, err
	}
	l.Description = desc.String
	return l, nil
}

// Create inserts an available listing and fills in its id and timestamps.
func (r *ListingRepo) Create(ctx context.Context, l *model.Listing) error {
	now := time.Now().UTC()
	const q = `INSERT INTO listings (owner_id, name, price_cents, description, category, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := r.db.ExecContext(ctx, q, l.OwnerID, l.Name, l.PriceCents, nullIfEmpty(l.Description), l.Category, model.ListingAvailable, now, now)
	if err != nil {
		if isMissingReference(err) {
			return fmt.Errorf("insert listing for owner %d: %w", l.OwnerID, ErrUnknownUser)
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	l.ID = uint64(id)
	l.Status = model.ListingAvailable
	l.CreatedAt, l.UpdatedAt = now, now
	return nil
}

// GetByID returns a listing or ErrListingNotFound.
func (r *ListingRepo) GetByID(ctx context.Context, id uint64) (model.Listing, error) {
	return scanListing(r.db.QueryRowContext(ctx, `SELECT `+listingColumns+` FROM listings WHERE id = ?`, id))
}

// LockTx reads a listing with an exclusive row lock held until tx ends.
// Every booking transaction on the listing serializes on this lock.
func (r *ListingRepo) LockTx(ctx context.Context, tx *sql.Tx, id uint64) (model.Listing, error) {
	return scanListing(tx.QueryRowContext(ctx, `SELECT `+listingColumns+` FROM listings WHERE id = ? FOR UPDATE`, id))
}

// MarkSoldTx flips the listing to sold inside tx.  The caller holds the
// row lock from LockTx.
func (r *ListingRepo) MarkSoldTx(ctx context.Context, tx *sql.Tx, id uint64, at time.Time) error {
	_, err := tx.ExecContext(ctx, `UPDATE listings SET status = ?, updated_at = ? WHERE id = ?`, model.ListingSold, at, id)
	return err
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
