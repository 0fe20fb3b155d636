package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/campus-marketplace/internal/model"
)

// ReservationRepo provides access to the reservations table.  Methods with a
// Tx suffix run inside a caller-owned transaction; the caller must commit or
// roll back.  All timestamps are written by the application in UTC so that
// window comparisons use a single clock.
type ReservationRepo struct {
	db *sql.DB
}

// NewReservationRepo returns a new ReservationRepo bound to the given database.
func NewReservationRepo(db *sql.DB) *ReservationRepo { return &ReservationRepo{db: db} }

const reservationColumns = `id, listing_id, buyer_id, seller_id, status, created_at, updated_at`

func scanReservation(row rowScanner) (model.Reservation, error) {
	var (
		res    model.Reservation
		status string
	)
	err := row.Scan(&res.ID, &res.ListingID, &res.BuyerID, &res.SellerID, &status, &res.CreatedAt, &res.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Reservation{}, ErrReservationNotFound
	}
	if err != nil {
		return model.Reservation{}, err
	}
	if res.Status, err = model.ParseReservationStatus(status); err != nil {
		return model.Reservation{}, err
	}
	return res, nil
}

// GetByID returns a reservation or ErrReservationNotFound.
func (r *ReservationRepo) GetByID(ctx context.Context, id uint64) (model.Reservation, error) {
	return scanReservation(r.db.QueryRowContext(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE id = ?`, id))
}

// GetTx reads a reservation inside tx without locking it.
func (r *ReservationRepo) GetTx(ctx context.Context, tx *sql.Tx, id uint64) (model.Reservation, error) {
	return scanReservation(tx.QueryRowContext(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE id = ?`, id))
}

// LockTx reads a reservation with an exclusive row lock held until tx ends.
func (r *ReservationRepo) LockTx(ctx context.Context, tx *sql.Tx, id uint64) (model.Reservation, error) {
	return scanReservation(tx.QueryRowContext(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE id = ? FOR UPDATE`, id))
}

// CreateTx inserts res and fills in its id.  A violation of the
// one-active-reservation-per-listing index is reported as ErrConflict.
func (r *ReservationRepo) CreateTx(ctx context.Context, tx *sql.Tx, res *model.Reservation) error {
	const q = `INSERT INTO reservations (listing_id, buyer_id, seller_id, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`
	result, err := tx.ExecContext(ctx, q, res.ListingID, res.BuyerID, res.SellerID, string(res.Status), res.CreatedAt, res.UpdatedAt)
	if err != nil {
		if isDuplicateKey(err) {
			return fmt.Errorf("insert reservation for listing %d: %w", res.ListingID, ErrConflict)
		}
		if isMissingReference(err) {
			return fmt.Errorf("insert reservation for buyer %d: %w", res.BuyerID, ErrUnknownUser)
		}
		return err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	res.ID = uint64(id)
	return nil
}

// UpdateStatusTx stores a new status and transition time.
func (r *ReservationRepo) UpdateStatusTx(ctx context.Context, tx *sql.Tx, id uint64, status model.ReservationStatus, at time.Time) error {
	result, err := tx.ExecContext(ctx, `UPDATE reservations SET status = ?, updated_at = ? WHERE id = ?`, string(status), at, id)
	if err != nil {
		if isDuplicateKey(err) {
			return fmt.Errorf("update reservation %d: %w", id, ErrConflict)
		}
		return err
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return ErrReservationNotFound
	}
	return nil
}

// BuyerHasOpenTx reports whether buyerID already holds a reservation on the
// listing in any status other than rejected.
func (r *ReservationRepo) BuyerHasOpenTx(ctx context.Context, tx *sql.Tx, listingID, buyerID uint64) (bool, error) {
	const q = `SELECT EXISTS(SELECT 1 FROM reservations WHERE listing_id = ? AND buyer_id = ? AND status <> ?)`
	var exists bool
	err := tx.QueryRowContext(ctx, q, listingID, buyerID, string(model.StatusRejected)).Scan(&exists)
	return exists, err
}

// FindActiveTx returns the reservation currently blocking the listing:
// approved, or pending and created at or after cutoff.  It returns nil when
// the listing is free.
func (r *ReservationRepo) FindActiveTx(ctx context.Context, tx *sql.Tx, listingID uint64, cutoff time.Time) (*model.Reservation, error) {
	const q = `SELECT ` + reservationColumns + ` FROM reservations
		WHERE listing_id = ? AND (status = ? OR (status = ? AND created_at >= ?))
		ORDER BY created_at DESC LIMIT 1`
	res, err := scanReservation(tx.QueryRowContext(ctx, q, listingID, string(model.StatusApproved), string(model.StatusPending), cutoff))
	if errors.Is(err, ErrReservationNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// DeleteExpiredForListingTx removes pending reservations on one listing
// created before cutoff.
func (r *ReservationRepo) DeleteExpiredForListingTx(ctx context.Context, tx *sql.Tx, listingID uint64, cutoff time.Time) (int64, error) {
	const q = `DELETE FROM reservations WHERE listing_id = ? AND status = ? AND created_at < ?`
	result, err := tx.ExecContext(ctx, q, listingID, string(model.StatusPending), cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// DeleteExpired removes every pending reservation created before cutoff and
// returns how many rows went away.  The status predicate is re-checked
// against rows locked by concurrent decisions, so a reservation approved
// meanwhile is kept.
func (r *ReservationRepo) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM reservations WHERE status = ? AND created_at < ?`, string(model.StatusPending), cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// HasSoldForBuyer reports whether buyerID bought the listing, which is what
// makes them eligible to review it.
func (r *ReservationRepo) HasSoldForBuyer(ctx context.Context, listingID, buyerID uint64) (bool, error) {
	const q = `SELECT EXISTS(SELECT 1 FROM reservations WHERE listing_id = ? AND buyer_id = ? AND status = ?)`
	var exists bool
	err := r.db.QueryRowContext(ctx, q, listingID, buyerID, string(model.StatusSold)).Scan(&exists)
	return exists, err
}

// ReservationView is a reservation joined with its listing summary as shown
// in buyer and seller dashboards.
type ReservationView struct {
	ID                uint64    `json:"id"`
	Status            string    `json:"status"`
	ListingID         uint64    `json:"listing_id"`
	ListingName       string    `json:"listing_name"`
	ListingPriceCents uint32    `json:"listing_price_cents"`
	ListingStatus     string    `json:"listing_status"`
	BuyerID           uint64    `json:"buyer_id"`
	SellerID          uint64    `json:"seller_id"`
	HasReview         bool      `json:"has_review"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

const reservationViewQuery = `SELECT r.id, r.status, r.listing_id, l.name, l.price_cents, l.status,
		r.buyer_id, r.seller_id,
		EXISTS(SELECT 1 FROM reviews v WHERE v.listing_id = r.listing_id AND v.buyer_id = r.buyer_id),
		r.created_at, r.updated_at
	FROM reservations r
	JOIN listings l ON l.id = r.listing_id
	WHERE %s = ? AND NOT (r.status = 'pending' AND r.created_at < ?)
	ORDER BY r.created_at DESC, r.id DESC`

// ListByBuyer returns the buyer's reservations newest first.  Pending rows
// created before activeCutoff are left out.
func (r *ReservationRepo) ListByBuyer(ctx context.Context, buyerID uint64, activeCutoff time.Time) ([]ReservationView, error) {
	return r.listViews(ctx, "r.buyer_id", buyerID, activeCutoff)
}

// ListBySeller returns reservations on the seller's listings newest first.
// Pending rows created before activeCutoff are left out.
func (r *ReservationRepo) ListBySeller(ctx context.Context, sellerID uint64, activeCutoff time.Time) ([]ReservationView, error) {
	return r.listViews(ctx, "r.seller_id", sellerID, activeCutoff)
}

func (r *ReservationRepo) listViews(ctx context.Context, column string, userID uint64, activeCutoff time.Time) ([]ReservationView, error) {
	rows, err := r.db.QueryContext(ctx, fmt.Sprintf(reservationViewQuery, column), userID, activeCutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]ReservationView, 0)
	for rows.Next() {
		var v ReservationView
		if err := rows.Scan(&v.ID, &v.Status, &v.ListingID, &v.ListingName, &v.ListingPriceCents, &v.ListingStatus,
			&v.BuyerID, &v.SellerID, &v.HasReview, &v.CreatedAt, &v.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
