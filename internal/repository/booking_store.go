package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/campus-marketplace/internal/model"
)

// BookingQueries is the set of reads and writes a booking transaction may
// perform.  Every call runs inside the same database transaction.
type BookingQueries interface {
	LockListing(ctx context.Context, listingID uint64) (model.Listing, error)
	GetReservation(ctx context.Context, id uint64) (model.Reservation, error)
	LockReservation(ctx context.Context, id uint64) (model.Reservation, error)
	DeleteExpiredForListing(ctx context.Context, listingID uint64, cutoff time.Time) (int64, error)
	BuyerHasOpenReservation(ctx context.Context, listingID, buyerID uint64) (bool, error)
	FindActiveReservation(ctx context.Context, listingID uint64, cutoff time.Time) (*model.Reservation, error)
	InsertReservation(ctx context.Context, res *model.Reservation) error
	UpdateReservationStatus(ctx context.Context, id uint64, status model.ReservationStatus, at time.Time) error
	MarkListingSold(ctx context.Context, listingID uint64, at time.Time) error
}

// BookingStore runs booking transactions against MySQL.
type BookingStore struct {
	db           *sql.DB
	Listings     *ListingRepo
	Reservations *ReservationRepo
}

// NewBookingStore wires the listing and reservation repositories onto db.
func NewBookingStore(db *sql.DB) *BookingStore {
	return &BookingStore{db: db, Listings: NewListingRepo(db), Reservations: NewReservationRepo(db)}
}

// WithinTx runs fn in a transaction and commits when fn returns nil.
// Deadlocks and lock wait timeouts come back wrapped in ErrConflict so the
// caller can retry the whole unit.
func (s *BookingStore) WithinTx(ctx context.Context, fn func(q BookingQueries) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := fn(&bookingTx{tx: tx, store: s}); err != nil {
		return classifyTxError(err)
	}
	if err := tx.Commit(); err != nil {
		return classifyTxError(fmt.Errorf("commit: %w", err))
	}
	committed = true
	return nil
}

// DeleteExpired removes pending reservations created before cutoff.
func (s *BookingStore) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	return s.Reservations.DeleteExpired(ctx, cutoff)
}

func classifyTxError(err error) error {
	if isRetryable(err) && !errors.Is(err, ErrConflict) {
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}
	return err
}

type bookingTx struct {
	tx    *sql.Tx
	store *BookingStore
}

func (b *bookingTx) LockListing(ctx context.Context, listingID uint64) (model.Listing, error) {
	return b.store.Listings.LockTx(ctx, b.tx, listingID)
}

func (b *bookingTx) GetReservation(ctx context.Context, id uint64) (model.Reservation, error) {
	return b.store.Reservations.GetTx(ctx, b.tx, id)
}

func (b *bookingTx) LockReservation(ctx context.Context, id uint64) (model.Reservation, error) {
	return b.store.Reservations.LockTx(ctx, b.tx, id)
}

func (b *bookingTx) DeleteExpiredForListing(ctx context.Context, listingID uint64, cutoff time.Time) (int64, error) {
	return b.store.Reservations.DeleteExpiredForListingTx(ctx, b.tx, listingID, cutoff)
}

func (b *bookingTx) BuyerHasOpenReservation(ctx context.Context, listingID, buyerID uint64) (bool, error) {
	return b.store.Reservations.BuyerHasOpenTx(ctx, b.tx, listingID, buyerID)
}

func (b *bookingTx) FindActiveReservation(ctx context.Context, listingID uint64, cutoff time.Time) (*model.Reservation, error) {
	return b.store.Reservations.FindActiveTx(ctx, b.tx, listingID, cutoff)
}

func (b *bookingTx) InsertReservation(ctx context.Context, res *model.Reservation) error {
	return b.store.Reservations.CreateTx(ctx, b.tx, res)
}

func (b *bookingTx) UpdateReservationStatus(ctx context.Context, id uint64, status model.ReservationStatus, at time.Time) error {
	return b.store.Reservations.UpdateStatusTx(ctx, b.tx, id, status, at)
}

func (b *bookingTx) MarkListingSold(ctx context.Context, listingID uint64, at time.Time) error {
	return b.store.Listings.MarkSoldTx(ctx, b.tx, listingID, at)
}
