// Package service holds the booking reservation manager and its
// collaborators: the event publisher and the expiry sweeper.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/campus-marketplace/internal/config"
	"github.com/iliyamo/campus-marketplace/internal/metrics"
	"github.com/iliyamo/campus-marketplace/internal/model"
	"github.com/iliyamo/campus-marketplace/internal/queue"
	"github.com/iliyamo/campus-marketplace/internal/repository"
)

// Store runs booking transactions.  repository.BookingStore is the MySQL
// implementation.
type Store interface {
	WithinTx(ctx context.Context, fn func(q repository.BookingQueries) error) error
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

// Notifier hands reservation events to the notification pipeline.
type Notifier interface {
	Publish(ctx context.Context, ev queue.ReservationEvent) error
}

// ListingInvalidator drops cached reads of a listing whose state changed.
type ListingInvalidator interface {
	InvalidateListing(ctx context.Context, listingID uint64) error
}

// Decision is a seller's answer to a pending reservation.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

// conflictRetryAfter is suggested to clients when every create attempt
// collided with a concurrent writer.
const conflictRetryAfter = time.Second

const notifyTimeout = 3 * time.Second

// ReservationManager owns the reservation lifecycle: creation, seller
// decisions, finalization and expiry.
type ReservationManager struct {
	store    Store
	notifier Notifier
	cache    ListingInvalidator
	metrics  *metrics.Metrics
	log      *logrus.Logger
	window   time.Duration
	attempts int
	now      func() time.Time
}

// Option customizes a ReservationManager.
type Option func(*ReservationManager)

// WithClock replaces time.Now, used by tests to move through the window.
func WithClock(now func() time.Time) Option {
	return func(m *ReservationManager) { m.now = now }
}

// WithListingInvalidator sets the cache that is purged when a listing
// is sold.
func WithListingInvalidator(inv ListingInvalidator) Option {
	return func(m *ReservationManager) { m.cache = inv }
}

// NewReservationManager builds a manager.  notifier may be nil, in which
// case no events are published.
func NewReservationManager(store Store, notifier Notifier, mm *metrics.Metrics, log *logrus.Logger, cfg config.BookingConfig, opts ...Option) *ReservationManager {
	if store == nil || mm == nil || log == nil {
		panic("nil dependency passed to NewReservationManager")
	}
	m := &ReservationManager{
		store:    store,
		notifier: notifier,
		metrics:  mm,
		log:      log,
		window:   cfg.Window,
		attempts: cfg.CreateAttempts,
		now:      time.Now,
	}
	if m.attempts < 1 {
		m.attempts = 1
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Window is the configured reservation window.
func (m *ReservationManager) Window() time.Duration { return m.window }

// Now is the manager's clock in UTC.
func (m *ReservationManager) Now() time.Time { return m.now().UTC() }

// CreateReservation books listingID for buyerID.  Rules are checked in
// order and the first failure wins: listing exists, buyer is not the owner,
// listing is not sold, buyer holds no non-rejected reservation on it, and no
// other reservation is active.  The new reservation is pending.
func (m *ReservationManager) CreateReservation(ctx context.Context, listingID, buyerID uint64) (model.Reservation, error) {
	if _, err := m.SweepExpiredReservations(ctx, m.Now()); err != nil {
		// the create transaction clears this listing's stale rows itself
		m.log.WithError(err).Warn("lazy expiry sweep failed")
	}

	var (
		res     model.Reservation
		listing model.Listing
		err     error
	)
	for attempt := 1; attempt <= m.attempts; attempt++ {
		res, listing, err = m.tryCreate(ctx, listingID, buyerID, m.Now())
		if !errors.Is(err, repository.ErrConflict) {
			break
		}
		m.metrics.CreateConflicts.Inc()
		m.log.WithFields(logrus.Fields{
			"listing_id": listingID,
			"buyer_id":   buyerID,
			"attempt":    attempt,
		}).Debug("reservation create conflicted, retrying")
	}
	if errors.Is(err, repository.ErrConflict) {
		err = &ListingTemporarilyLockedError{ListingID: listingID, RetryAfter: conflictRetryAfter}
	}
	if err != nil {
		return model.Reservation{}, m.fail(err)
	}

	m.metrics.ReservationsCreated.Inc()
	m.log.WithFields(logrus.Fields{
		"reservation_id": res.ID,
		"listing_id":     res.ListingID,
		"buyer_id":       res.BuyerID,
		"seller_id":      res.SellerID,
	}).Info("reservation created")
	m.notify(ctx, queue.EventRequested, res, listing, "")
	return res, nil
}

func (m *ReservationManager) tryCreate(ctx context.Context, listingID, buyerID uint64, now time.Time) (model.Reservation, model.Listing, error) {
	var (
		created model.Reservation
		listing model.Listing
	)
	err := m.store.WithinTx(ctx, func(q repository.BookingQueries) error {
		l, err := q.LockListing(ctx, listingID)
		if errors.Is(err, repository.ErrListingNotFound) {
			return &NotFoundError{Resource: "listing", ID: listingID}
		}
		if err != nil {
			return fmt.Errorf("lock listing %d: %w", listingID, err)
		}
		if l.OwnerID == buyerID {
			return &SelfBookingError{ListingID: listingID}
		}
		if l.IsSold() {
			return &AlreadySoldError{ListingID: listingID}
		}

		cutoff := model.ExpiryCutoff(now, m.window)
		if n, err := q.DeleteExpiredForListing(ctx, listingID, cutoff); err != nil {
			return fmt.Errorf("expire reservations on listing %d: %w", listingID, err)
		} else if n > 0 {
			m.metrics.ExpiredSwept.Add(float64(n))
		}

		open, err := q.BuyerHasOpenReservation(ctx, listingID, buyerID)
		if err != nil {
			return fmt.Errorf("check buyer reservations: %w", err)
		}
		if open {
			return &DuplicateBookingError{ListingID: listingID}
		}

		active, err := q.FindActiveReservation(ctx, listingID, cutoff)
		if err != nil {
			return fmt.Errorf("check active reservation: %w", err)
		}
		if active != nil {
			return &ListingTemporarilyLockedError{ListingID: listingID, RetryAfter: m.retryAfter(*active, now)}
		}

		res := model.Reservation{
			ListingID: listingID,
			BuyerID:   buyerID,
			SellerID:  l.OwnerID,
			Status:    model.StatusPending,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := q.InsertReservation(ctx, &res); err != nil {
			if errors.Is(err, repository.ErrUnknownUser) {
				return &NotFoundError{Resource: "user", ID: buyerID}
			}
			return err
		}
		created, listing = res, l
		return nil
	})
	return created, listing, err
}

func (m *ReservationManager) retryAfter(blocker model.Reservation, now time.Time) time.Duration {
	if blocker.Status != model.StatusPending {
		return 0
	}
	if d := blocker.CreatedAt.Add(m.window).Sub(now); d > 0 {
		return d
	}
	return 0
}

// Decide applies a seller's approve or reject to a pending reservation.
// reason is forwarded to the buyer on rejection and may be empty.
func (m *ReservationManager) Decide(ctx context.Context, reservationID, sellerID uint64, decision Decision, reason string) (model.Reservation, error) {
	var target model.ReservationStatus
	switch decision {
	case DecisionApprove:
		target = model.StatusApproved
	case DecisionReject:
		target = model.StatusRejected
	default:
		return model.Reservation{}, fmt.Errorf("unknown decision %q", decision)
	}

	res, listing, err := m.transition(ctx, reservationID, sellerID, target)
	if err != nil {
		return model.Reservation{}, m.fail(err)
	}
	evType := queue.EventApproved
	if target == model.StatusRejected {
		evType = queue.EventRejected
	} else {
		reason = ""
	}
	m.notify(ctx, evType, res, listing, reason)
	return res, nil
}

// MarkSold finalizes an approved reservation.  The reservation and its
// listing both become sold in one transaction, and cached listing reads are
// purged once it commits.
func (m *ReservationManager) MarkSold(ctx context.Context, reservationID, sellerID uint64) (model.Reservation, error) {
	res, listing, err := m.transition(ctx, reservationID, sellerID, model.StatusSold)
	if err != nil {
		return model.Reservation{}, m.fail(err)
	}
	m.invalidate(ctx, res.ListingID)
	m.notify(ctx, queue.EventSold, res, listing, "")
	return res, nil
}

// transition moves a reservation to target under the listing and
// reservation row locks.  Locks are taken listing first, the same order
// CreateReservation uses.
func (m *ReservationManager) transition(ctx context.Context, reservationID, sellerID uint64, target model.ReservationStatus) (model.Reservation, model.Listing, error) {
	var (
		out     model.Reservation
		listing model.Listing
	)
	err := m.store.WithinTx(ctx, func(q repository.BookingQueries) error {
		peek, err := q.GetReservation(ctx, reservationID)
		if errors.Is(err, repository.ErrReservationNotFound) {
			return &NotFoundError{Resource: "reservation", ID: reservationID}
		}
		if err != nil {
			return fmt.Errorf("load reservation %d: %w", reservationID, err)
		}
		if peek.SellerID != sellerID {
			return &UnauthorizedError{ReservationID: reservationID, UserID: sellerID}
		}

		l, err := q.LockListing(ctx, peek.ListingID)
		if errors.Is(err, repository.ErrListingNotFound) {
			return &NotFoundError{Resource: "listing", ID: peek.ListingID}
		}
		if err != nil {
			return fmt.Errorf("lock listing %d: %w", peek.ListingID, err)
		}
		res, err := q.LockReservation(ctx, reservationID)
		if errors.Is(err, repository.ErrReservationNotFound) {
			// swept between the peek and the lock
			return &NotFoundError{Resource: "reservation", ID: reservationID}
		}
		if err != nil {
			return fmt.Errorf("lock reservation %d: %w", reservationID, err)
		}

		now := m.Now()
		from := res.EffectiveStatus(now, m.window)
		next, err := from.Transition(target)
		if err != nil {
			return &InvalidStateTransitionError{ReservationID: reservationID, From: from, To: target}
		}
		if err := q.UpdateReservationStatus(ctx, res.ID, next, now); err != nil {
			return fmt.Errorf("update reservation %d: %w", res.ID, err)
		}
		if next == model.StatusSold {
			if err := q.MarkListingSold(ctx, l.ID, now); err != nil {
				return fmt.Errorf("mark listing %d sold: %w", l.ID, err)
			}
			l.Status = model.ListingSold
			l.UpdatedAt = now
		}
		res.Status = next
		res.UpdatedAt = now
		out, listing = res, l
		return nil
	})
	if err != nil {
		return model.Reservation{}, model.Listing{}, err
	}
	m.metrics.ReservationTransitions.WithLabelValues(string(target)).Inc()
	m.log.WithFields(logrus.Fields{
		"reservation_id": out.ID,
		"listing_id":     out.ListingID,
		"status":         out.Status,
	}).Info("reservation transitioned")
	return out, listing, nil
}

// SweepExpiredReservations deletes pending reservations created before
// now minus the window and returns how many were removed.
func (m *ReservationManager) SweepExpiredReservations(ctx context.Context, now time.Time) (int64, error) {
	n, err := m.store.DeleteExpired(ctx, model.ExpiryCutoff(now.UTC(), m.window))
	if err != nil {
		return 0, fmt.Errorf("sweep expired reservations: %w", err)
	}
	if n > 0 {
		m.metrics.ExpiredSwept.Add(float64(n))
		m.log.WithField("count", n).Info("expired pending reservations removed")
	}
	return n, nil
}

// fail records a refused operation and passes err through unchanged.
func (m *ReservationManager) fail(err error) error {
	var coded CodedError
	if errors.As(err, &coded) {
		m.metrics.BookingErrors.WithLabelValues(coded.Code()).Inc()
	} else {
		m.metrics.BookingErrors.WithLabelValues("internal").Inc()
	}
	return err
}

// invalidate purges cached reads of listingID.  A failure is logged; the
// cache entry then lives out its TTL.
func (m *ReservationManager) invalidate(ctx context.Context, listingID uint64) {
	if m.cache == nil {
		return
	}
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()
	if err := m.cache.InvalidateListing(cctx, listingID); err != nil {
		m.log.WithError(err).WithField("listing_id", listingID).Warn("listing cache not invalidated")
	}
}

// notify publishes after commit.  Delivery failures are logged and never
// reach the caller: the reservation already exists.
func (m *ReservationManager) notify(ctx context.Context, evType string, res model.Reservation, listing model.Listing, reason string) {
	if m.notifier == nil {
		return
	}
	ev := queue.ReservationEvent{
		ID:            uuid.NewString(),
		Type:          evType,
		ReservationID: res.ID,
		ListingID:     res.ListingID,
		ListingName:   listing.Name,
		BuyerID:       res.BuyerID,
		SellerID:      res.SellerID,
		Status:        string(res.Status),
		Reason:        reason,
		OccurredAt:    res.UpdatedAt,
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()
	err := m.notifier.Publish(pctx, ev)
	m.metrics.EventsPublished.WithLabelValues(evType, metrics.Result(err)).Inc()
	if err != nil {
		m.log.WithError(err).WithFields(logrus.Fields{
			"event":          evType,
			"reservation_id": res.ID,
		}).Warn("reservation event not published")
	}
}
