package service

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/campus-marketplace/internal/config"
	"github.com/iliyamo/campus-marketplace/internal/metrics"
	"github.com/iliyamo/campus-marketplace/internal/model"
	"github.com/iliyamo/campus-marketplace/internal/queue"
	"github.com/iliyamo/campus-marketplace/internal/repository"
)

// memStore is an in-memory Store.  Transactions are serialized by a mutex
// and roll back by restoring a snapshot.  InsertReservation enforces the
// same one-active-reservation rule as the MySQL unique index.
type memStore struct {
	mu            sync.Mutex
	listings      map[uint64]model.Listing
	reservations  map[uint64]model.Reservation
	nextID        uint64
	conflictsLeft int
	deleteErr     error
	unknownUsers  map[uint64]bool
	markSoldErr   error
}

func newMemStore() *memStore {
	return &memStore{listings: map[uint64]model.Listing{}, reservations: map[uint64]model.Reservation{}}
}

func (s *memStore) addListing(id, owner uint64) {
	s.listings[id] = model.Listing{ID: id, OwnerID: owner, Name: "Study desk", Status: model.ListingAvailable}
}

func (s *memStore) WithinTx(ctx context.Context, fn func(q repository.BookingQueries) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	listings := make(map[uint64]model.Listing, len(s.listings))
	for k, v := range s.listings {
		listings[k] = v
	}
	reservations := make(map[uint64]model.Reservation, len(s.reservations))
	for k, v := range s.reservations {
		reservations[k] = v
	}
	nextID := s.nextID
	if err := fn(&memTx{s: s}); err != nil {
		s.listings, s.reservations, s.nextID = listings, reservations, nextID
		return err
	}
	return nil
}

func (s *memStore) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deleteErr != nil {
		return 0, s.deleteErr
	}
	return s.deleteExpired(0, cutoff), nil
}

func (s *memStore) deleteExpired(listingID uint64, cutoff time.Time) int64 {
	var n int64
	for id, r := range s.reservations {
		if listingID != 0 && r.ListingID != listingID {
			continue
		}
		if r.Status == model.StatusPending && r.CreatedAt.Before(cutoff) {
			delete(s.reservations, id)
			n++
		}
	}
	return n
}

func (s *memStore) get(id uint64) model.Reservation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reservations[id]
}

func (s *memStore) listing(id uint64) model.Listing {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listings[id]
}

type memTx struct{ s *memStore }

func (t *memTx) LockListing(_ context.Context, id uint64) (model.Listing, error) {
	l, ok := t.s.listings[id]
	if !ok {
		return model.Listing{}, repository.ErrListingNotFound
	}
	return l, nil
}

func (t *memTx) GetReservation(_ context.Context, id uint64) (model.Reservation, error) {
	r, ok := t.s.reservations[id]
	if !ok {
		return model.Reservation{}, repository.ErrReservationNotFound
	}
	return r, nil
}

func (t *memTx) LockReservation(ctx context.Context, id uint64) (model.Reservation, error) {
	return t.GetReservation(ctx, id)
}

func (t *memTx) DeleteExpiredForListing(_ context.Context, listingID uint64, cutoff time.Time) (int64, error) {
	return t.s.deleteExpired(listingID, cutoff), nil
}

func (t *memTx) BuyerHasOpenReservation(_ context.Context, listingID, buyerID uint64) (bool, error) {
	for _, r := range t.s.reservations {
		if r.ListingID == listingID && r.BuyerID == buyerID && r.Status != model.StatusRejected {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) FindActiveReservation(_ context.Context, listingID uint64, cutoff time.Time) (*model.Reservation, error) {
	for _, r := range t.s.reservations {
		if r.ListingID != listingID {
			continue
		}
		if r.Status == model.StatusApproved || (r.Status == model.StatusPending && !r.CreatedAt.Before(cutoff)) {
			found := r
			return &found, nil
		}
	}
	return nil, nil
}

func (t *memTx) InsertReservation(_ context.Context, res *model.Reservation) error {
	if t.s.conflictsLeft > 0 {
		t.s.conflictsLeft--
		return repository.ErrConflict
	}
	if t.s.unknownUsers[res.BuyerID] {
		return repository.ErrUnknownUser
	}
	for _, r := range t.s.reservations {
		if r.ListingID == res.ListingID && (r.Status == model.StatusPending || r.Status == model.StatusApproved) {
			return repository.ErrConflict
		}
	}
	t.s.nextID++
	res.ID = t.s.nextID
	t.s.reservations[res.ID] = *res
	return nil
}

func (t *memTx) UpdateReservationStatus(_ context.Context, id uint64, status model.ReservationStatus, at time.Time) error {
	r, ok := t.s.reservations[id]
	if !ok {
		return repository.ErrReservationNotFound
	}
	r.Status, r.UpdatedAt = status, at
	t.s.reservations[id] = r
	return nil
}

func (t *memTx) MarkListingSold(_ context.Context, listingID uint64, at time.Time) error {
	if t.s.markSoldErr != nil {
		return t.s.markSoldErr
	}
	l := t.s.listings[listingID]
	l.Status, l.UpdatedAt = model.ListingSold, at
	t.s.listings[listingID] = l
	return nil
}

type mockNotifier struct{ mock.Mock }

func (m *mockNotifier) Publish(ctx context.Context, ev queue.ReservationEvent) error {
	return m.Called(ctx, ev).Error(0)
}

type mockInvalidator struct{ mock.Mock }

func (m *mockInvalidator) InvalidateListing(ctx context.Context, listingID uint64) error {
	return m.Called(ctx, listingID).Error(0)
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

const (
	listingL uint64 = 100
	sellerS  uint64 = 1
	buyerB1  uint64 = 2
	buyerB2  uint64 = 3
)

var t0 = time.Date(2025, 5, 23, 10, 0, 0, 0, time.UTC)

type fixture struct {
	store    *memStore
	clock    *clock
	notifier *mockNotifier
	manager  *ReservationManager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := newMemStore()
	store.addListing(listingL, sellerS)
	clk := &clock{now: t0}
	n := &mockNotifier{}
	n.On("Publish", mock.Anything, mock.Anything).Return(nil)
	log := logrus.New()
	log.SetOutput(io.Discard)
	cfg := config.BookingConfig{Window: 2 * time.Hour, CreateAttempts: 3}
	m := NewReservationManager(store, n, metrics.New("test"), log, cfg, WithClock(clk.Now))
	return &fixture{store: store, clock: clk, notifier: n, manager: m}
}

func publishedTypes(n *mockNotifier) []string {
	var out []string
	for _, c := range n.Calls {
		if c.Method == "Publish" {
			out = append(out, c.Arguments.Get(1).(queue.ReservationEvent).Type)
		}
	}
	return out
}

func TestCreateReservation(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		f := newFixture(t)
		res, err := f.manager.CreateReservation(ctx, listingL, buyerB1)
		require.NoError(t, err)
		assert.NotZero(t, res.ID)
		assert.Equal(t, model.StatusPending, res.Status)
		assert.Equal(t, sellerS, res.SellerID)
		assert.Equal(t, t0, res.CreatedAt)
		assert.Equal(t, t0, res.UpdatedAt)
		assert.Equal(t, []string{queue.EventRequested}, publishedTypes(f.notifier))

		ev := f.notifier.Calls[0].Arguments.Get(1).(queue.ReservationEvent)
		assert.Equal(t, sellerS, ev.RecipientID())
		assert.Equal(t, "Study desk", ev.ListingName)
		assert.NotEmpty(t, ev.ID)
	})

	t.Run("Listing not found", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.manager.CreateReservation(ctx, 999, buyerB1)
		var nf *NotFoundError
		require.ErrorAs(t, err, &nf)
		assert.Equal(t, "listing", nf.Resource)
		assert.Empty(t, publishedTypes(f.notifier))
	})

	t.Run("Self booking wins over sold", func(t *testing.T) {
		f := newFixture(t)
		l := f.store.listings[listingL]
		l.Status = model.ListingSold
		f.store.listings[listingL] = l

		_, err := f.manager.CreateReservation(ctx, listingL, sellerS)
		var self *SelfBookingError
		assert.ErrorAs(t, err, &self)
	})

	t.Run("Already sold", func(t *testing.T) {
		f := newFixture(t)
		l := f.store.listings[listingL]
		l.Status = model.ListingSold
		f.store.listings[listingL] = l

		_, err := f.manager.CreateReservation(ctx, listingL, buyerB1)
		var sold *AlreadySoldError
		assert.ErrorAs(t, err, &sold)
	})

	t.Run("Duplicate wins over locked", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.manager.CreateReservation(ctx, listingL, buyerB1)
		require.NoError(t, err)

		_, err = f.manager.CreateReservation(ctx, listingL, buyerB1)
		var dup *DuplicateBookingError
		assert.ErrorAs(t, err, &dup)
	})

	t.Run("Locked by another buyer carries retry hint", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.manager.CreateReservation(ctx, listingL, buyerB1)
		require.NoError(t, err)

		f.clock.Advance(30 * time.Minute)
		_, err = f.manager.CreateReservation(ctx, listingL, buyerB2)
		var locked *ListingTemporarilyLockedError
		require.ErrorAs(t, err, &locked)
		assert.Equal(t, listingL, locked.ListingID)
		assert.Equal(t, 90*time.Minute, locked.RetryAfter)
	})

	t.Run("Own expired pending does not count as duplicate", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.manager.CreateReservation(ctx, listingL, buyerB1)
		require.NoError(t, err)

		f.clock.Advance(2*time.Hour + time.Second)
		res, err := f.manager.CreateReservation(ctx, listingL, buyerB1)
		require.NoError(t, err)
		assert.Equal(t, model.StatusPending, res.Status)
	})

	t.Run("Retries storage conflicts", func(t *testing.T) {
		f := newFixture(t)
		f.store.conflictsLeft = 2
		res, err := f.manager.CreateReservation(ctx, listingL, buyerB1)
		require.NoError(t, err)
		assert.Equal(t, model.StatusPending, res.Status)
	})

	t.Run("Exhausted retries surface as locked", func(t *testing.T) {
		f := newFixture(t)
		f.store.conflictsLeft = 10
		_, err := f.manager.CreateReservation(ctx, listingL, buyerB1)
		var locked *ListingTemporarilyLockedError
		require.ErrorAs(t, err, &locked)
		assert.Equal(t, time.Second, locked.RetryAfter)
		assert.Empty(t, f.store.reservations)
	})

	t.Run("Failed lazy sweep does not block booking", func(t *testing.T) {
		f := newFixture(t)
		f.store.deleteErr = errors.New("lock wait timeout")
		_, err := f.manager.CreateReservation(ctx, listingL, buyerB1)
		assert.NoError(t, err)
	})

	t.Run("Buyer without an account", func(t *testing.T) {
		f := newFixture(t)
		f.store.unknownUsers = map[uint64]bool{buyerB2: true}
		_, err := f.manager.CreateReservation(ctx, listingL, buyerB2)
		var nf *NotFoundError
		require.ErrorAs(t, err, &nf)
		assert.Equal(t, "user", nf.Resource)
		assert.Equal(t, buyerB2, nf.ID)
		assert.Empty(t, f.store.reservations)
	})

	t.Run("Publish failure does not fail the booking", func(t *testing.T) {
		f := newFixture(t)
		f.notifier.ExpectedCalls = nil
		f.notifier.On("Publish", mock.Anything, mock.Anything).Return(errors.New("broker down"))
		res, err := f.manager.CreateReservation(ctx, listingL, buyerB1)
		require.NoError(t, err)
		assert.Equal(t, res, f.store.get(res.ID))
	})
}

func TestCreateReservationMutualExclusion(t *testing.T) {
	f := newFixture(t)
	const buyers = 25

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
		locked  int
	)
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func(buyer uint64) {
			defer wg.Done()
			_, err := f.manager.CreateReservation(context.Background(), listingL, buyer)
			mu.Lock()
			defer mu.Unlock()
			var lockedErr *ListingTemporarilyLockedError
			switch {
			case err == nil:
				success++
			case errors.As(err, &lockedErr):
				locked++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(uint64(1000 + i))
	}
	wg.Wait()

	assert.Equal(t, 1, success)
	assert.Equal(t, buyers-1, locked)
	assert.Len(t, f.store.reservations, 1)
}

func TestDecide(t *testing.T) {
	ctx := context.Background()

	t.Run("Approve", func(t *testing.T) {
		f := newFixture(t)
		r, err := f.manager.CreateReservation(ctx, listingL, buyerB1)
		require.NoError(t, err)

		f.clock.Advance(time.Minute)
		got, err := f.manager.Decide(ctx, r.ID, sellerS, DecisionApprove, "ignored")
		require.NoError(t, err)
		assert.Equal(t, model.StatusApproved, got.Status)
		assert.Equal(t, t0.Add(time.Minute), got.UpdatedAt)
		assert.Equal(t, model.StatusApproved, f.store.get(r.ID).Status)

		ev := f.notifier.Calls[1].Arguments.Get(1).(queue.ReservationEvent)
		assert.Equal(t, queue.EventApproved, ev.Type)
		assert.Empty(t, ev.Reason)
		assert.Equal(t, buyerB1, ev.RecipientID())
	})

	t.Run("Reject forwards the reason", func(t *testing.T) {
		f := newFixture(t)
		r, err := f.manager.CreateReservation(ctx, listingL, buyerB1)
		require.NoError(t, err)

		got, err := f.manager.Decide(ctx, r.ID, sellerS, DecisionReject, "item damaged")
		require.NoError(t, err)
		assert.Equal(t, model.StatusRejected, got.Status)
		assert.Equal(t, model.ListingAvailable, f.store.listing(listingL).Status)

		ev := f.notifier.Calls[1].Arguments.Get(1).(queue.ReservationEvent)
		assert.Equal(t, queue.EventRejected, ev.Type)
		assert.Equal(t, "item damaged", ev.Reason)
	})

	t.Run("Not found", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.manager.Decide(ctx, 42, sellerS, DecisionApprove, "")
		var nf *NotFoundError
		require.ErrorAs(t, err, &nf)
		assert.Equal(t, "reservation", nf.Resource)
	})

	t.Run("Not the seller", func(t *testing.T) {
		f := newFixture(t)
		r, err := f.manager.CreateReservation(ctx, listingL, buyerB1)
		require.NoError(t, err)

		_, err = f.manager.Decide(ctx, r.ID, buyerB1, DecisionApprove, "")
		var ua *UnauthorizedError
		require.ErrorAs(t, err, &ua)
		assert.Equal(t, model.StatusPending, f.store.get(r.ID).Status)
	})

	t.Run("Already decided", func(t *testing.T) {
		f := newFixture(t)
		r, err := f.manager.CreateReservation(ctx, listingL, buyerB1)
		require.NoError(t, err)
		_, err = f.manager.Decide(ctx, r.ID, sellerS, DecisionReject, "")
		require.NoError(t, err)

		_, err = f.manager.Decide(ctx, r.ID, sellerS, DecisionApprove, "")
		var inv *InvalidStateTransitionError
		require.ErrorAs(t, err, &inv)
		assert.Equal(t, model.StatusRejected, inv.From)
		assert.Equal(t, model.StatusApproved, inv.To)
		assert.Equal(t, model.StatusRejected, f.store.get(r.ID).Status)
	})

	t.Run("Expired pending cannot be approved", func(t *testing.T) {
		f := newFixture(t)
		r, err := f.manager.CreateReservation(ctx, listingL, buyerB1)
		require.NoError(t, err)

		f.clock.Advance(3 * time.Hour)
		_, err = f.manager.Decide(ctx, r.ID, sellerS, DecisionApprove, "")
		var inv *InvalidStateTransitionError
		require.ErrorAs(t, err, &inv)
		assert.Equal(t, model.StatusExpired, inv.From)
		assert.Equal(t, model.StatusPending, f.store.get(r.ID).Status)
	})

	t.Run("Unknown decision", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.manager.Decide(ctx, 1, sellerS, Decision("maybe"), "")
		assert.Error(t, err)
	})
}

func TestMarkSold(t *testing.T) {
	ctx := context.Background()

	t.Run("Pending cannot skip approval", func(t *testing.T) {
		f := newFixture(t)
		r, err := f.manager.CreateReservation(ctx, listingL, buyerB1)
		require.NoError(t, err)

		_, err = f.manager.MarkSold(ctx, r.ID, sellerS)
		var inv *InvalidStateTransitionError
		require.ErrorAs(t, err, &inv)
		assert.Equal(t, model.StatusPending, inv.From)
		assert.Equal(t, model.ListingAvailable, f.store.listing(listingL).Status)
	})

	t.Run("Not the seller", func(t *testing.T) {
		f := newFixture(t)
		r, err := f.manager.CreateReservation(ctx, listingL, buyerB1)
		require.NoError(t, err)
		_, err = f.manager.Decide(ctx, r.ID, sellerS, DecisionApprove, "")
		require.NoError(t, err)

		_, err = f.manager.MarkSold(ctx, r.ID, buyerB2)
		var ua *UnauthorizedError
		assert.ErrorAs(t, err, &ua)
	})

	t.Run("Sold twice", func(t *testing.T) {
		f := newFixture(t)
		r, err := f.manager.CreateReservation(ctx, listingL, buyerB1)
		require.NoError(t, err)
		_, err = f.manager.Decide(ctx, r.ID, sellerS, DecisionApprove, "")
		require.NoError(t, err)
		_, err = f.manager.MarkSold(ctx, r.ID, sellerS)
		require.NoError(t, err)

		_, err = f.manager.MarkSold(ctx, r.ID, sellerS)
		var inv *InvalidStateTransitionError
		require.ErrorAs(t, err, &inv)
		assert.Equal(t, model.StatusSold, inv.From)
	})

	t.Run("Failed listing update rolls back the sale", func(t *testing.T) {
		f := newFixture(t)
		r, err := f.manager.CreateReservation(ctx, listingL, buyerB1)
		require.NoError(t, err)
		_, err = f.manager.Decide(ctx, r.ID, sellerS, DecisionApprove, "")
		require.NoError(t, err)

		f.store.markSoldErr = errors.New("lock wait timeout")
		_, err = f.manager.MarkSold(ctx, r.ID, sellerS)
		require.Error(t, err)
		assert.ErrorIs(t, err, f.store.markSoldErr)
		assert.Equal(t, model.StatusApproved, f.store.get(r.ID).Status)
		assert.Equal(t, model.ListingAvailable, f.store.listing(listingL).Status)
		assert.NotContains(t, publishedTypes(f.notifier), queue.EventSold)

		f.store.markSoldErr = nil
		sold, err := f.manager.MarkSold(ctx, r.ID, sellerS)
		require.NoError(t, err)
		assert.Equal(t, model.StatusSold, sold.Status)
		assert.Equal(t, model.ListingSold, f.store.listing(listingL).Status)
	})

	t.Run("Sale purges cached listing reads", func(t *testing.T) {
		f := newFixture(t)
		inv := &mockInvalidator{}
		inv.On("InvalidateListing", mock.Anything, listingL).Return(nil).Once()
		WithListingInvalidator(inv)(f.manager)

		r, err := f.manager.CreateReservation(ctx, listingL, buyerB1)
		require.NoError(t, err)
		_, err = f.manager.Decide(ctx, r.ID, sellerS, DecisionApprove, "")
		require.NoError(t, err)
		inv.AssertNotCalled(t, "InvalidateListing", mock.Anything, mock.Anything)

		_, err = f.manager.MarkSold(ctx, r.ID, sellerS)
		require.NoError(t, err)
		inv.AssertExpectations(t)
	})

	t.Run("Refused sale leaves the cache alone", func(t *testing.T) {
		f := newFixture(t)
		inv := &mockInvalidator{}
		WithListingInvalidator(inv)(f.manager)
		r, err := f.manager.CreateReservation(ctx, listingL, buyerB1)
		require.NoError(t, err)

		_, err = f.manager.MarkSold(ctx, r.ID, sellerS)
		require.Error(t, err)
		inv.AssertNotCalled(t, "InvalidateListing", mock.Anything, mock.Anything)
	})

	t.Run("Invalidation failure does not fail the sale", func(t *testing.T) {
		f := newFixture(t)
		inv := &mockInvalidator{}
		inv.On("InvalidateListing", mock.Anything, listingL).Return(errors.New("redis down"))
		WithListingInvalidator(inv)(f.manager)
		r, err := f.manager.CreateReservation(ctx, listingL, buyerB1)
		require.NoError(t, err)
		_, err = f.manager.Decide(ctx, r.ID, sellerS, DecisionApprove, "")
		require.NoError(t, err)

		sold, err := f.manager.MarkSold(ctx, r.ID, sellerS)
		require.NoError(t, err)
		assert.Equal(t, model.StatusSold, sold.Status)
		assert.Contains(t, publishedTypes(f.notifier), queue.EventSold)
	})
}

func TestSweepExpiredReservations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.store.addListing(101, sellerS)

	_, err := f.manager.CreateReservation(ctx, listingL, buyerB1)
	require.NoError(t, err)
	f.clock.Advance(time.Hour)
	_, err = f.manager.CreateReservation(ctx, 101, buyerB1)
	require.NoError(t, err)

	n, err := f.manager.SweepExpiredReservations(ctx, t0.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n, "exactly at the window edge nothing expires")

	n, err = f.manager.SweepExpiredReservations(ctx, t0.Add(2*time.Hour+time.Second))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Len(t, f.store.reservations, 1)

	f.store.deleteErr = errors.New("db gone")
	_, err = f.manager.SweepExpiredReservations(ctx, t0.Add(5*time.Hour))
	assert.Error(t, err)
}

// The three walkthroughs below follow buyer B1, B2 and seller S on listing L.

func TestScenarioApproveSellThenSoldOut(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	r1, err := f.manager.CreateReservation(ctx, listingL, buyerB1)
	require.NoError(t, err)

	f.clock.Advance(30 * time.Second)
	_, err = f.manager.CreateReservation(ctx, listingL, buyerB2)
	var locked *ListingTemporarilyLockedError
	require.ErrorAs(t, err, &locked)

	f.clock.Advance(30 * time.Second)
	r1, err = f.manager.Decide(ctx, r1.ID, sellerS, DecisionApprove, "")
	require.NoError(t, err)
	assert.Equal(t, model.StatusApproved, r1.Status)

	r1, err = f.manager.MarkSold(ctx, r1.ID, sellerS)
	require.NoError(t, err)
	assert.Equal(t, model.StatusSold, r1.Status)
	assert.Equal(t, model.StatusSold, f.store.get(r1.ID).Status)
	assert.Equal(t, model.ListingSold, f.store.listing(listingL).Status)

	_, err = f.manager.CreateReservation(ctx, listingL, buyerB2)
	var sold *AlreadySoldError
	assert.ErrorAs(t, err, &sold)

	assert.Equal(t, []string{queue.EventRequested, queue.EventApproved, queue.EventSold}, publishedTypes(f.notifier))
}

func TestScenarioRejectedDoesNotBlock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	r1, err := f.manager.CreateReservation(ctx, listingL, buyerB1)
	require.NoError(t, err)

	f.clock.Advance(time.Minute)
	_, err = f.manager.Decide(ctx, r1.ID, sellerS, DecisionReject, "")
	require.NoError(t, err)
	assert.Equal(t, model.ListingAvailable, f.store.listing(listingL).Status)

	f.clock.Advance(time.Minute)
	r2, err := f.manager.CreateReservation(ctx, listingL, buyerB1)
	require.NoError(t, err)
	assert.NotEqual(t, r1.ID, r2.ID)
	assert.Equal(t, model.StatusPending, r2.Status)
	assert.Equal(t, model.StatusRejected, f.store.get(r1.ID).Status)
}

func TestScenarioExpiryFreesListing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	r1, err := f.manager.CreateReservation(ctx, listingL, buyerB1)
	require.NoError(t, err)

	f.clock.Advance(2*time.Hour + time.Second)
	r2, err := f.manager.CreateReservation(ctx, listingL, buyerB2)
	require.NoError(t, err)
	assert.Equal(t, buyerB2, r2.BuyerID)

	_, ok := f.store.reservations[r1.ID]
	assert.False(t, ok, "expired reservation is hard deleted")
}
