package model

import "time"

// Reservation is a buyer's claim on a listing pending the seller's
// confirmation.  SellerID is copied from the listing owner when the
// reservation is created and never changes afterwards.
type Reservation struct {
    ID        uint64            // reservations.id
    ListingID uint64            // reservations.listing_id
    BuyerID   uint64            // reservations.buyer_id
    SellerID  uint64            // reservations.seller_id
    Status    ReservationStatus // reservations.status
    CreatedAt time.Time         // reservations.created_at, start of the window
    UpdatedAt time.Time         // reservations.updated_at, last transition
}

// IsExpired reports whether a pending reservation has outlived window at
// now.  Only pending reservations expire.
func (r Reservation) IsExpired(now time.Time, window time.Duration) bool {
    return r.Status == StatusPending && r.CreatedAt.Before(ExpiryCutoff(now, window))
}

// IsActive reports whether the reservation blocks other buyers: it is
// approved, or pending and still inside the window.
func (r Reservation) IsActive(now time.Time, window time.Duration) bool {
    switch r.Status {
    case StatusApproved:
        return true
    case StatusPending:
        return !r.IsExpired(now, window)
    }
    return false
}

// EffectiveStatus is the status as observed at now: an expired pending
// reservation reports StatusExpired.
func (r Reservation) EffectiveStatus(now time.Time, window time.Duration) ReservationStatus {
    if r.IsExpired(now, window) {
        return StatusExpired
    }
    return r.Status
}

// ExpiryCutoff is the oldest created_at a pending reservation may carry and
// still be active at now.
func ExpiryCutoff(now time.Time, window time.Duration) time.Time {
    return now.Add(-window)
}
