// Package queue defines the reservation events exchanged over RabbitMQ and
// the consumer that turns them into emails.
package queue

import "time"

// ReservationQueue is the durable queue carrying reservation events.
const ReservationQueue = "reservation.events"

// Event types published by the booking service.
const (
    EventRequested = "reservation.requested" // to the seller
    EventApproved  = "reservation.approved"  // to the buyer
    EventRejected  = "reservation.rejected"  // to the buyer
    EventSold      = "reservation.sold"      // to the buyer
)

// ReservationEvent is published after a reservation transaction commits.
// It carries enough data for the consumer to address and render an email
// without touching the reservations table.
type ReservationEvent struct {
    ID            string    `json:"id"`
    Type          string    `json:"type"`
    ReservationID uint64    `json:"reservation_id"`
    ListingID     uint64    `json:"listing_id"`
    ListingName   string    `json:"listing_name"`
    BuyerID       uint64    `json:"buyer_id"`
    SellerID      uint64    `json:"seller_id"`
    Status        string    `json:"status"`
    Reason        string    `json:"reason,omitempty"`
    OccurredAt    time.Time `json:"occurred_at"`
}

// RecipientID returns the user who should hear about the event.
func (e ReservationEvent) RecipientID() uint64 {
    if e.Type == EventRequested {
        return e.SellerID
    }
    return e.BuyerID
}
