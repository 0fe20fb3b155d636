package service

import (
	"fmt"
	"time"

	"github.com/iliyamo/campus-marketplace/internal/model"
)

// Error codes carried by the typed booking errors.  Handlers expose them to
// clients so each failure renders its own message.
const (
	CodeNotFound          = "not_found"
	CodeSelfBooking       = "self_booking"
	CodeAlreadySold       = "already_sold"
	CodeDuplicateBooking  = "duplicate_booking"
	CodeListingLocked     = "listing_temporarily_locked"
	CodeUnauthorized      = "unauthorized"
	CodeInvalidTransition = "invalid_state_transition"
)

// CodedError is implemented by every error the reservation manager returns
// for a rule violation.
type CodedError interface {
	error
	Code() string
}

// NotFoundError reports a missing listing or reservation.
type NotFoundError struct {
	Resource string // "listing" or "reservation"
	ID       uint64
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("%s %d not found", e.Resource, e.ID) }
func (e *NotFoundError) Code() string  { return CodeNotFound }

// SelfBookingError is returned when a seller tries to book their own listing.
type SelfBookingError struct {
	ListingID uint64
}

func (e *SelfBookingError) Error() string {
	return fmt.Sprintf("cannot book your own listing %d", e.ListingID)
}
func (e *SelfBookingError) Code() string { return CodeSelfBooking }

// AlreadySoldError is returned when the listing has been sold.
type AlreadySoldError struct {
	ListingID uint64
}

func (e *AlreadySoldError) Error() string {
	return fmt.Sprintf("listing %d is already sold", e.ListingID)
}
func (e *AlreadySoldError) Code() string { return CodeAlreadySold }

// DuplicateBookingError is returned when the buyer already holds a
// reservation on the listing that was not rejected.
type DuplicateBookingError struct {
	ListingID uint64
}

func (e *DuplicateBookingError) Error() string {
	return fmt.Sprintf("you have already booked listing %d", e.ListingID)
}
func (e *DuplicateBookingError) Code() string { return CodeDuplicateBooking }

// ListingTemporarilyLockedError is returned while another buyer's
// reservation is active.  RetryAfter is how long until a pending blocker
// expires; zero when the blocker is approved or unknown.
type ListingTemporarilyLockedError struct {
	ListingID  uint64
	RetryAfter time.Duration
}

func (e *ListingTemporarilyLockedError) Error() string {
	return fmt.Sprintf("listing %d is temporarily booked, try again later", e.ListingID)
}
func (e *ListingTemporarilyLockedError) Code() string { return CodeListingLocked }

// UnauthorizedError is returned when the acting user is not the seller of
// record on the reservation.
type UnauthorizedError struct {
	ReservationID uint64
	UserID        uint64
}

func (e *UnauthorizedError) Error() string {
	return fmt.Sprintf("user %d is not the seller of reservation %d", e.UserID, e.ReservationID)
}
func (e *UnauthorizedError) Code() string { return CodeUnauthorized }

// InvalidStateTransitionError is returned when the reservation's current
// status does not allow the requested move.  The stored status is left
// unchanged.
type InvalidStateTransitionError struct {
	ReservationID uint64
	From          model.ReservationStatus
	To            model.ReservationStatus
}

func (e *InvalidStateTransitionError) Error() string {
	return fmt.Sprintf("reservation %d is %s and cannot become %s", e.ReservationID, e.From, e.To)
}
func (e *InvalidStateTransitionError) Code() string { return CodeInvalidTransition }
