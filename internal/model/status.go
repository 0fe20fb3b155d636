package model

import "fmt"

// ReservationStatus is the lifecycle state of a reservation.
type ReservationStatus string

const (
    StatusPending  ReservationStatus = "pending"
    StatusApproved ReservationStatus = "approved"
    StatusRejected ReservationStatus = "rejected"
    StatusSold     ReservationStatus = "sold"

    // StatusExpired is never stored.  It is reported for pending rows that
    // have outlived the reservation window but were not swept yet.
    StatusExpired ReservationStatus = "expired"
)

var validTransitions = map[ReservationStatus][]ReservationStatus{
    StatusPending:  {StatusApproved, StatusRejected},
    StatusApproved: {StatusSold},
    StatusRejected: {},
    StatusSold:     {},
    StatusExpired:  {},
}

// IsValid reports whether s is a known status, including the derived expired state.
func (s ReservationStatus) IsValid() bool {
    _, ok := validTransitions[s]
    return ok
}

// CanTransitionTo reports whether moving from s to target is allowed.
func (s ReservationStatus) CanTransitionTo(target ReservationStatus) bool {
    for _, t := range validTransitions[s] {
        if t == target {
            return true
        }
    }
    return false
}

// IsTerminal reports whether no further transitions are possible from s.
func (s ReservationStatus) IsTerminal() bool { return len(validTransitions[s]) == 0 }

func (s ReservationStatus) String() string { return string(s) }

// Transition returns target when the move from s is allowed.  It is the
// only place the reservation state machine is decided.
func (s ReservationStatus) Transition(target ReservationStatus) (ReservationStatus, error) {
    if !s.CanTransitionTo(target) {
        return s, fmt.Errorf("reservation status %s cannot become %s", s, target)
    }
    return target, nil
}

// ParseReservationStatus converts a stored value into a ReservationStatus.
// The derived expired state is rejected because it never reaches storage.
func ParseReservationStatus(v string) (ReservationStatus, error) {
    s := ReservationStatus(v)
    if !s.IsValid() || s == StatusExpired {
        return "", fmt.Errorf("invalid reservation status: %q", v)
    }
    return s, nil
}
