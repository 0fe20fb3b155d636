package handler

import (
    "context"
    "net/http"
    "time"

    "github.com/labstack/echo/v4"
    "github.com/sirupsen/logrus"

    "github.com/iliyamo/campus-marketplace/internal/model"
    "github.com/iliyamo/campus-marketplace/internal/repository"
    "github.com/iliyamo/campus-marketplace/internal/service"
)

// BookingManager is the part of service.ReservationManager the HTTP layer
// drives.
type BookingManager interface {
    CreateReservation(ctx context.Context, listingID, buyerID uint64) (model.Reservation, error)
    Decide(ctx context.Context, reservationID, sellerID uint64, decision service.Decision, reason string) (model.Reservation, error)
    MarkSold(ctx context.Context, reservationID, sellerID uint64) (model.Reservation, error)
    Now() time.Time
    Window() time.Duration
}

// ReservationLister reads reservation dashboards.
type ReservationLister interface {
    ListByBuyer(ctx context.Context, buyerID uint64, activeCutoff time.Time) ([]repository.ReservationView, error)
    ListBySeller(ctx context.Context, sellerID uint64, activeCutoff time.Time) ([]repository.ReservationView, error)
}

// ReservationHandler serves the booking endpoints.  All methods assume
// JWTAuth has already run.
type ReservationHandler struct {
    Manager      BookingManager
    Reservations ReservationLister
    Log          *logrus.Logger
}

// NewReservationHandler constructs a handler and panics on nil dependencies.
func NewReservationHandler(manager BookingManager, reservations ReservationLister, log *logrus.Logger) *ReservationHandler {
    if manager == nil || reservations == nil || log == nil {
        panic("nil dependency passed to NewReservationHandler")
    }
    return &ReservationHandler{Manager: manager, Reservations: reservations, Log: log}
}

type reservationResponse struct {
    ID        uint64    `json:"id"`
    ListingID uint64    `json:"listing_id"`
    BuyerID   uint64    `json:"buyer_id"`
    SellerID  uint64    `json:"seller_id"`
    Status    string    `json:"status"`
    CreatedAt time.Time `json:"created_at"`
    UpdatedAt time.Time `json:"updated_at"`
}

func toReservationResponse(r model.Reservation) reservationResponse {
    return reservationResponse{
        ID:        r.ID,
        ListingID: r.ListingID,
        BuyerID:   r.BuyerID,
        SellerID:  r.SellerID,
        Status:    r.Status.String(),
        CreatedAt: r.CreatedAt,
        UpdatedAt: r.UpdatedAt,
    }
}

type rejectRequest struct {
    Reason string `json:"reason" validate:"max=500"`
}

// Create handles POST /v1/bookings/:listingId.  It returns 201 with the
// pending reservation.
func (h *ReservationHandler) Create(c echo.Context) error {
    userID, err := getUserID(c)
    if err != nil {
        return unauthorized(c)
    }
    listingID, ok := parseIDParam(c, "listingId")
    if !ok {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid listing id"})
    }
    res, err := h.Manager.CreateReservation(c.Request().Context(), listingID, userID)
    if err != nil {
        return writeBookingError(c, h.Log, err)
    }
    return c.JSON(http.StatusCreated, toReservationResponse(res))
}

// Approve handles POST /v1/bookings/:id/approve.
func (h *ReservationHandler) Approve(c echo.Context) error {
    return h.decide(c, service.DecisionApprove, "")
}

// Reject handles POST /v1/bookings/:id/reject.  An optional JSON body
// {"reason": "..."} is passed on to the buyer.
func (h *ReservationHandler) Reject(c echo.Context) error {
    var body rejectRequest
    if c.Request().ContentLength != 0 {
        if err := c.Bind(&body); err != nil {
            return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
        }
        if err := c.Validate(&body); err != nil {
            return c.JSON(http.StatusBadRequest, echo.Map{"error": validationMessage(err)})
        }
    }
    return h.decide(c, service.DecisionReject, body.Reason)
}

func (h *ReservationHandler) decide(c echo.Context, decision service.Decision, reason string) error {
    userID, err := getUserID(c)
    if err != nil {
        return unauthorized(c)
    }
    id, ok := parseIDParam(c, "id")
    if !ok {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid reservation id"})
    }
    res, err := h.Manager.Decide(c.Request().Context(), id, userID, decision, reason)
    if err != nil {
        return writeBookingError(c, h.Log, err)
    }
    return c.JSON(http.StatusOK, toReservationResponse(res))
}

// MarkSold handles POST /v1/bookings/:id/sold.
func (h *ReservationHandler) MarkSold(c echo.Context) error {
    userID, err := getUserID(c)
    if err != nil {
        return unauthorized(c)
    }
    id, ok := parseIDParam(c, "id")
    if !ok {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid reservation id"})
    }
    res, err := h.Manager.MarkSold(c.Request().Context(), id, userID)
    if err != nil {
        return writeBookingError(c, h.Log, err)
    }
    return c.JSON(http.StatusOK, toReservationResponse(res))
}

// Mine handles GET /v1/bookings/mine: the caller's reservations as buyer.
func (h *ReservationHandler) Mine(c echo.Context) error {
    userID, err := getUserID(c)
    if err != nil {
        return unauthorized(c)
    }
    items, err := h.Reservations.ListByBuyer(c.Request().Context(), userID, h.activeCutoff())
    if err != nil {
        return serverError(c, h.Log, err, "failed to load reservations")
    }
    return c.JSON(http.StatusOK, echo.Map{"reservations": items})
}

// Selling handles GET /v1/bookings/selling: reservations on the caller's
// listings.
func (h *ReservationHandler) Selling(c echo.Context) error {
    userID, err := getUserID(c)
    if err != nil {
        return unauthorized(c)
    }
    items, err := h.Reservations.ListBySeller(c.Request().Context(), userID, h.activeCutoff())
    if err != nil {
        return serverError(c, h.Log, err, "failed to load reservations")
    }
    return c.JSON(http.StatusOK, echo.Map{"reservations": items})
}

// Notifications handles GET /v1/notifications.  It returns the caller's
// reservations split by role, newest first, with expired pending rows
// left out.
func (h *ReservationHandler) Notifications(c echo.Context) error {
    userID, err := getUserID(c)
    if err != nil {
        return unauthorized(c)
    }
    ctx := c.Request().Context()
    cutoff := h.activeCutoff()
    buyer, err := h.Reservations.ListByBuyer(ctx, userID, cutoff)
    if err != nil {
        return serverError(c, h.Log, err, "failed to load notifications")
    }
    seller, err := h.Reservations.ListBySeller(ctx, userID, cutoff)
    if err != nil {
        return serverError(c, h.Log, err, "failed to load notifications")
    }
    return c.JSON(http.StatusOK, echo.Map{"buyer": buyer, "seller": seller})
}

func (h *ReservationHandler) activeCutoff() time.Time {
    return model.ExpiryCutoff(h.Manager.Now(), h.Manager.Window())
}
