package handler // handler defines http handlers

import (
    "errors"   // errors provides sentinel values used in getUserID
    "math"     // math rounds Retry-After up to whole seconds
    "net/http" // net/http provides status codes
    "strconv"  // strconv converts strings to numeric types

    "github.com/labstack/echo/v4" // echo defines request context types
    "github.com/sirupsen/logrus"  // logrus records unexpected failures

    "github.com/iliyamo/campus-marketplace/internal/service" // service defines the typed booking errors
)

// getUserID extracts the user_id from echo.Context and converts it to uint64
func getUserID(c echo.Context) (uint64, error) { // begin getUserID helper
    v := c.Get("user_id") // fetch user_id from context
    switch t := v.(type) { // perform type switch on the value
    case uint64: // when already uint64
        return t, nil // return directly
    case int: // when stored as int
        return uint64(t), nil // convert to uint64
    case int64: // when stored as int64
        return uint64(t), nil // convert to uint64
    case float64: // when stored as float64
        return uint64(t), nil // convert to uint64
    case string: // when stored as string
        if n, err := strconv.ParseUint(t, 10, 64); err == nil { // parse string to uint64
            return n, nil // return parsed number
        }
    } // end type switch
    return 0, errors.New("invalid user_id in context") // return error if value is missing or invalid
}

// parseIDParam reads a positive numeric path parameter.
func parseIDParam(c echo.Context, name string) (uint64, bool) {
    id, err := strconv.ParseUint(c.Param(name), 10, 64)
    if err != nil || id == 0 {
        return 0, false
    }
    return id, true
}

// unauthorized is returned when JWTAuth did not leave a usable user id.
func unauthorized(c echo.Context) error {
    return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
}

// writeBookingError renders an error from the reservation manager.  Each
// typed error gets its own status, code and context fields; anything else
// is a 500 without internals.
func writeBookingError(c echo.Context, log *logrus.Logger, err error) error {
    var (
        notFound   *service.NotFoundError
        self       *service.SelfBookingError
        sold       *service.AlreadySoldError
        dup        *service.DuplicateBookingError
        locked     *service.ListingTemporarilyLockedError
        forbidden  *service.UnauthorizedError
        transition *service.InvalidStateTransitionError
    )
    switch {
    case errors.As(err, &notFound):
        body := echo.Map{"error": notFound.Error(), "code": notFound.Code()}
        body[notFound.Resource+"_id"] = notFound.ID
        return c.JSON(http.StatusNotFound, body)
    case errors.As(err, &self):
        return c.JSON(http.StatusForbidden, echo.Map{
            "error": "you cannot book your own listing", "code": self.Code(), "listing_id": self.ListingID,
        })
    case errors.As(err, &sold):
        return c.JSON(http.StatusConflict, echo.Map{
            "error": "this listing has already been sold", "code": sold.Code(), "listing_id": sold.ListingID,
        })
    case errors.As(err, &dup):
        return c.JSON(http.StatusConflict, echo.Map{
            "error": "you already have a booking for this listing", "code": dup.Code(), "listing_id": dup.ListingID,
        })
    case errors.As(err, &locked):
        body := echo.Map{
            "error": "this listing is reserved by another buyer, try again later", "code": locked.Code(), "listing_id": locked.ListingID,
        }
        if locked.RetryAfter > 0 {
            secs := int64(math.Ceil(locked.RetryAfter.Seconds()))
            c.Response().Header().Set("Retry-After", strconv.FormatInt(secs, 10))
            body["retry_after"] = secs
        }
        return c.JSON(http.StatusLocked, body)
    case errors.As(err, &forbidden):
        return c.JSON(http.StatusForbidden, echo.Map{
            "error": "only the seller can manage this reservation", "code": forbidden.Code(), "reservation_id": forbidden.ReservationID,
        })
    case errors.As(err, &transition):
        return c.JSON(http.StatusConflict, echo.Map{
            "error":          transition.Error(),
            "code":           transition.Code(),
            "reservation_id": transition.ReservationID,
            "status":         transition.From,
        })
    }
    return serverError(c, log, err, "internal error")
}

// serverError logs err against the request and answers 500 with msg.  The
// client never sees err itself.
func serverError(c echo.Context, log *logrus.Logger, err error, msg string) error {
    log.WithError(err).WithFields(logrus.Fields{
        "method":     c.Request().Method,
        "route":      c.Path(),
        "request_id": c.Response().Header().Get(echo.HeaderXRequestID),
    }).Error(msg)
    return c.JSON(http.StatusInternalServerError, echo.Map{"error": msg})
}
