package handler

import (
    "context"
    "errors"
    "net/http"
    "strings"
    "time"

    "github.com/labstack/echo/v4"
    "github.com/sirupsen/logrus"

    "github.com/iliyamo/campus-marketplace/internal/model"
    "github.com/iliyamo/campus-marketplace/internal/repository"
)

// ListingStore persists listings.
type ListingStore interface {
    Create(ctx context.Context, l *model.Listing) error
    GetByID(ctx context.Context, id uint64) (model.Listing, error)
}

// ListingHandler serves the minimal listing endpoints the booking flow
// needs: create one and read one.
type ListingHandler struct {
    Listings ListingStore
    Log      *logrus.Logger
}

// NewListingHandler constructs a handler and panics on nil dependencies.
func NewListingHandler(listings ListingStore, log *logrus.Logger) *ListingHandler {
    if listings == nil || log == nil {
        panic("nil dependency passed to NewListingHandler")
    }
    return &ListingHandler{Listings: listings, Log: log}
}

type createListingRequest struct {
    Name        string `json:"name" validate:"required,max=200"`
    PriceCents  uint32 `json:"price_cents" validate:"max=100000000"`
    Description string `json:"description" validate:"max=2000"`
    Category    string `json:"category" validate:"required,max=64"`
}

type listingResponse struct {
    ID          uint64    `json:"id"`
    OwnerID     uint64    `json:"owner_id"`
    Name        string    `json:"name"`
    PriceCents  uint32    `json:"price_cents"`
    Description string    `json:"description,omitempty"`
    Category    string    `json:"category"`
    Status      string    `json:"status"`
    CreatedAt   time.Time `json:"created_at"`
    UpdatedAt   time.Time `json:"updated_at"`
}

func toListingResponse(l model.Listing) listingResponse {
    return listingResponse{
        ID:          l.ID,
        OwnerID:     l.OwnerID,
        Name:        l.Name,
        PriceCents:  l.PriceCents,
        Description: l.Description,
        Category:    l.Category,
        Status:      l.Status,
        CreatedAt:   l.CreatedAt,
        UpdatedAt:   l.UpdatedAt,
    }
}

// Create handles POST /v1/listings.  The caller becomes the owner and the
// listing starts out available.
func (h *ListingHandler) Create(c echo.Context) error {
    userID, err := getUserID(c)
    if err != nil {
        return unauthorized(c)
    }
    var req createListingRequest
    if err := c.Bind(&req); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
    }
    req.Name = strings.TrimSpace(req.Name)
    req.Category = strings.ToLower(strings.TrimSpace(req.Category))
    if err := c.Validate(&req); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": validationMessage(err)})
    }
    l := model.Listing{
        OwnerID:     userID,
        Name:        req.Name,
        PriceCents:  req.PriceCents,
        Description: strings.TrimSpace(req.Description),
        Category:    req.Category,
    }
    if err := h.Listings.Create(c.Request().Context(), &l); err != nil {
        if errors.Is(err, repository.ErrUnknownUser) {
            return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found", "code": "not_found", "user_id": userID})
        }
        return serverError(c, h.Log, err, "failed to create listing")
    }
    return c.JSON(http.StatusCreated, toListingResponse(l))
}

// Get handles GET /v1/listings/:id.  It is public.
func (h *ListingHandler) Get(c echo.Context) error {
    id, ok := parseIDParam(c, "id")
    if !ok {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid listing id"})
    }
    l, err := h.Listings.GetByID(c.Request().Context(), id)
    if errors.Is(err, repository.ErrListingNotFound) {
        return c.JSON(http.StatusNotFound, echo.Map{"error": "listing not found", "code": "not_found", "listing_id": id})
    }
    if err != nil {
        return serverError(c, h.Log, err, "database error")
    }
    return c.JSON(http.StatusOK, toListingResponse(l))
}
