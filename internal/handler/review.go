package handler

import (
    "context"
    "database/sql"
    "errors"
    "net/http"
    "strings"
    "time"

    "github.com/labstack/echo/v4"
    "github.com/sirupsen/logrus"

    "github.com/iliyamo/campus-marketplace/internal/model"
    "github.com/iliyamo/campus-marketplace/internal/repository"
)

// ReviewStore persists reviews.
type ReviewStore interface {
    Create(ctx context.Context, rv *model.Review) error
    GetByListing(ctx context.Context, listingID uint64) (model.Review, error)
}

// PurchaseChecker reports whether a buyer completed a purchase.
type PurchaseChecker interface {
    HasSoldForBuyer(ctx context.Context, listingID, buyerID uint64) (bool, error)
}

// ListingReader loads a single listing.
type ListingReader interface {
    GetByID(ctx context.Context, id uint64) (model.Listing, error)
}

// ReviewHandler lets buyers review listings they bought.
type ReviewHandler struct {
    Listings  ListingReader
    Purchases PurchaseChecker
    Reviews   ReviewStore
    Log       *logrus.Logger
}

// NewReviewHandler constructs a handler and panics on nil dependencies.
func NewReviewHandler(listings ListingReader, purchases PurchaseChecker, reviews ReviewStore, log *logrus.Logger) *ReviewHandler {
    if listings == nil || purchases == nil || reviews == nil || log == nil {
        panic("nil dependency passed to NewReviewHandler")
    }
    return &ReviewHandler{Listings: listings, Purchases: purchases, Reviews: reviews, Log: log}
}

type createReviewRequest struct {
    Rating   uint8  `json:"rating" validate:"required,min=1,max=5"`
    Feedback string `json:"feedback" validate:"required,max=2000"`
}

type reviewResponse struct {
    ID        uint64    `json:"id"`
    ListingID uint64    `json:"listing_id"`
    BuyerID   uint64    `json:"buyer_id"`
    SellerID  uint64    `json:"seller_id"`
    Rating    uint8     `json:"rating"`
    Feedback  string    `json:"feedback"`
    CreatedAt time.Time `json:"created_at"`
}

func toReviewResponse(rv model.Review) reviewResponse {
    return reviewResponse{
        ID:        rv.ID,
        ListingID: rv.ListingID,
        BuyerID:   rv.BuyerID,
        SellerID:  rv.SellerID,
        Rating:    rv.Rating,
        Feedback:  rv.Feedback,
        CreatedAt: rv.CreatedAt,
    }
}

// Create handles POST /v1/listings/:id/reviews.  Only a buyer whose
// reservation on the listing reached sold may review it, once.
func (h *ReviewHandler) Create(c echo.Context) error {
    userID, err := getUserID(c)
    if err != nil {
        return unauthorized(c)
    }
    listingID, ok := parseIDParam(c, "id")
    if !ok {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid listing id"})
    }
    var req createReviewRequest
    if err := c.Bind(&req); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
    }
    req.Feedback = strings.TrimSpace(req.Feedback)
    if err := c.Validate(&req); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": validationMessage(err)})
    }

    ctx := c.Request().Context()
    listing, err := h.Listings.GetByID(ctx, listingID)
    if errors.Is(err, repository.ErrListingNotFound) {
        return c.JSON(http.StatusNotFound, echo.Map{"error": "listing not found", "code": "not_found", "listing_id": listingID})
    }
    if err != nil {
        return serverError(c, h.Log, err, "database error")
    }
    bought, err := h.Purchases.HasSoldForBuyer(ctx, listingID, userID)
    if err != nil {
        return serverError(c, h.Log, err, "database error")
    }
    if !bought {
        return c.JSON(http.StatusForbidden, echo.Map{
            "error": "you can only review items you bought", "code": "review_not_allowed", "listing_id": listingID,
        })
    }

    rv := model.Review{
        ListingID: listingID,
        BuyerID:   userID,
        SellerID:  listing.OwnerID,
        Rating:    req.Rating,
        Feedback:  req.Feedback,
    }
    if err := h.Reviews.Create(ctx, &rv); err != nil {
        if errors.Is(err, repository.ErrReviewExists) {
            return c.JSON(http.StatusConflict, echo.Map{
                "error": "you already reviewed this listing", "code": "review_exists", "listing_id": listingID,
            })
        }
        return serverError(c, h.Log, err, "failed to save review")
    }
    return c.JSON(http.StatusCreated, toReviewResponse(rv))
}

// Get handles GET /v1/listings/:id/review.  The review is visible to the
// buyer who wrote it and the seller it is about.
func (h *ReviewHandler) Get(c echo.Context) error {
    userID, err := getUserID(c)
    if err != nil {
        return unauthorized(c)
    }
    listingID, ok := parseIDParam(c, "id")
    if !ok {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid listing id"})
    }
    rv, err := h.Reviews.GetByListing(c.Request().Context(), listingID)
    if errors.Is(err, sql.ErrNoRows) {
        return c.JSON(http.StatusNotFound, echo.Map{"error": "review not found", "code": "not_found", "listing_id": listingID})
    }
    if err != nil {
        return serverError(c, h.Log, err, "database error")
    }
    if rv.BuyerID != userID && rv.SellerID != userID {
        return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
    }
    return c.JSON(http.StatusOK, toReviewResponse(rv))
}
