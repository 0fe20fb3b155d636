package handler

import (
    "context"
    "errors"
    "net/http"

    "github.com/labstack/echo/v4"
    "github.com/sirupsen/logrus"

    "github.com/iliyamo/campus-marketplace/internal/repository"
)

// FavoriteStore persists saved listings.
type FavoriteStore interface {
    Add(ctx context.Context, userID, listingID uint64) error
    Remove(ctx context.Context, userID, listingID uint64) (bool, error)
    ListByUser(ctx context.Context, userID uint64) ([]repository.FavoriteListing, error)
}

// FavoriteHandler manages a user's saved listings.
type FavoriteHandler struct {
    Listings  ListingReader
    Favorites FavoriteStore
    Log       *logrus.Logger
}

// NewFavoriteHandler constructs a handler and panics on nil dependencies.
func NewFavoriteHandler(listings ListingReader, favorites FavoriteStore, log *logrus.Logger) *FavoriteHandler {
    if listings == nil || favorites == nil || log == nil {
        panic("nil dependency passed to NewFavoriteHandler")
    }
    return &FavoriteHandler{Listings: listings, Favorites: favorites, Log: log}
}

// Add handles POST /v1/listings/:id/favorite.  Repeating it is harmless.
func (h *FavoriteHandler) Add(c echo.Context) error {
    userID, err := getUserID(c)
    if err != nil {
        return unauthorized(c)
    }
    listingID, ok := parseIDParam(c, "id")
    if !ok {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid listing id"})
    }
    ctx := c.Request().Context()
    if _, err := h.Listings.GetByID(ctx, listingID); err != nil {
        if errors.Is(err, repository.ErrListingNotFound) {
            return c.JSON(http.StatusNotFound, echo.Map{"error": "listing not found", "code": "not_found", "listing_id": listingID})
        }
        return serverError(c, h.Log, err, "database error")
    }
    if err := h.Favorites.Add(ctx, userID, listingID); err != nil {
        return serverError(c, h.Log, err, "failed to save favorite")
    }
    return c.JSON(http.StatusOK, echo.Map{"listing_id": listingID, "favorited": true})
}

// Remove handles DELETE /v1/listings/:id/favorite.
func (h *FavoriteHandler) Remove(c echo.Context) error {
    userID, err := getUserID(c)
    if err != nil {
        return unauthorized(c)
    }
    listingID, ok := parseIDParam(c, "id")
    if !ok {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid listing id"})
    }
    removed, err := h.Favorites.Remove(c.Request().Context(), userID, listingID)
    if err != nil {
        return serverError(c, h.Log, err, "failed to remove favorite")
    }
    if !removed {
        return c.JSON(http.StatusNotFound, echo.Map{"error": "favorite not found", "code": "not_found", "listing_id": listingID})
    }
    return c.NoContent(http.StatusNoContent)
}

// List handles GET /v1/favorites.
func (h *FavoriteHandler) List(c echo.Context) error {
    userID, err := getUserID(c)
    if err != nil {
        return unauthorized(c)
    }
    items, err := h.Favorites.ListByUser(c.Request().Context(), userID)
    if err != nil {
        return serverError(c, h.Log, err, "failed to load favorites")
    }
    return c.JSON(http.StatusOK, echo.Map{"favorites": items})
}
