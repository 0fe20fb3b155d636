package model

import "time"

// Listing availability values stored in listings.status.
const (
    ListingAvailable = "available"
    ListingSold      = "sold"
)

// Listing is an item offered for sale by a user.  The booking flow only
// reads its owner and status and flips status to sold on finalization.
//
// Fields:
//  ID          – primary key identifier.
//  OwnerID     – user who listed the item (the seller).
//  Name        – display title.
//  PriceCents  – asking price in cents.
//  Description – optional free text.
//  Category    – category label.
//  Status      – available or sold.
//  CreatedAt   – creation timestamp.
//  UpdatedAt   – last update timestamp.
type Listing struct {
    ID          uint64    // listings.id
    OwnerID     uint64    // listings.owner_id
    Name        string    // listings.name
    PriceCents  uint32    // listings.price_cents
    Description string    // listings.description
    Category    string    // listings.category
    Status      string    // listings.status
    CreatedAt   time.Time // listings.created_at
    UpdatedAt   time.Time // listings.updated_at
}

// IsSold reports whether the listing has been finalized.
func (l Listing) IsSold() bool { return l.Status == ListingSold }
