package model

import "time"

// Review is a buyer's feedback on a listing they bought.  A buyer may
// review a listing once, and only after one of their reservations on it
// reached sold.
type Review struct {
    ID        uint64    // reviews.id
    ListingID uint64    // reviews.listing_id
    BuyerID   uint64    // reviews.buyer_id
    SellerID  uint64    // reviews.seller_id
    Rating    uint8     // reviews.rating, 1..5
    Feedback  string    // reviews.feedback
    CreatedAt time.Time // reviews.created_at
}
