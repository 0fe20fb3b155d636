package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/campus-marketplace/internal/model"
)

// ReviewRepo stores buyer reviews.  The reviews table has a unique key on
// (listing_id, buyer_id).
type ReviewRepo struct{ db *sql.DB }

func NewReviewRepo(db *sql.DB) *ReviewRepo { return &ReviewRepo{db: db} }

// Create inserts rv and fills in its id and created_at.  A second review
// from the same buyer returns ErrReviewExists.
func (r *ReviewRepo) Create(ctx context.Context, rv *model.Review) error {
	now := time.Now().UTC()
	const q = `INSERT INTO reviews (listing_id, buyer_id, seller_id, rating, feedback, created_at) VALUES (?, ?, ?, ?, ?, ?)`
	res, err := r.db.ExecContext(ctx, q, rv.ListingID, rv.BuyerID, rv.SellerID, rv.Rating, rv.Feedback, now)
	if err != nil {
		if isDuplicateKey(err) {
			return ErrReviewExists
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	rv.ID = uint64(id)
	rv.CreatedAt = now
	return nil
}

// GetByListing returns the review left on a listing.  A listing is sold
// once, so it carries at most one review.  sql.ErrNoRows is returned when
// there is none.
func (r *ReviewRepo) GetByListing(ctx context.Context, listingID uint64) (model.Review, error) {
	const q = `SELECT id, listing_id, buyer_id, seller_id, rating, feedback, created_at
		FROM reviews WHERE listing_id = ? ORDER BY id LIMIT 1`
	var rv model.Review
	err := r.db.QueryRowContext(ctx, q, listingID).Scan(&rv.ID, &rv.ListingID, &rv.BuyerID, &rv.SellerID, &rv.Rating, &rv.Feedback, &rv.CreatedAt)
	return rv, err
}
