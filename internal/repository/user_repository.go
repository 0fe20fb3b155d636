package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/campus-marketplace/internal/model"
)

// UserRepo reads the users table.  Accounts are created by the identity
// service; this service only looks up contact details.
type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

// GetByID fetches a user.  sql.ErrNoRows is returned when the id is unknown.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (model.User, error) {
	var u model.User
	err := r.DB.QueryRowContext(ctx,
		"SELECT id,email,name,role,created_at FROM users WHERE id=? LIMIT 1",
		id).Scan(&u.ID, &u.Email, &u.Name, &u.Role, &u.CreatedAt)
	return u, err
}
