package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/adeilh/unimart/market"
)

// UserRepository persists market.User profiles inside PostgreSQL.
type UserRepository struct {
	db *sql.DB
}

var _ market.UserRepository = (*UserRepository)(nil)

// NewUserRepository wraps an existing *sql.DB connection.
func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) FindByID(ctx context.Context, id string) (market.User, error) {
	const query = `SELECT id, name, email, university, avatar_url, bio, rating, rating_count, created_at, updated_at
                   FROM users WHERE id = $1`
	var u market.User
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&u.ID,
		&u.Name,
		&u.Email,
		&u.University,
		&u.AvatarURL,
		&u.Bio,
		&u.Rating,
		&u.RatingCount,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return market.User{}, market.ErrUserNotFound
		}
		return market.User{}, translateError(err, market.ErrUserNotFound)
	}
	u.CreatedAt = u.CreatedAt.UTC()
	u.UpdatedAt = u.UpdatedAt.UTC()
	return u, nil
}

// Upsert inserts u or replaces the editable fields of an existing profile.
// Rating columns are owned by the review flow and left untouched on update.
func (r *UserRepository) Upsert(ctx context.Context, u market.User) error {
	const query = `INSERT INTO users (id, name, email, university, avatar_url, bio, rating, rating_count, created_at, updated_at)
                   VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
                   ON CONFLICT (id) DO UPDATE SET
                       name = EXCLUDED.name,
                       email = EXCLUDED.email,
                       university = EXCLUDED.university,
                       avatar_url = EXCLUDED.avatar_url,
                       bio = EXCLUDED.bio,
                       updated_at = EXCLUDED.updated_at`
	_, err := r.db.ExecContext(ctx, query,
		u.ID, u.Name, u.Email, u.University, u.AvatarURL, u.Bio, u.Rating, u.RatingCount, u.CreatedAt, u.UpdatedAt)
	return translateError(err, market.ErrUserNotFound)
}
