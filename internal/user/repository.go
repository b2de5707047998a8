package user

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolation = "23505"

const userColumns = `id, username, email, full_name, password_hash, avatar, cover_image,
		refresh_token, refresh_token_expires_at, created_at, updated_at`

// profileColumns never includes password_hash or refresh_token.
const profileColumns = `id, username, email, full_name, avatar, cover_image,
		COALESCE((
			SELECT json_agg(wh.video_id ORDER BY wh.position)
			FROM watch_history wh
			WHERE wh.user_id = users.id
		), '[]'::json),
		created_at, updated_at`

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (User, error) {
	var u User
	var refreshToken sql.NullString
	var refreshExpiresAt sql.NullTime
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.FullName, &u.PasswordHash, &u.Avatar, &u.CoverImage,
		&refreshToken, &refreshExpiresAt, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return User{}, err
	}
	u.RefreshToken = refreshToken.String
	if refreshExpiresAt.Valid {
		value := refreshExpiresAt.Time.UTC()
		u.RefreshTokenExpiresAt = &value
	}
	return u, nil
}

func scanProfile(row rowScanner) (Profile, error) {
	var p Profile
	var history []byte
	if err := row.Scan(&p.ID, &p.Username, &p.Email, &p.FullName, &p.Avatar, &p.CoverImage,
		&history, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return Profile{}, err
	}
	p.WatchHistory = []string{}
	if len(history) > 0 {
		if err := json.Unmarshal(history, &p.WatchHistory); err != nil {
			return Profile{}, fmt.Errorf("decode watch history: %w", err)
		}
	}
	return p, nil
}

// FindByLogin looks a user up by username or email; empty identifiers never match.
func (r *Repository) FindByLogin(ctx context.Context, username, email string) (User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE ($1 <> '' AND username = $1) OR ($2 <> '' AND email = $2)
		ORDER BY created_at ASC
		LIMIT 1
	`, username, email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, fmt.Errorf("query user by login: %w", err)
	}
	return u, nil
}

func (r *Repository) FindByID(ctx context.Context, id string) (User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, fmt.Errorf("query user by id: %w", err)
	}
	return u, nil
}

func (r *Repository) FindProfileByID(ctx context.Context, id string) (Profile, error) {
	p, err := scanProfile(r.db.QueryRowContext(ctx, `
		SELECT `+profileColumns+`
		FROM users
		WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Profile{}, ErrNotFound
		}
		return Profile{}, fmt.Errorf("query profile by id: %w", err)
	}
	return p, nil
}

func (r *Repository) ExistsByUsernameOrEmail(ctx context.Context, username, email string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM users WHERE username = $1 OR email = $2)
	`, username, email).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check existing user: %w", err)
	}
	return exists, nil
}

func (r *Repository) Create(ctx context.Context, input NewUser) (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate uuid v7: %w", err)
	}

	now := time.Now().UTC()
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO users (id, username, email, full_name, password_hash, avatar, cover_image, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
	`, id.String(), input.Username, input.Email, input.FullName, input.PasswordHash, input.Avatar, input.CoverImage, now)
	if err != nil {
		if isUniqueViolation(err) {
			return "", ErrDuplicate
		}
		return "", fmt.Errorf("insert user: %w", err)
	}

	return id.String(), nil
}

func (r *Repository) UpdateAccount(ctx context.Context, id string, input AccountUpdate) (Profile, error) {
	p, err := scanProfile(r.db.QueryRowContext(ctx, `
		UPDATE users
		SET username = $2, email = $3, full_name = $4, updated_at = $5
		WHERE id = $1
		RETURNING `+profileColumns+`
	`, id, input.Username, input.Email, input.FullName, time.Now().UTC()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Profile{}, ErrNotFound
		}
		if isUniqueViolation(err) {
			return Profile{}, ErrDuplicate
		}
		return Profile{}, fmt.Errorf("update account: %w", err)
	}
	return p, nil
}

func (r *Repository) UpdateAvatar(ctx context.Context, id, url string) (Profile, error) {
	return r.updateMedia(ctx, `
		UPDATE users
		SET avatar = $2, updated_at = $3
		WHERE id = $1
		RETURNING `+profileColumns, id, url)
}

func (r *Repository) UpdateCoverImage(ctx context.Context, id, url string) (Profile, error) {
	return r.updateMedia(ctx, `
		UPDATE users
		SET cover_image = $2, updated_at = $3
		WHERE id = $1
		RETURNING `+profileColumns, id, url)
}

func (r *Repository) updateMedia(ctx context.Context, query, id, url string) (Profile, error) {
	p, err := scanProfile(r.db.QueryRowContext(ctx, query, id, url, time.Now().UTC()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Profile{}, ErrNotFound
		}
		return Profile{}, fmt.Errorf("update media: %w", err)
	}
	return p, nil
}

func (r *Repository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	return r.execOne(ctx, "update password", `
		UPDATE users
		SET password_hash = $2, updated_at = $3
		WHERE id = $1
	`, id, passwordHash, time.Now().UTC())
}

// SetRefreshToken overwrites the stored session token; no other column is touched.
func (r *Repository) SetRefreshToken(ctx context.Context, id, token string, expiresAt time.Time) error {
	return r.execOne(ctx, "set refresh token", `
		UPDATE users
		SET refresh_token = $2, refresh_token_expires_at = $3
		WHERE id = $1
	`, id, token, expiresAt.UTC())
}

// RotateRefreshToken replaces oldToken with newToken only while oldToken is still
// the stored value. It reports false when another request rotated it first.
func (r *Repository) RotateRefreshToken(ctx context.Context, id, oldToken, newToken string, expiresAt time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET refresh_token = $3, refresh_token_expires_at = $4
		WHERE id = $1 AND refresh_token = $2
	`, id, oldToken, newToken, expiresAt.UTC())
	if err != nil {
		return false, fmt.Errorf("rotate refresh token: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rotate refresh token rows affected: %w", err)
	}
	return affected == 1, nil
}

func (r *Repository) ClearRefreshToken(ctx context.Context, id string) error {
	return r.execOne(ctx, "clear refresh token", `
		UPDATE users
		SET refresh_token = NULL, refresh_token_expires_at = NULL
		WHERE id = $1
	`, id)
}

// ClearExpiredRefreshTokens unsets at most batchSize refresh tokens that expired before now.
func (r *Repository) ClearExpiredRefreshTokens(ctx context.Context, now time.Time, batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = 500
	}

	res, err := r.db.ExecContext(ctx, `
		WITH stale AS (
			SELECT id
			FROM users
			WHERE refresh_token IS NOT NULL AND refresh_token_expires_at < $1
			ORDER BY refresh_token_expires_at ASC
			LIMIT $2
		)
		UPDATE users u
		SET refresh_token = NULL, refresh_token_expires_at = NULL
		FROM stale
		WHERE u.id = stale.id
	`, now.UTC(), batchSize)
	if err != nil {
		return 0, fmt.Errorf("clear expired refresh tokens: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("expired refresh tokens rows affected: %w", err)
	}
	return affected, nil
}

func (r *Repository) execOne(ctx context.Context, op, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", op, err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
