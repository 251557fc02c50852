package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/AnshRaj112/serenify-auth/internal/models"
)

const uniqueViolation = "23505"

const userColumns = `id, created_at, updated_at, deleted_at, email, password_hash,
	email_verified, is_oauth_user, google_id, refresh_tokens`

const profileColumns = `id, user_id, created_at, updated_at, first_name, last_name, avatar_url,
	bio, phone, date_of_birth, gender, address, city, state, country, postal_code, is_public`

type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*models.User, error) {
	u := &models.User{}
	var passwordHash, googleID sql.NullString
	var deletedAt sql.NullTime
	var refresh []string
	err := row.Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt, &deletedAt, &u.Email, &passwordHash,
		&u.EmailVerified, &u.IsOAuthUser, &googleID, pq.Array(&refresh))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	if passwordHash.Valid {
		u.PasswordHash = &passwordHash.String
	}
	if googleID.Valid {
		u.GoogleID = &googleID.String
	}
	if deletedAt.Valid {
		u.DeletedAt = &deletedAt.Time
	}
	u.RefreshTokens = refresh
	return u, nil
}

func scanProfile(row rowScanner) (*models.Profile, error) {
	p := &models.Profile{}
	var dob sql.NullTime
	err := row.Scan(&p.ID, &p.UserID, &p.CreatedAt, &p.UpdatedAt, &p.FirstName, &p.LastName, &p.AvatarURL,
		&p.Bio, &p.Phone, &dob, &p.Gender, &p.Address, &p.City, &p.State, &p.Country, &p.PostalCode, &p.IsPublic)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	if dob.Valid {
		p.DateOfBirth = &dob.Time
	}
	return p, nil
}

// mapWriteError turns a unique-constraint violation into ErrConflict.
func mapWriteError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return ErrConflict
	}
	return fmt.Errorf("db error: %w", err)
}

func (s *Postgres) FindActiveUserByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users
		WHERE LOWER(email) = LOWER($1) AND deleted_at IS NULL`
	return scanUser(s.db.QueryRowContext(ctx, query, strings.TrimSpace(email)))
}

func (s *Postgres) FindActiveUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users
		WHERE id = $1 AND deleted_at IS NULL`
	return scanUser(s.db.QueryRowContext(ctx, query, id))
}

func (s *Postgres) FindActiveUserByProviderID(ctx context.Context, providerID string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users
		WHERE google_id = $1 AND deleted_at IS NULL`
	return scanUser(s.db.QueryRowContext(ctx, query, providerID))
}

func (s *Postgres) CreateUserWithProfile(ctx context.Context, user *models.User, profile *models.Profile) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	user.CreatedAt, user.UpdatedAt = now, now
	if user.RefreshTokens == nil {
		user.RefreshTokens = []string{}
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO users (id, created_at, updated_at, email, password_hash, email_verified, is_oauth_user, google_id, refresh_tokens)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, user.ID, now, now, user.Email, user.PasswordHash, user.EmailVerified, user.IsOAuthUser, user.GoogleID, pq.Array(user.RefreshTokens))
	if err != nil {
		return mapWriteError(err)
	}

	if err := insertProfile(ctx, tx, profile, user.ID, now); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertProfile(ctx context.Context, db execer, p *models.Profile, userID uuid.UUID, now time.Time) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	p.UserID = userID
	p.CreatedAt, p.UpdatedAt = now, now
	_, err := db.ExecContext(ctx, `
		INSERT INTO profiles (id, user_id, created_at, updated_at, first_name, last_name, avatar_url,
			bio, phone, date_of_birth, gender, address, city, state, country, postal_code, is_public)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`, p.ID, p.UserID, now, now, p.FirstName, p.LastName, p.AvatarURL,
		p.Bio, p.Phone, p.DateOfBirth, p.Gender, p.Address, p.City, p.State, p.Country, p.PostalCode, p.IsPublic)
	if err != nil {
		return mapWriteError(err)
	}
	return nil
}

func (s *Postgres) UpdateUser(ctx context.Context, id uuid.UUID, patch models.UserPatch) (*models.User, error) {
	query := `UPDATE users SET
			password_hash = COALESCE($2, password_hash),
			email_verified = COALESCE($3, email_verified),
			is_oauth_user = COALESCE($4, is_oauth_user),
			google_id = COALESCE($5, google_id),
			updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
		RETURNING ` + userColumns
	row := s.db.QueryRowContext(ctx, query, id, patch.PasswordHash, patch.EmailVerified, patch.IsOAuthUser, patch.GoogleID)
	u, err := scanUser(row)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return nil, ErrConflict
		}
		return nil, err
	}
	return u, nil
}

func (s *Postgres) SoftDeleteUser(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET deleted_at = NOW(), updated_at = NOW(), refresh_tokens = '{}'
		WHERE id = $1 AND deleted_at IS NULL
	`, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return requireOneRow(res)
}

func (s *Postgres) InsertProfile(ctx context.Context, profile *models.Profile) error {
	return insertProfile(ctx, s.db, profile, profile.UserID, time.Now().UTC())
}

func (s *Postgres) FindProfileByUserID(ctx context.Context, userID uuid.UUID) (*models.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles WHERE user_id = $1`
	return scanProfile(s.db.QueryRowContext(ctx, query, userID))
}

func (s *Postgres) UpdateProfile(ctx context.Context, userID uuid.UUID, patch models.ProfilePatch) (*models.Profile, error) {
	query := `UPDATE profiles SET
			first_name = COALESCE($2, first_name),
			last_name = COALESCE($3, last_name),
			avatar_url = COALESCE($4, avatar_url),
			bio = COALESCE($5, bio),
			phone = COALESCE($6, phone),
			date_of_birth = COALESCE($7, date_of_birth),
			gender = COALESCE($8, gender),
			address = COALESCE($9, address),
			city = COALESCE($10, city),
			state = COALESCE($11, state),
			country = COALESCE($12, country),
			postal_code = COALESCE($13, postal_code),
			is_public = COALESCE($14, is_public),
			updated_at = NOW()
		WHERE user_id = $1
		RETURNING ` + profileColumns
	row := s.db.QueryRowContext(ctx, query, userID, patch.FirstName, patch.LastName, patch.AvatarURL,
		patch.Bio, patch.Phone, patch.DateOfBirth, patch.Gender, patch.Address, patch.City, patch.State,
		patch.Country, patch.PostalCode, patch.IsPublic)
	return scanProfile(row)
}

func (s *Postgres) InsertVerificationToken(ctx context.Context, t *models.EmailVerificationToken) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO email_verifications (id, user_id, token, expires_at) VALUES ($1, $2, $3, $4)
	`, t.ID, t.UserID, t.Token, t.ExpiresAt)
	if err != nil {
		return mapWriteError(err)
	}
	return nil
}

func (s *Postgres) FindVerificationToken(ctx context.Context, token string) (*models.EmailVerificationToken, error) {
	t := &models.EmailVerificationToken{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, token, expires_at, created_at FROM email_verifications WHERE token = $1
	`, token).Scan(&t.ID, &t.UserID, &t.Token, &t.ExpiresAt, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return t, nil
}

func (s *Postgres) DeleteVerificationToken(ctx context.Context, id uuid.UUID) (bool, error) {
	return s.deleteByID(ctx, `DELETE FROM email_verifications WHERE id = $1`, id)
}

func (s *Postgres) DeleteExpiredVerificationTokens(ctx context.Context, now time.Time) (int64, error) {
	return s.deleteExpired(ctx, `DELETE FROM email_verifications WHERE expires_at < $1`, now)
}

func (s *Postgres) InsertPasswordResetToken(ctx context.Context, t *models.PasswordResetToken) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO password_resets (id, user_id, token, expires_at) VALUES ($1, $2, $3, $4)
	`, t.ID, t.UserID, t.Token, t.ExpiresAt)
	if err != nil {
		return mapWriteError(err)
	}
	return nil
}

func (s *Postgres) FindPasswordResetToken(ctx context.Context, token string) (*models.PasswordResetToken, error) {
	t := &models.PasswordResetToken{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, token, expires_at, created_at FROM password_resets WHERE token = $1
	`, token).Scan(&t.ID, &t.UserID, &t.Token, &t.ExpiresAt, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return t, nil
}

func (s *Postgres) DeletePasswordResetToken(ctx context.Context, id uuid.UUID) (bool, error) {
	return s.deleteByID(ctx, `DELETE FROM password_resets WHERE id = $1`, id)
}

func (s *Postgres) DeleteExpiredPasswordResetTokens(ctx context.Context, now time.Time) (int64, error) {
	return s.deleteExpired(ctx, `DELETE FROM password_resets WHERE expires_at < $1`, now)
}

// AddRefreshToken appends tokenID and trims the array to the newest keep ids
// in one statement so concurrent sign-ins cannot lose each other's ids.
func (s *Postgres) AddRefreshToken(ctx context.Context, userID uuid.UUID, tokenID string, keep int) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET refresh_tokens = ARRAY(
			SELECT t FROM unnest(array_append(refresh_tokens, $2::text)) WITH ORDINALITY AS r(t, ord)
			ORDER BY ord DESC LIMIT $3
		)
		WHERE id = $1 AND deleted_at IS NULL
	`, userID, tokenID, keep)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return requireOneRow(res)
}

func (s *Postgres) RemoveRefreshToken(ctx context.Context, userID uuid.UUID, tokenID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET refresh_tokens = array_remove(refresh_tokens, $2::text)
		WHERE id = $1 AND $2::text = ANY(refresh_tokens)
	`, userID, tokenID)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return n > 0, nil
}

func (s *Postgres) HasRefreshToken(ctx context.Context, userID uuid.UUID, tokenID string) (bool, error) {
	var ok bool
	err := s.db.QueryRowContext(ctx, `
		SELECT $2::text = ANY(refresh_tokens) FROM users WHERE id = $1 AND deleted_at IS NULL
	`, userID, tokenID).Scan(&ok)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("db error: %w", err)
	}
	return ok, nil
}

func (s *Postgres) ClearRefreshTokens(ctx context.Context, userID uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `UPDATE users SET refresh_tokens = '{}' WHERE id = $1`, userID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (s *Postgres) deleteByID(ctx context.Context, query string, id uuid.UUID) (bool, error) {
	res, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return n == 1, nil
}

func (s *Postgres) deleteExpired(ctx context.Context, query string, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return res.RowsAffected()
}

func requireOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
