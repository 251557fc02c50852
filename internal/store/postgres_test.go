package store

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AnshRaj112/serenify-auth/internal/models"
)

func newMockStore(t *testing.T) (*Postgres, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgres(db), mock
}

var userRowColumns = []string{"id", "created_at", "updated_at", "deleted_at", "email", "password_hash",
	"email_verified", "is_oauth_user", "google_id", "refresh_tokens"}

func TestPostgresFindActiveUserByEmail(t *testing.T) {
	s, mock := newMockStore(t)
	id := uuid.New()
	now := time.Now()

	rows := sqlmock.NewRows(userRowColumns).
		AddRow(id.String(), now, now, nil, "jane@example.com", "$2a$12$hash", true, false, nil, []byte("{a,b}"))
	mock.ExpectQuery(regexp.QuoteMeta("FROM users")).
		WithArgs("jane@example.com").
		WillReturnRows(rows)

	u, err := s.FindActiveUserByEmail(context.Background(), "  jane@example.com ")
	require.NoError(t, err)
	assert.Equal(t, id, u.ID)
	assert.True(t, u.HasPassword())
	assert.True(t, u.EmailVerified)
	assert.Nil(t, u.GoogleID)
	assert.Equal(t, []string{"a", "b"}, u.RefreshTokens)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresFindActiveUserNotFound(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM users")).
		WillReturnRows(sqlmock.NewRows(userRowColumns))

	_, err := s.FindActiveUserByID(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPostgresCreateUserWithProfileCommits(t *testing.T) {
	s, mock := newMockStore(t)
	hash := "digest"
	u := &models.User{Email: "jane@example.com", PasswordHash: &hash}
	p := &models.Profile{FirstName: "Jane", LastName: "Doe"}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO users")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO profiles")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, s.CreateUserWithProfile(context.Background(), u, p))
	assert.NotEqual(t, uuid.Nil, u.ID)
	assert.Equal(t, u.ID, p.UserID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCreateUserDuplicateEmailRollsBack(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO users")).
		WillReturnError(&pq.Error{Code: "23505"})
	mock.ExpectRollback()

	err := s.CreateUserWithProfile(context.Background(), &models.User{Email: "jane@example.com"}, &models.Profile{})
	assert.ErrorIs(t, err, ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCreateUserProfileFailureRollsBack(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO users")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO profiles")).
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	err := s.CreateUserWithProfile(context.Background(), &models.User{Email: "jane@example.com"}, &models.Profile{})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresDeleteTokenReportsWinner(t *testing.T) {
	s, mock := newMockStore(t)
	id := uuid.New()

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM email_verifications")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM email_verifications")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	first, err := s.DeleteVerificationToken(context.Background(), id)
	require.NoError(t, err)
	second, err := s.DeleteVerificationToken(context.Background(), id)
	require.NoError(t, err)

	assert.True(t, first)
	assert.False(t, second)
}

func TestPostgresDeleteExpiredResets(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM password_resets WHERE expires_at <")).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := s.DeleteExpiredPasswordResetTokens(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestPostgresAddRefreshTokenMissingUser(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET refresh_tokens")).
		WithArgs(sqlmock.AnyArg(), "jti-1", 10).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.AddRefreshToken(context.Background(), uuid.New(), "jti-1", 10)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPostgresHasRefreshToken(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta("ANY(refresh_tokens)")).
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(true))
	mock.ExpectQuery(regexp.QuoteMeta("ANY(refresh_tokens)")).
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}))

	ok, err := s.HasRefreshToken(context.Background(), uuid.New(), "jti-1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.HasRefreshToken(context.Background(), uuid.New(), "jti-1")
	require.NoError(t, err)
	assert.False(t, ok)
}
