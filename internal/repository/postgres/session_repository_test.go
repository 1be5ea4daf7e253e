package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"formguard/internal/domain"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupSessionRepositoryMocks(mock sqlmock.Sqlmock) {
	mock.ExpectPrepare(regexp.QuoteMeta(`
		INSERT INTO sessions (user_id, token, expires_at)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`)).WillReturnCloseError(nil)

	mock.ExpectPrepare(regexp.QuoteMeta(`
		SELECT id, user_id, token, COALESCE(csrf_secret, ''), expires_at, created_at
		FROM sessions
		WHERE token = $1 AND expires_at > $2
	`)).WillReturnCloseError(nil)

	mock.ExpectPrepare(regexp.QuoteMeta(`DELETE FROM sessions WHERE token = $1`)).WillReturnCloseError(nil)

	mock.ExpectPrepare(regexp.QuoteMeta(`DELETE FROM sessions WHERE expires_at <= $1`)).WillReturnCloseError(nil)

	mock.ExpectPrepare(regexp.QuoteMeta(`
		UPDATE sessions SET csrf_secret = $1 WHERE token = $2
	`)).WillReturnCloseError(nil)
}

func TestNewSessionRepository(t *testing.T) {
	t.Run("successful_creation", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		setupSessionRepositoryMocks(mock)

		repo, err := NewSessionRepository(db)
		require.NoError(t, err)
		assert.NotNil(t, repo)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("fails_when_prepare_create_fails", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectPrepare(regexp.QuoteMeta(`
		INSERT INTO sessions (user_id, token, expires_at)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`)).WillReturnError(errors.New("prepare failed"))

		repo, err := NewSessionRepository(db)
		require.Error(t, err)
		assert.Nil(t, repo)
		assert.Contains(t, err.Error(), "failed to prepare create statement")
	})
}

func TestSessionRepository_Create(t *testing.T) {
	t.Run("successful_creation", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		setupSessionRepositoryMocks(mock)

		repo, err := NewSessionRepository(db)
		require.NoError(t, err)

		sessionID := "550e8400-e29b-41d4-a716-446655440000"
		createdAt := time.Now()
		expiresAt := createdAt.Add(24 * time.Hour)

		mock.ExpectQuery(regexp.QuoteMeta(`
		INSERT INTO sessions (user_id, token, expires_at)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`)).
			WithArgs("user-123", "token-abc", expiresAt).
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(sessionID, createdAt))

		session := &domain.Session{
			UserID:    "user-123",
			Token:     "token-abc",
			ExpiresAt: expiresAt,
		}
		err = repo.Create(context.Background(), session)
		require.NoError(t, err)
		assert.Equal(t, sessionID, session.ID)
		assert.Equal(t, createdAt, session.CreatedAt)
	})

	t.Run("propagates_insert_errors", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		setupSessionRepositoryMocks(mock)

		repo, err := NewSessionRepository(db)
		require.NoError(t, err)

		mock.ExpectQuery(regexp.QuoteMeta(`
		INSERT INTO sessions (user_id, token, expires_at)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`)).WillReturnError(errors.New("connection lost"))

		err = repo.Create(context.Background(), &domain.Session{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to create session")
	})
}

func TestSessionRepository_GetByToken(t *testing.T) {
	t.Run("returns_session_with_csrf_secret", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		setupSessionRepositoryMocks(mock)

		repo, err := NewSessionRepository(db)
		require.NoError(t, err)

		now := time.Now()
		mock.ExpectQuery(regexp.QuoteMeta(`
		SELECT id, user_id, token, COALESCE(csrf_secret, ''), expires_at, created_at
		FROM sessions
		WHERE token = $1 AND expires_at > $2
	`)).
			WithArgs("token-abc", sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "token", "csrf_secret", "expires_at", "created_at"}).
				AddRow("sess-1", "user-123", "token-abc", "c2VjcmV0", now.Add(time.Hour), now))

		session, err := repo.GetByToken(context.Background(), "token-abc")
		require.NoError(t, err)
		assert.Equal(t, "sess-1", session.ID)
		assert.Equal(t, "c2VjcmV0", session.CSRFSecret)
	})

	t.Run("maps_no_rows_to_not_found", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		setupSessionRepositoryMocks(mock)

		repo, err := NewSessionRepository(db)
		require.NoError(t, err)

		mock.ExpectQuery(regexp.QuoteMeta(`
		SELECT id, user_id, token, COALESCE(csrf_secret, ''), expires_at, created_at
		FROM sessions
		WHERE token = $1 AND expires_at > $2
	`)).
			WithArgs("missing", sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "token", "csrf_secret", "expires_at", "created_at"}))

		_, err = repo.GetByToken(context.Background(), "missing")
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	})
}

func TestSessionRepository_UpdateCSRFSecret(t *testing.T) {
	t.Run("updates_secret_for_session", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		setupSessionRepositoryMocks(mock)

		repo, err := NewSessionRepository(db)
		require.NoError(t, err)

		mock.ExpectExec(regexp.QuoteMeta(`
		UPDATE sessions SET csrf_secret = $1 WHERE token = $2
	`)).
			WithArgs("bmV3LXNlY3JldA==", "token-abc").
			WillReturnResult(sqlmock.NewResult(0, 1))

		err = repo.UpdateCSRFSecret(context.Background(), "bmV3LXNlY3JldA==", "token-abc")
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("wraps_exec_errors", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		setupSessionRepositoryMocks(mock)

		repo, err := NewSessionRepository(db)
		require.NoError(t, err)

		mock.ExpectExec(regexp.QuoteMeta(`
		UPDATE sessions SET csrf_secret = $1 WHERE token = $2
	`)).WillReturnError(errors.New("deadlock"))

		err = repo.UpdateCSRFSecret(context.Background(), "secret", "token-abc")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to update csrf secret")
	})
}

func TestSessionRepository_Delete(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	setupSessionRepositoryMocks(mock)

	repo, err := NewSessionRepository(db)
	require.NoError(t, err)

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM sessions WHERE token = $1`)).
		WithArgs("token-abc").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Delete(context.Background(), "token-abc"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepository_DeleteExpired(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	setupSessionRepositoryMocks(mock)

	repo, err := NewSessionRepository(db)
	require.NoError(t, err)

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM sessions WHERE expires_at <= $1`)).
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 3))

	count, err := repo.DeleteExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
}
