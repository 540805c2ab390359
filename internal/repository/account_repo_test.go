package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/y-cruce/postflow/internal/service"
)

type AccountRepositorySuite struct {
	suite.Suite
	ctx  context.Context
	db   *sql.DB
	mock sqlmock.Sqlmock
	repo service.AccountRepository
}

func (s *AccountRepositorySuite) SetupTest() {
	s.ctx = context.Background()
	db, mock, err := sqlmock.New()
	require.NoError(s.T(), err)
	s.db = db
	s.mock = mock
	s.repo = NewAccountRepository(db)
}

func (s *AccountRepositorySuite) TearDownTest() {
	require.NoError(s.T(), s.mock.ExpectationsWereMet())
	_ = s.db.Close()
}

func (s *AccountRepositorySuite) TestCreate_UpsertsByPlatformUserID() {
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	account := &service.Account{
		PlatformUserID: "1789",
		Handle:         "travelgram",
		AccessToken:    "tok",
		Timezone:       "Europe/Berlin",
		Active:         true,
	}

	s.mock.ExpectQuery(regexp.QuoteMeta(`ON CONFLICT (platform_user_id) DO UPDATE`)).
		WithArgs("1789", "travelgram", "tok", "Europe/Berlin", true, "", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(int64(3), now, now))

	err := s.repo.Create(s.ctx, account)
	require.NoError(s.T(), err)
	require.Equal(s.T(), int64(3), account.ID)
}

func (s *AccountRepositorySuite) TestGetByID_NotFound() {
	s.mock.ExpectQuery(regexp.QuoteMeta(`FROM accounts WHERE id = $1`)).
		WithArgs(int64(99)).
		WillReturnError(sql.ErrNoRows)

	_, err := s.repo.GetByID(s.ctx, 99)
	require.ErrorIs(s.T(), err, service.ErrAccountNotFound)
}

func (s *AccountRepositorySuite) TestSetActive_FreezeRecordsReason() {
	s.mock.ExpectExec(regexp.QuoteMeta(`SET active = FALSE, pause_reason = $2`)).
		WithArgs(int64(3), service.PauseReasonManual).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.repo.SetActive(s.ctx, 3, false, service.PauseReasonManual)
	require.NoError(s.T(), err)
}

func (s *AccountRepositorySuite) TestSetActive_UnfreezeResetsCounters() {
	s.mock.ExpectExec(regexp.QuoteMeta(`SET active = TRUE, pause_reason = '', consecutive_failures = 0`)).
		WithArgs(int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.repo.SetActive(s.ctx, 3, true, "")
	require.NoError(s.T(), err)
}

func (s *AccountRepositorySuite) TestRecordPublishFailure_ReturnsStreak() {
	s.mock.ExpectQuery(regexp.QuoteMeta(`consecutive_failures = consecutive_failures + 1`)).
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"consecutive_failures"}).AddRow(2))

	n, err := s.repo.RecordPublishFailure(s.ctx, 3)
	require.NoError(s.T(), err)
	require.Equal(s.T(), 2, n)
}

func (s *AccountRepositorySuite) TestMapPQError_UniqueViolation() {
	err := mapPQError(&pq.Error{Code: "23505"})
	require.ErrorIs(s.T(), err, service.ErrDuplicateKey)

	other := &pq.Error{Code: "40001"}
	require.Equal(s.T(), error(other), mapPQError(other))
}

func TestAccountRepositorySuite(t *testing.T) {
	suite.Run(t, new(AccountRepositorySuite))
}
