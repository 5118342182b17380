package renderjob

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"gfxrelay/database"
	"gfxrelay/internal/logging"
	"gfxrelay/internal/protocol"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"gorm.io/gorm"
)

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, isUniqueViolation(&pgconn.PgError{Code: "23505"}))
	assert.True(t, isUniqueViolation(fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"})))
	assert.True(t, isUniqueViolation(gorm.ErrDuplicatedKey))
	assert.False(t, isUniqueViolation(&pgconn.PgError{Code: "23503"}))
	assert.False(t, isUniqueViolation(fmt.Errorf("boom")))
}

// RepositorySuite runs against a real Postgres named by TEST_DATABASE_URL.
type RepositorySuite struct {
	suite.Suite
	db   *gorm.DB
	repo Repository
	ctx  context.Context
}

func TestRepositorySuite(t *testing.T) {
	suite.Run(t, new(RepositorySuite))
}

func (s *RepositorySuite) SetupSuite() {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		s.T().Skip("TEST_DATABASE_URL not set, skipping repository tests")
	}

	db, err := database.OpenGorm(dsn, logging.Discard())
	if err != nil {
		s.T().Skip("PostgreSQL not available, skipping repository tests")
	}
	s.Require().NoError(database.Migrate(db, logging.Discard(), &RenderJob{}))

	s.db = db
	s.repo = NewRepository(db)
	s.ctx = context.Background()
}

func (s *RepositorySuite) TearDownSuite() {
	if s.db != nil {
		database.Close(s.db)
	}
}

func (s *RepositorySuite) SetupTest() {
	s.Require().NoError(s.db.Exec("DELETE FROM render_jobs").Error)
}

func (s *RepositorySuite) newJob(requestID string, priority int) *RenderJob {
	job := &RenderJob{
		RequestID:       requestID,
		CompositionName: "chip_leader",
		HandID:          "hand-1",
		Priority:        priority,
		Status:          protocol.RenderPending,
	}
	s.Require().NoError(s.repo.Create(s.ctx, job))
	return job
}

func (s *RepositorySuite) TestCreateDuplicate() {
	s.newJob("req-1", 0)

	err := s.repo.Create(s.ctx, &RenderJob{RequestID: "req-1", CompositionName: "x", Status: protocol.RenderPending})
	s.ErrorIs(err, ErrDuplicateRequest)
}

func (s *RepositorySuite) TestLifecycle() {
	job := s.newJob("req-2", 1)

	eta := 12.5
	s.Require().NoError(s.repo.UpdateStatus(s.ctx, job.ID, "job-2", protocol.RenderRendering, 40, &eta))

	byJob, err := s.repo.FindByJobID(s.ctx, "job-2")
	s.Require().NoError(err)
	s.Equal(job.ID, byJob.ID)
	s.Equal(protocol.RenderRendering, byJob.Status)
	s.InDelta(40, byJob.Progress, 0.001)
	s.Require().NotNil(byJob.EstimatedRemaining)

	output := protocol.RenderOutput{OutputPath: "/out/job-2.mov", Duration: 4, FrameCount: 120, FileSize: 4096}
	s.Require().NoError(s.repo.MarkCompleted(s.ctx, job.ID, "", output))

	done, err := s.repo.FindByRequestID(s.ctx, "req-2")
	s.Require().NoError(err)
	s.Equal(protocol.RenderCompleted, done.Status)
	s.Equal("/out/job-2.mov", done.OutputPath)
	s.Nil(done.EstimatedRemaining)
	s.Require().NotNil(done.CompletedAt)
	s.WithinDuration(time.Now(), *done.CompletedAt, time.Minute)
}

func (s *RepositorySuite) TestMarkFailedAndListActive() {
	low := s.newJob("req-low", 0)
	high := s.newJob("req-high", 5)
	failed := s.newJob("req-failed", 9)

	s.Require().NoError(s.repo.MarkFailed(s.ctx, failed.ID, "job-f", protocol.ErrCodeDataFetch, "db down", true))

	active, err := s.repo.ListActive(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(active, 2)
	s.Equal(high.ID, active[0].ID)
	s.Equal(low.ID, active[1].ID)

	got, err := s.repo.FindByRequestID(s.ctx, "req-failed")
	s.Require().NoError(err)
	s.Equal(protocol.RenderFailed, got.Status)
	s.Equal(string(protocol.ErrCodeDataFetch), got.ErrorCode)
	s.True(got.Retryable)
}

func (s *RepositorySuite) TestNotFound() {
	_, err := s.repo.FindByRequestID(s.ctx, "missing")
	s.ErrorIs(err, ErrJobNotFound)
	s.ErrorIs(s.repo.UpdateStatus(s.ctx, 999999, "", protocol.RenderQueued, 0, nil), ErrJobNotFound)
}

func TestClampProgress(t *testing.T) {
	require.Equal(t, 0.0, clampProgress(-1))
	require.Equal(t, 100.0, clampProgress(101))
	require.Equal(t, 55.0, clampProgress(55))
}
