//go:build integration

package main

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	accountstore "regdesk/internal/account/store"
	"regdesk/internal/registration/models"
	"regdesk/internal/registration/service"
	requeststore "regdesk/internal/registration/store"
	id "regdesk/pkg/domain"
	dErrors "regdesk/pkg/domain-errors"
	"regdesk/pkg/secrets"
	"regdesk/pkg/testutil/containers"
)

type RegistrationPostgresSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	accounts *accountstore.PostgresStore
	service  *service.Service
}

func TestRegistrationPostgresSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RegistrationPostgresSuite))
}

func (s *RegistrationPostgresSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.accounts = accountstore.NewPostgres(s.postgres.DB)
	s.service = service.New(
		requeststore.NewPostgres(s.postgres.DB),
		newRegistrationPostgresTx(s.postgres.DB, 5*time.Second),
		secrets.NewBcryptHasher(4),
		secrets.KeyGenerator{},
		service.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
}

func (s *RegistrationPostgresSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "registration_requests", "users", "audit_outbox"))
}

func (s *RegistrationPostgresSuite) submit(username string) id.RequestID {
	requestID, err := s.service.Submit(context.Background(), service.SubmitCommand{
		Username: username,
		Password: "password1",
		Email:    username + "@x.com",
	})
	s.Require().NoError(err)
	return requestID
}

func (s *RegistrationPostgresSuite) outboxRows() int {
	var n int
	s.Require().NoError(s.postgres.DB.QueryRowContext(context.Background(), "SELECT COUNT(*) FROM audit_outbox").Scan(&n))
	return n
}

func (s *RegistrationPostgresSuite) TestApproveCommitsAccountAndOutbox() {
	ctx := context.Background()
	requestID := s.submit("alice")

	s.Require().NoError(s.service.Approve(ctx, requestID, id.NewUserID(), "Welcome"))

	req, err := s.service.Get(ctx, requestID)
	s.Require().NoError(err)
	s.Equal(models.StatusApproved, req.Status)

	account, err := s.accounts.FindByUsername(ctx, "alice")
	s.Require().NoError(err)
	s.Equal(req.PasswordHash, account.PasswordHash)
	s.Equal(2, s.outboxRows())
}

func (s *RegistrationPostgresSuite) TestConcurrentApprovals() {
	ctx := context.Background()
	requestID := s.submit("alice")

	const reviewers = 50
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		processed int
		other     []error
	)
	for i := 0; i < reviewers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.service.Approve(ctx, requestID, id.NewUserID(), "")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case dErrors.HasCode(err, dErrors.CodeAlreadyProcessed):
				processed++
			default:
				other = append(other, err)
			}
		}()
	}
	wg.Wait()

	s.Empty(other)
	s.Equal(1, succeeded)
	s.Equal(reviewers-1, processed)

	n, err := s.accounts.Count(ctx)
	s.Require().NoError(err)
	s.Equal(1, n)
	s.Equal(2, s.outboxRows())
}

func (s *RegistrationPostgresSuite) TestConflictRollsBack() {
	ctx := context.Background()
	first := s.submit("alice")
	second := s.submit("alice")
	s.Require().NoError(s.service.Approve(ctx, first, id.NewUserID(), ""))

	err := s.service.Approve(ctx, second, id.NewUserID(), "")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))

	req, err := s.service.Get(ctx, second)
	s.Require().NoError(err)
	s.Equal(models.StatusPending, req.Status)
	s.Equal(2, s.outboxRows())
}

func (s *RegistrationPostgresSuite) TestRejectThenApprove() {
	ctx := context.Background()
	requestID := s.submit("bob")
	s.Require().NoError(s.service.Reject(ctx, requestID, id.NewUserID(), "No"))

	err := s.service.Approve(ctx, requestID, id.NewUserID(), "")
	s.True(dErrors.HasCode(err, dErrors.CodeAlreadyProcessed))

	n, err := s.accounts.Count(ctx)
	s.Require().NoError(err)
	s.Zero(n)
	s.Equal(1, s.outboxRows())
}
