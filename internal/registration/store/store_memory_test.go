package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"regdesk/internal/registration/models"
	id "regdesk/pkg/domain"
	"regdesk/pkg/platform/sentinel"
)

type InMemoryStoreSuite struct {
	suite.Suite
	store *InMemory
	ctx   context.Context
	base  time.Time
}

func TestInMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(InMemoryStoreSuite))
}

func (s *InMemoryStoreSuite) SetupTest() {
	s.store = NewInMemory()
	s.ctx = context.Background()
	s.base = time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
}

func (s *InMemoryStoreSuite) newRequest(username string, offset time.Duration) *models.Request {
	req, err := models.NewRequest(id.NewRequestID(), username, username+"@example.com", "$2a$10$hash", nil, s.base.Add(offset))
	s.Require().NoError(err)
	s.Require().NoError(s.store.Create(s.ctx, req))
	return req
}

func (s *InMemoryStoreSuite) resolve(req *models.Request, status models.Status) {
	s.Require().NoError(req.Resolve(status, id.NewUserID(), s.base.Add(time.Hour), nil))
	s.Require().NoError(s.store.Resolve(s.ctx, req))
}

func (s *InMemoryStoreSuite) TestCreateAndFind() {
	s.Run("finds by id including resolved requests", func() {
		req := s.newRequest("alice", 0)
		s.resolve(req, models.StatusRejected)

		found, err := s.store.FindByID(s.ctx, req.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusRejected, found.Status)
		s.Require().NotNil(found.Decision)
	})

	s.Run("returns ErrNotFound for unknown id", func() {
		_, err := s.store.FindByID(s.ctx, id.NewRequestID())
		s.ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("rejects duplicate id", func() {
		req := s.newRequest("dup", 0)
		s.ErrorIs(s.store.Create(s.ctx, req), sentinel.ErrAlreadyUsed)
	})

	s.Run("returned records are copies", func() {
		req := s.newRequest("copy", 0)
		found, err := s.store.FindByID(s.ctx, req.ID)
		s.Require().NoError(err)
		found.Status = models.StatusApproved

		again, err := s.store.FindByID(s.ctx, req.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusPending, again.Status)
	})
}

func (s *InMemoryStoreSuite) TestFindByUsername() {
	s.Run("ignores resolved requests", func() {
		resolved := s.newRequest("bob", 0)
		s.resolve(resolved, models.StatusRejected)

		_, err := s.store.FindByUsername(s.ctx, "bob")
		s.ErrorIs(err, sentinel.ErrNotFound)

		pending := s.newRequest("bob", time.Minute)
		found, err := s.store.FindByUsername(s.ctx, "bob")
		s.Require().NoError(err)
		s.Equal(pending.ID, found.ID)
	})
}

func (s *InMemoryStoreSuite) TestListings() {
	first := s.newRequest("first", time.Minute)
	second := s.newRequest("second", 2*time.Minute)
	early := s.newRequest("early", 0)
	s.resolve(second, models.StatusApproved)

	s.Run("pending is oldest first and excludes resolved", func() {
		pending, err := s.store.ListPending(s.ctx)
		s.Require().NoError(err)
		s.Require().Len(pending, 2)
		s.Equal(early.ID, pending[0].ID)
		s.Equal(first.ID, pending[1].ID)
	})

	s.Run("all is newest first and includes resolved", func() {
		all, err := s.store.ListAll(s.ctx, 0, 50)
		s.Require().NoError(err)
		s.Require().Len(all, 3)
		s.Equal(second.ID, all[0].ID)
		s.Equal(first.ID, all[1].ID)
		s.Equal(early.ID, all[2].ID)
	})

	s.Run("all pages with offset and limit", func() {
		page, err := s.store.ListAll(s.ctx, 1, 1)
		s.Require().NoError(err)
		s.Require().Len(page, 1)
		s.Equal(first.ID, page[0].ID)

		empty, err := s.store.ListAll(s.ctx, 10, 5)
		s.Require().NoError(err)
		s.Empty(empty)
	})
}

func (s *InMemoryStoreSuite) TestResolve() {
	s.Run("second resolve fails with ErrInvalidState", func() {
		req := s.newRequest("race", 0)
		winner := req.Clone()
		loser := req.Clone()
		s.Require().NoError(winner.Resolve(models.StatusApproved, id.NewUserID(), s.base, nil))
		s.Require().NoError(loser.Resolve(models.StatusRejected, id.NewUserID(), s.base, nil))

		s.Require().NoError(s.store.Resolve(s.ctx, winner))
		s.ErrorIs(s.store.Resolve(s.ctx, loser), sentinel.ErrInvalidState)

		found, err := s.store.FindByID(s.ctx, req.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusApproved, found.Status)
	})

	s.Run("unknown request", func() {
		req, err := models.NewRequest(id.NewRequestID(), "ghost", "g@x.com", "hash", nil, s.base)
		s.Require().NoError(err)
		s.Require().NoError(req.Resolve(models.StatusApproved, id.NewUserID(), s.base, nil))
		s.ErrorIs(s.store.Resolve(s.ctx, req), sentinel.ErrNotFound)
	})

	s.Run("undecided request is refused", func() {
		req := s.newRequest("undecided", 0)
		s.ErrorIs(s.store.Resolve(s.ctx, req), sentinel.ErrInvalidState)
	})
}

func (s *InMemoryStoreSuite) TestSnapshot() {
	kept := s.newRequest("kept", 0)
	restore := s.store.Snapshot()

	s.newRequest("dropped", time.Minute)
	s.resolve(kept, models.StatusApproved)
	restore()

	all, err := s.store.ListAll(s.ctx, 0, 50)
	s.Require().NoError(err)
	s.Require().Len(all, 1)
	s.Equal(kept.ID, all[0].ID)
	s.Equal(models.StatusPending, all[0].Status)
}
