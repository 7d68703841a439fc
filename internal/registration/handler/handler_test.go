package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	accountstore "regdesk/internal/account/store"
	jwttoken "regdesk/internal/jwt_token"
	"regdesk/internal/registration/models"
	"regdesk/internal/registration/service"
	requeststore "regdesk/internal/registration/store"
	id "regdesk/pkg/domain"
	auditmemory "regdesk/pkg/platform/audit/store/memory"
	"regdesk/pkg/platform/middleware/request"
	"regdesk/pkg/requestcontext"
	"regdesk/pkg/secrets"
	"regdesk/pkg/testutil"
)

type RegistrationHandlerSuite struct {
	suite.Suite
	router     chi.Router
	service    *service.Service
	accounts   *accountstore.InMemory
	adminID    id.UserID
	adminToken string
	userToken  string
}

func TestRegistrationHandlerSuite(t *testing.T) {
	suite.Run(t, new(RegistrationHandlerSuite))
}

func (s *RegistrationHandlerSuite) SetupTest() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	requests := requeststore.NewInMemory()
	s.accounts = accountstore.NewInMemory()
	tx := service.NewInMemoryTx(service.TxStores{
		Requests: requests,
		Users:    s.accounts,
		Audit:    auditmemory.NewInMemoryStore(),
	}, time.Second)
	s.service = service.New(requests, tx, secrets.NewBcryptHasher(4), secrets.KeyGenerator{}, service.WithLogger(logger))

	jwtService := jwttoken.NewJWTService("test-signing-key", "regdesk", "regdesk-admin")
	adminUUID := uuid.New()
	s.adminID = id.UserID(adminUUID)

	var err error
	s.adminToken, err = jwtService.GenerateToken(adminUUID, jwttoken.RoleAdmin, time.Hour)
	s.Require().NoError(err)
	s.userToken, err = jwtService.GenerateToken(uuid.New(), "user", time.Hour)
	s.Require().NoError(err)

	h := New(s.service, logger, jwttoken.NewJWTServiceAdapter(jwtService), []string{"https://app.example"})
	r := chi.NewRouter()
	r.Use(request.RequestID)
	h.Register(r)
	s.router = r
}

func (s *RegistrationHandlerSuite) asAdmin(req *http.Request) *http.Request {
	return testutil.WithBearer(req, s.adminToken)
}

func (s *RegistrationHandlerSuite) submit(username string) id.RequestID {
	requestID, err := s.service.Submit(context.Background(), service.SubmitCommand{
		Username: username,
		Password: "password1",
		Email:    username + "@x.com",
	})
	s.Require().NoError(err)
	return requestID
}

func (s *RegistrationHandlerSuite) TestSubmit() {
	s.Run("json body is accepted", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPut, "/user/register", SubmitRequest{
			Username: "alice",
			Password: "password1",
			Email:    "a@x.com",
		})
		rr := testutil.DoRequest(s.router, req)

		testutil.AssertStatusOK(s.T(), rr)
		body := testutil.UnmarshalResponse[map[string]string](s.T(), rr)
		s.Equal("ok", (*body)["status"])

		pending, err := s.service.ListPending(context.Background())
		s.Require().NoError(err)
		s.Require().Len(pending, 1)
		s.Equal("alice", pending[0].Username)
	})

	s.Run("form body is accepted", func() {
		form := url.Values{}
		form.Set("username", "bob")
		form.Set("password", "password1")
		form.Set("email", "b@x.com")
		form.Set("message", "hello")
		rr := testutil.DoRequest(s.router, testutil.NewFormRequest(s.T(), http.MethodPut, "/user/register", form))

		testutil.AssertStatusOK(s.T(), rr)
	})

	s.Run("missing field is a validation error", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPut, "/user/register", SubmitRequest{Username: "alice"})
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "validation_error")
	})

	s.Run("short password is a validation error", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPut, "/user/register", SubmitRequest{
			Username: "alice",
			Password: "short",
			Email:    "a@x.com",
		})
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "validation_error")
	})

	s.Run("malformed json is a bad request", func() {
		req := httpRequestWithBody(http.MethodPut, "/user/register", "{not json", "application/json")
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "bad_request")
	})

	s.Run("submission needs no token and allows configured origins", func() {
		req := testutil.NewRequest(s.T(), http.MethodOptions, "/user/register")
		req.Header.Set("Origin", "https://app.example")
		req.Header.Set("Access-Control-Request-Method", http.MethodPut)
		rr := testutil.DoRequest(s.router, req)

		s.Equal("https://app.example", rr.Header().Get("Access-Control-Allow-Origin"))
	})
}

func (s *RegistrationHandlerSuite) TestAdminGuard() {
	s.Run("missing token is forbidden", func() {
		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/user/register/pending"))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusForbidden, "forbidden")
	})

	s.Run("non-admin token is forbidden", func() {
		req := testutil.NewRequest(s.T(), http.MethodGet, "/user/register/pending")
		rr := testutil.DoRequest(s.router, testutil.WithBearer(req, s.userToken))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusForbidden, "forbidden")
	})

	s.Run("approval without token creates nothing", func() {
		requestID := s.submit("mallory")
		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodPost, "/user/register/approve/"+requestID.String()))
		testutil.AssertStatus(s.T(), rr, http.StatusForbidden)

		n, err := s.accounts.Count(context.Background())
		s.Require().NoError(err)
		s.Zero(n)
	})
}

func (s *RegistrationHandlerSuite) TestListPending() {
	s.submit("alice")

	rr := testutil.DoRequest(s.router, s.asAdmin(testutil.NewRequest(s.T(), http.MethodGet, "/user/register/pending")))
	testutil.AssertStatusOK(s.T(), rr)

	body := testutil.UnmarshalResponse[ListPendingResponse](s.T(), rr)
	s.Require().Len(body.Requests, 1)
	s.Equal("alice", body.Requests[0].Username)
	s.Equal("alice@x.com", body.Requests[0].Email)
	s.NotZero(body.Requests[0].CreateDate)
	s.Nil(body.Requests[0].Message)
}

func (s *RegistrationHandlerSuite) TestApproveAndReject() {
	s.Run("approve records the decision", func() {
		requestID := s.submit("alice")
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/user/register/approve/"+requestID.String(), DecisionRequest{Response: "Welcome"})
		rr := testutil.DoRequest(s.router, s.asAdmin(req))
		testutil.AssertStatusOK(s.T(), rr)

		got, err := s.service.Get(context.Background(), requestID)
		s.Require().NoError(err)
		s.Equal(models.StatusApproved, got.Status)
		s.Equal(s.adminID, got.Decision.By)

		account, err := s.accounts.FindByUsername(context.Background(), "alice")
		s.Require().NoError(err)
		s.Equal("user", account.Role)
	})

	s.Run("reject without body is accepted", func() {
		requestID := s.submit("bob")
		rr := testutil.DoRequest(s.router, s.asAdmin(testutil.NewRequest(s.T(), http.MethodPost, "/user/register/reject/"+requestID.String())))
		testutil.AssertStatusOK(s.T(), rr)

		got, err := s.service.Get(context.Background(), requestID)
		s.Require().NoError(err)
		s.Equal(models.StatusRejected, got.Status)
		s.Nil(got.Decision.Response)
	})

	s.Run("second decision is a conflict", func() {
		requestID := s.submit("carol")
		path := "/user/register/reject/" + requestID.String()
		testutil.AssertStatusOK(s.T(), testutil.DoRequest(s.router, s.asAdmin(testutil.NewRequest(s.T(), http.MethodPost, path))))

		rr := testutil.DoRequest(s.router, s.asAdmin(testutil.NewRequest(s.T(), http.MethodPost, "/user/register/approve/"+requestID.String())))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusConflict, "request_already_processed")
	})

	s.Run("unknown request is not found", func() {
		rr := testutil.DoRequest(s.router, s.asAdmin(testutil.NewRequest(s.T(), http.MethodPost, "/user/register/approve/"+uuid.NewString())))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusNotFound, "not_found")
	})

	s.Run("malformed id is a bad request", func() {
		rr := testutil.DoRequest(s.router, s.asAdmin(testutil.NewRequest(s.T(), http.MethodPost, "/user/register/approve/not-a-uuid")))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "bad_request")
	})
}

func (s *RegistrationHandlerSuite) TestListAll() {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var ids []id.RequestID
	for i, name := range []string{"alice", "bob", "carol"} {
		ctx := requestcontext.WithTime(context.Background(), base.Add(time.Duration(i)*time.Minute))
		requestID, err := s.service.Submit(ctx, service.SubmitCommand{Username: name, Password: "password1", Email: name + "@x.com"})
		s.Require().NoError(err)
		ids = append(ids, requestID)
	}
	decidedAt := base.Add(time.Hour)
	s.Require().NoError(s.service.Approve(requestcontext.WithTime(context.Background(), decidedAt), ids[0], s.adminID, "Welcome"))

	s.Run("returns history newest first with decision fields", func() {
		rr := testutil.DoRequest(s.router, s.asAdmin(testutil.NewRequest(s.T(), http.MethodGet, "/user/register?offset=0&limit=50")))
		testutil.AssertStatusOK(s.T(), rr)

		body := testutil.UnmarshalResponse[ListAllResponse](s.T(), rr)
		s.Require().Len(body.Requests, 3)
		s.Equal(ids[2].String(), body.Requests[0].ID)
		s.Equal("PENDING", body.Requests[0].Status)
		s.Nil(body.Requests[0].ProcessDate)
		s.Nil(body.Requests[0].ProcessedBy)

		approved := body.Requests[2]
		s.Equal(ids[0].String(), approved.ID)
		s.Equal("APPROVED", approved.Status)
		s.Equal(base.UnixMilli(), approved.CreateDate)
		s.Require().NotNil(approved.ProcessDate)
		s.Equal(decidedAt.UnixMilli(), *approved.ProcessDate)
		s.Require().NotNil(approved.ProcessedBy)
		s.Equal(s.adminID.String(), *approved.ProcessedBy)
		s.Require().NotNil(approved.Response)
		s.Equal("Welcome", *approved.Response)
	})

	s.Run("paging parameters are honoured", func() {
		rr := testutil.DoRequest(s.router, s.asAdmin(testutil.NewRequest(s.T(), http.MethodGet, "/user/register?offset=1&limit=1")))
		testutil.AssertStatusOK(s.T(), rr)

		body := testutil.UnmarshalResponse[ListAllResponse](s.T(), rr)
		s.Require().Len(body.Requests, 1)
		s.Equal(ids[1].String(), body.Requests[0].ID)
	})

	s.Run("invalid paging parameters are validation errors", func() {
		for _, query := range []string{"offset=-1", "limit=0", "limit=abc"} {
			rr := testutil.DoRequest(s.router, s.asAdmin(testutil.NewRequest(s.T(), http.MethodGet, "/user/register?"+query)))
			testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "validation_error")
		}
	})

	s.Run("single request is returned by id", func() {
		rr := testutil.DoRequest(s.router, s.asAdmin(testutil.NewRequest(s.T(), http.MethodGet, "/user/register/"+ids[0].String())))
		testutil.AssertStatusOK(s.T(), rr)

		body := testutil.UnmarshalResponse[RequestResponse](s.T(), rr)
		s.Equal("alice", body.Username)
		s.Equal("APPROVED", body.Status)
	})
}

func httpRequestWithBody(method, path, body, contentType string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", contentType)
	return req
}
