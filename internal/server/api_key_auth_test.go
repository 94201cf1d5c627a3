package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	apikeydomain "github.com/satgate/satgate/internal/apikey/domain"
	"github.com/satgate/satgate/internal/authz"
	earnerdomain "github.com/satgate/satgate/internal/earner/domain"
	"github.com/satgate/satgate/internal/earnerctx"
	"github.com/satgate/satgate/pkg/db/pagination"
	"gorm.io/gorm"
)

type fakeAPIKeyService struct {
	key          *apikeydomain.APIKey
	resolveCalls int
	lastRaw      string
}

func (f *fakeAPIKeyService) List(ctx context.Context) ([]apikeydomain.Response, error) {
	_ = ctx
	return nil, nil
}

func (f *fakeAPIKeyService) Create(ctx context.Context, req apikeydomain.CreateRequest) (*apikeydomain.SecretResponse, error) {
	_ = ctx
	_ = req
	return nil, apikeydomain.ErrNotFound
}

func (f *fakeAPIKeyService) Rotate(ctx context.Context, keyID string) (*apikeydomain.SecretResponse, error) {
	_ = ctx
	_ = keyID
	return nil, apikeydomain.ErrNotFound
}

func (f *fakeAPIKeyService) Revoke(ctx context.Context, keyID string) error {
	_ = ctx
	_ = keyID
	return apikeydomain.ErrNotFound
}

func (f *fakeAPIKeyService) Resolve(ctx context.Context, raw string) (*apikeydomain.APIKey, error) {
	_ = ctx
	f.resolveCalls++
	f.lastRaw = raw
	if f.key == nil {
		return nil, apikeydomain.ErrInvalidKey
	}
	return f.key, nil
}

func (f *fakeAPIKeyService) CreateForEarner(ctx context.Context, tx *gorm.DB, earnerID snowflake.ID, name string) (*apikeydomain.SecretResponse, error) {
	_ = ctx
	_ = tx
	_ = earnerID
	_ = name
	return nil, apikeydomain.ErrNotFound
}

type fakeEarnerService struct {
	earner *earnerdomain.Earner
}

func (f *fakeEarnerService) Register(ctx context.Context, req earnerdomain.RegisterRequest) (*earnerdomain.RegisterResponse, error) {
	_ = ctx
	_ = req
	return nil, earnerdomain.ErrRegistrationClosed
}

func (f *fakeEarnerService) Get(ctx context.Context, id snowflake.ID) (*earnerdomain.Earner, error) {
	_ = ctx
	_ = id
	if f.earner == nil {
		return nil, earnerdomain.ErrNotFound
	}
	return f.earner, nil
}

func (f *fakeEarnerService) UpdateProfile(ctx context.Context, id snowflake.ID, req earnerdomain.UpdateProfileRequest) (*earnerdomain.Earner, error) {
	_ = ctx
	_ = id
	_ = req
	return nil, earnerdomain.ErrNotFound
}

func (f *fakeEarnerService) List(ctx context.Context, page pagination.Pagination) (*earnerdomain.ListResponse, error) {
	_ = ctx
	_ = page
	return nil, nil
}

func (f *fakeEarnerService) EnsurePlatform(ctx context.Context) (*earnerdomain.Earner, error) {
	_ = ctx
	return nil, earnerdomain.ErrNotFound
}

type fakeAuthzService struct {
	lastActor  string
	lastObject string
	lastAction string
	err        error
}

func (f *fakeAuthzService) Authorize(ctx context.Context, actor, object, action string) error {
	_ = ctx
	f.lastActor = actor
	f.lastObject = object
	f.lastAction = action
	return f.err
}

func newAuthTestRouter(srv *Server, handler gin.HandlerFunc, extra ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(ErrorHandlingMiddleware())
	handlers := append([]gin.HandlerFunc{srv.APIKeyRequired()}, extra...)
	handlers = append(handlers, handler)
	router.GET("/v1/protected", handlers...)
	return router
}

func TestAPIKeyRequiredRejectsMissingOrMalformedHeader(t *testing.T) {
	apiKeySvc := &fakeAPIKeyService{}
	srv := &Server{apiKeySvc: apiKeySvc, earnerSvc: &fakeEarnerService{}}
	router := newAuthTestRouter(srv, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	for _, header := range []string{"", "Bearer", "Basic abc", "Bearer st_not_an_api_key"} {
		req := httptest.NewRequest(http.MethodGet, "/v1/protected", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, req)

		if resp.Code != http.StatusUnauthorized {
			t.Fatalf("header %q: expected status 401, got %d", header, resp.Code)
		}
	}
	if apiKeySvc.resolveCalls != 0 {
		t.Fatalf("expected no resolve calls for malformed headers, got %d", apiKeySvc.resolveCalls)
	}
}

func TestAPIKeyRequiredLoadsEarnerIntoContext(t *testing.T) {
	earnerID := snowflake.ID(42)
	apiKeySvc := &fakeAPIKeyService{
		key: &apikeydomain.APIKey{
			ID:       snowflake.ID(7),
			EarnerID: earnerID,
			Scopes:   []string{apikeydomain.ScopeGatewaysWrite},
		},
	}
	earnerSvc := &fakeEarnerService{
		earner: &earnerdomain.Earner{ID: earnerID, Name: "alice", Role: earnerdomain.RoleEarner},
	}
	srv := &Server{apiKeySvc: apiKeySvc, earnerSvc: earnerSvc}

	var seenID snowflake.ID
	router := newAuthTestRouter(srv, func(c *gin.Context) {
		id, ok := earnerctx.EarnerIDFromContext(c.Request.Context())
		if !ok {
			AbortWithError(c, ErrInternal)
			return
		}
		seenID = id
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	req := httptest.NewRequest(http.MethodGet, "/v1/protected", nil)
	req.Header.Set("Authorization", "Bearer ak_key_secret")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
	if apiKeySvc.lastRaw != "ak_key_secret" {
		t.Fatalf("expected raw key to reach resolver, got %q", apiKeySvc.lastRaw)
	}
	if seenID != earnerID {
		t.Fatalf("expected earner %d in context, got %d", earnerID, seenID)
	}
}

func TestRequireScopeBlocksUngrantedKeys(t *testing.T) {
	apiKeySvc := &fakeAPIKeyService{
		key: &apikeydomain.APIKey{
			ID:       snowflake.ID(7),
			EarnerID: snowflake.ID(42),
			Scopes:   []string{apikeydomain.ScopeLogsRead},
		},
	}
	earnerSvc := &fakeEarnerService{
		earner: &earnerdomain.Earner{ID: snowflake.ID(42), Role: earnerdomain.RoleEarner},
	}
	srv := &Server{apiKeySvc: apiKeySvc, earnerSvc: earnerSvc}
	router := newAuthTestRouter(srv, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}, srv.RequireScope(apikeydomain.ScopePayoutsWrite))

	req := httptest.NewRequest(http.MethodGet, "/v1/protected", nil)
	req.Header.Set("Authorization", "Bearer ak_key_secret")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected status 403, got %d", resp.Code)
	}
}

func TestAuthorizeActionPassesActorToPolicy(t *testing.T) {
	apiKeySvc := &fakeAPIKeyService{
		key: &apikeydomain.APIKey{ID: snowflake.ID(7), EarnerID: snowflake.ID(42)},
	}
	earnerSvc := &fakeEarnerService{
		earner: &earnerdomain.Earner{ID: snowflake.ID(42), Role: earnerdomain.RoleEarner},
	}
	authzSvc := &fakeAuthzService{}
	srv := &Server{apiKeySvc: apiKeySvc, earnerSvc: earnerSvc, authzSvc: authzSvc}
	router := newAuthTestRouter(srv, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}, srv.authorizeAction(authz.ObjectGateway, authz.ActionGatewayCreate))

	req := httptest.NewRequest(http.MethodGet, "/v1/protected", nil)
	req.Header.Set("Authorization", "Bearer ak_key_secret")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
	if authzSvc.lastActor != "earner:42" {
		t.Fatalf("expected actor earner:42, got %q", authzSvc.lastActor)
	}
	if authzSvc.lastObject != authz.ObjectGateway || authzSvc.lastAction != authz.ActionGatewayCreate {
		t.Fatalf("unexpected policy check %q/%q", authzSvc.lastObject, authzSvc.lastAction)
	}
}

func TestAuthorizeActionMapsDenialToForbidden(t *testing.T) {
	apiKeySvc := &fakeAPIKeyService{
		key: &apikeydomain.APIKey{ID: snowflake.ID(7), EarnerID: snowflake.ID(42)},
	}
	earnerSvc := &fakeEarnerService{
		earner: &earnerdomain.Earner{ID: snowflake.ID(42), Role: earnerdomain.RoleEarner},
	}
	authzSvc := &fakeAuthzService{err: authz.ErrForbidden}
	srv := &Server{apiKeySvc: apiKeySvc, earnerSvc: earnerSvc, authzSvc: authzSvc}
	router := newAuthTestRouter(srv, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}, srv.authorizeAction(authz.ObjectSweep, authz.ActionSweepRun))

	req := httptest.NewRequest(http.MethodGet, "/v1/protected", nil)
	req.Header.Set("Authorization", "Bearer ak_key_secret")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected status 403, got %d", resp.Code)
	}
}

func TestRequireAdminBlocksEarnerRole(t *testing.T) {
	apiKeySvc := &fakeAPIKeyService{
		key: &apikeydomain.APIKey{ID: snowflake.ID(7), EarnerID: snowflake.ID(42)},
	}
	earnerSvc := &fakeEarnerService{
		earner: &earnerdomain.Earner{ID: snowflake.ID(42), Role: earnerdomain.RoleEarner},
	}
	srv := &Server{apiKeySvc: apiKeySvc, earnerSvc: earnerSvc}
	router := newAuthTestRouter(srv, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}, srv.RequireAdmin())

	req := httptest.NewRequest(http.MethodGet, "/v1/protected", nil)
	req.Header.Set("Authorization", "Bearer ak_key_secret")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected status 403, got %d", resp.Code)
	}
}
