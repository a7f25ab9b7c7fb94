package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/bazaar/internal/authorization"
	"github.com/smallbiznis/bazaar/internal/clock"
	"github.com/smallbiznis/bazaar/internal/config"
	"github.com/smallbiznis/bazaar/internal/entity"
	"github.com/smallbiznis/bazaar/internal/identity"
	"github.com/smallbiznis/bazaar/internal/lock"
	memberrepo "github.com/smallbiznis/bazaar/internal/membership/repository"
	memberservice "github.com/smallbiznis/bazaar/internal/membership/service"
	"github.com/smallbiznis/bazaar/internal/migration"
	"github.com/smallbiznis/bazaar/internal/observability"
	"github.com/smallbiznis/bazaar/internal/observability/metrics"
	onboardingservice "github.com/smallbiznis/bazaar/internal/onboarding/service"
	"github.com/smallbiznis/bazaar/internal/outbox"
	"github.com/smallbiznis/bazaar/internal/ratelimit"
	realmrepo "github.com/smallbiznis/bazaar/internal/realm/repository"
	realmservice "github.com/smallbiznis/bazaar/internal/realm/service"
	userrepo "github.com/smallbiznis/bazaar/internal/user/repository"
	userservice "github.com/smallbiznis/bazaar/internal/user/service"
	"github.com/smallbiznis/bazaar/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(migration.Models()...))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC))
	locks := lock.NewLocal()
	publisher := outbox.NewPublisher(outbox.Params{DB: conn, Clock: clk})
	realmCfg := config.NewStaticRealmConfig(config.DefaultRealmConfig())

	realms := realmservice.NewService(realmservice.Params{
		DB:     conn,
		Log:    zap.NewNop(),
		Repo:   realmrepo.NewRepository(conn),
		Clock:  clk,
		Config: realmCfg,
	})
	members := memberservice.NewService(memberservice.Params{
		DB:     conn,
		Log:    zap.NewNop(),
		Repo:   memberrepo.NewRepository(conn),
		Realms: realms,
		GenID:  node,
		Clock:  clk,
		Locks:  locks,
	})
	users := userservice.NewService(userservice.Params{
		DB:      conn,
		Log:     zap.NewNop(),
		Repo:    userrepo.NewRepository(conn),
		Realms:  realms,
		Members: members,
		Outbox:  publisher,
		GenID:   node,
		Clock:   clk,
	})
	enforcer, err := authorization.NewEnforcer(conn)
	require.NoError(t, err)
	authz := authorization.NewService(authorization.Params{
		Log:      zap.NewNop(),
		Enforcer: enforcer,
		Realms:   realms,
		Members:  members,
	})
	store := entity.NewStore(entity.Params{
		DB:      conn,
		Log:     zap.NewNop(),
		Authz:   authz,
		Realms:  realms,
		Members: members,
		Users:   users,
		Outbox:  publisher,
		Locks:   locks,
		GenID:   node,
		Clock:   clk,
	})
	onboarding := onboardingservice.NewService(onboardingservice.Params{
		DB:      conn,
		Log:     zap.NewNop(),
		Users:   users,
		Realms:  realms,
		Members: members,
		Stores:  onboardingservice.NewStoreWriter(store),
		Outbox:  publisher,
		Locker:  locks,
		Config:  realmCfg,
		Clock:   clk,
	})

	engine := NewEngine(observability.Config{}, metrics.NewHTTPMetrics(prometheus.NewRegistry(), metrics.Config{}))
	return NewServer(ServerParams{
		Gin:        engine,
		Log:        zap.NewNop(),
		Identity:   identity.NewContextProvider(),
		Authz:      authz,
		Users:      users,
		Store:      store,
		Onboarding: onboarding,
	})
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error errorPayload    `json:"error"`
}

func do(t *testing.T, s *Server, method, path, userID string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set(HeaderUserID, userID)
	}
	rec := httptest.NewRecorder()
	s.Engine().ServeHTTP(rec, req)

	var env envelope
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	}
	return rec, env
}

func registerUser(t *testing.T, s *Server, email string) string {
	t.Helper()
	rec, env := do(t, s, http.MethodPost, "/v1/users", "", gin.H{"email": email, "name": email})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var user struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &user))
	require.NotEmpty(t, user.ID)
	return user.ID
}

func openShop(t *testing.T, s *Server, userID, name string) string {
	t.Helper()
	rec, env := do(t, s, http.MethodPost, "/v1/onboarding/vendor", userID, gin.H{"store_name": name})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var vendor struct {
		RealmID string `json:"realm_id"`
		StoreID string `json:"store_id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &vendor))
	return vendor.RealmID
}

type productResponse struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	RealmID    string   `json:"realm_id"`
	Categories []string `json:"categories"`
}

func createProduct(t *testing.T, s *Server, userID, realmID, name string) productResponse {
	t.Helper()
	rec, env := do(t, s, http.MethodPost, "/v1/realms/"+realmID+"/products", userID, gin.H{
		"name":       name,
		"price":      1500,
		"stock":      3,
		"categories": []string{"Apparel", "summer"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var product productResponse
	require.NoError(t, json.Unmarshal(env.Data, &product))
	return product
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	rec, _ := do(t, s, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRegisterAndMe(t *testing.T) {
	s := newTestServer(t)
	id := registerUser(t, s, "ana@example.com")

	rec, env := do(t, s, http.MethodGet, "/v1/users/me", id, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var me struct {
		Email string `json:"email"`
		Role  string `json:"role"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &me))
	assert.Equal(t, "ana@example.com", me.Email)
	assert.Equal(t, "buyer", me.Role)

	rec, env = do(t, s, http.MethodPost, "/v1/users", "", gin.H{"email": "ANA@example.com", "name": "again"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "conflict", env.Error.Type)

	rec, env = do(t, s, http.MethodPatch, "/v1/users/me", id, gin.H{"name": ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.Len(t, env.Error.Errors, 1)
	assert.Equal(t, "name", env.Error.Errors[0].Field)
}

func TestIdentityHeader(t *testing.T) {
	s := newTestServer(t)

	rec, _ := do(t, s, http.MethodGet, "/v1/users/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = do(t, s, http.MethodGet, "/v1/users/me", "not-a-number", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = do(t, s, http.MethodGet, "/v1/users/me", "123456789", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestVendorFlow(t *testing.T) {
	s := newTestServer(t)
	vendor := registerUser(t, s, "vendor@example.com")

	realmID := openShop(t, s, vendor, "Fashion Store")
	assert.Equal(t, "shop/fashion-store", realmID)

	rec, env := do(t, s, http.MethodGet, "/v1/onboarding/vendor", vendor, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"state":"vendor"}`, string(env.Data))

	rec, env = do(t, s, http.MethodPost, "/v1/onboarding/vendor", vendor, gin.H{"store_name": "Second Shop"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "user already owns a shop", env.Error.Message)

	product := createProduct(t, s, vendor, realmID, "Linen Shirt")
	assert.Equal(t, realmID, product.RealmID)
	assert.Equal(t, []string{"apparel", "summer"}, product.Categories)

	rec, env = do(t, s, http.MethodGet, "/v1/products?category=apparel", "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var products []productResponse
	require.NoError(t, json.Unmarshal(env.Data, &products))
	require.Len(t, products, 1)
	assert.Equal(t, product.ID, products[0].ID)

	rec, env = do(t, s, http.MethodGet, "/v1/realms?role=vendor", vendor, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var realms []struct {
		RealmID string `json:"realm_id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &realms))
	require.Len(t, realms, 1)
	assert.Equal(t, realmID, realms[0].RealmID)

	rec, _ = do(t, s, http.MethodGet, "/v1/realms/"+realmID+"/store", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = do(t, s, http.MethodPatch, "/v1/products/"+product.ID, vendor, gin.H{"price": 1800})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = do(t, s, http.MethodDelete, "/v1/products/"+product.ID, vendor, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec, _ = do(t, s, http.MethodGet, "/v1/products/"+product.ID, "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestProductDenials(t *testing.T) {
	s := newTestServer(t)
	vendor := registerUser(t, s, "vendor@example.com")
	buyer := registerUser(t, s, "buyer@example.com")
	realmID := openShop(t, s, vendor, "Fashion Store")
	product := createProduct(t, s, vendor, realmID, "Linen Shirt")

	rec, _ := do(t, s, http.MethodGet, "/v1/products/"+product.ID, "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = do(t, s, http.MethodPatch, "/v1/products/"+product.ID, "", gin.H{"price": 1})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, env := do(t, s, http.MethodPatch, "/v1/products/"+product.ID, buyer, gin.H{"price": 1})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "not_a_member", env.Error.Reason)

	rec, env = do(t, s, http.MethodPost, "/v1/realms/"+realmID+"/products", buyer, gin.H{"name": "Fake", "price": 1})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "not_a_member", env.Error.Reason)

	rec, env = do(t, s, http.MethodPatch, "/v1/products/"+product.ID+"?realm_id=user/"+vendor, vendor, gin.H{"price": 1})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "realm_mismatch", env.Error.Reason)

	rec, env = do(t, s, http.MethodPatch, "/v1/products/"+product.ID, vendor, gin.H{"price": -5})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.Len(t, env.Error.Errors, 1)
	assert.Equal(t, "price", env.Error.Errors[0].Field)
	assert.Equal(t, "negative", env.Error.Errors[0].Code)

	rec, _ = do(t, s, http.MethodGet, "/v1/products/abc", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCartEndpoints(t *testing.T) {
	s := newTestServer(t)
	vendor := registerUser(t, s, "vendor@example.com")
	buyer := registerUser(t, s, "buyer@example.com")
	other := registerUser(t, s, "other@example.com")
	realmID := openShop(t, s, vendor, "Fashion Store")
	product := createProduct(t, s, vendor, realmID, "Linen Shirt")

	rec, env := do(t, s, http.MethodPost, "/v1/realms/user/"+buyer+"/cart", buyer, gin.H{"product_id": product.ID, "quantity": 2})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var item struct {
		ID      string `json:"id"`
		RealmID string `json:"realm_id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &item))
	assert.Equal(t, "user/"+buyer, item.RealmID)

	rec, env = do(t, s, http.MethodPost, "/v1/realms/user/"+buyer+"/cart", other, gin.H{"product_id": product.ID, "quantity": 1})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "not_a_member", env.Error.Reason)

	rec, env = do(t, s, http.MethodPost, "/v1/realms/user/"+buyer+"/cart", buyer, gin.H{"product_id": product.ID, "quantity": 0})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.Len(t, env.Error.Errors, 1)
	assert.Equal(t, "quantity", env.Error.Errors[0].Field)

	rec, env = do(t, s, http.MethodGet, "/v1/realms/user/"+buyer+"/cart", buyer, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var items []json.RawMessage
	require.NoError(t, json.Unmarshal(env.Data, &items))
	assert.Len(t, items, 1)

	rec, _ = do(t, s, http.MethodPatch, "/v1/cart/"+item.ID, buyer, gin.H{"quantity": 5})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = do(t, s, http.MethodDelete, "/v1/cart/"+item.ID, other, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = do(t, s, http.MethodDelete, "/v1/cart/"+item.ID, buyer, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestAuthorizeEndpoint(t *testing.T) {
	s := newTestServer(t)
	vendor := registerUser(t, s, "vendor@example.com")
	buyer := registerUser(t, s, "buyer@example.com")
	realmID := openShop(t, s, vendor, "Fashion Store")

	tests := []struct {
		name   string
		userID string
		body   gin.H
		want   string
	}{
		{
			name:   "vendor creates product",
			userID: vendor,
			body:   gin.H{"realm_id": realmID, "entity_type": "product", "operation": "create"},
			want:   `{"allowed":true,"capabilities":"CRUD"}`,
		},
		{
			name:   "buyer creates product",
			userID: buyer,
			body:   gin.H{"realm_id": realmID, "entity_type": "product", "operation": "create"},
			want:   `{"allowed":false,"reason":"not_a_member","capabilities":"-R--"}`,
		},
		{
			name:   "anonymous reads product",
			body:   gin.H{"realm_id": realmID, "entity_type": "product", "operation": "read"},
			want:   `{"allowed":true,"capabilities":"-R--"}`,
		},
		{
			name:   "vendor targets another realm",
			userID: vendor,
			body:   gin.H{"realm_id": realmID, "entity_type": "product", "operation": "update", "target_realm_id": "user/" + buyer},
			want:   `{"allowed":false,"reason":"realm_mismatch","capabilities":"CRUD"}`,
		},
		{
			name:   "buyer adds to own cart",
			userID: buyer,
			body:   gin.H{"realm_id": "user/" + buyer, "entity_type": "cart_item", "operation": "create"},
			want:   `{"allowed":true,"capabilities":"CRUD"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, env := do(t, s, http.MethodPost, "/v1/authorize", tt.userID, tt.body)
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			assert.JSONEq(t, tt.want, string(env.Data))
		})
	}

	rec, env := do(t, s, http.MethodPost, "/v1/authorize", vendor, gin.H{"realm_id": realmID, "entity_type": "product", "operation": "publish"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_error", env.Error.Type)

	rec, _ = do(t, s, http.MethodPost, "/v1/authorize", vendor, gin.H{"realm_id": "shop/missing", "entity_type": "product", "operation": "read"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListRealmsRequiresCaller(t *testing.T) {
	s := newTestServer(t)
	buyer := registerUser(t, s, "buyer@example.com")

	rec, _ := do(t, s, http.MethodGet, "/v1/realms", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = do(t, s, http.MethodGet, "/v1/realms?role=admin", buyer, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, env := do(t, s, http.MethodGet, "/v1/realms?role=buyer", buyer, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var realms []struct {
		RealmID string `json:"realm_id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &realms))
	require.Len(t, realms, 1)
	assert.Equal(t, "user/"+buyer, realms[0].RealmID)
}

func TestUnknownRoute(t *testing.T) {
	s := newTestServer(t)
	rec, env := do(t, s, http.MethodGet, "/v1/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", env.Error.Type)
}

type quotaLimiter struct {
	remaining map[string]int
	err       error
}

func (q *quotaLimiter) Allow(_ context.Context, key string) (*ratelimit.Result, error) {
	if q.err != nil {
		return nil, q.err
	}
	left, ok := q.remaining[key]
	if !ok {
		left = 1
	}
	if left <= 0 {
		return &ratelimit.Result{Allowed: false, Limit: 1, RetryAfter: 1500 * time.Millisecond}, nil
	}
	q.remaining[key] = left - 1
	return &ratelimit.Result{Allowed: true, Limit: 1, Remaining: left - 1}, nil
}

func TestRateLimitedOnboarding(t *testing.T) {
	s := newTestServer(t)
	s.limiter = &quotaLimiter{remaining: map[string]int{}}

	owner := registerUser(t, s, "first@example.com")

	rec, env := do(t, s, http.MethodPost, "/v1/users", "", gin.H{"email": "second@example.com", "name": "second"})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "rate_limited", env.Error.Type)
	assert.Equal(t, "2", rec.Header().Get("Retry-After"))

	openShop(t, s, owner, "Corner Shop")
	rec, env = do(t, s, http.MethodPost, "/v1/onboarding/vendor", owner, gin.H{"store_name": "Another"})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "rate_limited", env.Error.Type)
}

func TestRateLimiterFailureLetsRequestThrough(t *testing.T) {
	s := newTestServer(t)
	s.limiter = &quotaLimiter{err: errors.New("redis down")}

	registerUser(t, s, "open@example.com")
}
