package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/satgate/satgate/internal/apikey"
	"github.com/satgate/satgate/internal/authz"
	"github.com/satgate/satgate/internal/challenge"
	"github.com/satgate/satgate/internal/clock"
	"github.com/satgate/satgate/internal/config"
	"github.com/satgate/satgate/internal/earner"
	"github.com/satgate/satgate/internal/gateway"
	"github.com/satgate/satgate/internal/metricspush"
	"github.com/satgate/satgate/internal/migration"
	"github.com/satgate/satgate/internal/observability"
	"github.com/satgate/satgate/internal/payout"
	"github.com/satgate/satgate/internal/proxy"
	"github.com/satgate/satgate/internal/rail"
	raildomain "github.com/satgate/satgate/internal/rail/domain"
	"github.com/satgate/satgate/internal/rail/simulated"
	"github.com/satgate/satgate/internal/ratelimit"
	"github.com/satgate/satgate/internal/requestlog"
	"github.com/satgate/satgate/internal/seed"
	"github.com/satgate/satgate/internal/server"
	"github.com/satgate/satgate/internal/session"
	"github.com/satgate/satgate/internal/topup"
	"github.com/satgate/satgate/internal/voucher"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

type testEnv struct {
	app     *fx.App
	server  *server.Server
	db      *gorm.DB
	cfg     config.Config
	rail    *simulated.Client
	baseURL string
	httpSrv *httptest.Server
}

var env *testEnv

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	setDefaultEnv()

	var err error
	env, err = startEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to start test environment:", err)
		os.Exit(1)
	}

	code := m.Run()
	env.shutdown()
	os.Exit(code)
}

func startEnv() (*testEnv, error) {
	var (
		srv        *server.Server
		dbConn     *gorm.DB
		cfg        config.Config
		railClient raildomain.Client
	)

	app := fx.New(
		observability.Module,
		config.Module,
		clock.Module,
		metricspush.Module,
		authz.Module,
		rail.Module,
		ratelimit.Module,
		voucher.Module,
		apikey.Module,
		earner.Module,
		session.Module,
		gateway.Module,
		topup.Module,
		payout.Module,
		requestlog.Module,
		challenge.Module,
		proxy.Module,
		fx.Provide(newTestDB),
		fx.Provide(func() *snowflake.Node {
			node, err := snowflake.NewNode(1)
			if err != nil {
				panic(err)
			}
			return node
		}),
		fx.Provide(server.NewEngine),
		fx.Provide(server.NewServer),
		migration.Module,
		fx.Populate(&srv, &dbConn, &cfg, &railClient),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := app.Start(ctx); err != nil {
		return nil, err
	}

	sim, ok := railClient.(*simulated.Client)
	if !ok {
		app.Stop(context.Background())
		return nil, fmt.Errorf("expected simulated rail, got %s", railClient.Name())
	}

	httpSrv := httptest.NewServer(srv.Engine())

	return &testEnv{
		app:     app,
		server:  srv,
		db:      dbConn,
		cfg:     cfg,
		rail:    sim,
		baseURL: httpSrv.URL,
		httpSrv: httpSrv,
	}, nil
}

func (e *testEnv) shutdown() {
	if e == nil {
		return
	}
	if e.httpSrv != nil {
		e.httpSrv.Close()
	}
	if e.app != nil {
		_ = e.app.Stop(context.Background())
	}
}

// newTestDB opens an in-memory database shared by the whole suite. A single
// connection keeps the memory store alive across requests.
func newTestDB() (*gorm.DB, error) {
	dsn := fmt.Sprintf("file:e2e_%d?mode=memory&cache=shared", time.Now().UnixNano())
	dbConn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, err
	}
	sqlDB, err := dbConn.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	return dbConn, nil
}

func setDefaultEnv() {
	setEnvIfEmpty("ENVIRONMENT", "test")
	setEnvIfEmpty("DATABASE_TYPE", "sqlite")
	setEnvIfEmpty("LOG_LEVEL", "error")
	setEnvIfEmpty("PLATFORM_PAYOUT_ADDRESS", "platform@sats.test")
}

func setEnvIfEmpty(key, value string) {
	if strings.TrimSpace(os.Getenv(key)) != "" {
		return
	}
	_ = os.Setenv(key, value)
}

// resetDatabase clears the domain tables and reseeds the platform account.
// Authorization groupings rebuild themselves on the next policy check, so
// the casbin tables stay untouched.
func resetDatabase(t *testing.T, dbConn *gorm.DB) {
	t.Helper()
	for _, table := range []string{
		"request_logs",
		"payouts",
		"topups",
		"api_keys",
		"gateways",
		"sessions",
		"earners",
	} {
		if err := dbConn.Exec("DELETE FROM " + table).Error; err != nil {
			t.Fatalf("clear %s: %v", table, err)
		}
	}
	if err := seed.EnsurePlatform(dbConn, env.cfg.PlatformPayoutAddress); err != nil {
		t.Fatalf("seed platform account: %v", err)
	}
}

func TestE2E_HealthAndReady(t *testing.T) {
	for _, path := range []string{"/health", "/ready"} {
		resp, err := http.Get(env.baseURL + path)
		if err != nil {
			t.Fatalf("%s request failed: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("%s: expected status 200, got %d", path, resp.StatusCode)
		}
	}
}

func TestE2E_PlatformAccountSeeded(t *testing.T) {
	resetDatabase(t, env.db)

	platform := struct {
		ID            snowflake.ID
		Role          string
		PayoutAddress string
	}{}
	if err := env.db.Raw(
		`SELECT id, role, payout_address FROM earners WHERE is_platform = ?`, true,
	).Scan(&platform).Error; err != nil {
		t.Fatalf("query platform account: %v", err)
	}
	if platform.ID == 0 {
		t.Fatalf("platform account not seeded")
	}
	if platform.Role != "admin" {
		t.Fatalf("expected platform role admin, got %q", platform.Role)
	}
	if platform.PayoutAddress != "platform@sats.test" {
		t.Fatalf("unexpected platform payout address %q", platform.PayoutAddress)
	}
}

// registerEarner signs up a fresh account and returns its raw API key.
func registerEarner(t *testing.T, name string) (string, string) {
	t.Helper()

	req := map[string]any{
		"name":           name,
		"payout_address": "earner@sats.test",
	}
	resp, body := doJSON(t, http.MethodPost, env.baseURL+"/v1/earners", req, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register earner failed: %d: %s", resp.StatusCode, string(body))
	}

	var payload struct {
		Data struct {
			Earner struct {
				ID string `json:"id"`
			} `json:"earner"`
			APIKey string `json:"api_key"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("decode register response: %v", err)
	}
	if strings.TrimSpace(payload.Data.APIKey) == "" {
		t.Fatalf("expected an api key in the register response")
	}
	return payload.Data.APIKey, payload.Data.Earner.ID
}

// createGateway registers an upstream behind the paywall and returns its id.
func createGateway(t *testing.T, apiKey string, req map[string]any) string {
	t.Helper()

	headers := map[string]string{"Authorization": "Bearer " + apiKey}
	resp, body := doJSON(t, http.MethodPost, env.baseURL+"/v1/gateways", req, headers)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create gateway failed: %d: %s", resp.StatusCode, string(body))
	}

	var payload struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("decode gateway response: %v", err)
	}
	if strings.TrimSpace(payload.Data.ID) == "" {
		t.Fatalf("expected a gateway id")
	}
	return payload.Data.ID
}

func createSession(t *testing.T) (string, string) {
	t.Helper()

	resp, body := doJSON(t, http.MethodPost, env.baseURL+"/v1/sessions", map[string]any{"name": "e2e session"}, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create session failed: %d: %s", resp.StatusCode, string(body))
	}

	var payload struct {
		Data struct {
			SessionID string `json:"session_id"`
			Token     string `json:"token"`
			Balance   int64  `json:"balance"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("decode session response: %v", err)
	}
	if !strings.HasPrefix(payload.Data.Token, "st_") {
		t.Fatalf("expected an st_ token, got %q", payload.Data.Token)
	}
	if payload.Data.Balance != 0 {
		t.Fatalf("expected a fresh session to start empty, got %d", payload.Data.Balance)
	}
	return payload.Data.Token, payload.Data.SessionID
}

// fundSession tops up a session and polls the invoice once. The simulated
// rail settles immediately, so one poll both confirms and credits.
func fundSession(t *testing.T, token string, amount int64) int64 {
	t.Helper()

	req := map[string]any{"session_token": token, "amount": amount}
	resp, body := doJSON(t, http.MethodPost, env.baseURL+"/v1/topups", req, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create topup failed: %d: %s", resp.StatusCode, string(body))
	}

	var created struct {
		Data struct {
			TopupID        string `json:"topup_id"`
			Status         string `json:"status"`
			PaymentRequest string `json:"payment_request"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &created); err != nil {
		t.Fatalf("decode topup response: %v", err)
	}
	if created.Data.Status != "pending" {
		t.Fatalf("expected a pending topup, got %q", created.Data.Status)
	}
	if !strings.HasPrefix(created.Data.PaymentRequest, "lnsim1") {
		t.Fatalf("expected a simulated invoice, got %q", created.Data.PaymentRequest)
	}

	resp, body = doJSON(t, http.MethodGet, env.baseURL+"/v1/topups/"+created.Data.TopupID, nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("poll topup failed: %d: %s", resp.StatusCode, string(body))
	}
	var polled struct {
		Status     string `json:"status"`
		NewBalance int64  `json:"new_balance"`
	}
	if err := json.Unmarshal(body, &polled); err != nil {
		t.Fatalf("decode topup status: %v", err)
	}
	if polled.Status != "paid" {
		t.Fatalf("expected a paid topup, got %q", polled.Status)
	}
	return polled.NewBalance
}

func countRows(t *testing.T, dbConn *gorm.DB, table string, where string, args ...any) int64 {
	t.Helper()
	var count int64
	if err := dbConn.Table(table).Where(where, args...).Count(&count).Error; err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return count
}

func doJSON(t *testing.T, method, reqURL string, payload any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("encode json: %v", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, reqURL, body)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	return resp, data
}
