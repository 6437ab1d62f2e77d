package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	optics "github.com/nanoncore/nano-optics"
	"github.com/nanoncore/nano-optics/drivers/mock"
	"github.com/nanoncore/nano-optics/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type testEnv struct {
	router http.Handler
	runner *mock.Runner
	cache  *optics.ConnectionCache
	logs   *observer.ObservedLogs
}

func newTestEnv(t *testing.T, cfg RouterConfig, defaults optics.Defaults) *testEnv {
	t.Helper()

	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(core)
	runner := mock.NewRunner()
	cache := optics.NewConnectionCache()
	svc := optics.NewService(optics.Config{Protocol: "telnet", Defaults: defaults}, cache,
		optics.WithRunner(runner),
		optics.WithLogger(logger),
	)

	return &testEnv{
		router: NewRouter(svc, cfg, logger),
		runner: runner,
		cache:  cache,
		logs:   logs,
	}
}

var envDefaults = optics.Defaults{
	Host:       "192.0.2.10",
	SSHPort:    22,
	TelnetPort: 23,
	Username:   "isadmin",
	Password:   "env-secret",
}

func (e *testEnv) do(method, target, body string, header map[string]string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, RouterConfig{AuthToken: "token"}, envDefaults)

	rec := env.do(http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.GreaterOrEqual(t, resp.Uptime, 0.0)
	assert.WithinDuration(t, time.Now(), resp.Timestamp, time.Minute)
}

func TestOpenAPI(t *testing.T) {
	env := newTestEnv(t, RouterConfig{}, envDefaults)

	rec := env.do(http.MethodGet, "/openapi.json", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	assert.Equal(t, "3.0.0", doc["openapi"])
	paths, ok := doc["paths"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, paths, "/health")
	assert.Contains(t, paths, "/connect")
	assert.Contains(t, paths, "/optics")
}

func TestOpticsSuccess(t *testing.T) {
	env := newTestEnv(t, RouterConfig{}, envDefaults)
	env.runner.SetOutput("show equipment ont optics ont-id 1/1/3/2/1", "ONT 1/1/3/2/1 optics\n  RX: -19.8 dBm\n  TX: -0.5 dBm\nOK")

	rec := env.do(http.MethodGet, "/optics?ont=1/1/3/2/1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var reading types.OpticsReading
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reading))
	assert.Equal(t, "1/1/3/2/1", reading.ONTPath)
	require.NotNil(t, reading.RxDBm)
	assert.InDelta(t, -19.8, *reading.RxDBm, 1e-9)
	require.NotNil(t, reading.ExitCode)
	assert.Equal(t, 0, *reading.ExitCode)
	assert.Contains(t, reading.Raw, "RX: -19.8 dBm")
}

func TestOpticsNullReading(t *testing.T) {
	env := newTestEnv(t, RouterConfig{}, envDefaults)
	env.runner.SetOutput("show equipment ont optics ont-id 1/1/1/1/1", "no signal data")

	rec := env.do(http.MethodGet, "/optics?ont=1/1/1/1/1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body, "rxDbm")
	assert.Nil(t, body["rxDbm"])
}

func TestOpticsValidation(t *testing.T) {
	tests := []struct {
		name    string
		target  string
		message string
	}{
		{"missing", "/optics", `Query parameter "ont" is required (e.g. 1/1/3/2/1)`},
		{"blank", "/optics?ont=%20%20", `Query parameter "ont" is required (e.g. 1/1/3/2/1)`},
		{"malformed", "/optics?ont=abc", "ONT path must match pattern shelf/slot/pon/ont/x (e.g. 1/1/3/2/1)"},
		{"too short", "/optics?ont=1/1/3/2", "ONT path must match pattern shelf/slot/pon/ont/x (e.g. 1/1/3/2/1)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, RouterConfig{}, envDefaults)

			rec := env.do(http.MethodGet, tt.target, "", map[string]string{RequestIDHeader: "req-123"})
			require.Equal(t, http.StatusBadRequest, rec.Code)

			resp := decodeError(t, rec)
			assert.Equal(t, "INVALID_ONT", resp.Error.Code)
			assert.Equal(t, tt.message, resp.Error.Message)
			assert.Equal(t, "req-123", resp.RequestID)
			assert.Empty(t, env.runner.Calls())
			assert.Equal(t, 1, env.logs.FilterMessage("Request failed with client error").Len())
		})
	}
}

func TestOpticsMissingCredentials(t *testing.T) {
	env := newTestEnv(t, RouterConfig{}, optics.Defaults{TelnetPort: 23})

	rec := env.do(http.MethodGet, "/optics?ont=1/1/3/2/1", "", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "MISSING_CREDENTIALS", decodeError(t, rec).Error.Code)
}

func TestOpticsTransportFailures(t *testing.T) {
	tests := []struct {
		kind   types.ErrorKind
		status int
	}{
		{types.ErrTelnetConnection, http.StatusBadGateway},
		{types.ErrTelnetCommand, http.StatusBadGateway},
		{types.ErrTelnetTimeout, http.StatusGatewayTimeout},
		{types.ErrSSHExec, http.StatusBadGateway},
		{types.ErrSSHTimeout, http.StatusGatewayTimeout},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			env := newTestEnv(t, RouterConfig{}, envDefaults)
			env.runner.SetError(types.NewError(tt.kind, "OLT unreachable", nil))

			rec := env.do(http.MethodGet, "/optics?ont=1/1/3/2/1", "", nil)
			require.Equal(t, tt.status, rec.Code)

			resp := decodeError(t, rec)
			assert.Equal(t, string(tt.kind), resp.Error.Code)
			assert.Equal(t, "OLT unreachable", resp.Error.Message)
			assert.NotEmpty(t, resp.RequestID)
			assert.Equal(t, rec.Header().Get(RequestIDHeader), resp.RequestID)
			assert.Equal(t, 1, env.logs.FilterMessage("Unhandled error while processing request").Len())
		})
	}
}

func TestConnectCachesVerifiedConnection(t *testing.T) {
	env := newTestEnv(t, RouterConfig{}, envDefaults)

	rec := env.do(http.MethodPost, "/connect", `{"host":"192.0.2.50","port":2323,"username":"operator","password":"req-secret"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"ok":true}`, rec.Body.String())

	cached, ok := env.cache.Load()
	require.True(t, ok)
	assert.Equal(t, types.ConnectionParams{Host: "192.0.2.50", Port: 2323, Username: "operator", Password: "req-secret"}, cached)

	// Later optics calls reuse the cached connection
	rec = env.do(http.MethodGet, "/optics?ont=1/1/3/2/1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	calls := env.runner.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "show version", calls[0].Command)
	assert.Equal(t, cached, calls[1].Params)

	for _, entry := range env.logs.All() {
		for _, v := range entry.ContextMap() {
			if s, ok := v.(string); ok {
				assert.NotContains(t, s, "req-secret")
			}
		}
	}
}

func TestConnectEmptyBodyUsesDefaults(t *testing.T) {
	env := newTestEnv(t, RouterConfig{}, envDefaults)

	rec := env.do(http.MethodPost, "/connect", "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	calls := env.runner.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, types.ConnectionParams{Host: "192.0.2.10", Port: 23, Username: "isadmin", Password: "env-secret"}, calls[0].Params)

	// No password in the request means none is cached
	cached, ok := env.cache.Load()
	require.True(t, ok)
	assert.Equal(t, "", cached.Password)
	assert.Equal(t, "192.0.2.10", cached.Host)
}

func TestConnectValidation(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		code    string
		message string
	}{
		{"bad json", `{"host":`, "INVALID_BODY", "Invalid JSON body"},
		{"port too large", `{"port":70000}`, "VALIDATION_ERROR", "port must be between 1 and 65535"},
		{"negative port", `{"port":-1}`, "VALIDATION_ERROR", "port must be between 1 and 65535"},
		{"bad host", `{"host":"not a host!"}`, "VALIDATION_ERROR", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, RouterConfig{}, envDefaults)

			rec := env.do(http.MethodPost, "/connect", tt.body, nil)
			require.Equal(t, http.StatusBadRequest, rec.Code)
			resp := decodeError(t, rec)
			assert.Equal(t, tt.code, resp.Error.Code)
			if tt.message != "" {
				assert.Equal(t, tt.message, resp.Error.Message)
			}
			assert.Empty(t, env.runner.Calls())
		})
	}
}

func TestConnectFailureDoesNotCache(t *testing.T) {
	env := newTestEnv(t, RouterConfig{}, envDefaults)
	env.runner.SetError(types.NewError(types.ErrTelnetConnection, "failed to connect to OLT over Telnet", nil))

	rec := env.do(http.MethodPost, "/connect", `{"password":"req-secret"}`, nil)
	require.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "TELNET_CONNECTION_ERROR", decodeError(t, rec).Error.Code)

	_, ok := env.cache.Load()
	assert.False(t, ok)
}

func TestBearerAuth(t *testing.T) {
	tests := []struct {
		name   string
		header string
		status int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic s3cr3t", http.StatusUnauthorized},
		{"wrong token", "Bearer nope", http.StatusUnauthorized},
		{"no separator", "Bearers3cr3t", http.StatusUnauthorized},
		{"valid", "Bearer s3cr3t", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, RouterConfig{AuthToken: "s3cr3t"}, envDefaults)

			header := map[string]string{}
			if tt.header != "" {
				header["Authorization"] = tt.header
			}
			rec := env.do(http.MethodGet, "/optics?ont=1/1/3/2/1", "", header)
			require.Equal(t, tt.status, rec.Code)

			if tt.status == http.StatusUnauthorized {
				resp := decodeError(t, rec)
				assert.Equal(t, "UNAUTHORIZED", resp.Error.Code)
				assert.Equal(t, "Missing or invalid API token", resp.Error.Message)
				assert.Equal(t, 1, env.logs.FilterMessage("Unauthorized request rejected").Len())
				assert.Empty(t, env.runner.Calls())
			}
		})
	}
}

func TestAuthDisabledWithoutToken(t *testing.T) {
	env := newTestEnv(t, RouterConfig{}, envDefaults)

	rec := env.do(http.MethodPost, "/connect", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestNotFound(t *testing.T) {
	env := newTestEnv(t, RouterConfig{}, envDefaults)

	rec := env.do(http.MethodGet, "/nope", "", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	resp := decodeError(t, rec)
	assert.Equal(t, "NOT_FOUND", resp.Error.Code)
	assert.Equal(t, "Route not found", resp.Error.Message)
}

func TestRequestLogging(t *testing.T) {
	t.Run("enabled", func(t *testing.T) {
		env := newTestEnv(t, RouterConfig{RequestLogging: true}, envDefaults)
		env.do(http.MethodGet, "/health", "", map[string]string{RequestIDHeader: "abc"})

		entries := env.logs.FilterMessage("http_request").All()
		require.Len(t, entries, 1)
		fields := entries[0].ContextMap()
		assert.Equal(t, "abc", fields["requestId"])
		assert.Equal(t, "/health", fields["path"])
		assert.Equal(t, int64(http.StatusOK), fields["status"])
	})

	t.Run("disabled", func(t *testing.T) {
		env := newTestEnv(t, RouterConfig{RequestLogging: false}, envDefaults)
		env.do(http.MethodGet, "/health", "", nil)
		assert.Zero(t, env.logs.FilterMessage("http_request").Len())
	})
}

func TestCORS(t *testing.T) {
	env := newTestEnv(t, RouterConfig{FrontendOrigin: "http://localhost:3000", AllowRequestCredentials: true}, envDefaults)

	rec := env.do(http.MethodOptions, "/connect", "", map[string]string{
		"Origin":                        "http://localhost:3000",
		"Access-Control-Request-Method": "POST",
	})
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))

	rec = env.do(http.MethodGet, "/health", "", map[string]string{"Origin": "http://evil.example"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRecovery(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	handler := RequestID(Recovery(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "INTERNAL_SERVER_ERROR", decodeError(t, rec).Error.Code)
	assert.Equal(t, 1, logs.FilterMessage("Panic recovered").Len())
}
