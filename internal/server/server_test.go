package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/securehub/internal/server/auth"
	"github.com/iudanet/securehub/internal/server/blob"
	"github.com/iudanet/securehub/internal/server/files"
	"github.com/iudanet/securehub/internal/server/jwt"
	"github.com/iudanet/securehub/internal/server/mailer"
	"github.com/iudanet/securehub/internal/server/metrics"
	"github.com/iudanet/securehub/internal/server/middleware"
	"github.com/iudanet/securehub/internal/server/notify"
	"github.com/iudanet/securehub/internal/server/storage/sqlite"
	"github.com/iudanet/securehub/pkg/api"
)

const testPassword = "password123"

// capturingQueue хранит письма вместо отправки
type capturingQueue struct {
	messages []mailer.Message
	mu       sync.Mutex
}

func (q *capturingQueue) Enqueue(_ context.Context, msg mailer.Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.messages = append(q.messages, msg)
	return nil
}

// lastCode извлекает OTP из последнего письма получателю
func (q *capturingQueue) lastCode(t *testing.T, to string) string {
	t.Helper()
	q.mu.Lock()
	defer q.mu.Unlock()
	for i := len(q.messages) - 1; i >= 0; i-- {
		if q.messages[i].To != to {
			continue
		}
		_, rest, ok := strings.Cut(q.messages[i].Body, "Your OTP is: ")
		require.True(t, ok)
		code, _, _ := strings.Cut(rest, "\n")
		return code
	}
	t.Fatalf("no mail sent to %s", to)
	return ""
}

type testServer struct {
	*httptest.Server
	handler http.Handler
	authSvc *auth.Service
	mail    *capturingQueue
	metrics *metrics.Metrics
}

func setupTestServer(t *testing.T) *testServer {
	t.Helper()
	return setupTestServerWith(t, Config{Version: "test", AuthRateLimit: 100, AuthRateWindow: time.Minute})
}

func setupTestServerWith(t *testing.T, cfg Config) *testServer {
	t.Helper()
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	store, err := sqlite.New(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	blobs, err := blob.NewLocal(t.TempDir())
	require.NoError(t, err)

	m := metrics.New()
	mail := &capturingQueue{}
	authSvc := auth.NewService(logger, store, store, store, jwt.NewService("test-secret", time.Hour), mail,
		auth.WithMetrics(m))
	hub := notify.NewHub(logger, authSvc)
	filesSvc := files.NewService(logger, store, store, store, blobs, hub, m)

	handler := NewRouter(cfg, Deps{
		Logger:      logger,
		Auth:        authSvc,
		Files:       filesSvc,
		DeadLetters: store,
		DB:          store,
		Realtime:    hub,
		Metrics:     m,
	}, NewAuthRateLimits(cfg, logger))

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return &testServer{Server: srv, handler: handler, authSvc: authSvc, mail: mail, metrics: m}
}

func (s *testServer) do(t *testing.T, method, path, token string, body io.Reader, contentType string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, s.URL+path, body)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := s.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func (s *testServer) postJSON(t *testing.T, path string, v any) *http.Response {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return s.do(t, http.MethodPost, path, "", bytes.NewReader(data), "application/json")
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

// signIn проходит вход с подтверждением устройства и возвращает токен
func (s *testServer) signIn(t *testing.T, email, deviceID string) string {
	t.Helper()
	resp := s.postJSON(t, "/api/auth/login", api.LoginRequest{Email: email, Password: testPassword, DeviceID: deviceID})
	if resp.StatusCode == http.StatusOK {
		return decode[api.SessionResponse](t, resp).Token
	}
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	challenge := decode[api.DeviceChallengeResponse](t, resp)
	require.Equal(t, api.StatusDeviceOTPRequired, challenge.Status)

	resp = s.postJSON(t, "/api/auth/verify-device-otp", api.VerifyDeviceOTPRequest{
		Email:    email,
		DeviceID: deviceID,
		OTPCode:  s.mail.lastCode(t, email),
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	return decode[api.SessionResponse](t, resp).Token
}

func (s *testServer) register(t *testing.T, name, email, dept string) {
	t.Helper()
	resp := s.postJSON(t, "/api/auth/register", api.RegisterRequest{Name: name, Email: email, Password: testPassword, Department: dept})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
}

func (s *testServer) upload(t *testing.T, token, name, content string, fields map[string]string) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	fw, err := mw.CreateFormFile(api.FormFile, name)
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return s.do(t, http.MethodPost, "/api/files/upload", token, &buf, mw.FormDataContentType())
}

func TestServer_Health(t *testing.T) {
	s := setupTestServer(t)

	resp := s.do(t, http.MethodGet, "/api/health", "", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	health := decode[api.HealthResponse](t, resp)
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, "test", health.Version)
}

func TestServer_ProtectedRoutesRequireToken(t *testing.T) {
	s := setupTestServer(t)

	for _, route := range []struct{ method, path string }{
		{http.MethodGet, "/api/files"},
		{http.MethodPost, "/api/files/upload"},
		{http.MethodGet, "/api/files/abc/download"},
		{http.MethodDelete, "/api/files/abc"},
		{http.MethodGet, "/api/files/logs/all"},
		{http.MethodGet, "/api/files/logs/mine"},
		{http.MethodGet, "/api/users"},
		{http.MethodGet, "/api/admin/mail/dead-letters"},
	} {
		t.Run(route.method+" "+route.path, func(t *testing.T) {
			resp := s.do(t, route.method, route.path, "", nil, "")
			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		})
	}
}

// Полный сценарий: админ делится файлом с HR, видит его только HR,
// каждое скачивание попадает в журнал.
func TestServer_DepartmentShareScenario(t *testing.T) {
	s := setupTestServer(t)
	ctx := context.Background()

	_, err := s.authSvc.CreateAdmin(ctx, "Root", "root@example.com", testPassword)
	require.NoError(t, err)
	s.register(t, "Alice", "alice@example.com", "hr")
	s.register(t, "Bob", "bob@example.com", "sales")

	adminToken := s.signIn(t, "root@example.com", "admin-laptop")
	aliceToken := s.signIn(t, "alice@example.com", "alice-laptop")
	bobToken := s.signIn(t, "bob@example.com", "bob-laptop")

	// Админ входит без OTP
	assert.Len(t, s.mail.messages, 2)

	resp := s.upload(t, adminToken, "policy.pdf", "hr only", map[string]string{
		api.FormReceiverType:       "department",
		api.FormReceiverDepartment: "hr",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	uploaded := decode[api.UploadResponse](t, resp)
	fileID := uploaded.File.ID

	resp = s.do(t, http.MethodGet, "/api/files", bobToken, nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, decode[[]api.File](t, resp))

	resp = s.do(t, http.MethodGet, "/api/files", aliceToken, nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decode[[]api.File](t, resp)
	require.Len(t, list, 1)
	assert.Equal(t, "policy.pdf", list[0].Name)

	resp = s.do(t, http.MethodGet, "/api/files/"+fileID+"/download", bobToken, nil, "")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = s.do(t, http.MethodGet, "/api/files/"+fileID+"/download", aliceToken, nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "hr only", string(body))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "policy.pdf")

	resp = s.do(t, http.MethodGet, "/api/files/logs/all", aliceToken, nil, "")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = s.do(t, http.MethodGet, "/api/files/logs/all", adminToken, nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	logs := decode[[]api.DownloadLog](t, resp)
	require.Len(t, logs, 1, "forbidden download must not be logged")
	assert.Equal(t, "alice@example.com", logs[0].UserEmail)

	resp = s.do(t, http.MethodGet, "/api/files/logs/mine", aliceToken, nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decode[[]api.DownloadLog](t, resp), 1)

	resp = s.do(t, http.MethodDelete, "/api/files/"+fileID, aliceToken, nil, "")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = s.do(t, http.MethodDelete, "/api/files/"+fileID, adminToken, nil, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = s.do(t, http.MethodGet, "/api/files/"+fileID+"/download", aliceToken, nil, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = s.do(t, http.MethodGet, "/api/users", bobToken, nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decode[[]api.User](t, resp), 3)

	resp = s.do(t, http.MethodGet, "/api/admin/mail/dead-letters", bobToken, nil, "")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp = s.do(t, http.MethodGet, "/api/admin/mail/dead-letters", adminToken, nil, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServer_AuthRateLimitIgnoresSpoofedForwardedFor(t *testing.T) {
	s := setupTestServerWith(t, Config{Version: "test", AuthRateLimit: 10, AuthRateWindow: time.Minute})

	limited := 0
	for i := 0; i < 1000; i++ {
		req := httptest.NewRequest(http.MethodPost, VerifyOTPPath,
			strings.NewReader(`{"email":"alice@example.com","deviceId":"dev1","otpCode":"000000"}`))
		req.RemoteAddr = "203.0.113.7:40000"
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("198.51.%d.%d", i/256, i%256))
		w := httptest.NewRecorder()
		s.handler.ServeHTTP(w, req)
		if w.Code == http.StatusTooManyRequests {
			limited++
		}
	}
	// На подтверждение OTP приходится половина лимита
	assert.Equal(t, 995, limited)
}

func TestServer_DownloadAuditClientIP(t *testing.T) {
	trusted, err := middleware.ParseTrustedProxies([]string{"127.0.0.1"})
	require.NoError(t, err)

	tests := []struct {
		name     string
		trusted  []netip.Prefix
		expected string
	}{
		{name: "forwarding headers ignored by default", expected: "127.0.0.1"},
		{name: "trusted proxy forwards client", trusted: trusted, expected: "198.51.100.23"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := setupTestServerWith(t, Config{
				Version:        "test",
				AuthRateLimit:  100,
				AuthRateWindow: time.Minute,
				TrustedProxies: tt.trusted,
			})
			ctx := context.Background()
			_, err := s.authSvc.CreateAdmin(ctx, "Root", "root@example.com", testPassword)
			require.NoError(t, err)
			token := s.signIn(t, "root@example.com", "admin-laptop")

			resp := s.upload(t, token, "a.txt", "x", map[string]string{api.FormReceiverType: "everyone"})
			require.Equal(t, http.StatusOK, resp.StatusCode)
			fileID := decode[api.UploadResponse](t, resp).File.ID

			req, err := http.NewRequest(http.MethodGet, s.URL+"/api/files/"+fileID+"/download", nil)
			require.NoError(t, err)
			req.Header.Set("Authorization", "Bearer "+token)
			req.Header.Set("X-Forwarded-For", "198.51.100.23")
			resp, err = s.Client().Do(req)
			require.NoError(t, err)
			_ = resp.Body.Close()
			require.Equal(t, http.StatusOK, resp.StatusCode)

			resp = s.do(t, http.MethodGet, "/api/files/logs/all", token, nil, "")
			require.Equal(t, http.StatusOK, resp.StatusCode)
			logs := decode[[]api.DownloadLog](t, resp)
			require.Len(t, logs, 1)
			assert.Equal(t, tt.expected, logs[0].IPAddress)
		})
	}
}

func TestServer_Metrics(t *testing.T) {
	s := setupTestServer(t)

	_ = s.do(t, http.MethodGet, "/api/health", "", nil, "")

	resp := s.do(t, http.MethodGet, "/metrics", "", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `securehub_http_requests_total{code="200",method="GET",route="/api/health"} 1`)
}

func TestServer_ServeStopsOnContextCancel(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := New(Config{ShutdownTimeout: time.Second}, Deps{Logger: logger})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	// Сервер принимает соединения до отмены контекста
	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/api/nope")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusNotFound
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not stop")
	}
}
