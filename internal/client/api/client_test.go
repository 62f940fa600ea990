package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/securehub/pkg/api"
)

// TestNewClient проверяет создание нового клиента
func TestNewClient(t *testing.T) {
	client := NewClient("http://localhost:8080/")

	assert.NotNil(t, client)
	assert.Equal(t, "http://localhost:8080", client.baseURL)
	assert.NotNil(t, client.httpClient)
	assert.Equal(t, 30*time.Second, client.httpClient.Timeout)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// TestClient_Register проверяет успешную регистрацию
func TestClient_Register(t *testing.T) {
	// Создаем mock сервер
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Проверяем метод и путь
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/auth/register", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Empty(t, r.Header.Get("Authorization"))

		var req api.RegisterRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "alice@example.com", req.Email)
		assert.Equal(t, "hr", req.Department)

		writeJSON(w, http.StatusCreated, api.RegisterResponse{
			Message: "registration successful",
			User:    api.User{ID: "user-123", Email: req.Email, Department: req.Department, Role: "employee"},
		})
	}))
	defer server.Close()

	client := NewClient(server.URL)

	resp, err := client.Register(context.Background(), api.RegisterRequest{
		Name:       "Alice",
		Email:      "alice@example.com",
		Password:   "secret123",
		Department: "hr",
	})

	require.NoError(t, err)
	assert.Equal(t, "user-123", resp.User.ID)
	assert.Equal(t, "employee", resp.User.Role)
}

// TestClient_Register_Error проверяет обработку ошибок при регистрации
func TestClient_Register_Error(t *testing.T) {
	tests := []struct {
		name          string
		body          string
		expectedError string
		statusCode    int
	}{
		{
			name:          "email taken",
			statusCode:    http.StatusBadRequest,
			body:          `{"error":"Bad Request","message":"email already registered"}`,
			expectedError: "server error (400): email already registered",
		},
		{
			name:          "error without message",
			statusCode:    http.StatusTooManyRequests,
			body:          `{"error":"Too Many Requests"}`,
			expectedError: "server error (429): Too Many Requests",
		},
		{
			name:          "plain text body",
			statusCode:    http.StatusBadGateway,
			body:          "upstream down\n",
			expectedError: "server error (502): upstream down",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.statusCode)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer server.Close()

			_, err := NewClient(server.URL).Register(context.Background(), api.RegisterRequest{})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.expectedError)
			assert.True(t, IsStatus(err, tt.statusCode))
		})
	}
}

func TestClient_Login(t *testing.T) {
	expires := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		handler       http.HandlerFunc
		name          string
		wantToken     string
		wantChallenge bool
		wantErr       bool
	}{
		{
			name: "trusted device",
			handler: func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusOK, api.SessionResponse{
					ExpiresAt: expires,
					Token:     "jwt-token",
					User:      api.User{ID: "u1"},
				})
			},
			wantToken: "jwt-token",
		},
		{
			name: "new device",
			handler: func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusForbidden, api.DeviceChallengeResponse{
					Status:   api.StatusDeviceOTPRequired,
					Message:  "New device detected. OTP sent to your email.",
					DeviceID: "dev-1",
				})
			},
			wantChallenge: true,
		},
		{
			name: "other forbidden",
			handler: func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusForbidden, api.ErrorResponse{Error: "Forbidden", Message: "nope"})
			},
			wantErr: true,
		},
		{
			name: "bad credentials",
			handler: func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusBadRequest, api.ErrorResponse{Error: "Bad Request", Message: "invalid credentials"})
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/api/auth/login", r.URL.Path)
				var req api.LoginRequest
				require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
				assert.Equal(t, "dev-1", req.DeviceID)
				tt.handler(w, r)
			}))
			defer server.Close()

			out, err := NewClient(server.URL).Login(context.Background(), api.LoginRequest{
				Email:    "alice@example.com",
				Password: "secret123",
				DeviceID: "dev-1",
			})
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)

			if tt.wantChallenge {
				require.NotNil(t, out.Challenge)
				assert.Nil(t, out.Session)
				assert.Equal(t, "dev-1", out.Challenge.DeviceID)
				return
			}
			require.NotNil(t, out.Session)
			assert.Equal(t, tt.wantToken, out.Session.Token)
			assert.True(t, expires.Equal(out.Session.ExpiresAt))
		})
	}
}

func TestClient_VerifyDeviceOTP(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/auth/verify-device-otp", r.URL.Path)

		var req api.VerifyDeviceOTPRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if req.OTPCode != "123456" {
			writeJSON(w, http.StatusBadRequest, api.ErrorResponse{Error: "Bad Request", Message: "invalid or expired OTP"})
			return
		}
		writeJSON(w, http.StatusOK, api.SessionResponse{Token: "jwt-token"})
	}))
	defer server.Close()

	client := NewClient(server.URL)
	ctx := context.Background()

	resp, err := client.VerifyDeviceOTP(ctx, api.VerifyDeviceOTPRequest{Email: "a@b.c", DeviceID: "d", OTPCode: "123456"})
	require.NoError(t, err)
	assert.Equal(t, "jwt-token", resp.Token)

	_, err = client.VerifyDeviceOTP(ctx, api.VerifyDeviceOTPRequest{Email: "a@b.c", DeviceID: "d", OTPCode: "000000"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid or expired OTP")
}

func TestClient_AuthorizedRequests(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer jwt-token" {
			writeJSON(w, http.StatusUnauthorized, api.ErrorResponse{Error: "Unauthorized", Message: "missing token"})
			return
		}
		switch r.Method + " " + r.URL.Path {
		case "GET /api/files":
			writeJSON(w, http.StatusOK, []api.File{{ID: "f1", Name: "report.pdf", ReceiverType: "department"}})
		case "GET /api/files/logs/all", "GET /api/files/logs/mine":
			writeJSON(w, http.StatusOK, []api.DownloadLog{{ID: "l1", FileID: "f1"}})
		case "GET /api/users":
			writeJSON(w, http.StatusOK, []api.User{{ID: "u1"}, {ID: "u2"}})
		case "DELETE /api/files/f1":
			writeJSON(w, http.StatusOK, api.MessageResponse{Message: "file deleted"})
		case "GET /api/admin/mail/dead-letters":
			assert.Equal(t, "5", r.URL.Query().Get("limit"))
			writeJSON(w, http.StatusOK, []api.DeadLetter{{ID: "m1", Attempts: 3}})
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	client := NewClient(server.URL)
	ctx := context.Background()

	files, err := client.ListFiles(ctx, "jwt-token")
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "report.pdf", files[0].Name)

	all, err := client.AllLogs(ctx, "jwt-token")
	require.NoError(t, err)
	assert.Len(t, all, 1)

	mine, err := client.MyLogs(ctx, "jwt-token")
	require.NoError(t, err)
	assert.Len(t, mine, 1)

	users, err := client.Users(ctx, "jwt-token")
	require.NoError(t, err)
	assert.Len(t, users, 2)

	require.NoError(t, client.DeleteFile(ctx, "jwt-token", "f1"))

	letters, err := client.DeadLetters(ctx, "jwt-token", 5)
	require.NoError(t, err)
	assert.Equal(t, 3, letters[0].Attempts)

	_, err = client.ListFiles(ctx, "")
	assert.True(t, IsStatus(err, http.StatusUnauthorized))
}

func TestClient_Upload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/files/upload", r.URL.Path)
		assert.Equal(t, "Bearer jwt-token", r.Header.Get("Authorization"))
		assert.True(t, strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data"))

		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "department", r.FormValue(api.FormReceiverType))
		assert.Equal(t, "sales", r.FormValue(api.FormReceiverDepartment))
		_, hasUser := r.MultipartForm.Value[api.FormReceiverUser]
		assert.False(t, hasUser)

		file, header, err := r.FormFile(api.FormFile)
		require.NoError(t, err)
		defer file.Close()
		content, _ := io.ReadAll(file)

		writeJSON(w, http.StatusOK, api.UploadResponse{
			Message: "file uploaded",
			File:    api.File{ID: "f1", Name: header.Filename, Size: int64(len(content))},
		})
	}))
	defer server.Close()

	resp, err := NewClient(server.URL).Upload(context.Background(), "jwt-token", UploadRequest{
		Content:            strings.NewReader("quarterly numbers"),
		FileName:           "q3.txt",
		ReceiverType:       "department",
		ReceiverDepartment: "sales",
	})
	require.NoError(t, err)
	assert.Equal(t, "q3.txt", resp.File.Name)
	assert.Equal(t, int64(len("quarterly numbers")), resp.File.Size)
}

func TestClient_Upload_TooLarge(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusRequestEntityTooLarge, api.ErrorResponse{Error: "Request Entity Too Large", Message: "file too large"})
	}))
	defer server.Close()

	_, err := NewClient(server.URL).Upload(context.Background(), "jwt-token", UploadRequest{
		Content:  bytes.NewReader(make([]byte, 1<<16)),
		FileName: "big.bin",
	})
	require.Error(t, err)
	assert.True(t, IsStatus(err, http.StatusRequestEntityTooLarge))
}

func TestClient_Download(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "dev-1", r.Header.Get(api.HeaderDeviceID))
		switch r.URL.Path {
		case "/api/files/f1/download":
			w.Header().Set("Content-Disposition", `attachment; filename*=utf-8''%D0%BE%D1%82%D1%87%D1%91%D1%82.txt`)
			_, _ = io.WriteString(w, "payload")
		default:
			writeJSON(w, http.StatusNotFound, api.ErrorResponse{Error: "Not Found", Message: "file not found"})
		}
	}))
	defer server.Close()

	client := NewClient(server.URL)
	ctx := context.Background()

	var buf bytes.Buffer
	name, err := client.Download(ctx, "jwt-token", "f1", "dev-1", &buf)
	require.NoError(t, err)
	assert.Equal(t, "отчёт.txt", name)
	assert.Equal(t, "payload", buf.String())

	buf.Reset()
	_, err = client.Download(ctx, "jwt-token", "missing", "dev-1", &buf)
	require.Error(t, err)
	assert.True(t, IsStatus(err, http.StatusNotFound))
	assert.Zero(t, buf.Len())
}

func TestAttachmentName(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{header: `attachment; filename="plain.txt"`, want: "plain.txt"},
		{header: `attachment; filename*=utf-8''a%20b.txt`, want: "a b.txt"},
		{header: "", want: ""},
		{header: "attachment; filename=", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			assert.Equal(t, tt.want, attachmentName(tt.header))
		})
	}
}

func TestClient_Health(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/health", r.URL.Path)
		writeJSON(w, http.StatusOK, api.HealthResponse{Status: "ok", Version: "1.2.3"})
	}))
	defer server.Close()

	resp, err := NewClient(server.URL).Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Status)
}
