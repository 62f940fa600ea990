package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/iudanet/securehub/pkg/api"
)

// APIError ответ сервера со статусом вне 2xx
type APIError struct {
	Message    string
	StatusCode int
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server error (%d)", e.StatusCode)
	}
	return fmt.Sprintf("server error (%d): %s", e.StatusCode, e.Message)
}

// IsStatus reports whether err is an APIError with the given status code
func IsStatus(err error, code int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == code
}

// LoginOutcome результат входа: либо сессия, либо требование подтвердить устройство
type LoginOutcome struct {
	Session   *api.SessionResponse
	Challenge *api.DeviceChallengeResponse
}

// UploadRequest параметры загрузки файла
type UploadRequest struct {
	Content            io.Reader
	FileName           string
	ReceiverType       string // everyone | department | user
	ReceiverDepartment string
	ReceiverUser       string
}

// Client представляет HTTP клиент для взаимодействия с сервером
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// NewClient создает новый API клиент
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			// Настройка обработки редиректов
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				// Ограничиваем количество редиректов
				if len(via) >= 10 {
					return fmt.Errorf("stopped after 10 redirects")
				}
				// Копируем заголовки Authorization при редиректе
				if len(via) > 0 && via[0].Header.Get("Authorization") != "" {
					req.Header.Set("Authorization", via[0].Header.Get("Authorization"))
				}
				return nil
			},
		},
	}
}

// Health проверяет доступность сервера
func (c *Client) Health(ctx context.Context) (*api.HealthResponse, error) {
	var resp api.HealthResponse
	if err := c.doJSON(ctx, http.MethodGet, "/api/health", "", nil, &resp); err != nil {
		return nil, fmt.Errorf("health request failed: %w", err)
	}
	return &resp, nil
}

// Register регистрирует нового пользователя
func (c *Client) Register(ctx context.Context, req api.RegisterRequest) (*api.RegisterResponse, error) {
	var resp api.RegisterResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/auth/register", "", req, &resp); err != nil {
		return nil, fmt.Errorf("register request failed: %w", err)
	}
	return &resp, nil
}

// Login выполняет аутентификацию пользователя.
// 403 с DEVICE_OTP_REQUIRED не ошибка: возвращается Challenge.
func (c *Client) Login(ctx context.Context, req api.LoginRequest) (*LoginOutcome, error) {
	resp, err := c.send(ctx, http.MethodPost, "/api/auth/login", "", req)
	if err != nil {
		return nil, fmt.Errorf("login request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode == http.StatusForbidden {
		var challenge api.DeviceChallengeResponse
		if err := json.Unmarshal(body, &challenge); err == nil && challenge.Status == api.StatusDeviceOTPRequired {
			return &LoginOutcome{Challenge: &challenge}, nil
		}
	}

	var session api.SessionResponse
	if err := decodeBody(resp.StatusCode, body, &session); err != nil {
		return nil, fmt.Errorf("login request failed: %w", err)
	}
	return &LoginOutcome{Session: &session}, nil
}

// VerifyDeviceOTP подтверждает устройство кодом из письма
func (c *Client) VerifyDeviceOTP(ctx context.Context, req api.VerifyDeviceOTPRequest) (*api.SessionResponse, error) {
	var resp api.SessionResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/auth/verify-device-otp", "", req, &resp); err != nil {
		return nil, fmt.Errorf("verify device request failed: %w", err)
	}
	return &resp, nil
}

// ListFiles возвращает файлы, видимые текущему пользователю
func (c *Client) ListFiles(ctx context.Context, token string) ([]api.File, error) {
	var resp []api.File
	if err := c.doJSON(ctx, http.MethodGet, "/api/files", token, nil, &resp); err != nil {
		return nil, fmt.Errorf("list files request failed: %w", err)
	}
	return resp, nil
}

// Upload загружает файл multipart-запросом.
// Тело формируется через pipe, файл целиком в память не читается.
func (c *Client) Upload(ctx context.Context, token string, req UploadRequest) (*api.UploadResponse, error) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		pw.CloseWithError(writeUploadForm(mw, req))
	}()

	httpReq, err := c.newRequest(ctx, http.MethodPost, "/api/files/upload", token, pr)
	if err != nil {
		_ = pr.Close()
		return nil, fmt.Errorf("upload request failed: %w", err)
	}
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		_ = pr.Close()
		return nil, fmt.Errorf("upload request failed: %w", err)
	}

	var out api.UploadResponse
	if err := readResponse(resp, &out); err != nil {
		return nil, fmt.Errorf("upload request failed: %w", err)
	}
	return &out, nil
}

func writeUploadForm(mw *multipart.Writer, req UploadRequest) error {
	fields := []struct{ name, value string }{
		{api.FormReceiverType, req.ReceiverType},
		{api.FormReceiverDepartment, req.ReceiverDepartment},
		{api.FormReceiverUser, req.ReceiverUser},
	}
	for _, f := range fields {
		if f.value == "" {
			continue
		}
		if err := mw.WriteField(f.name, f.value); err != nil {
			return err
		}
	}

	part, err := mw.CreateFormFile(api.FormFile, req.FileName)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, req.Content); err != nil {
		return err
	}
	return mw.Close()
}

// Download скачивает файл в w и возвращает имя файла из Content-Disposition.
// deviceID уходит в журнал скачиваний.
func (c *Client) Download(ctx context.Context, token, fileID, deviceID string, w io.Writer) (string, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/files/"+url.PathEscape(fileID)+"/download", token, nil)
	if err != nil {
		return "", fmt.Errorf("download request failed: %w", err)
	}
	if deviceID != "" {
		req.Header.Set(api.HeaderDeviceID, deviceID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("download request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("download request failed: %w", errorFromBody(resp.StatusCode, body))
	}

	if _, err := io.Copy(w, resp.Body); err != nil {
		return "", fmt.Errorf("failed to read file content: %w", err)
	}

	return attachmentName(resp.Header.Get("Content-Disposition")), nil
}

// DeleteFile удаляет файл (только admin)
func (c *Client) DeleteFile(ctx context.Context, token, fileID string) error {
	if err := c.doJSON(ctx, http.MethodDelete, "/api/files/"+url.PathEscape(fileID), token, nil, nil); err != nil {
		return fmt.Errorf("delete file request failed: %w", err)
	}
	return nil
}

// AllLogs возвращает весь журнал скачиваний (только admin)
func (c *Client) AllLogs(ctx context.Context, token string) ([]api.DownloadLog, error) {
	var resp []api.DownloadLog
	if err := c.doJSON(ctx, http.MethodGet, "/api/files/logs/all", token, nil, &resp); err != nil {
		return nil, fmt.Errorf("logs request failed: %w", err)
	}
	return resp, nil
}

// MyLogs возвращает журнал скачиваний текущего пользователя
func (c *Client) MyLogs(ctx context.Context, token string) ([]api.DownloadLog, error) {
	var resp []api.DownloadLog
	if err := c.doJSON(ctx, http.MethodGet, "/api/files/logs/mine", token, nil, &resp); err != nil {
		return nil, fmt.Errorf("logs request failed: %w", err)
	}
	return resp, nil
}

// Users возвращает список пользователей для выбора получателя
func (c *Client) Users(ctx context.Context, token string) ([]api.User, error) {
	var resp []api.User
	if err := c.doJSON(ctx, http.MethodGet, "/api/users", token, nil, &resp); err != nil {
		return nil, fmt.Errorf("users request failed: %w", err)
	}
	return resp, nil
}

// DeadLetters возвращает недоставленные письма (только admin)
func (c *Client) DeadLetters(ctx context.Context, token string, limit int) ([]api.DeadLetter, error) {
	path := "/api/admin/mail/dead-letters"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}

	var resp []api.DeadLetter
	if err := c.doJSON(ctx, http.MethodGet, path, token, nil, &resp); err != nil {
		return nil, fmt.Errorf("dead letters request failed: %w", err)
	}
	return resp, nil
}

// doJSON выполняет HTTP запрос и декодирует JSON ответ в result
func (c *Client) doJSON(ctx context.Context, method, path, token string, body, result any) error {
	resp, err := c.send(ctx, method, path, token, body)
	if err != nil {
		return err
	}
	return readResponse(resp, result)
}

func (c *Client) send(ctx context.Context, method, path, token string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonData)
	}

	req, err := c.newRequest(ctx, method, path, token, bodyReader)
	if err != nil {
		return nil, err
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	return resp, nil
}

func (c *Client) newRequest(ctx context.Context, method, path, token string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

func readResponse(resp *http.Response, result any) error {
	defer func() {
		_ = resp.Body.Close()
	}()

	// Читаем тело ответа
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	return decodeBody(resp.StatusCode, body, result)
}

func decodeBody(status int, body []byte, result any) error {
	// Проверяем статус код
	if status < 200 || status >= 300 {
		return errorFromBody(status, body)
	}

	// Декодируем успешный ответ
	if result != nil {
		if err := json.Unmarshal(body, result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

func errorFromBody(status int, body []byte) error {
	var errResp api.ErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && (errResp.Message != "" || errResp.Error != "") {
		msg := errResp.Message
		if msg == "" {
			msg = errResp.Error
		}
		return &APIError{StatusCode: status, Message: msg}
	}
	return &APIError{StatusCode: status, Message: strings.TrimSpace(string(body))}
}
