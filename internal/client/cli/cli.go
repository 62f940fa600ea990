package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	clientapi "github.com/iudanet/securehub/internal/client/api"
	"github.com/iudanet/securehub/internal/client/auth"
	"github.com/iudanet/securehub/internal/client/iocli"
	"github.com/iudanet/securehub/internal/client/storage"
	"github.com/iudanet/securehub/pkg/api"
)

// PasswordEnv переменная окружения с паролем для неинтерактивного входа
const PasswordEnv = "SECUREHUB_PASSWORD"

// AuthService is the subset of auth.Service used by the CLI
type AuthService interface {
	Register(ctx context.Context, name, email, password, department string) (*api.User, error)
	Login(ctx context.Context, email, password string) (*auth.LoginResult, error)
	VerifyOTP(ctx context.Context, email, code string) (*storage.AuthData, error)
	Current(ctx context.Context) (*storage.AuthData, error)
	Logout(ctx context.Context) error
}

// FilesAPI is the subset of api.Client used by file commands
type FilesAPI interface {
	ListFiles(ctx context.Context, token string) ([]api.File, error)
	Upload(ctx context.Context, token string, req clientapi.UploadRequest) (*api.UploadResponse, error)
	Download(ctx context.Context, token, fileID, deviceID string, w io.Writer) (string, error)
	DeleteFile(ctx context.Context, token, fileID string) error
	AllLogs(ctx context.Context, token string) ([]api.DownloadLog, error)
	MyLogs(ctx context.Context, token string) ([]api.DownloadLog, error)
	Users(ctx context.Context, token string) ([]api.User, error)
	DeadLetters(ctx context.Context, token string, limit int) ([]api.DeadLetter, error)
}

// PasswordSource откуда брать пароль, если он не вводится интерактивно
type PasswordSource struct {
	FromFile string
}

type Cli struct {
	io      iocli.IO
	auth    AuthService
	files   FilesAPI
	devices storage.DeviceStorage
}

func New(stdio iocli.IO, authService AuthService, files FilesAPI, devices storage.DeviceStorage) *Cli {
	return &Cli{
		io:      stdio,
		auth:    authService,
		files:   files,
		devices: devices,
	}
}

// session возвращает действующую сессию или понятную ошибку
func (c *Cli) session(ctx context.Context) (*storage.AuthData, error) {
	s, err := c.auth.Current(ctx)
	if err != nil {
		if errors.Is(err, auth.ErrNotLoggedIn) {
			return nil, fmt.Errorf("not authenticated. Please run 'securehub login' first")
		}
		return nil, err
	}
	return s, nil
}

// getPassword retrieves the password with priority:
// 1. Environment variable SECUREHUB_PASSWORD
// 2. File from PasswordSource.FromFile
// 3. Interactive prompt (fallback)
func (c *Cli) getPassword(src PasswordSource, prompt string) (string, error) {
	// Priority 1: Environment variable
	if envPassword := os.Getenv(PasswordEnv); envPassword != "" {
		return envPassword, nil
	}

	// Priority 2: File
	if src.FromFile != "" {
		content, err := os.ReadFile(src.FromFile)
		if err != nil {
			return "", fmt.Errorf("failed to read password file: %w", err)
		}
		// Убираем trailing newline/whitespace
		password := strings.TrimSpace(string(content))
		if password == "" {
			return "", fmt.Errorf("password file is empty")
		}
		return password, nil
	}

	// Priority 3: Interactive prompt (fallback)
	password, err := c.io.ReadPassword(prompt)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	if password == "" {
		return "", fmt.Errorf("password cannot be empty")
	}
	return password, nil
}

// ask возвращает value или спрашивает его у пользователя
func (c *Cli) ask(value, prompt string) (string, error) {
	if value != "" {
		return value, nil
	}
	input, err := c.io.ReadInput(prompt)
	if err != nil {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return input, nil
}
