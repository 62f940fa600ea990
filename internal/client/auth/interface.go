package auth

import (
	"context"

	clientapi "github.com/iudanet/securehub/internal/client/api"
	"github.com/iudanet/securehub/internal/client/storage"
	"github.com/iudanet/securehub/pkg/api"
)

//go:generate moq -out api_mock.go . APIClient

// APIClient is the subset of api.Client used for authentication
type APIClient interface {
	Register(ctx context.Context, req api.RegisterRequest) (*api.RegisterResponse, error)
	Login(ctx context.Context, req api.LoginRequest) (*clientapi.LoginOutcome, error)
	VerifyDeviceOTP(ctx context.Context, req api.VerifyDeviceOTPRequest) (*api.SessionResponse, error)
}

// Store объединяет хранилище сессии и fingerprint устройства
type Store interface {
	storage.AuthStorage
	storage.DeviceStorage
}
