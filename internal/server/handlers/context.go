package handlers

import (
	"context"
	"net"
	"net/http"

	"github.com/iudanet/securehub/internal/models"
)

// contextKey тип для ключей контекста
type contextKey string

// IdentityKey ключ для аутентифицированного пользователя в контексте
const IdentityKey contextKey = "identity"

// WithIdentity кладёт identity в контекст запроса
func WithIdentity(ctx context.Context, id models.Identity) context.Context {
	return context.WithValue(ctx, IdentityKey, id)
}

// IdentityFromContext достаёт identity, положенную auth middleware
func IdentityFromContext(ctx context.Context) (models.Identity, bool) {
	id, ok := ctx.Value(IdentityKey).(models.Identity)
	return id, ok && id.UserID != ""
}

// ClientIPKey ключ для адреса клиента, определённого ClientIPMiddleware
const ClientIPKey contextKey = "client_ip"

// WithClientIP кладёт адрес клиента в контекст запроса
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, ClientIPKey, ip)
}

// ClientIP returns the client address resolved by ClientIPMiddleware.
// Without it the host part of RemoteAddr is used; forwarding headers are never read here.
func ClientIP(r *http.Request) string {
	if ip, ok := r.Context().Value(ClientIPKey).(string); ok && ip != "" {
		return ip
	}
	return RemoteHost(r.RemoteAddr)
}

// RemoteHost отрезает порт от RemoteAddr
func RemoteHost(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}
