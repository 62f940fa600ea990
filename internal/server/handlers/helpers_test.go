package handlers

import (
	"log/slog"
	"os"
)

// setupTestLogger создает logger для тестов
func setupTestLogger() *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: slog.LevelError,
	}
	handler := slog.NewTextHandler(os.Stdout, opts)
	return slog.New(handler)
}
