// Package mailer delivers outbound mail asynchronously.
package mailer

import (
	"context"
	"fmt"
	"log/slog"
)

// KindDeviceOTP tags the device approval mail
const KindDeviceOTP = "device_otp"

// Message is a plain-text mail
type Message struct {
	To      string
	Subject string
	Body    string
	Kind    string // тег для журналов и dead letters
}

// Sender delivers a single message synchronously
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// DeviceOTPMessage builds the mail carrying a device approval code
func DeviceOTPMessage(to, code, deviceID string, validMinutes int) Message {
	return Message{
		To:      to,
		Subject: "Your SecureHub Device OTP",
		Body: fmt.Sprintf("Your OTP is: %s\nValid for %d minutes.\nDevice ID: %s\n",
			code, validMinutes, deviceID),
		Kind: KindDeviceOTP,
	}
}

// LogSender replaces SMTP in development. It logs the envelope only, never the body.
type LogSender struct {
	logger *slog.Logger
}

// NewLogSender creates a sender that only logs
func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(ctx context.Context, msg Message) error {
	s.logger.InfoContext(ctx, "mail not sent: no SMTP host configured",
		slog.String("to", msg.To),
		slog.String("subject", msg.Subject),
		slog.String("kind", msg.Kind))
	return nil
}
