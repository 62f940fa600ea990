package models

import "time"

// OTPPurpose определяет назначение одноразового кода
type OTPPurpose string

// OTPPurposeDeviceApproval код для подтверждения нового устройства
const OTPPurposeDeviceApproval OTPPurpose = "DEVICE_APPROVAL"

// Device is a browser or machine fingerprint a user has logged in from.
// The pair (UserID, DeviceID) is unique.
type Device struct {
	FirstSeenAt time.Time  `json:"first_seen_at"`         // первый вход с устройства
	LastSeenAt  time.Time  `json:"last_seen_at"`          // последний вход
	ApprovedAt  *time.Time `json:"approved_at,omitempty"` // время подтверждения
	ID          string     `json:"id"`                    // UUID записи
	UserID      string     `json:"user_id"`               // ID владельца
	DeviceID    string     `json:"device_id"`             // fingerprint от клиента
	IPAddress   string     `json:"ip_address"`            // последний известный IP
	UserAgent   string     `json:"user_agent"`            // последний User-Agent
	HostName    string     `json:"host_name,omitempty"`   // опциональное имя хоста
	IsApproved  bool       `json:"is_approved"`
}

// Touch refreshes the network fields seen on the latest login.
// An empty hostName keeps the previous one.
func (d *Device) Touch(ipAddress, userAgent, hostName string, now time.Time) {
	d.IPAddress = ipAddress
	d.UserAgent = userAgent
	if hostName != "" {
		d.HostName = hostName
	}
	d.LastSeenAt = now
}

// Approve marks the device trusted. Approval is permanent.
func (d *Device) Approve(now time.Time) {
	d.IsApproved = true
	d.ApprovedAt = &now
}

// OTPToken одноразовый код, привязанный к (user, device, purpose)
type OTPToken struct {
	ExpiresAt time.Time  `json:"expires_at"`
	CreatedAt time.Time  `json:"created_at"`
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	DeviceID  string     `json:"device_id"`
	Code      string     `json:"-"`
	Purpose   OTPPurpose `json:"purpose"`
	Used      bool       `json:"used"`
}

// Usable reports whether the token can still be consumed at now
func (t *OTPToken) Usable(now time.Time) bool {
	return !t.Used && now.Before(t.ExpiresAt)
}
