package models

import (
	"errors"
	"time"
)

// Scope is the visibility tag of a shared file
type Scope string

const (
	ScopeEveryone   Scope = "everyone"
	ScopeDepartment Scope = "department"
	ScopeUser       Scope = "user"
)

var (
	// ErrUnknownScope returned for a scope outside everyone|department|user
	ErrUnknownScope = errors.New("receiverType must be one of everyone, department, user")
	// ErrMissingDepartment returned when a department scope has no valid target
	ErrMissingDepartment = errors.New("receiverDepartment is required for department scope")
	// ErrMissingUser returned when a user scope has no target
	ErrMissingUser = errors.New("receiverUser is required for user scope")
)

// Identity is the authenticated caller resolved from a session token
type Identity struct {
	UserID     string
	Email      string
	Name       string
	Department Department
	Role       Role
}

// IsAdmin reports whether the caller has the admin role
func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}

// Visibility describes who can see a file
type Visibility struct {
	Scope            Scope      `json:"receiverType"`
	TargetDepartment Department `json:"receiverDepartment,omitempty"`
	TargetUserID     string     `json:"receiverUser,omitempty"`
}

// Validate checks that the target required by the scope is set.
// Targets that the scope does not use are cleared.
func (v *Visibility) Validate() error {
	switch v.Scope {
	case ScopeEveryone:
		v.TargetDepartment = ""
		v.TargetUserID = ""
	case ScopeDepartment:
		if !v.TargetDepartment.Valid() {
			return ErrMissingDepartment
		}
		v.TargetUserID = ""
	case ScopeUser:
		if v.TargetUserID == "" {
			return ErrMissingUser
		}
		v.TargetDepartment = ""
	default:
		return ErrUnknownScope
	}
	return nil
}

// VisibleTo is the single authorization predicate for listing and downloading
func (v Visibility) VisibleTo(id Identity) bool {
	switch v.Scope {
	case ScopeEveryone:
		return true
	case ScopeDepartment:
		return v.TargetDepartment != "" && v.TargetDepartment == id.Department
	case ScopeUser:
		return v.TargetUserID != "" && v.TargetUserID == id.UserID
	default:
		return false
	}
}

// Uploader is the public part of the user who shared a file
type Uploader struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Email      string     `json:"email"`
	Department Department `json:"department"`
}

// File метаданные загруженного файла
type File struct {
	CreatedAt   time.Time `json:"createdAt"`
	Uploader    *Uploader `json:"uploadedBy,omitempty"` // заполняется при выборке списка
	ID          string    `json:"id"`
	Name        string    `json:"name"`        // оригинальное имя файла
	StoredName  string    `json:"-"`           // имя объекта в blob store
	ContentType string    `json:"contentType"` // MIME тип
	UploadedBy  string    `json:"-"`           // ID загрузившего
	Visibility
	Size int64 `json:"size"`
}

// DownloadLog запись журнала скачиваний (append-only)
type DownloadLog struct {
	CreatedAt time.Time `json:"createdAt"`
	ID        string    `json:"id"`
	FileID    string    `json:"fileId"`
	UserID    string    `json:"userId"`
	DeviceID  string    `json:"deviceId,omitempty"`
	IPAddress string    `json:"ipAddress"`
	UserAgent string    `json:"userAgent"`
}

// DownloadLogEntry is an audit row joined with the file and user it references.
// FileName is empty when the file was deleted after the download.
type DownloadLogEntry struct {
	DownloadLog
	FileName  string `json:"fileName,omitempty"`
	UserName  string `json:"userName"`
	UserEmail string `json:"userEmail"`
}

// MailDeadLetter is an outbound mail that could not be delivered
type MailDeadLetter struct {
	CreatedAt time.Time `json:"createdAt"`
	ID        string    `json:"id"`
	Recipient string    `json:"recipient"`
	Subject   string    `json:"subject"`
	Kind      string    `json:"kind"`
	LastError string    `json:"lastError"`
	Attempts  int       `json:"attempts"`
}
