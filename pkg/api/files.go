package api

import "time"

// Multipart field names of POST /api/files/upload
const (
	FormFile               = "file"
	FormReceiverType       = "receiverType"
	FormReceiverDepartment = "receiverDepartment"
	FormReceiverUser       = "receiverUser"
)

// HeaderDeviceID carries the device fingerprint on downloads for the audit log
const HeaderDeviceID = "X-Device-ID"

// Uploader кто поделился файлом
type Uploader struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	Department string `json:"department"`
}

// File метаданные файла в списке
type File struct {
	CreatedAt          time.Time `json:"createdAt"`
	UploadedBy         *Uploader `json:"uploadedBy,omitempty"`
	ID                 string    `json:"id"`
	Name               string    `json:"name"`
	ContentType        string    `json:"contentType"`
	ReceiverType       string    `json:"receiverType"`
	ReceiverDepartment string    `json:"receiverDepartment,omitempty"`
	ReceiverUser       string    `json:"receiverUser,omitempty"`
	Size               int64     `json:"size"`
}

// UploadResponse ответ на загрузку
type UploadResponse struct {
	Message string `json:"message"`
	File    File   `json:"file"`
}

// DownloadLog запись журнала скачиваний
type DownloadLog struct {
	CreatedAt time.Time `json:"createdAt"`
	ID        string    `json:"id"`
	FileID    string    `json:"fileId"`
	FileName  string    `json:"fileName,omitempty"` // пусто, если файл удалён
	UserID    string    `json:"userId"`
	UserName  string    `json:"userName"`
	UserEmail string    `json:"userEmail"`
	DeviceID  string    `json:"deviceId,omitempty"`
	IPAddress string    `json:"ipAddress"`
	UserAgent string    `json:"userAgent"`
}

// DeadLetter письмо, которое не удалось доставить
type DeadLetter struct {
	CreatedAt time.Time `json:"createdAt"`
	ID        string    `json:"id"`
	Recipient string    `json:"recipient"`
	Subject   string    `json:"subject"`
	Kind      string    `json:"kind"`
	LastError string    `json:"lastError"`
	Attempts  int       `json:"attempts"`
}
