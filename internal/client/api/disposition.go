package api

import "mime"

// attachmentName достаёт имя файла из Content-Disposition.
// mime.ParseMediaType сам декодирует filename* (RFC 5987).
func attachmentName(header string) string {
	if header == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(header)
	if err != nil {
		return ""
	}
	return params["filename"]
}
