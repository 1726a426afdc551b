package admission

import (
	"net/http"
	"strings"
)

// MIMEOctetStream is the fallback type when detection finds nothing better.
const MIMEOctetStream = "application/octet-stream"

// sniffBytes is how much of the payload content detection looks at.
// http.DetectContentType never reads more than 512 bytes.
const sniffBytes = 512

// mimeExtensions maps sniffed MIME types to stored-file extensions.
var mimeExtensions = map[string]string{
	"image/jpeg":    ".jpg",
	"image/png":     ".png",
	"image/gif":     ".gif",
	"image/webp":    ".webp",
	"image/svg+xml": ".svg",
	"image/bmp":     ".bmp",
	"image/tiff":    ".tiff",
	"image/x-icon":  ".ico",
	"image/avif":    ".avif",

	"application/pdf": ".pdf",
	"application/msword": ".doc",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": ".docx",
	"application/vnd.ms-excel": ".xls",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": ".xlsx",
	"text/plain": ".txt",
	"text/csv":   ".csv",
	"text/html":  ".html",

	"application/zip":  ".zip",
	"application/gzip": ".gz",
	"application/x-rar-compressed": ".rar",

	"video/mp4":  ".mp4",
	"video/webm": ".webm",
	"audio/mpeg": ".mp3",
	"audio/wav":  ".wav",
	"audio/ogg":  ".ogg",
}

// SniffMIME detects the content type from the payload's leading magic bytes.
// The caller-declared type is never consulted.
func SniffMIME(data []byte) string {
	if len(data) == 0 {
		return MIMEOctetStream
	}
	if len(data) > sniffBytes {
		data = data[:sniffBytes]
	}
	return normalizeMIME(http.DetectContentType(data))
}

// ExtForMIME returns the stored-file extension for a sniffed MIME type, or
// ".bin" when the type is unknown.
func ExtForMIME(mimeType string) string {
	if ext, ok := mimeExtensions[normalizeMIME(mimeType)]; ok {
		return ext
	}
	return ".bin"
}

// matchesMIME checks a MIME type against allowed patterns. A pattern ending
// in "/*" matches any subtype of that major type.
func matchesMIME(mimeType string, allowed []string) bool {
	mimeType = normalizeMIME(mimeType)

	for _, pattern := range allowed {
		pattern = strings.TrimSpace(strings.ToLower(pattern))

		if mimeType == pattern {
			return true
		}

		if strings.HasSuffix(pattern, "/*") &&
			strings.HasPrefix(mimeType, strings.TrimSuffix(pattern, "*")) {
			return true
		}
	}

	return false
}

// normalizeMIME strips parameters such as charset and lowercases the type.
func normalizeMIME(mimeType string) string {
	mimeType, _, _ = strings.Cut(mimeType, ";")
	return strings.TrimSpace(strings.ToLower(mimeType))
}
