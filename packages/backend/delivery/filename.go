// Package delivery names finished exports and hands them to the user.
package delivery

import (
	"strconv"
	"strings"
	"time"
)

const (
	maxSubjectLen   = 50
	fallbackSubject = "presentation"
)

// FileName returns "<sanitized-subject>-<epoch-ms>.<ext>". The subject is
// lowercased, reduced to [a-z0-9-] with runs of other characters collapsed to
// one dash, and truncated to 50 characters.
func FileName(subject string, now time.Time, ext string) string {
	return SanitizeSubject(subject) + "-" + strconv.FormatInt(now.UnixMilli(), 10) + "." + strings.TrimPrefix(ext, ".")
}

// SanitizeSubject applies the file name rules to subject alone.
func SanitizeSubject(subject string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(subject) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}

	name := strings.TrimRight(b.String(), "-")
	if len(name) > maxSubjectLen {
		name = strings.TrimRight(name[:maxSubjectLen], "-")
	}
	if name == "" {
		return fallbackSubject
	}
	return name
}

// ContentType maps an export extension to its MIME type.
func ContentType(ext string) string {
	switch strings.TrimPrefix(ext, ".") {
	case "mp4":
		return "video/mp4"
	case "webm":
		return "video/webm"
	case "wav":
		return "audio/wav"
	default:
		return "application/octet-stream"
	}
}

// AttachmentHeader is the Content-Disposition value that makes a browser
// save the response as name.
func AttachmentHeader(name string) string {
	return `attachment; filename="` + name + `"`
}
