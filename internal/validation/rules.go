// Package validation checks ticket submissions and edits before they reach
// the store. Nothing here has side effects; callers render the returned
// field errors.
package validation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/spec-kit/ticket-intake/internal/domain"
)

const (
	MinNameLength    = 3
	MaxMessageLength = 250
	// MaxTotalBytes caps the summed size of a ticket's attachments.
	MaxTotalBytes = 3 * 1024 * 1024
	// DefaultMaxAttachments is used when no count limit is configured.
	DefaultMaxAttachments = 5
)

var (
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	phonePattern = regexp.MustCompile(`^(\+254|0)?(7\d{8}|1\d{8})$`)
)

// AllowedMimeTypes are the accepted attachment types.
var AllowedMimeTypes = map[string]bool{
	"image/jpeg":      true,
	"image/jpg":       true,
	"application/pdf": true,
}

func ValidName(name string) bool {
	return utf8.RuneCountInString(strings.TrimSpace(name)) >= MinNameLength
}

func ValidEmail(email string) bool {
	return emailPattern.MatchString(email)
}

// ValidPhone accepts Kenyan mobile numbers: +2547XXXXXXXX, 07XXXXXXXX,
// 01XXXXXXXX and the bare nine-digit forms.
func ValidPhone(phone string) bool {
	return phonePattern.MatchString(phone)
}

func ValidMessage(message string) bool {
	n := utf8.RuneCountInString(strings.TrimSpace(message))
	return n > 0 && n <= MaxMessageLength
}

func ValidSubject(subject domain.TicketSubject) bool {
	for _, s := range domain.Subjects {
		if s == subject {
			return true
		}
	}
	return false
}

func ValidPreferredContact(c domain.ContactMethod) bool {
	return c == domain.ContactPhone || c == domain.ContactEmail
}

// CheckAttachments walks the list in order and returns the message for the
// first violation, or "" when the attachments are acceptable. maxCount <= 0
// falls back to DefaultMaxAttachments.
func CheckAttachments(atts []domain.Attachment, maxCount int) string {
	if maxCount <= 0 {
		maxCount = DefaultMaxAttachments
	}
	if len(atts) > maxCount {
		return fmt.Sprintf("At most %d attachments allowed", maxCount)
	}
	var total int64
	for _, a := range atts {
		if !AllowedMimeTypes[strings.ToLower(a.MimeType)] {
			return fmt.Sprintf("Invalid file type: %s. Only JPG, JPEG, PDF allowed.", a.Name)
		}
		total += a.SizeBytes
		if total > MaxTotalBytes {
			return "Attachments exceed the 3 MB total size limit"
		}
	}
	return ""
}
