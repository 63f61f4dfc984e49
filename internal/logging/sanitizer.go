package logging

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"
)

// SensitivePatterns are secret-shaped substrings redacted at every
// log level.
var SensitivePatterns = []*regexp.Regexp{
	// Generic API keys / hex-encoded secrets (32+ hex characters).
	regexp.MustCompile(`\b[a-fA-F0-9]{32,}\b`),
	// Base64 encoded keys (common for private keys).
	regexp.MustCompile(`\b[A-Za-z0-9+/]{100,}={0,2}\b`),
	// JWT tokens.
	regexp.MustCompile(`\beyJ[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+\b`),
}

// piiPatterns are further redacted only for the verbose (Debug/Trace)
// levels, since Info-and-above logging deliberately includes the
// domain names an operator needs to see for troubleshooting.
var piiPatterns = []*regexp.Regexp{
	// Email addresses.
	regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`),
	// A queried domain name (at least one dot, valid label characters).
	regexp.MustCompile(`\b(?:[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?\.){1,}[a-zA-Z]{2,}\b`),
}

// SensitiveFieldNames are field names that should be redacted regardless
// of value shape.
var SensitiveFieldNames = map[string]bool{
	"password":      true,
	"secret":        true,
	"key":           true,
	"token":         true,
	"apikey":        true,
	"privatekey":    true,
	"credentials":   true,
	"authorization": true,
}

// SanitizeString removes secret-shaped substrings from s.
func SanitizeString(s string) string {
	for _, pattern := range SensitivePatterns {
		s = pattern.ReplaceAllString(s, "[REDACTED]")
	}
	return s
}

// sanitizeStringWithPII additionally redacts email addresses and
// domain names, for verbose log levels.
func sanitizeStringWithPII(s string) string {
	s = SanitizeString(s)
	s = piiPatterns[0].ReplaceAllString(s, "[EMAIL-REDACTED]")
	s = piiPatterns[1].ReplaceAllString(s, "[DOMAIN-REDACTED]")
	return s
}

func sanitizeFields(fields logrus.Fields, withPII bool) logrus.Fields {
	sanitized := make(logrus.Fields, len(fields))

	sanitizeValue := SanitizeString
	if withPII {
		sanitizeValue = sanitizeStringWithPII
	}

	for k, v := range fields {
		if SensitiveFieldNames[strings.ToLower(k)] {
			sanitized[k] = "[REDACTED]"
			continue
		}

		switch val := v.(type) {
		case string:
			sanitized[k] = sanitizeValue(val)
		case error:
			if val != nil {
				sanitized[k] = sanitizeValue(val.Error())
			}
		case fmt.Stringer:
			sanitized[k] = sanitizeValue(val.String())
		default:
			sanitized[k] = sanitizeValue(fmt.Sprintf("%v", val))
		}
	}

	return sanitized
}

// SanitizingHook redacts secrets from every log entry, and additionally
// redacts email addresses and domain names from Debug/Trace entries.
type SanitizingHook struct{}

func NewSanitizingHook() *SanitizingHook { return &SanitizingHook{} }

func (h *SanitizingHook) Levels() []logrus.Level { return logrus.AllLevels }

func (h *SanitizingHook) Fire(entry *logrus.Entry) error {
	withPII := entry.Level > logrus.InfoLevel

	if withPII {
		entry.Message = sanitizeStringWithPII(entry.Message)
	} else {
		entry.Message = SanitizeString(entry.Message)
	}
	if entry.Data != nil {
		entry.Data = sanitizeFields(entry.Data, withPII)
	}

	return nil
}

// InstallSanitizingHook installs the sanitizing hook globally.
func InstallSanitizingHook() {
	logrus.AddHook(NewSanitizingHook())
}
