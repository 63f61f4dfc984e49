// Package audit provides append-only NDJSON audit logging for
// security-relevant lifecycle events: service start/stop, blocking
// toggles, configuration changes, and DNS restore actions.
package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// EventType represents the type of audit event.
type EventType string

const (
	EventServiceStart  EventType = "SERVICE_START"
	EventServiceStop   EventType = "SERVICE_STOP"
	EventConfigChange  EventType = "CONFIG_CHANGE"
	EventDNSEnabled    EventType = "DNS_ENABLED"
	EventDNSDisabled   EventType = "DNS_DISABLED"
	EventDNSRestored   EventType = "DNS_RESTORED"
	EventDNSIntegrity  EventType = "DNS_INTEGRITY_RECOVERY"
	EventBlocklistLoad EventType = "BLOCKLIST_LOAD"
	EventSecurityWarn  EventType = "SECURITY_WARNING"
)

// Event represents an audit log entry.
type Event struct {
	Timestamp   time.Time              `json:"timestamp"`
	Type        EventType              `json:"type"`
	Severity    string                 `json:"severity"`
	Message     string                 `json:"message"`
	Details     map[string]interface{} `json:"details,omitempty"`
	ProcessID   int                    `json:"process_id"`
	ProcessName string                 `json:"process_name"`
}

// Logger handles audit logging to a single NDJSON file.
type Logger struct {
	file    *os.File
	encoder *json.Encoder
	mu      sync.Mutex
	logPath string
}

var (
	defaultLogger *Logger
	once          sync.Once
)

// Initialize sets up the audit logger under dir, creating it if
// necessary. Safe to call more than once; only the first call takes
// effect.
func Initialize(dir string) error {
	var err error
	once.Do(func() {
		if mkErr := os.MkdirAll(dir, 0700); mkErr != nil {
			err = mkErr
			return
		}

		logFile := fmt.Sprintf("audit-%s.log", time.Now().Format("2006-01-02"))
		logPath := filepath.Join(dir, logFile)

		file, openErr := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
		if openErr != nil {
			err = openErr
			return
		}

		defaultLogger = &Logger{
			file:    file,
			encoder: json.NewEncoder(file),
			logPath: logPath,
		}

		Log(EventServiceStart, "info", "audit logging initialized", nil)
	})

	return err
}

// Log records an audit event, falling back to the ordinary structured
// logger when the audit file has not been initialized.
func Log(eventType EventType, severity string, message string, details map[string]interface{}) {
	if defaultLogger == nil {
		logrus.WithFields(logrus.Fields{
			"audit_type": eventType,
			"details":    details,
		}).Info(message)
		return
	}

	event := Event{
		Timestamp:   time.Now(),
		Type:        eventType,
		Severity:    severity,
		Message:     message,
		Details:     details,
		ProcessID:   os.Getpid(),
		ProcessName: filepath.Base(os.Args[0]),
	}

	defaultLogger.mu.Lock()
	defer defaultLogger.mu.Unlock()

	if err := defaultLogger.encoder.Encode(event); err != nil {
		logrus.WithError(err).Error("failed to write audit log")
	}

	logrus.WithFields(logrus.Fields{
		"audit_type": eventType,
		"severity":   severity,
		"details":    details,
	}).Info(message)
}

// LogConfigChange logs configuration modifications.
func LogConfigChange(change string, oldValue, newValue interface{}) {
	Log(EventConfigChange, "warning", change, map[string]interface{}{
		"old_value": oldValue,
		"new_value": newValue,
	})
}

// LogToggle logs a blocking enable/disable transition.
func LogToggle(enabled bool, reason string) {
	eventType := EventDNSEnabled
	if !enabled {
		eventType = EventDNSDisabled
	}
	Log(eventType, "info", reason, map[string]interface{}{"enabled": enabled})
}

// Close closes the audit logger.
func Close() error {
	if defaultLogger != nil {
		Log(EventServiceStop, "info", "audit logging stopped", nil)
		return defaultLogger.file.Close()
	}
	return nil
}

// GetLogPath returns the current audit log path, or "" if not initialized.
func GetLogPath() string {
	if defaultLogger != nil {
		return defaultLogger.logPath
	}
	return ""
}
