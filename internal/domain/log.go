package domain

import "time"

type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	default:
		return "unknown"
	}
}

// LogEntry is a diagnostic event delivered to session log listeners.
type LogEntry struct {
	Severity Severity
	Time     time.Time
	Message  string
	Err      error // optional
}

func NewLogEntry(sev Severity, msg string, err error) LogEntry {
	return LogEntry{Severity: sev, Time: time.Now(), Message: msg, Err: err}
}
