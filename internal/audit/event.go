package audit

import "time"

// EventType is the closed set of security- and business-relevant actions.
type EventType string

const (
	EventLogin            EventType = "login"
	EventLogout           EventType = "logout"
	EventLoginFailed      EventType = "login_failed"
	EventPermissionDenied EventType = "permission_denied"
	EventTokenRefresh     EventType = "token_refresh"

	EventCreate     EventType = "create"
	EventRead       EventType = "read"
	EventUpdate     EventType = "update"
	EventDelete     EventType = "delete"
	EventBulkUpdate EventType = "bulk_update"
	EventBulkDelete EventType = "bulk_delete"

	EventTaskAssigned      EventType = "task_assigned"
	EventTaskCompleted     EventType = "task_completed"
	EventTaskStatusChanged EventType = "task_status_changed"
	EventEmergencyCreated  EventType = "emergency_created"

	EventUserCreated         EventType = "user_created"
	EventUserDisabled        EventType = "user_disabled"
	EventRoleChanged         EventType = "role_changed"
	EventSystemConfigChanged EventType = "system_config_changed"

	EventDataExport       EventType = "data_export"
	EventDataImport       EventType = "data_import"
	EventBackupCreated    EventType = "backup_created"
	EventMaintenanceStart EventType = "maintenance_start"
	EventMaintenanceEnd   EventType = "maintenance_end"
)

// Severity classifies the operational weight of an event.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

var defaultSeverities = map[EventType]Severity{
	EventLogin:            SeverityMedium,
	EventLogout:           SeverityLow,
	EventLoginFailed:      SeverityHigh,
	EventPermissionDenied: SeverityHigh,
	EventTokenRefresh:     SeverityLow,

	EventCreate:     SeverityLow,
	EventRead:       SeverityLow,
	EventUpdate:     SeverityMedium,
	EventDelete:     SeverityHigh,
	EventBulkUpdate: SeverityHigh,
	EventBulkDelete: SeverityHigh,

	EventTaskAssigned:      SeverityLow,
	EventTaskCompleted:     SeverityLow,
	EventTaskStatusChanged: SeverityLow,
	EventEmergencyCreated:  SeverityCritical,

	EventUserCreated:         SeverityMedium,
	EventUserDisabled:        SeverityHigh,
	EventRoleChanged:         SeverityHigh,
	EventSystemConfigChanged: SeverityCritical,

	EventDataExport:       SeverityHigh,
	EventDataImport:       SeverityHigh,
	EventBackupCreated:    SeverityMedium,
	EventMaintenanceStart: SeverityMedium,
	EventMaintenanceEnd:   SeverityLow,
}

// Valid reports whether the event type is part of the closed set.
func (t EventType) Valid() bool {
	_, ok := defaultSeverities[t]
	return ok
}

// DefaultSeverity returns the severity used when the caller does not override.
func (t EventType) DefaultSeverity() Severity {
	if sev, ok := defaultSeverities[t]; ok {
		return sev
	}
	return SeverityLow
}

// Valid reports whether the severity is one of the four known levels.
func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// Actor identifies who performed an action. All fields are optional:
// unauthenticated requests produce events with an empty actor.
type Actor struct {
	UserID     string `json:"user_id,omitempty"`
	TelegramID int64  `json:"telegram_id,omitempty"`
	SessionID  string `json:"session_id,omitempty"`
}

// RequestContext carries per-request HTTP details, populated by the caller.
type RequestContext struct {
	Endpoint  string `json:"endpoint,omitempty"`
	Method    string `json:"method,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
	SourceIP  string `json:"source_ip,omitempty"`
	Referer   string `json:"referer,omitempty"`
}

// Event is an immutable, append-only audit record. ID is the storage row key;
// EventID is the globally unique event identifier used for traceability.
// Timestamp and both ids are always generated at record time, never taken
// from the caller.
type Event struct {
	ID        string    `json:"id"`
	EventID   string    `json:"event_id"`
	Type      EventType `json:"event_type"`
	Severity  Severity  `json:"severity"`
	Timestamp time.Time `json:"timestamp"`

	Actor   Actor          `json:"actor"`
	Request RequestContext `json:"request"`

	ResourceType string `json:"resource_type,omitempty"`
	ResourceID   string `json:"resource_id,omitempty"`
	Action       string `json:"action"`

	OldValues map[string]any `json:"old_values,omitempty"`
	NewValues map[string]any `json:"new_values,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`

	Success        bool   `json:"success"`
	ErrorMessage   string `json:"error_message,omitempty"`
	ResponseStatus int    `json:"response_status,omitempty"`

	ComplianceTags []string   `json:"compliance_tags,omitempty"`
	RetentionUntil *time.Time `json:"retention_until,omitempty"`
	DeletedAt      *time.Time `json:"deleted_at,omitempty"`
}

// Session is a mutable summary of one login-to-logout span. Counters are only
// ever bumped through atomic store updates; see Store.TouchSession.
type Session struct {
	SessionID string `json:"session_id"`
	Actor     Actor  `json:"actor"`

	StartedAt    time.Time  `json:"started_at"`
	LastActivity time.Time  `json:"last_activity"`
	EndedAt      *time.Time `json:"ended_at,omitempty"`

	TotalRequests  int64 `json:"total_requests"`
	FailedRequests int64 `json:"failed_requests"`

	IsActive          bool   `json:"is_active"`
	TerminationReason string `json:"termination_reason,omitempty"`
}
