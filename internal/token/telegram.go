package token

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Capability scopes checked at verification time.
const (
	ScopeReadTasks  = "read:tasks"
	ScopeWriteTasks = "write:tasks"
	ScopeAdminUsers = "admin:users"
)

// Access levels for bot-issued tokens. Unknown levels collapse to LevelLow.
const (
	LevelLow  = 1
	LevelMid  = 2
	LevelHigh = 3
)

// ScopesForLevel maps a coarse access level to its fixed scope set.
func ScopesForLevel(level int) []string {
	switch level {
	case LevelHigh:
		return []string{ScopeReadTasks, ScopeWriteTasks, ScopeAdminUsers}
	case LevelMid:
		return []string{ScopeReadTasks, ScopeWriteTasks}
	default:
		return []string{ScopeReadTasks}
	}
}

// TelegramSubject synthesizes a composite subject embedding both the external
// telegram id and the internal user id, so verification can recover both
// without a database round-trip.
func TelegramSubject(telegramID int64, userID string) string {
	return fmt.Sprintf("telegram:%d:user:%s", telegramID, userID)
}

// ParseTelegramSubject splits a composite telegram subject back into its ids.
func ParseTelegramSubject(subject string) (telegramID int64, userID string, ok bool) {
	parts := strings.SplitN(subject, ":", 4)
	if len(parts) != 4 || parts[0] != "telegram" || parts[2] != "user" {
		return 0, "", false
	}
	id, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil || parts[3] == "" {
		return 0, "", false
	}
	return id, parts[3], true
}

// IssueTelegramToken mints a 7-day bot token whose scopes follow the access
// level mapping.
func (s *Service) IssueTelegramToken(telegramID int64, userID string, level int) (string, time.Time, error) {
	userID = strings.TrimSpace(userID)
	if telegramID <= 0 || userID == "" {
		return "", time.Time{}, fmt.Errorf("token: invalid telegram identity %d/%q", telegramID, userID)
	}
	return s.Issue(TelegramSubject(telegramID, userID), AudienceTelegram, IssueOptions{
		Scopes: ScopesForLevel(level),
	})
}
