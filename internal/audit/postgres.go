package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// PGStore implements Store using PostgreSQL.
type PGStore struct {
	db *sql.DB
}

var _ Store = (*PGStore)(nil)

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) InsertEvent(ctx context.Context, ev *Event) error {
	oldVals, _ := json.Marshal(ev.OldValues)
	newVals, _ := json.Marshal(ev.NewValues)
	meta, _ := json.Marshal(ev.Metadata)
	tags, _ := json.Marshal(ev.ComplianceTags)

	_, err := s.db.ExecContext(ctx, `
		insert into audit_events(
			id, event_id, event_type, severity, ts,
			user_id, telegram_id, session_id,
			endpoint, method, user_agent, source_ip, referer,
			resource_type, resource_id, action,
			old_values, new_values, metadata,
			success, error_message, response_status,
			compliance_tags, retention_until
		) values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24)
	`,
		ev.ID, ev.EventID, string(ev.Type), string(ev.Severity), ev.Timestamp,
		nullString(ev.Actor.UserID), nullInt64(ev.Actor.TelegramID), nullString(ev.Actor.SessionID),
		nullString(ev.Request.Endpoint), nullString(ev.Request.Method), nullString(ev.Request.UserAgent),
		nullString(ev.Request.SourceIP), nullString(ev.Request.Referer),
		nullString(ev.ResourceType), nullString(ev.ResourceID), ev.Action,
		oldVals, newVals, meta,
		ev.Success, nullString(ev.ErrorMessage), nullInt(ev.ResponseStatus),
		tags, ev.RetentionUntil,
	)
	return err
}

func (s *PGStore) CreateSession(ctx context.Context, session *Session) error {
	_, err := s.db.ExecContext(ctx, `
		insert into audit_sessions(
			session_id, user_id, telegram_id,
			started_at, last_activity,
			total_requests, failed_requests, is_active
		) values ($1,$2,$3,$4,$5,0,0,true)
	`,
		session.SessionID, nullString(session.Actor.UserID), nullInt64(session.Actor.TelegramID),
		session.StartedAt, session.LastActivity,
	)
	return err
}

// TouchSession updates the session row in place so concurrent touches never
// lose counter increments.
func (s *PGStore) TouchSession(ctx context.Context, sessionID string, at time.Time, success bool) error {
	res, err := s.db.ExecContext(ctx, `
		update audit_sessions
		set last_activity = $2,
		    total_requests = total_requests + 1,
		    failed_requests = failed_requests + case when $3 then 0 else 1 end
		where session_id = $1 and is_active
	`, sessionID, at, success)
	if err != nil {
		return err
	}
	return checkMatched(res)
}

func (s *PGStore) EndSession(ctx context.Context, sessionID string, at time.Time, reason string) error {
	res, err := s.db.ExecContext(ctx, `
		update audit_sessions
		set ended_at = $2, is_active = false, termination_reason = $3
		where session_id = $1 and is_active
	`, sessionID, at, reason)
	if err != nil {
		return err
	}
	return checkMatched(res)
}

func (s *PGStore) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	row := s.db.QueryRowContext(ctx, `
		select session_id, coalesce(user_id,''), coalesce(telegram_id,0),
		       started_at, last_activity, ended_at,
		       total_requests, failed_requests, is_active, coalesce(termination_reason,'')
		from audit_sessions where session_id = $1
	`, sessionID)

	var session Session
	if err := row.Scan(
		&session.SessionID, &session.Actor.UserID, &session.Actor.TelegramID,
		&session.StartedAt, &session.LastActivity, &session.EndedAt,
		&session.TotalRequests, &session.FailedRequests, &session.IsActive, &session.TerminationReason,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	session.Actor.SessionID = session.SessionID
	return &session, nil
}

func (s *PGStore) QueryEvents(ctx context.Context, f Filter) ([]Event, error) {
	where := []string{"deleted_at is null"}
	var args []any

	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.UserID != "" {
		where = append(where, "user_id = "+arg(f.UserID))
	}
	if f.TelegramID != 0 {
		where = append(where, "telegram_id = "+arg(f.TelegramID))
	}
	if f.SessionID != "" {
		where = append(where, "session_id = "+arg(f.SessionID))
	}
	if len(f.Types) > 0 {
		var ph []string
		for _, t := range f.Types {
			ph = append(ph, arg(string(t)))
		}
		where = append(where, "event_type in ("+strings.Join(ph, ",")+")")
	}
	if len(f.Severities) > 0 {
		var ph []string
		for _, sev := range f.Severities {
			ph = append(ph, arg(string(sev)))
		}
		where = append(where, "severity in ("+strings.Join(ph, ",")+")")
	}
	if f.ResourceType != "" {
		where = append(where, "resource_type = "+arg(f.ResourceType))
	}
	if f.ResourceID != "" {
		where = append(where, "resource_id = "+arg(f.ResourceID))
	}
	if !f.From.IsZero() {
		where = append(where, "ts >= "+arg(f.From))
	}
	if !f.To.IsZero() {
		where = append(where, "ts < "+arg(f.To))
	}
	if f.FailuresOnly {
		where = append(where, "success = false")
	}

	limit := f.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	query := `
		select id, event_id, event_type, severity, ts,
		       coalesce(user_id,''), coalesce(telegram_id,0), coalesce(session_id,''),
		       coalesce(endpoint,''), coalesce(method,''), coalesce(user_agent,''),
		       coalesce(source_ip,''), coalesce(referer,''),
		       coalesce(resource_type,''), coalesce(resource_id,''), action,
		       old_values, new_values, metadata,
		       success, coalesce(error_message,''), coalesce(response_status,0),
		       compliance_tags, retention_until, deleted_at
		from audit_events
		where ` + strings.Join(where, " and ") + `
		order by ts desc
		limit ` + arg(limit) + ` offset ` + arg(f.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var ev Event
		var evType, sev string
		var oldVals, newVals, meta, tags []byte
		if err := rows.Scan(
			&ev.ID, &ev.EventID, &evType, &sev, &ev.Timestamp,
			&ev.Actor.UserID, &ev.Actor.TelegramID, &ev.Actor.SessionID,
			&ev.Request.Endpoint, &ev.Request.Method, &ev.Request.UserAgent,
			&ev.Request.SourceIP, &ev.Request.Referer,
			&ev.ResourceType, &ev.ResourceID, &ev.Action,
			&oldVals, &newVals, &meta,
			&ev.Success, &ev.ErrorMessage, &ev.ResponseStatus,
			&tags, &ev.RetentionUntil, &ev.DeletedAt,
		); err != nil {
			return nil, err
		}
		ev.Type = EventType(evType)
		ev.Severity = Severity(sev)
		_ = json.Unmarshal(oldVals, &ev.OldValues)
		_ = json.Unmarshal(newVals, &ev.NewValues)
		_ = json.Unmarshal(meta, &ev.Metadata)
		_ = json.Unmarshal(tags, &ev.ComplianceTags)
		out = append(out, ev)
	}
	return out, rows.Err()
}

func checkMatched(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

func nullString(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullInt64(v int64) any {
	if v == 0 {
		return nil
	}
	return v
}

func nullInt(v int) any {
	if v == 0 {
		return nil
	}
	return v
}
