package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Writer appends audit events inside the caller's transaction.
type Writer struct {
	Now func() time.Time
}

type EventPayload map[string]any

// Record is what Append stored, returned so callers can publish it after commit.
type Record struct {
	ID         int64
	TS         string
	Type       string
	ProcessID  string
	EntityKind string
	EntityID   string
	ActorID    string
}

func (w Writer) Append(ctx context.Context, tx *sql.Tx, evtType, processID, entityKind, entityID, actorID string, payload EventPayload) (Record, error) {
	now := time.Now
	if w.Now != nil {
		now = w.Now
	}
	rec := Record{
		TS:         now().UTC().Format(time.RFC3339),
		Type:       evtType,
		ProcessID:  processID,
		EntityKind: entityKind,
		EntityID:   entityID,
		ActorID:    actorID,
	}
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return rec, fmt.Errorf("marshal event payload: %w", err)
	}
	res, err := tx.ExecContext(ctx, `INSERT INTO events(ts,type,process_id,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?,?)`,
		rec.TS, evtType, nullable(processID), entityKind, nullable(entityID), actorID, string(data))
	if err != nil {
		return rec, err
	}
	rec.ID, err = res.LastInsertId()
	return rec, err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
