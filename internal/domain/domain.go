package domain

import "processmap/internal/attr"

type ProcessTitle struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Seq       int     `json:"seq"`
	DependsOn *string `json:"depends_on,omitempty"`
	CreatedAt string  `json:"created_at" format:"date-time"`
	UpdatedAt string  `json:"updated_at" format:"date-time"`
}

type SubProcess struct {
	ID         string   `json:"id"`
	ProcessID  string   `json:"process_id"`
	Name       string   `json:"name"`
	Seq        int      `json:"seq"`
	DependsOn  *string  `json:"depends_on,omitempty"`
	Attributes attr.Map `json:"attributes"`
	CreatedAt  string   `json:"created_at" format:"date-time"`
	UpdatedAt  string   `json:"updated_at" format:"date-time"`
}

// AttributeName is one entry of the name-suggestion catalog.
type AttributeName struct {
	Name      string    `json:"name"`
	Type      attr.Kind `json:"type"`
	CreatedAt string    `json:"created_at,omitempty" format:"date-time"`
}

type FollowUpStatus string

const (
	FollowUpOpen     FollowUpStatus = "open"
	FollowUpResolved FollowUpStatus = "resolved"
)

type FollowUp struct {
	ID           string         `json:"id"`
	ProcessID    string         `json:"process_id"`
	SubProcessID string         `json:"sub_process_id"`
	AttributeKey string         `json:"attribute_key"`
	Question     string         `json:"question"`
	Status       FollowUpStatus `json:"status" enum:"open,resolved"`
	CreatedBy    string         `json:"created_by,omitempty"`
	CreatedAt    string         `json:"created_at" format:"date-time"`
	UpdatedAt    string         `json:"updated_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	ProcessID  string `json:"process_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

// Change is the live notification published after a committed mutation.
type Change struct {
	EventID      int64  `json:"event_id,omitempty"`
	Type         string `json:"type"`
	ProcessID    string `json:"process_id,omitempty"`
	SubProcessID string `json:"sub_process_id,omitempty"`
	EntityKind   string `json:"entity_kind"`
	EntityID     string `json:"entity_id,omitempty"`
	ActorID      string `json:"actor_id"`
	TS           string `json:"ts" format:"date-time"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// AllowedUser is an allow-list entry stored in the database.
type AllowedUser struct {
	Email     string `json:"email"`
	AddedBy   string `json:"added_by,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
