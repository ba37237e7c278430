package server

import (
	"github.com/danielgtaylor/huma/v2"

	"processmap/internal/attr"
	"processmap/internal/domain"
	"processmap/internal/editor"
	"processmap/internal/render"
)

// Request payloads

type CreateProcessRequest struct {
	ID        string  `json:"id,omitempty" doc:"Defaults to PT_ plus the upper-cased name"`
	Name      string  `json:"name"`
	Seq       int     `json:"seq,omitempty" minimum:"0"`
	DependsOn *string `json:"depends_on,omitempty"`
}

type UpdateProcessRequest struct {
	Name      *string `json:"name,omitempty"`
	Seq       *int    `json:"seq,omitempty" minimum:"0"`
	DependsOn *string `json:"depends_on,omitempty" doc:"Empty string clears the dependency"`
}

type CreateSubProcessRequest struct {
	ID         string        `json:"id,omitempty"`
	Name       string        `json:"name"`
	Seq        int           `json:"seq,omitempty" minimum:"0"`
	DependsOn  *string       `json:"depends_on,omitempty"`
	Attributes *AttributeMap `json:"attributes,omitempty"`
}

type UpdateSubProcessRequest struct {
	Name      *string `json:"name,omitempty"`
	Seq       *int    `json:"seq,omitempty" minimum:"0"`
	DependsOn *string `json:"depends_on,omitempty" doc:"Empty string clears the dependency"`
}

type ReplaceAttributesRequest struct {
	Attributes AttributeMap `json:"attributes"`
}

// AttributeDraftRequest is the editor form: a key, a type and either a raw
// value (scalars and comma separated arrays) or object rows.
type AttributeDraftRequest struct {
	Key   string     `json:"key"`
	Type  attr.Kind  `json:"type" enum:"string,number,boolean,object,array,richtext"`
	Value string     `json:"value,omitempty"`
	Rows  []attr.Row `json:"rows,omitempty"`
}

func (r AttributeDraftRequest) draft() editor.Draft {
	return editor.Draft{Key: r.Key, Kind: r.Type, Value: r.Value, Rows: r.Rows}
}

type AskFollowUpRequest struct {
	SubProcessID string `json:"sub_process_id"`
	AttributeKey string `json:"attribute_key"`
	Question     string `json:"question"`
}

type SweepNamesRequest struct {
	DryRun bool `json:"dry_run,omitempty"`
}

type DevLoginRequest struct {
	Email string `json:"email" format:"email"`
}

// AttributeMap carries an ordered attribute map through huma. Values use
// the tagged {"type","value"} shape; untagged legacy values are accepted.
type AttributeMap struct {
	attr.Map
}

func (AttributeMap) Schema(huma.Registry) *huma.Schema {
	return &huma.Schema{
		Type:                 huma.TypeObject,
		Description:          "Attribute name to tagged value",
		AdditionalProperties: true,
	}
}

// Response payloads

type SubProcessResponse struct {
	ID         string       `json:"id"`
	ProcessID  string       `json:"process_id"`
	Name       string       `json:"name"`
	Seq        int          `json:"seq"`
	DependsOn  *string      `json:"depends_on,omitempty"`
	Attributes AttributeMap `json:"attributes"`
	CreatedAt  string       `json:"created_at" format:"date-time"`
	UpdatedAt  string       `json:"updated_at" format:"date-time"`
}

type AttributesResponse struct {
	SubProcessID string       `json:"sub_process_id"`
	Attributes   AttributeMap `json:"attributes"`
	Rendered     *render.Node `json:"rendered,omitempty"`
	Text         string       `json:"text,omitempty"`
	HTML         string       `json:"html,omitempty"`
}

type AttributeEditResponse struct {
	SubProcess SubProcessResponse `json:"sub_process"`
	Key        string             `json:"key"`
	Renamed    string             `json:"renamed_from,omitempty"`
	Created    bool               `json:"created"`
	Rendered   *render.Node       `json:"rendered"`
}

type AttributeFormResponse struct {
	SubProcessID string     `json:"sub_process_id"`
	OriginalKey  string     `json:"original_key,omitempty"`
	Key          string     `json:"key"`
	Type         attr.Kind  `json:"type"`
	Value        string     `json:"value,omitempty"`
	Rows         []attr.Row `json:"rows,omitempty"`
}

type SweepNamesResponse struct {
	DryRun  bool     `json:"dry_run"`
	Removed []string `json:"removed"`
}

type OpenCountsResponse struct {
	ProcessID string         `json:"process_id"`
	Counts    map[string]int `json:"counts"`
}

type WhoAmIResponse struct {
	ActorID string `json:"actor_id"`
	Email   string `json:"email"`
	Source  string `json:"source" enum:"jwt,api_key"`
}

type DevLoginResponse struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at" format:"date-time"`
}

type paginatedEvents struct {
	Items      []domain.Event `json:"items"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

func subProcessResponse(sp domain.SubProcess) SubProcessResponse {
	return SubProcessResponse{
		ID:         sp.ID,
		ProcessID:  sp.ProcessID,
		Name:       sp.Name,
		Seq:        sp.Seq,
		DependsOn:  sp.DependsOn,
		Attributes: AttributeMap{sp.Attributes},
		CreatedAt:  sp.CreatedAt,
		UpdatedAt:  sp.UpdatedAt,
	}
}

func mapSubProcesses(items []domain.SubProcess) []SubProcessResponse {
	out := make([]SubProcessResponse, 0, len(items))
	for _, sp := range items {
		out = append(out, subProcessResponse(sp))
	}
	return out
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
