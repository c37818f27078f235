package main

import (
	"time"

	"github.com/liamcoop/derive/dataset"
	"github.com/liamcoop/derive/rules"
	"github.com/liamcoop/derive/transform"
)

// API request and response models

// CreateWorkspaceRequest is the body for creating a workspace
type CreateWorkspaceRequest struct {
	Name string `json:"name" example:"Screener"`
}

// WorkspaceResponse describes a workspace
type WorkspaceResponse struct {
	ID        string    `json:"id" example:"123e4567-e89b-12d3-a456-426614174000"`
	Name      string    `json:"name" example:"Screener"`
	CreatedAt time.Time `json:"createdAt" example:"2024-01-15T10:30:00Z"`
	Records   int       `json:"records" example:"120"`
	Rules     int       `json:"rules" example:"4"`
	HasResult bool      `json:"hasResult"`
	Stale     bool      `json:"stale"`
}

// WorkspacesListResponse lists workspaces
type WorkspacesListResponse struct {
	Workspaces []WorkspaceResponse `json:"workspaces"`
}

// SetRecordsRequest replaces a workspace's input records
type SetRecordsRequest struct {
	Records []dataset.Record `json:"records"`
}

// RuleRequest is the body for creating or updating a rule. Enabled defaults
// to true on create.
type RuleRequest struct {
	ID          string         `json:"id,omitempty"`
	Type        rules.RuleType `json:"type" example:"ratio"`
	OutputField string         `json:"outputFieldName" example:"PE"`
	Comment     string         `json:"comment,omitempty"`
	Enabled     *bool          `json:"enabled,omitempty"`
	Params      rules.Params   `json:"parameters"`
}

func (r RuleRequest) rule(id string) *rules.Rule {
	enabled := true
	if r.Enabled != nil {
		enabled = *r.Enabled
	}
	return &rules.Rule{
		ID:          id,
		Type:        r.Type,
		OutputField: r.OutputField,
		Comment:     r.Comment,
		Enabled:     enabled,
		Params:      r.Params,
	}
}

// RulesListResponse lists rules in execution order
type RulesListResponse struct {
	Rules []*rules.Rule `json:"rules"`
}

// MoveRuleRequest moves a rule to a zero-based position
type MoveRuleRequest struct {
	Position *int `json:"position" example:"0"`
}

// SetEnabledRequest toggles a rule
type SetEnabledRequest struct {
	Enabled *bool `json:"enabled" example:"false"`
}

// ImportRulesResponse reports an import
type ImportRulesResponse struct {
	Imported int `json:"imported" example:"4"`
}

// SummaryResponse describes the last run
type SummaryResponse struct {
	Success bool              `json:"success"`
	Stale   bool              `json:"stale"`
	Fields  []string          `json:"fields"`
	Summary transform.Summary `json:"summary"`
}

// PreviewRequest asks for the first records of the last run
type PreviewRequest struct {
	Limit      int             `json:"limit" example:"20"`
	Visibility map[string]bool `json:"visibility,omitempty"`
}

// PreviewResponse carries a bounded preview
type PreviewResponse struct {
	Records []dataset.Record `json:"records"`
	Total   int              `json:"total"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error" example:"rule not found"`
	Details string `json:"details,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status     string `json:"status" example:"healthy"`
	Workspaces int    `json:"workspacesLoaded"`
	Storage    string `json:"storage" example:"postgres"`
	Error      string `json:"error,omitempty"`
}
