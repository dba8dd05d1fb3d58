package domain

import "context"

// ScopeNormalizer renumbers many scopes, one transaction per scope
type ScopeNormalizer interface {
	// NormalizeScopes normalizes every scope while preserving order:
	// result i belongs to scopes[i]
	NormalizeScopes(ctx context.Context, scopes []Scope) ([]*NormalizeResult, error)
}

// NormalizeResult represents the outcome for one scope
type NormalizeResult struct {
	Scope      Scope           `json:"-"`
	ScopeKey   string          `json:"scope"`
	Renumbered int             `json:"renumbered"`
	Status     NormalizeStatus `json:"status"`
	Error      error           `json:"-"`
	Message    string          `json:"error,omitempty"`
}

// NormalizeStatus represents the status of a normalize run
type NormalizeStatus string

const (
	NormalizeStatusUnchanged NormalizeStatus = "unchanged"
	NormalizeStatusRepaired  NormalizeStatus = "repaired"
	NormalizeStatusFailed    NormalizeStatus = "failed"
)
