package types

import "fmt"

// Severity classifies a diagnostic.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
	SeverityHint    Severity = "hint"
)

// Diagnostic is a single finding produced by the analysis engine.
type Diagnostic struct {
	DocumentID string   `json:"document_id"`
	Range      Range    `json:"range"`
	Severity   Severity `json:"severity"`
	Code       string   `json:"code"`
	Message    string   `json:"message"`
}

// SeverityCounts tallies diagnostics by severity.
type SeverityCounts struct {
	Errors   int `json:"errors"`
	Warnings int `json:"warnings"`
	Infos    int `json:"infos"`
	Hints    int `json:"hints"`
}

// Total returns the number of diagnostics across all severities.
func (c SeverityCounts) Total() int {
	return c.Errors + c.Warnings + c.Infos + c.Hints
}

// CountSeverities tallies a diagnostic list.
func CountSeverities(diags []Diagnostic) SeverityCounts {
	var c SeverityCounts
	for _, d := range diags {
		switch d.Severity {
		case SeverityError:
			c.Errors++
		case SeverityWarning:
			c.Warnings++
		case SeverityInfo:
			c.Infos++
		case SeverityHint:
			c.Hints++
		}
	}
	return c
}

// ScopeKind selects how much of a session a diagnostic computation covers.
type ScopeKind string

const (
	ScopeSession  ScopeKind = "session"
	ScopeProject  ScopeKind = "project"
	ScopeDocument ScopeKind = "document"
)

// Scope identifies a diagnostic computation target. Target is empty for
// ScopeSession, a project name for ScopeProject, and a document ID for
// ScopeDocument.
type Scope struct {
	Kind   ScopeKind `json:"kind"`
	Target string    `json:"target,omitempty"`
}

// SessionScope covers every document in the session.
func SessionScope() Scope {
	return Scope{Kind: ScopeSession}
}

// ProjectScope covers the documents of one project.
func ProjectScope(project string) Scope {
	return Scope{Kind: ScopeProject, Target: project}
}

// DocumentScope covers a single document.
func DocumentScope(documentID string) Scope {
	return Scope{Kind: ScopeDocument, Target: documentID}
}

// Key returns a stable string form usable as a cache-map key.
func (s Scope) Key() string {
	if s.Target == "" {
		return string(s.Kind)
	}
	return fmt.Sprintf("%s:%s", s.Kind, s.Target)
}
