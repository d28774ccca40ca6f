package billing

import (
	"strings"
	"time"
)

// CaseStatus represents the lifecycle state of a pathology billing case
type CaseStatus string

const (
	StatusPending  CaseStatus = "PENDING"
	StatusAnalyzed CaseStatus = "ANALYZED"
	StatusVerified CaseStatus = "VERIFIED"
	StatusExported CaseStatus = "EXPORTED"
)

// Rank returns the position of the status in the forward-only lifecycle
// PENDING -> ANALYZED -> VERIFIED -> EXPORTED. Unknown statuses rank
// below PENDING so they never mask a real transition.
func (s CaseStatus) Rank() int {
	switch s {
	case StatusPending:
		return 1
	case StatusAnalyzed:
		return 2
	case StatusVerified:
		return 3
	case StatusExported:
		return 4
	default:
		return 0
	}
}

// Valid reports whether the status is one of the four lifecycle values.
func (s CaseStatus) Valid() bool {
	return s.Rank() > 0
}

// ParseStatus normalizes a status string from user input or the wire.
func ParseStatus(raw string) CaseStatus {
	s := CaseStatus(strings.ToUpper(strings.TrimSpace(raw)))
	if s.Valid() {
		return s
	}
	return ""
}

// Case represents a pathology billing case as returned by the case list
// endpoint. BaseCPT and SuggestedCPT are list-view aliases; the detail
// endpoint carries the full *_cpt_code fields instead.
type Case struct {
	ID              int64      `json:"id"`
	PatientID       string     `json:"patient_id"`
	PatientName     string     `json:"patient_name"`
	SlideID         string     `json:"slide_id"`
	Diagnosis       string     `json:"diagnosis"`
	Status          CaseStatus `json:"status"`
	ImageURL        string     `json:"image_url,omitempty"`
	BaseCPT         string     `json:"base_cpt,omitempty"`
	SuggestedCPT    string     `json:"suggested_cpt,omitempty"`
	RecoveryValue   float64    `json:"recovery_value"`
	ConfidenceScore float64    `json:"confidence_score,omitempty"`
	CreatedAt       string     `json:"created_at,omitempty"`
}

// MatchesQuery reports whether the case matches a free-text query by
// case-insensitive substring over patient name, slide id, patient id,
// and diagnosis. An empty query matches everything.
func (c *Case) MatchesQuery(query string) bool {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return true
	}
	return strings.Contains(strings.ToLower(c.PatientName), q) ||
		strings.Contains(strings.ToLower(c.SlideID), q) ||
		strings.Contains(strings.ToLower(c.PatientID), q) ||
		strings.Contains(strings.ToLower(c.Diagnosis), q)
}

// CaseDetail represents the full per-slide record from the detail
// endpoint, layering analysis and verification fields over the case.
type CaseDetail struct {
	Case
	FindingType            string            `json:"finding_type,omitempty"`
	ComplexityIndicators   []string          `json:"complexity_indicators,omitempty"`
	BaseCPTCode            string            `json:"base_cpt_code,omitempty"`
	SuggestedCPTCode       string            `json:"suggested_cpt_code,omitempty"`
	AIAssistedCode         string            `json:"ai_assisted_code,omitempty"`
	AncillaryCodes         []string          `json:"ancillary_codes,omitempty"`
	BaseReimbursement      float64           `json:"base_reimbursement,omitempty"`
	OptimizedReimbursement float64           `json:"optimized_reimbursement,omitempty"`
	JustificationText      string            `json:"justification_text,omitempty"`
	AuditDefenseScore      float64           `json:"audit_defense_score,omitempty"`
	AnnotatedRegions       []AnnotatedRegion `json:"annotated_regions,omitempty"`
	VerifiedBy             string            `json:"verified_by,omitempty"`
	VerifiedAt             string            `json:"verified_at,omitempty"`
	AuditLog               []AuditLogEntry   `json:"audit_log,omitempty"`
}

// AuditLogEntry represents one action record, either from the server-side
// audit log carried on the case detail or from the local journal.
type AuditLogEntry struct {
	Action    string `json:"action"`
	Timestamp string `json:"timestamp"`
	User      string `json:"user,omitempty"`
	Details   string `json:"details,omitempty"`
}

// DeriveSlideID predicts the slide id the backend assigns when a create
// request omits one: the WSI-2024 prefix plus the last four characters
// of the patient id.
func DeriveSlideID(patientID string) string {
	suffix := patientID
	if len(suffix) > 4 {
		suffix = suffix[len(suffix)-4:]
	}
	return "WSI-2024-" + suffix
}

// ParseTimestamp parses the timestamp formats the backend emits. The
// backend writes Python isoformat stamps without a timezone, so plain
// RFC3339 parsing is not enough.
func ParseTimestamp(raw string) (time.Time, error) {
	formats := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02T15:04:05.999999",
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
	}

	var lastErr error
	for _, format := range formats {
		t, err := time.Parse(format, raw)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}
