package billing

import "fmt"

// CPTCodes groups the billing codes proposed by an analysis run.
type CPTCodes struct {
	Base        string   `json:"base"`
	Recommended string   `json:"recommended"`
	AIAssisted  string   `json:"ai_assisted,omitempty"`
	Ancillary   []string `json:"ancillary,omitempty"`
}

// AnnotatedRegion represents a spatial finding on a slide image.
// Coordinates are in view space. Regions are immutable once received.
type AnnotatedRegion struct {
	ID          int     `json:"id"`
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	Width       float64 `json:"width"`
	Height      float64 `json:"height"`
	Label       string  `json:"label"`
	Description string  `json:"description,omitempty"`
	CPTImpact   string  `json:"cpt_impact,omitempty"`
	Billable    bool    `json:"billable"`
	DemoOnly    bool    `json:"demo_only,omitempty"`
}

// BillingAnalysis represents the result of one analysis call. It lives
// only in memory, layered on the selected case, and is discarded when
// the selection changes or the case is re-analyzed.
type BillingAnalysis struct {
	SlideID                string            `json:"slide_id,omitempty"`
	BaseCPT                string            `json:"base_cpt"`
	RecommendedCPT         string            `json:"recommended_cpt"`
	RevenueDelta           float64           `json:"revenue_delta"`
	CPTCodes               CPTCodes          `json:"cpt_codes"`
	AuditNarrative         string            `json:"audit_narrative,omitempty"`
	ComplexityIndicators   []string          `json:"complexity_indicators,omitempty"`
	AnnotatedRegions       []AnnotatedRegion `json:"annotated_regions,omitempty"`
	BaseReimbursement      float64           `json:"base_reimbursement,omitempty"`
	OptimizedReimbursement float64           `json:"optimized_reimbursement,omitempty"`
	ConfidenceScore        float64           `json:"confidence_score,omitempty"`
	AuditDefenseScore      float64           `json:"audit_defense_score,omitempty"`
	ModelUsed              string            `json:"model_used,omitempty"`
}

// VerifiedCodes returns the codes a verification submission should carry:
// the recommended code plus the AI-assisted add-on and any ancillaries.
func (a *BillingAnalysis) VerifiedCodes() []string {
	var codes []string
	if a.RecommendedCPT != "" {
		codes = append(codes, a.RecommendedCPT)
	}
	if a.CPTCodes.AIAssisted != "" {
		codes = append(codes, a.CPTCodes.AIAssisted)
	}
	codes = append(codes, a.CPTCodes.Ancillary...)
	return codes
}

// Region returns the annotated region with the given id, or nil.
func (a *BillingAnalysis) Region(id int) *AnnotatedRegion {
	for i := range a.AnnotatedRegions {
		if a.AnnotatedRegions[i].ID == id {
			return &a.AnnotatedRegions[i]
		}
	}
	return nil
}

// National average reimbursement per CPT code, matching the backend's
// 2026 fee schedule. 0596T is the AI-assisted add-on.
var cptReimbursement = map[string]float64{
	"88305": 72.00,
	"88307": 85.00,
	"88309": 90.40,
	"0596T": 8.20,
}

// AIAssistedAddOnCode is the add-on CPT code for AI-assisted diagnostics.
const AIAssistedAddOnCode = "0596T"

// ReimbursementFor returns the reference reimbursement for a CPT code,
// or 0 when the code is not in the fee schedule.
func ReimbursementFor(code string) float64 {
	return cptReimbursement[code]
}

// FormatUSD renders a dollar amount the way the dashboard displays money.
func FormatUSD(amount float64) string {
	return fmt.Sprintf("$%.2f", amount)
}
