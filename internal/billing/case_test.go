package billing

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStatus(t *testing.T) {
	assert.Equal(t, StatusPending, ParseStatus("PENDING"))
	assert.Equal(t, StatusAnalyzed, ParseStatus("analyzed"))
	assert.Equal(t, StatusVerified, ParseStatus("  Verified "))
	assert.Equal(t, StatusExported, ParseStatus("exported"))
	assert.Equal(t, CaseStatus(""), ParseStatus("archived"))
	assert.Equal(t, CaseStatus(""), ParseStatus(""))
}

func TestStatusRankOrdering(t *testing.T) {
	// The lifecycle is forward-only; ranks must be strictly increasing.
	order := []CaseStatus{StatusPending, StatusAnalyzed, StatusVerified, StatusExported}
	for i := 1; i < len(order); i++ {
		assert.Greater(t, order[i].Rank(), order[i-1].Rank(),
			"%s should rank above %s", order[i], order[i-1])
	}
	assert.Equal(t, 0, CaseStatus("BOGUS").Rank())
	assert.False(t, CaseStatus("BOGUS").Valid())
}

func TestMatchesQuery(t *testing.T) {
	c := &Case{
		PatientID:   "PT-8829",
		PatientName: "Jane Doe",
		SlideID:     "WSI-2024-1847",
		Diagnosis:   "Invasive Ductal Carcinoma",
	}

	assert.True(t, c.MatchesQuery(""))
	assert.True(t, c.MatchesQuery("jane"))
	assert.True(t, c.MatchesQuery("1847"))
	assert.True(t, c.MatchesQuery("pt-8829"))
	assert.True(t, c.MatchesQuery("DUCTAL"))
	assert.True(t, c.MatchesQuery("  doe  "))
	assert.False(t, c.MatchesQuery("melanoma"))
	assert.False(t, c.MatchesQuery("WSI-2025"))
}

func TestCaseDetailDecode(t *testing.T) {
	// Shape as emitted by the detail endpoint.
	payload := `{
		"id": 3,
		"patient_id": "PT-8829",
		"patient_name": "Jane Doe",
		"slide_id": "WSI-2024-1847",
		"diagnosis": "Invasive Ductal Carcinoma",
		"status": "ANALYZED",
		"image_url": "/uploads/WSI-2024-1847.jpg",
		"complexity_indicators": ["High nuclear grade", "Perineural invasion"],
		"base_cpt_code": "88305",
		"suggested_cpt_code": "88309",
		"ai_assisted_code": "0596T",
		"ancillary_codes": ["88342"],
		"base_reimbursement": 72.0,
		"optimized_reimbursement": 98.6,
		"justification_text": "Findings warrant 88309.",
		"audit_defense_score": 96,
		"annotated_regions": [
			{"id": 1, "x": 120, "y": 150, "width": 80, "height": 60,
			 "label": "High-grade nuclei cluster", "cpt_impact": "+$6.20", "billable": true}
		],
		"verified_by": null,
		"verified_at": null,
		"audit_log": [
			{"action": "CREATED", "timestamp": "2024-01-15T10:30:00.123456", "details": "Case created for analysis"}
		],
		"created_at": "2024-01-15T10:30:00.123456"
	}`

	var detail CaseDetail
	require.NoError(t, json.Unmarshal([]byte(payload), &detail))

	assert.Equal(t, int64(3), detail.ID)
	assert.Equal(t, StatusAnalyzed, detail.Status)
	assert.Equal(t, "88309", detail.SuggestedCPTCode)
	assert.Len(t, detail.ComplexityIndicators, 2)
	require.Len(t, detail.AnnotatedRegions, 1)
	assert.Equal(t, "High-grade nuclei cluster", detail.AnnotatedRegions[0].Label)
	assert.True(t, detail.AnnotatedRegions[0].Billable)
	require.Len(t, detail.AuditLog, 1)
	assert.Equal(t, "CREATED", detail.AuditLog[0].Action)
}

func TestDeriveSlideID(t *testing.T) {
	assert.Equal(t, "WSI-2024-8829", DeriveSlideID("PT-8829"))
	assert.Equal(t, "WSI-2024-42", DeriveSlideID("42"))
	assert.Equal(t, "WSI-2024-", DeriveSlideID(""))
}

func TestParseTimestamp(t *testing.T) {
	// The backend emits Python isoformat without a timezone.
	for _, raw := range []string{
		"2024-01-15T10:30:00.123456",
		"2024-01-15T10:30:00",
		"2024-01-15T10:30:00Z",
		"2024-01-15 10:30:00",
	} {
		ts, err := ParseTimestamp(raw)
		require.NoError(t, err, "format %q", raw)
		assert.Equal(t, 2024, ts.Year())
	}

	_, err := ParseTimestamp("yesterday")
	assert.Error(t, err)
}

func TestVerifiedCodes(t *testing.T) {
	a := &BillingAnalysis{
		RecommendedCPT: "88309",
		CPTCodes: CPTCodes{
			Base:        "88305",
			Recommended: "88309",
			AIAssisted:  "0596T",
			Ancillary:   []string{"88342"},
		},
	}
	assert.Equal(t, []string{"88309", "0596T", "88342"}, a.VerifiedCodes())

	empty := &BillingAnalysis{}
	assert.Empty(t, empty.VerifiedCodes())
}

func TestRegionLookup(t *testing.T) {
	a := &BillingAnalysis{
		AnnotatedRegions: []AnnotatedRegion{
			{ID: 1, Label: "Mitotic figures"},
			{ID: 3, Label: "Perineural invasion"},
		},
	}

	r := a.Region(3)
	require.NotNil(t, r)
	assert.Equal(t, "Perineural invasion", r.Label)
	assert.Nil(t, a.Region(99))
}

func TestReimbursementTable(t *testing.T) {
	assert.Equal(t, 72.00, ReimbursementFor("88305"))
	assert.Equal(t, 85.00, ReimbursementFor("88307"))
	assert.Equal(t, 90.40, ReimbursementFor("88309"))
	assert.Equal(t, 8.20, ReimbursementFor(AIAssistedAddOnCode))
	assert.Equal(t, 0.0, ReimbursementFor("99999"))
}

func TestFormatUSD(t *testing.T) {
	assert.Equal(t, "$18.40", FormatUSD(18.4))
	assert.Equal(t, "$0.00", FormatUSD(0))
}
