package workspace

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/pathoai/patho-console/internal/billing"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func demoCases() []billing.Case {
	return []billing.Case{
		{ID: 1, PatientID: "PT-8829", PatientName: "Jane Doe", SlideID: "WSI-2024-1847",
			Diagnosis: "Invasive Ductal Carcinoma", Status: billing.StatusPending,
			ImageURL: "/uploads/WSI-2024-1847.jpg"},
		{ID: 2, PatientID: "PT-7721", PatientName: "John Smith", SlideID: "WSI-2024-1846",
			Diagnosis: "Melanoma In Situ", Status: billing.StatusPending,
			ImageURL: "/uploads/WSI-2024-1846.jpg"},
		{ID: 3, PatientID: "PT-9923", PatientName: "Robert Johnson", SlideID: "WSI-2024-1845",
			Diagnosis: "Squamous Cell Carcinoma", Status: billing.StatusVerified},
	}
}

func demoAnalysis() *billing.BillingAnalysis {
	return &billing.BillingAnalysis{
		SlideID:        "WSI-2024-1847",
		BaseCPT:        "88305",
		RecommendedCPT: "88309",
		RevenueDelta:   18.40,
		CPTCodes: billing.CPTCodes{
			Base: "88305", Recommended: "88309", AIAssisted: "0596T",
		},
		ConfidenceScore: 0.98,
		AnnotatedRegions: []billing.AnnotatedRegion{
			{ID: 1, Label: "High-grade nuclei cluster", Billable: true},
			{ID: 2, Label: "Mitotic figures", Billable: true},
			{ID: 3, Label: "Perineural invasion", Billable: true},
		},
	}
}

func TestReplaceCasesSelectsFirst(t *testing.T) {
	ws := New(nil)

	changed := ws.ReplaceCases(demoCases())
	assert.True(t, changed)
	assert.Equal(t, "WSI-2024-1847", ws.SelectedSlide())

	// A reload with the selection still present keeps it.
	ws.SelectSlide("WSI-2024-1846")
	changed = ws.ReplaceCases(demoCases())
	assert.False(t, changed)
	assert.Equal(t, "WSI-2024-1846", ws.SelectedSlide())

	// A reload that dropped the selected case falls back to the first.
	changed = ws.ReplaceCases(demoCases()[:1])
	assert.True(t, changed)
	assert.Equal(t, "WSI-2024-1847", ws.SelectedSlide())

	// An empty reload clears the selection.
	changed = ws.ReplaceCases(nil)
	assert.True(t, changed)
	assert.Equal(t, "", ws.SelectedSlide())
	assert.Nil(t, ws.SelectedCase())
}

func TestHasCase(t *testing.T) {
	ws := New(nil)
	ws.ReplaceCases(demoCases())

	assert.True(t, ws.HasCase("WSI-2024-1847"))
	assert.False(t, ws.HasCase("WSI-2024-9999"))
	assert.False(t, ws.HasCase(""))
}

func TestFilteredViewExactness(t *testing.T) {
	ws := New(nil)
	ws.ReplaceCases(demoCases())

	// Empty query, no status filter: everything.
	assert.Len(t, ws.Filtered(), 3)

	// Query matches across patient name, slide id, patient id, diagnosis.
	ws.SetQuery("jane")
	require.Len(t, ws.Filtered(), 1)
	assert.Equal(t, "WSI-2024-1847", ws.Filtered()[0].SlideID)

	ws.SetQuery("1846")
	require.Len(t, ws.Filtered(), 1)
	assert.Equal(t, "John Smith", ws.Filtered()[0].PatientName)

	ws.SetQuery("pt-9923")
	require.Len(t, ws.Filtered(), 1)
	assert.Equal(t, "Robert Johnson", ws.Filtered()[0].PatientName)

	ws.SetQuery("CARCINOMA")
	assert.Len(t, ws.Filtered(), 2)

	ws.SetQuery("no such case")
	assert.Len(t, ws.Filtered(), 0)

	// Status filter intersects with the query.
	ws.SetQuery("")
	ws.SetStatusFilter(billing.StatusVerified)
	require.Len(t, ws.Filtered(), 1)
	assert.Equal(t, billing.StatusVerified, ws.Filtered()[0].Status)

	ws.SetQuery("jane")
	assert.Len(t, ws.Filtered(), 0, "query and status filter must intersect")

	// Filtering never mutates the underlying collection.
	assert.Len(t, ws.Cases(), 3)
}

func TestStatusFilterExample(t *testing.T) {
	ws := New(nil)
	ws.ReplaceCases([]billing.Case{
		{SlideID: "A", Status: billing.StatusPending},
		{SlideID: "B", Status: billing.StatusVerified},
	})

	ws.SetStatusFilter(billing.StatusVerified)
	assert.Len(t, ws.Filtered(), 1)
}

func TestSelectionClearsInteractionState(t *testing.T) {
	ws := New(nil)
	ws.ReplaceCases(demoCases())
	ws.SelectSlide("WSI-2024-1847")

	ws.ApplyAnalysis("WSI-2024-1847", demoAnalysis())
	ws.AcknowledgeRegion(1)
	ws.AcknowledgeRegion(2)
	require.NotNil(t, ws.Analysis())
	require.Equal(t, 2, ws.AcknowledgedCount())

	ws.SelectSlide("WSI-2024-1846")
	assert.Nil(t, ws.Analysis())
	assert.Nil(t, ws.Detail())
	assert.Equal(t, 0, ws.AcknowledgedCount())
}

func TestVerifyGateTracksAckedSet(t *testing.T) {
	ws := New(nil)
	ws.ReplaceCases(demoCases())
	ws.SelectSlide("WSI-2024-1847")

	// No analysis yet: gate closed.
	assert.False(t, ws.CanVerify())

	// Analysis present but nothing acknowledged: still closed.
	ws.ApplyAnalysis("WSI-2024-1847", demoAnalysis())
	assert.False(t, ws.CanVerify())

	// One acknowledgment opens the gate.
	ws.AcknowledgeRegion(3)
	assert.True(t, ws.CanVerify())

	// Selection change empties the set and closes the gate again.
	ws.SelectSlide("WSI-2024-1846")
	assert.False(t, ws.CanVerify())
}

func TestAcknowledgeIdempotent(t *testing.T) {
	ws := New(nil)
	ws.ReplaceCases(demoCases())
	ws.ApplyAnalysis(ws.SelectedSlide(), demoAnalysis())

	assert.True(t, ws.AcknowledgeRegion(3))
	assert.False(t, ws.AcknowledgeRegion(3), "re-acknowledging must not report a change")
	assert.Equal(t, 1, ws.AcknowledgedCount(), "acknowledged set must stay at size 1")
	assert.True(t, ws.IsAcknowledged(3))

	assert.True(t, ws.AcknowledgeRegion(1))
	assert.Equal(t, []int{1, 3}, ws.AcknowledgedRegions())
	assert.Equal(t, []string{"High-grade nuclei cluster", "Perineural invasion"},
		ws.AcknowledgedLabels(), "labels follow the analysis region order")
}

func TestStatusTransitionsMonotonic(t *testing.T) {
	ws := New(nil)
	ws.ReplaceCases(demoCases())
	ws.SelectSlide("WSI-2024-1847")

	ws.ApplyAnalysis("WSI-2024-1847", demoAnalysis())
	assert.Equal(t, billing.StatusAnalyzed, ws.SelectedCase().Status)

	ws.AcknowledgeRegion(1)
	ws.MarkVerified("Dr. Chen")
	assert.Equal(t, billing.StatusVerified, ws.SelectedCase().Status)

	// Re-analysis must not demote a verified case.
	ws.ApplyAnalysis("WSI-2024-1847", demoAnalysis())
	assert.Equal(t, billing.StatusVerified, ws.SelectedCase().Status)

	ws.MarkExported()
	assert.Equal(t, billing.StatusExported, ws.SelectedCase().Status)

	// Nothing moves a case backward.
	ws.MarkVerified("Dr. Chen")
	assert.Equal(t, billing.StatusExported, ws.SelectedCase().Status)
}

func TestFailedAnalyzeLeavesStateUntouched(t *testing.T) {
	ws := New(nil)
	ws.ReplaceCases(demoCases())
	ws.SelectSlide("WSI-2024-1847")

	// A failed analyze call never reaches ApplyAnalysis; the controller
	// must still show a pending case with no analysis.
	assert.Equal(t, billing.StatusPending, ws.SelectedCase().Status)
	assert.Nil(t, ws.Analysis())

	// A late result for a superseded selection is discarded outright.
	ws.SelectSlide("WSI-2024-1846")
	applied := ws.ApplyAnalysis("WSI-2024-1847", demoAnalysis())
	assert.False(t, applied)
	assert.Nil(t, ws.Analysis())
	first := ws.Cases()[0]
	assert.Equal(t, billing.StatusPending, first.Status,
		"discarded analysis must not touch the case record")
}

func TestCanAnalyzeRequiresImage(t *testing.T) {
	ws := New(nil)
	ws.ReplaceCases(demoCases())

	ws.SelectSlide("WSI-2024-1847")
	assert.True(t, ws.CanAnalyze())

	// The verified demo case has no image attached.
	ws.SelectSlide("WSI-2024-1845")
	assert.False(t, ws.CanAnalyze())

	ws.SelectSlide("")
	assert.False(t, ws.CanAnalyze())
}

func TestSetImageURLUnlocksAnalysis(t *testing.T) {
	ws := New(nil)
	ws.ReplaceCases(demoCases())

	ws.SelectSlide("WSI-2024-1845")
	require.False(t, ws.CanAnalyze())

	ws.SetImageURL("WSI-2024-1845", "/uploads/WSI-2024-1845.jpg")
	assert.True(t, ws.CanAnalyze())

	// Unknown slides are ignored.
	ws.SetImageURL("WSI-0000-0000", "/uploads/ghost.jpg")
	assert.Len(t, ws.Cases(), 3)
}

func TestApplyDetailDiscardsStale(t *testing.T) {
	ws := New(nil)
	ws.ReplaceCases(demoCases())

	gen1 := ws.SelectSlide("WSI-2024-1847")
	gen2 := ws.SelectSlide("WSI-2024-1846")
	require.NotEqual(t, gen1, gen2)

	stale := &billing.CaseDetail{Case: billing.Case{SlideID: "WSI-2024-1847"}}
	assert.False(t, ws.ApplyDetail(gen1, stale), "superseded fetch must be discarded")
	assert.Nil(t, ws.Detail())

	fresh := &billing.CaseDetail{Case: billing.Case{SlideID: "WSI-2024-1846"}}
	assert.True(t, ws.ApplyDetail(gen2, fresh))
	require.NotNil(t, ws.Detail())
	assert.Equal(t, "WSI-2024-1846", ws.Detail().SlideID)
}

func TestCanExportGate(t *testing.T) {
	ws := New(nil)
	ws.ReplaceCases(demoCases())

	ws.SelectSlide("WSI-2024-1847")
	assert.False(t, ws.CanExport(), "pending cases have no audit PDF")

	ws.SelectSlide("WSI-2024-1845")
	assert.True(t, ws.CanExport())

	ws.MarkExported()
	assert.True(t, ws.CanExport(), "exported cases can be downloaded again")
}
