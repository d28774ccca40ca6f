// Package workspace implements the case workspace controller: the
// single source of truth for the case collection and the interaction
// state layered on the selected case (analysis result, acknowledged
// regions, detail record, filter view).
//
// The controller is pure state with no I/O. All methods must be called
// from a single goroutine, the UI event loop in practice. Remote calls
// happen outside; their results re-enter through the Apply* methods,
// which discard payloads that arrive after the selection that issued
// them has been superseded.
package workspace

import (
	"io"
	"log"
	"sort"

	"github.com/pathoai/patho-console/internal/billing"
)

// Controller owns the in-memory case collection and selection state.
type Controller struct {
	logger *log.Logger

	cases    []billing.Case
	filtered []billing.Case

	selectedSlide string
	generation    uint64

	analysis *billing.BillingAnalysis
	detail   *billing.CaseDetail
	acked    map[int]struct{}

	query        string
	statusFilter billing.CaseStatus

	summary *billing.RevenueSummary
}

// New creates an empty controller.
func New(logger *log.Logger) *Controller {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Controller{
		logger: logger,
		acked:  make(map[int]struct{}),
	}
}

// Cases returns the full collection. Callers must treat it as read-only.
func (c *Controller) Cases() []billing.Case {
	return c.cases
}

// Filtered returns the derived view after query and status filtering.
// Callers must treat it as read-only.
func (c *Controller) Filtered() []billing.Case {
	return c.filtered
}

// Generation returns the current selection generation. Detail fetches
// carry it so late responses for superseded selections can be dropped.
func (c *Controller) Generation() uint64 {
	return c.generation
}

// SelectedSlide returns the slide id of the selected case, or "".
func (c *Controller) SelectedSlide() string {
	return c.selectedSlide
}

// SelectedCase returns the selected case, or nil when nothing is
// selected. The pointer aims into the collection and is only valid
// until the next mutation.
func (c *Controller) SelectedCase() *billing.Case {
	return c.findCase(c.selectedSlide)
}

// Analysis returns the analysis result for the selected case, or nil.
func (c *Controller) Analysis() *billing.BillingAnalysis {
	return c.analysis
}

// Detail returns the detail record for the selected case, or nil.
func (c *Controller) Detail() *billing.CaseDetail {
	return c.detail
}

// Summary returns the last revenue summary applied, or nil.
func (c *Controller) Summary() *billing.RevenueSummary {
	return c.summary
}

// SetSummary stores a freshly fetched revenue summary.
func (c *Controller) SetSummary(s *billing.RevenueSummary) {
	c.summary = s
}

// HasCase reports whether a case with the slide id is already loaded.
func (c *Controller) HasCase(slideID string) bool {
	return c.findCase(slideID) != nil
}

func (c *Controller) findCase(slideID string) *billing.Case {
	if slideID == "" {
		return nil
	}
	for i := range c.cases {
		if c.cases[i].SlideID == slideID {
			return &c.cases[i]
		}
	}
	return nil
}

// ReplaceCases swaps in a freshly loaded collection. If nothing is
// selected, or the previous selection is gone from the new collection,
// the first case of the filtered view becomes selected. Returns true
// when the selection changed, meaning interaction state was cleared and
// a new detail fetch is due.
func (c *Controller) ReplaceCases(cases []billing.Case) bool {
	c.cases = cases
	c.applyFilters()

	if c.selectedSlide != "" && c.findCase(c.selectedSlide) != nil {
		return false
	}
	return c.selectFirst()
}

// selectFirst selects the first entry of the filtered view, or clears
// the selection when the view is empty. Returns true if the selection
// changed.
func (c *Controller) selectFirst() bool {
	if len(c.filtered) > 0 {
		c.SelectSlide(c.filtered[0].SlideID)
		return true
	}
	if c.selectedSlide == "" {
		return false
	}
	c.SelectSlide("")
	return true
}

// SelectSlide makes slideID the selected case, clearing the analysis
// result, the acknowledged-region set, and the detail record. It
// returns the new selection generation; the caller tags any detail
// fetch it issues with that value.
func (c *Controller) SelectSlide(slideID string) uint64 {
	c.selectedSlide = slideID
	c.generation++
	c.analysis = nil
	c.detail = nil
	c.acked = make(map[int]struct{})
	return c.generation
}

// ApplyDetail installs a fetched detail record if generation still
// matches the current selection. Stale responses are discarded and
// logged; they must never overwrite newer state.
func (c *Controller) ApplyDetail(generation uint64, detail *billing.CaseDetail) bool {
	if generation != c.generation {
		c.logger.Printf("Discarding stale detail (generation %d, current %d)",
			generation, c.generation)
		return false
	}
	c.detail = detail
	return true
}

// CanAnalyze reports whether the selected case can be analyzed: it must
// exist and have a backing slide image.
func (c *Controller) CanAnalyze() bool {
	sel := c.SelectedCase()
	return sel != nil && sel.ImageURL != ""
}

// ApplyAnalysis installs an analysis result if slideID is still the
// selected case, marking it ANALYZED and mirroring the billing fields
// the backend writes onto the case record. Results for a superseded
// selection are discarded. A failed analyze call never reaches this
// method, so failure leaves both status and analysis untouched.
func (c *Controller) ApplyAnalysis(slideID string, analysis *billing.BillingAnalysis) bool {
	if slideID != c.selectedSlide {
		c.logger.Printf("Discarding analysis for %s, selection moved to %s",
			slideID, c.selectedSlide)
		return false
	}

	c.analysis = analysis
	c.acked = make(map[int]struct{})

	if sel := c.findCase(slideID); sel != nil {
		c.promoteStatus(sel, billing.StatusAnalyzed)
		sel.SuggestedCPT = analysis.RecommendedCPT
		sel.RecoveryValue = analysis.RevenueDelta
		if analysis.ConfidenceScore > 0 {
			sel.ConfidenceScore = analysis.ConfidenceScore
		}
		c.applyFilters()
	}
	return true
}

// promoteStatus moves a case forward in the lifecycle. Transitions are
// monotonic: a target at or below the current rank is ignored.
func (c *Controller) promoteStatus(cs *billing.Case, target billing.CaseStatus) {
	if target.Rank() <= cs.Status.Rank() {
		return
	}
	c.logger.Printf("Case %s: %s -> %s", cs.SlideID, cs.Status, target)
	cs.Status = target
}

// AcknowledgeRegion adds a region id to the acknowledged set. The add
// is idempotent: re-acknowledging never removes or duplicates. Returns
// true when the set actually grew. The caller's interaction-log call is
// fire-and-forget; its failure never reverts the acknowledgment.
func (c *Controller) AcknowledgeRegion(regionID int) bool {
	if _, ok := c.acked[regionID]; ok {
		return false
	}
	c.acked[regionID] = struct{}{}
	return true
}

// IsAcknowledged reports whether a region id is in the acknowledged set.
func (c *Controller) IsAcknowledged(regionID int) bool {
	_, ok := c.acked[regionID]
	return ok
}

// AcknowledgedCount returns the size of the acknowledged set.
func (c *Controller) AcknowledgedCount() int {
	return len(c.acked)
}

// AcknowledgedRegions returns the acknowledged region ids in ascending
// order.
func (c *Controller) AcknowledgedRegions() []int {
	ids := make([]int, 0, len(c.acked))
	for id := range c.acked {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// AcknowledgedLabels returns the labels of acknowledged regions in the
// order the analysis listed them. These are the complexity indicators
// the verification submission carries.
func (c *Controller) AcknowledgedLabels() []string {
	if c.analysis == nil {
		return nil
	}
	var labels []string
	for _, region := range c.analysis.AnnotatedRegions {
		if c.IsAcknowledged(region.ID) {
			labels = append(labels, region.Label)
		}
	}
	return labels
}

// CanVerify reports whether the human-in-the-loop gate is open: an
// analysis is present and at least one region has been acknowledged.
// The verify affordance in the UI tracks this exactly.
func (c *Controller) CanVerify() bool {
	return c.SelectedCase() != nil && c.analysis != nil && len(c.acked) > 0
}

// MarkVerified moves the selected case to VERIFIED after the backend
// confirmed the documentation call. The caller refreshes the revenue
// summary afterwards.
func (c *Controller) MarkVerified(verifiedBy string) {
	sel := c.SelectedCase()
	if sel == nil {
		return
	}
	c.promoteStatus(sel, billing.StatusVerified)
	if c.detail != nil && c.detail.SlideID == sel.SlideID {
		c.detail.VerifiedBy = verifiedBy
	}
	c.applyFilters()
}

// CanExport reports whether the selected case may be exported: only
// VERIFIED and EXPORTED cases have an audit PDF to download.
func (c *Controller) CanExport() bool {
	sel := c.SelectedCase()
	if sel == nil {
		return false
	}
	return sel.Status == billing.StatusVerified || sel.Status == billing.StatusExported
}

// MarkExported moves the selected case to EXPORTED. Called only after
// the downloaded document has been validated as non-empty, since the
// backend flips the status server-side as a download side effect.
func (c *Controller) MarkExported() {
	if sel := c.SelectedCase(); sel != nil {
		c.promoteStatus(sel, billing.StatusExported)
		c.applyFilters()
	}
}

// SetImageURL records the stored image reference on a case after a
// slide upload succeeds. Unknown slide ids are ignored.
func (c *Controller) SetImageURL(slideID, imageURL string) {
	if cs := c.findCase(slideID); cs != nil {
		cs.ImageURL = imageURL
	}
}

// Query returns the active free-text filter.
func (c *Controller) Query() string {
	return c.query
}

// SetQuery updates the free-text filter and recomputes the view.
func (c *Controller) SetQuery(query string) {
	c.query = query
	c.applyFilters()
}

// StatusFilter returns the active status filter, "" meaning all.
func (c *Controller) StatusFilter() billing.CaseStatus {
	return c.statusFilter
}

// SetStatusFilter updates the status filter and recomputes the view.
func (c *Controller) SetStatusFilter(status billing.CaseStatus) {
	c.statusFilter = status
	c.applyFilters()
}

// applyFilters recomputes the filtered view: case-insensitive substring
// match over patient name, slide id, patient id, and diagnosis,
// intersected with the status filter. Purely derived; the underlying
// collection is never mutated.
func (c *Controller) applyFilters() {
	filtered := make([]billing.Case, 0, len(c.cases))
	for i := range c.cases {
		cs := &c.cases[i]
		if c.statusFilter != "" && cs.Status != c.statusFilter {
			continue
		}
		if !cs.MatchesQuery(c.query) {
			continue
		}
		filtered = append(filtered, *cs)
	}
	c.filtered = filtered
}
