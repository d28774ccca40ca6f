package workspace

import "github.com/pathoai/patho-console/internal/billing"

// CasePatch carries the editable case fields for a staged update. Nil
// pointers leave the field unchanged, mirroring the backend's partial
// update semantics.
type CasePatch struct {
	PatientName *string
	Diagnosis   *string
	PatientID   *string
}

// Txn is a staged optimistic mutation. The local patch has already been
// applied when a Txn is handed out; the caller either commits it after
// the backend confirmed the change or rolls it back to the exact
// pre-stage state on failure. Local state never silently diverges from
// server truth.
type Txn struct {
	c           *Controller
	snapshot    snapshot
	stagedSlide string
	done        bool
}

// snapshot captures everything a rollback must restore.
type snapshot struct {
	cases         []billing.Case
	selectedSlide string
	generation    uint64
	analysis      *billing.BillingAnalysis
	detail        *billing.CaseDetail
	acked         map[int]struct{}
	query         string
	statusFilter  billing.CaseStatus
}

func (c *Controller) takeSnapshot() snapshot {
	cases := make([]billing.Case, len(c.cases))
	copy(cases, c.cases)
	acked := make(map[int]struct{}, len(c.acked))
	for id := range c.acked {
		acked[id] = struct{}{}
	}
	return snapshot{
		cases:         cases,
		selectedSlide: c.selectedSlide,
		generation:    c.generation,
		analysis:      c.analysis,
		detail:        c.detail,
		acked:         acked,
		query:         c.query,
		statusFilter:  c.statusFilter,
	}
}

func (c *Controller) restoreSnapshot(s snapshot) {
	c.cases = s.cases
	c.selectedSlide = s.selectedSlide
	c.generation = s.generation
	c.analysis = s.analysis
	c.detail = s.detail
	c.acked = s.acked
	c.query = s.query
	c.statusFilter = s.statusFilter
	c.applyFilters()
}

// StagedSlide returns the slide id the mutation was staged under. For
// creates this may differ from the committed slide id when the backend
// derives one.
func (t *Txn) StagedSlide() string {
	return t.stagedSlide
}

// Commit finalizes the staged mutation, discarding the rollback
// snapshot. The optimistic local patch becomes the accepted state.
func (t *Txn) Commit() {
	t.done = true
}

// CommitCreated finalizes a staged create, adopting the server-assigned
// case id and slide id. The backend derives a slide id from the patient
// id when the request omitted one, so the staged placeholder may move.
func (t *Txn) CommitCreated(caseID int64, slideID string) {
	t.done = true
	staged := t.c.findCase(t.stagedSlide)
	if staged == nil {
		return
	}
	staged.ID = caseID
	staged.SlideID = slideID
	if t.c.selectedSlide == t.stagedSlide {
		t.c.selectedSlide = slideID
	}
	t.stagedSlide = slideID
	t.c.applyFilters()
}

// Rollback restores the exact state captured when the mutation was
// staged. Safe to call after Commit; it becomes a no-op.
func (t *Txn) Rollback() {
	if t.done {
		return
	}
	t.done = true
	t.c.restoreSnapshot(t.snapshot)
	t.c.logger.Printf("Rolled back staged mutation for %s", t.stagedSlide)
}

// StageCreate optimistically appends a new PENDING case and selects it.
// The case appears in the list immediately; CommitCreated reconciles the
// server-assigned identifiers, Rollback removes it again.
func (c *Controller) StageCreate(newCase billing.Case) *Txn {
	txn := &Txn{c: c, snapshot: c.takeSnapshot(), stagedSlide: newCase.SlideID}

	if newCase.Status == "" {
		newCase.Status = billing.StatusPending
	}
	c.cases = append(c.cases, newCase)
	c.applyFilters()
	c.SelectSlide(newCase.SlideID)
	return txn
}

// StageUpdate optimistically applies an edit to a case. Status never
// changes through an edit.
func (c *Controller) StageUpdate(slideID string, patch CasePatch) *Txn {
	txn := &Txn{c: c, snapshot: c.takeSnapshot(), stagedSlide: slideID}

	if cs := c.findCase(slideID); cs != nil {
		if patch.PatientName != nil {
			cs.PatientName = *patch.PatientName
		}
		if patch.Diagnosis != nil {
			cs.Diagnosis = *patch.Diagnosis
		}
		if patch.PatientID != nil {
			cs.PatientID = *patch.PatientID
		}
		c.applyFilters()
	}
	return txn
}

// StageDelete optimistically removes a case. When the deleted case was
// selected, selection falls to the case now occupying its position in
// the filtered view, then to the last remaining case, then to none; the
// analysis result and acknowledged set are cleared with the selection.
func (c *Controller) StageDelete(slideID string) *Txn {
	txn := &Txn{c: c, snapshot: c.takeSnapshot(), stagedSlide: slideID}

	wasSelected := c.selectedSlide == slideID

	// Position of the victim in the filtered view, for the fallback.
	fallbackIdx := -1
	for i := range c.filtered {
		if c.filtered[i].SlideID == slideID {
			fallbackIdx = i
			break
		}
	}

	kept := c.cases[:0]
	for _, cs := range c.cases {
		if cs.SlideID != slideID {
			kept = append(kept, cs)
		}
	}
	c.cases = kept
	c.applyFilters()

	if wasSelected {
		switch {
		case len(c.filtered) == 0:
			c.SelectSlide("")
		case fallbackIdx < 0 || fallbackIdx >= len(c.filtered):
			c.SelectSlide(c.filtered[len(c.filtered)-1].SlideID)
		default:
			c.SelectSlide(c.filtered[fallbackIdx].SlideID)
		}
	}
	return txn
}
