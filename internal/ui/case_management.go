package ui

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/pathoai/patho-console/internal/api"
	"github.com/pathoai/patho-console/internal/billing"
	"github.com/pathoai/patho-console/internal/workspace"
)

/*
   Case mutations are optimistic. Each form stages the change in the
   workspace first so the table reflects it immediately, then confirms it
   against the backend from a worker goroutine. The staged transaction is
   committed on success and rolled back to the exact pre-stage state on
   failure, with a modal explaining what happened. One mutation runs at a
   time, guarded by ui.mutating.
*/

// applyFormTheme pushes the current palette onto a form.
func (ui *UI) applyFormTheme(form *tview.Form) {
	t := ui.theme
	form.SetBackgroundColor(t.Surface)
	form.SetFieldBackgroundColor(t.SelectionBg)
	form.SetFieldTextColor(t.TextPrimary)
	form.SetLabelColor(t.TextMuted)
	form.SetButtonBackgroundColor(t.SelectionBg)
	form.SetButtonTextColor(t.TextPrimary)
	form.SetBorderColor(t.FocusBorder)
	form.SetTitleColor(t.Header)
}

// showForm swaps a form in as the root screen. Esc cancels.
func (ui *UI) showForm(form *tview.Form) {
	form.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if event.Key() == tcell.KeyEsc {
			ui.restoreMainLayout()
			return nil
		}
		return event
	})
	ui.lastFocus = ui.app.GetFocus()
	ui.app.SetRoot(form, true)
	ui.app.SetFocus(form)
}

// renderAll redraws every pane after a staged mutation moved state.
func (ui *UI) renderAll() {
	ui.renderCases()
	ui.renderOverview()
	ui.renderDetail()
	ui.renderRegions()
	ui.renderAudit()
	ui.renderStatusHints()
}

// showCreateCaseForm opens the new-case form.
func (ui *UI) showCreateCaseForm() {
	form := tview.NewForm()
	form.SetTitle(" New Case ")
	form.SetBorder(true)
	ui.applyFormTheme(form)

	var patientID, patientName, diagnosis, imagePath string

	form.AddInputField("Patient ID", "", 30, nil, func(text string) {
		patientID = text
	})
	form.AddInputField("Patient Name", "", 40, nil, func(text string) {
		patientName = text
	})
	form.AddTextArea("Diagnosis", "", 50, 3, 0, func(text string) {
		diagnosis = text
	})
	form.AddInputField("Slide image path (optional)", "", 50, nil, func(text string) {
		imagePath = text
	})

	form.AddButton("Create", func() {
		if patientID == "" || patientName == "" {
			return
		}
		ui.executeCreateCase(patientID, patientName, diagnosis, imagePath)
	})
	form.AddButton("Cancel", func() {
		ui.restoreMainLayout()
	})

	ui.showForm(form)
}

// executeCreateCase stages the new case and confirms it with the
// backend. The slide id is derived locally for the optimistic row; the
// server-assigned identifiers replace it on commit. A derived slide id
// that is already loaded rejects the create without touching the
// backend. A non-empty imagePath is uploaded as a follow-up call once
// the case exists.
func (ui *UI) executeCreateCase(patientID, patientName, diagnosis, imagePath string) {
	derivedSlide := billing.DeriveSlideID(patientID)
	if ui.ws.HasCase(derivedSlide) {
		ui.restoreMainLayout()
		ui.setStatusDirect("[%s]%s already exists for patient %s; nothing sent[-:-:-]",
			ui.theme.TagError, derivedSlide, patientID)
		return
	}
	if !atomic.CompareAndSwapInt32(&ui.mutating, 0, 1) {
		ui.restoreMainLayout()
		ui.setStatusDirect("[%s]Another case change is still in flight[-:-:-]", ui.theme.TagWarning)
		return
	}

	staged := billing.Case{
		PatientID:   patientID,
		PatientName: patientName,
		Diagnosis:   diagnosis,
		SlideID:     derivedSlide,
		Status:      billing.StatusPending,
	}
	txn := ui.ws.StageCreate(staged)

	ui.restoreMainLayout()
	ui.renderAll()
	ui.setStatusDirect("[%s]Creating case for %s...[-:-:-]", ui.theme.TagWarning, patientName)

	go func() {
		defer atomic.StoreInt32(&ui.mutating, 0)

		ctx, cancel := context.WithTimeout(ui.ctx, 15*time.Second)
		defer cancel()

		// Slide id omitted: the backend derives it from the patient id.
		created, err := ui.client.CreateCase(ctx, api.CreateCaseRequest{
			PatientID:   patientID,
			PatientName: patientName,
			Diagnosis:   diagnosis,
		})
		if err != nil {
			ui.app.QueueUpdateDraw(func() {
				txn.Rollback()
				ui.renderAll()
				ui.showModal(" Create Failed ", fmt.Sprintf("Could not create the case for %s:\n\n%v", patientName, err))
			})
			return
		}

		var imageURL string
		var uploadErr error
		if imagePath != "" {
			imageURL, uploadErr = ui.uploadSlideImage(ctx, created.SlideID, imagePath)
			if uploadErr != nil {
				ui.logger.Printf("slide image upload for %s failed: %v", created.SlideID, uploadErr)
			}
		}

		ui.app.QueueUpdateDraw(func() {
			txn.CommitCreated(created.CaseID, created.SlideID)
			if imageURL != "" {
				ui.ws.SetImageURL(created.SlideID, imageURL)
			}
			ui.renderAll()
			if uploadErr != nil {
				ui.showModal(" Image Upload Failed ", fmt.Sprintf(
					"Created %s, but the slide image was not attached:\n\n%v", created.SlideID, uploadErr))
			} else {
				ui.setStatusDirect("[%s]Created %s for %s[-:-:-]", ui.theme.TagSuccess,
					created.SlideID, patientName)
			}
			ui.recordAction(created.SlideID, "CREATED", patientName)
		})

		ui.refreshSummary()
	}()
}

// uploadSlideImage attaches a local image file to a case and returns
// the stored image reference.
func (ui *UI) uploadSlideImage(ctx context.Context, slideID, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return ui.client.UploadSlideImage(ctx, slideID, filepath.Base(path), f)
}

// showEditCaseForm opens the edit form for the selected case, prefilled
// with its current values.
func (ui *UI) showEditCaseForm() {
	sel := ui.ws.SelectedCase()
	if sel == nil {
		ui.setStatusDirect("[%s]No case selected[-:-:-]", ui.theme.TagWarning)
		return
	}

	form := tview.NewForm()
	form.SetTitle(fmt.Sprintf(" Edit %s ", sel.SlideID))
	form.SetBorder(true)
	ui.applyFormTheme(form)

	slideID := sel.SlideID
	origID := sel.PatientID
	origName := sel.PatientName
	origDiagnosis := sel.Diagnosis

	patientID := origID
	patientName := origName
	diagnosis := origDiagnosis

	form.AddInputField("Patient ID", patientID, 30, nil, func(text string) {
		patientID = text
	})
	form.AddInputField("Patient Name", patientName, 40, nil, func(text string) {
		patientName = text
	})
	form.AddTextArea("Diagnosis", diagnosis, 50, 3, 0, func(text string) {
		diagnosis = text
	})

	form.AddButton("Save", func() {
		if patientID == "" || patientName == "" {
			return
		}

		// Only changed fields travel, matching the backend's partial
		// update semantics.
		var patch workspace.CasePatch
		var req api.UpdateCaseRequest
		if patientID != origID {
			patch.PatientID = &patientID
			req.PatientID = &patientID
		}
		if patientName != origName {
			patch.PatientName = &patientName
			req.PatientName = &patientName
		}
		if diagnosis != origDiagnosis {
			patch.Diagnosis = &diagnosis
			req.Diagnosis = &diagnosis
		}
		if patch.PatientID == nil && patch.PatientName == nil && patch.Diagnosis == nil {
			ui.restoreMainLayout()
			ui.setStatusDirect("[%s]No changes[-:-:-]", ui.theme.TagMuted)
			return
		}

		ui.executeUpdateCase(slideID, patch, req)
	})
	form.AddButton("Cancel", func() {
		ui.restoreMainLayout()
	})

	ui.showForm(form)
}

// executeUpdateCase stages the edit and confirms it with the backend.
func (ui *UI) executeUpdateCase(slideID string, patch workspace.CasePatch, req api.UpdateCaseRequest) {
	if !atomic.CompareAndSwapInt32(&ui.mutating, 0, 1) {
		ui.restoreMainLayout()
		ui.setStatusDirect("[%s]Another case change is still in flight[-:-:-]", ui.theme.TagWarning)
		return
	}

	txn := ui.ws.StageUpdate(slideID, patch)

	ui.restoreMainLayout()
	ui.renderAll()
	ui.setStatusDirect("[%s]Saving %s...[-:-:-]", ui.theme.TagWarning, slideID)

	go func() {
		defer atomic.StoreInt32(&ui.mutating, 0)

		ctx, cancel := context.WithTimeout(ui.ctx, 15*time.Second)
		defer cancel()

		updated, err := ui.client.UpdateCase(ctx, slideID, req)
		if err != nil {
			ui.app.QueueUpdateDraw(func() {
				txn.Rollback()
				ui.renderAll()
				ui.showModal(" Edit Failed ", fmt.Sprintf("Could not update %s:\n\n%v", slideID, err))
			})
			return
		}

		ui.app.QueueUpdateDraw(func() {
			txn.Commit()
			ui.renderAll()
			ui.setStatusDirect("[%s]Saved %s[-:-:-]", ui.theme.TagSuccess, slideID)
			ui.recordAction(slideID, "UPDATED", updated.PatientName)
		})
	}()
}

// showDeleteCaseConfirm asks before removing the selected case.
func (ui *UI) showDeleteCaseConfirm() {
	sel := ui.ws.SelectedCase()
	if sel == nil {
		ui.setStatusDirect("[%s]No case selected[-:-:-]", ui.theme.TagWarning)
		return
	}

	slideID := sel.SlideID
	patientName := sel.PatientName

	modal := tview.NewModal().
		SetText(fmt.Sprintf("Delete %s (%s)?\n\nThe case and its audit history are removed from the backend. This cannot be undone.",
			slideID, patientName)).
		AddButtons([]string{"Delete", "Cancel"})
	modal.SetTitle(" Delete Case ")
	modal.SetBackgroundColor(ui.theme.Surface)
	modal.SetTextColor(ui.theme.TextPrimary)
	modal.SetBorderColor(ui.theme.Error)
	modal.SetButtonBackgroundColor(ui.theme.SelectionBg)
	modal.SetButtonTextColor(ui.theme.SelectionFg)
	modal.SetDoneFunc(func(buttonIndex int, buttonLabel string) {
		if buttonLabel != "Delete" {
			ui.restoreMainLayout()
			return
		}
		ui.executeDeleteCase(slideID, patientName)
	})

	ui.lastFocus = ui.app.GetFocus()
	ui.app.SetRoot(modal, true)
	ui.app.SetFocus(modal)
}

// executeDeleteCase stages the removal and confirms it with the backend.
// The staged removal already moved the selection, so a successful commit
// is followed by a detail fetch for whichever case took its place.
func (ui *UI) executeDeleteCase(slideID, patientName string) {
	if !atomic.CompareAndSwapInt32(&ui.mutating, 0, 1) {
		ui.restoreMainLayout()
		ui.setStatusDirect("[%s]Another case change is still in flight[-:-:-]", ui.theme.TagWarning)
		return
	}

	txn := ui.ws.StageDelete(slideID)

	ui.restoreMainLayout()
	ui.renderAll()
	ui.setStatusDirect("[%s]Deleting %s...[-:-:-]", ui.theme.TagWarning, slideID)

	go func() {
		defer atomic.StoreInt32(&ui.mutating, 0)

		ctx, cancel := context.WithTimeout(ui.ctx, 15*time.Second)
		defer cancel()

		if err := ui.client.DeleteCase(ctx, slideID); err != nil {
			ui.app.QueueUpdateDraw(func() {
				txn.Rollback()
				ui.renderAll()
				ui.showModal(" Delete Failed ", fmt.Sprintf("Could not delete %s:\n\n%v", slideID, err))
			})
			return
		}

		ui.app.QueueUpdateDraw(func() {
			txn.Commit()
			ui.renderAll()
			ui.setStatusDirect("[%s]Deleted %s (%s)[-:-:-]", ui.theme.TagSuccess, slideID, patientName)
			ui.recordAction(slideID, "DELETED", patientName)
			if next := ui.ws.SelectedCase(); next != nil && next.Status != billing.StatusPending {
				go ui.fetchDetail(ui.ws.Generation(), next.SlideID)
			}
		})

		ui.refreshSummary()
	}()
}

// showVerifyForm opens the verification form. Verification needs a
// completed analysis with at least one examined finding.
func (ui *UI) showVerifyForm() {
	sel := ui.ws.SelectedCase()
	if sel == nil {
		ui.setStatusDirect("[%s]No case selected[-:-:-]", ui.theme.TagWarning)
		return
	}
	analysis := ui.ws.Analysis()
	if analysis == nil {
		ui.setStatusDirect("[%s]Run analysis (a) before verifying %s[-:-:-]",
			ui.theme.TagWarning, sel.SlideID)
		return
	}
	if !ui.ws.CanVerify() {
		ui.setStatusDirect("[%s]Examine at least one finding before verifying[-:-:-]", ui.theme.TagWarning)
		return
	}

	form := tview.NewForm()
	form.SetTitle(fmt.Sprintf(" Verify %s (%s, %d findings examined) ",
		sel.SlideID, analysis.RecommendedCPT, ui.ws.AcknowledgedCount()))
	form.SetBorder(true)
	ui.applyFormTheme(form)

	pathologist := ui.opts.PathologistName

	form.AddInputField("Pathologist", pathologist, 40, nil, func(text string) {
		pathologist = text
	})

	form.AddButton("Verify", func() {
		if pathologist == "" {
			return
		}
		ui.restoreMainLayout()
		ui.submitVerification(pathologist)
	})
	form.AddButton("Cancel", func() {
		ui.restoreMainLayout()
	})

	ui.showForm(form)
}
