package ui

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/pathoai/patho-console/internal/api"
	"github.com/pathoai/patho-console/internal/billing"
	"github.com/pathoai/patho-console/internal/bus"
	"github.com/pathoai/patho-console/internal/cache"
	"github.com/pathoai/patho-console/internal/workspace"
)

/*
   Threading model

   - All workspace state lives in a workspace.Controller and is touched
     only on the tview event goroutine: key handlers mutate it directly,
     backend calls run in worker goroutines and re-enter through
     app.QueueUpdateDraw callbacks.
   - Detail fetches carry the selection generation; analysis results
     carry the slide id they were requested for. Both are discarded on
     re-entry when the selection has moved on.
   - One atomic flag per remote flow (refresh, analyze, verify, export,
     case mutation) keeps a slow backend from stacking duplicate calls.
*/

// Theme defines UI color tokens used across widgets and text tags.
type Theme struct {
	// Widget colors
	Bg          tcell.Color
	Surface     tcell.Color
	Border      tcell.Color
	FocusBorder tcell.Color
	SelectionBg tcell.Color
	SelectionFg tcell.Color
	TextPrimary tcell.Color
	TextMuted   tcell.Color
	Accent      tcell.Color
	Success     tcell.Color
	Warning     tcell.Color
	Error       tcell.Color
	Header      tcell.Color

	// Table colors
	TableHeader   tcell.Color
	TableHeaderBg tcell.Color
	TableRow      tcell.Color
	TableRowMuted tcell.Color

	// Lifecycle status (widgets)
	StatusPending  tcell.Color
	StatusAnalyzed tcell.Color
	StatusVerified tcell.Color
	StatusExported tcell.Color

	// Text tag colors (for tview dynamic color markup)
	TagTextPrimary    string
	TagMuted          string
	TagAccent         string
	TagSuccess        string
	TagWarning        string
	TagError          string
	TagMoney          string
	TagStatusPending  string
	TagStatusAnalyzed string
	TagStatusVerified string
	TagStatusExported string
}

// helpers
func hex(s string) tcell.Color { return tcell.GetColor(s) }

func themeDark() Theme {
	return Theme{
		Bg:          hex("#0d1117"),
		Surface:     hex("#11161d"),
		Border:      hex("#2b3240"),
		FocusBorder: hex("#4aa8ff"),
		SelectionBg: hex("#2b3240"),
		SelectionFg: hex("#cfd8e3"),
		TextPrimary: hex("#e6edf3"),
		TextMuted:   hex("#8a939f"),
		Accent:      hex("#34d399"),
		Success:     hex("#22c55e"),
		Warning:     hex("#f59e0b"),
		Error:       hex("#ef4444"),
		Header:      hex("#34d399"),

		TableHeader:   hex("#34d399"),
		TableHeaderBg: hex("#17211c"),
		TableRow:      hex("#e6edf3"),
		TableRowMuted: hex("#94a3b8"),

		StatusPending:  hex("#f59e0b"),
		StatusAnalyzed: hex("#60a5fa"),
		StatusVerified: hex("#22c55e"),
		StatusExported: hex("#8a939f"),

		TagTextPrimary:    "#e6edf3",
		TagMuted:          "#8a939f",
		TagAccent:         "#34d399",
		TagSuccess:        "#22c55e",
		TagWarning:        "#f59e0b",
		TagError:          "#ef4444",
		TagMoney:          "#4ade80",
		TagStatusPending:  "#f59e0b",
		TagStatusAnalyzed: "#60a5fa",
		TagStatusVerified: "#22c55e",
		TagStatusExported: "#8a939f",
	}
}

func themeLight() Theme {
	return Theme{
		Bg:          hex("#f6f8fa"),
		Surface:     hex("#ffffff"),
		Border:      hex("#d0d7de"),
		FocusBorder: hex("#1f6feb"),
		SelectionBg: hex("#dbeafe"),
		SelectionFg: hex("#111827"),
		TextPrimary: hex("#111827"),
		TextMuted:   hex("#6b7280"),
		Accent:      hex("#047857"),
		Success:     hex("#15803d"),
		Warning:     hex("#b45309"),
		Error:       hex("#b91c1c"),
		Header:      hex("#065f46"),

		TableHeader:   hex("#065f46"),
		TableHeaderBg: hex("#e5e7eb"),
		TableRow:      hex("#111827"),
		TableRowMuted: hex("#6b7280"),

		StatusPending:  hex("#b45309"),
		StatusAnalyzed: hex("#1d4ed8"),
		StatusVerified: hex("#15803d"),
		StatusExported: hex("#6b7280"),

		TagTextPrimary:    "#111827",
		TagMuted:          "#6b7280",
		TagAccent:         "#047857",
		TagSuccess:        "#15803d",
		TagWarning:        "#b45309",
		TagError:          "#b91c1c",
		TagMoney:          "#047857",
		TagStatusPending:  "#b45309",
		TagStatusAnalyzed: "#1d4ed8",
		TagStatusVerified: "#15803d",
		TagStatusExported: "#6b7280",
	}
}

func themeHighContrast() Theme {
	return Theme{
		Bg:          hex("#000000"),
		Surface:     hex("#000000"),
		Border:      hex("#ffffff"),
		FocusBorder: hex("#ffff00"),
		SelectionBg: hex("#ffffff"),
		SelectionFg: hex("#000000"),
		TextPrimary: hex("#ffffff"),
		TextMuted:   hex("#cccccc"),
		Accent:      hex("#00ffff"),
		Success:     hex("#00ff00"),
		Warning:     hex("#ffff00"),
		Error:       hex("#ff0000"),
		Header:      hex("#ffffff"),

		TableHeader:   hex("#ffffff"),
		TableHeaderBg: hex("#000000"),
		TableRow:      hex("#ffffff"),
		TableRowMuted: hex("#cccccc"),

		StatusPending:  hex("#ffff00"),
		StatusAnalyzed: hex("#00aaff"),
		StatusVerified: hex("#00ff00"),
		StatusExported: hex("#cccccc"),

		TagTextPrimary:    "#ffffff",
		TagMuted:          "#cccccc",
		TagAccent:         "#00ffff",
		TagSuccess:        "#00ff00",
		TagWarning:        "#ffff00",
		TagError:          "#ff0000",
		TagMoney:          "#00ff00",
		TagStatusPending:  "#ffff00",
		TagStatusAnalyzed: "#00aaff",
		TagStatusVerified: "#00ff00",
		TagStatusExported: "#cccccc",
	}
}

func detectTrueColor() bool {
	// Best-effort detection without initializing a screen
	ct := strings.ToLower(os.Getenv("COLORTERM"))
	if strings.Contains(ct, "truecolor") || strings.Contains(ct, "24bit") {
		return true
	}
	term := strings.ToLower(os.Getenv("TERM"))
	if strings.Contains(term, "truecolor") || strings.Contains(term, "24bit") || strings.Contains(term, "256color") {
		return true
	}
	return false
}

// Options carries operator-facing settings the commands resolve from
// configuration.
type Options struct {
	PathologistName string
	DownloadsDir    string
}

// UI represents the terminal user interface
type UI struct {
	app    *tview.Application
	client *api.Client
	ws     *workspace.Controller
	cache  *cache.Cache
	bus    bus.Bus
	logger *log.Logger
	opts   Options

	// Layout components
	layout      *tview.Flex
	appTitle    *tview.TextView
	revenueInfo *tview.TextView
	searchInput *tview.InputField
	caseTable   *tview.Table
	mainPanel   *tview.Flex
	detailView  *tview.TextView
	regionTable *tview.Table
	auditView   *tview.TextView
	statusBar   *tview.TextView

	// In-flight guards, one per remote flow
	refreshing int32
	analyzing  int32
	verifying  int32
	exporting  int32
	mutating   int32

	// Theme state
	theme        Theme
	themeName    string
	hasTrueColor bool

	// Offline snapshot state
	offline    bool
	snapshotAt time.Time

	// Runtime
	running    bool
	helpActive bool
	lastFocus  tview.Primitive

	// Global input capture (restored after modal screens)
	globalInputCapture func(*tcell.EventKey) *tcell.EventKey

	// Context for cancellation
	ctx    context.Context
	cancel context.CancelFunc
}

// NewUI creates a new terminal user interface
func NewUI(ctx context.Context, client *api.Client, localCache *cache.Cache, auditBus bus.Bus, opts Options, logger *log.Logger) *UI {
	if logger == nil {
		logger = log.New(log.Writer(), "[UI] ", log.LstdFlags)
	}
	if opts.PathologistName == "" {
		opts.PathologistName = "pathologist"
	}
	if opts.DownloadsDir == "" {
		opts.DownloadsDir = "downloads"
	}

	uiCtx, cancel := context.WithCancel(ctx)

	ui := &UI{
		app:          tview.NewApplication(),
		client:       client,
		ws:           workspace.New(logger),
		cache:        localCache,
		bus:          auditBus,
		logger:       logger,
		opts:         opts,
		ctx:          uiCtx,
		cancel:       cancel,
		hasTrueColor: detectTrueColor(),
	}

	ui.themeName = "dark"
	ui.theme = themeDark()
	if !ui.hasTrueColor {
		// Basic terminals approximate the hex palettes badly; start on
		// the pure-ANSI one instead. 't' still cycles as usual.
		ui.themeName = "high-contrast"
		ui.theme = themeHighContrast()
	}

	ui.setupLayout()
	ui.setupKeybindings()
	ui.applyTheme()

	return ui
}

// Workspace exposes the controller for command-level wiring.
func (ui *UI) Workspace() *workspace.Controller {
	return ui.ws
}

// Start starts the TUI application
func (ui *UI) Start(ctx context.Context) error {
	ui.logger.Println("Starting TUI application")

	// Show UI immediately, then load data asynchronously
	go func() {
		ui.refreshCases("startup")
		ui.refreshSummary()
	}()

	go func() {
		select {
		case <-ctx.Done():
			ui.logger.Println("External context cancelled, stopping TUI")
		case <-ui.ctx.Done():
			ui.logger.Println("UI context cancelled, stopping TUI")
		}
		ui.cancel()
		ui.app.Stop()
	}()

	ui.startRedrawHeartbeat()

	ui.running = true
	err := ui.app.Run()
	ui.running = false
	ui.logger.Printf("app.Run() returned with error: %v", err)
	return err
}

// Stop stops the TUI application
func (ui *UI) Stop() {
	ui.logger.Println("Stopping TUI application")
	ui.running = false
	ui.cancel()
	ui.app.Stop()
}

// setupLayout creates the main layout
func (ui *UI) setupLayout() {
	ui.appTitle = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignLeft)
	ui.appTitle.SetBorder(false)

	ui.revenueInfo = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignLeft)
	ui.revenueInfo.SetTitle(" REVENUE ")
	ui.revenueInfo.SetBorder(true)
	ui.revenueInfo.SetTitleAlign(tview.AlignCenter)

	ui.searchInput = tview.NewInputField().
		SetLabel(" / ").
		SetFieldWidth(0)
	ui.searchInput.SetChangedFunc(func(text string) {
		ui.ws.SetQuery(text)
		ui.renderCases()
	})
	ui.searchInput.SetDoneFunc(func(key tcell.Key) {
		ui.app.SetFocus(ui.caseTable)
		ui.renderStatusHints()
	})

	ui.caseTable = tview.NewTable()
	ui.caseTable.SetTitle(" Cases ")
	ui.caseTable.SetBorder(true)
	ui.caseTable.SetTitleAlign(tview.AlignLeft)
	ui.caseTable.SetSelectable(true, false)
	// Pin the header row so it survives scrolling.
	ui.caseTable.SetFixed(1, 0)

	ui.detailView = tview.NewTextView()
	ui.detailView.SetTitle(" Case Detail ")
	ui.detailView.SetBorder(true)
	ui.detailView.SetTitleAlign(tview.AlignLeft)
	ui.detailView.SetDynamicColors(true)
	ui.detailView.SetWordWrap(true)
	ui.detailView.SetScrollable(true)

	ui.regionTable = tview.NewTable()
	ui.regionTable.SetTitle(" Findings ")
	ui.regionTable.SetBorder(true)
	ui.regionTable.SetTitleAlign(tview.AlignLeft)
	ui.regionTable.SetSelectable(true, false)
	ui.regionTable.SetFixed(1, 0)

	ui.auditView = tview.NewTextView()
	ui.auditView.SetTitle(" Audit Trail ")
	ui.auditView.SetBorder(true)
	ui.auditView.SetTitleAlign(tview.AlignLeft)
	ui.auditView.SetDynamicColors(true)
	ui.auditView.SetWordWrap(true)
	ui.auditView.SetScrollable(true)

	ui.statusBar = tview.NewTextView()
	ui.statusBar.SetDynamicColors(true)

	leftCol := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(ui.appTitle, 2, 0, false).
		AddItem(ui.revenueInfo, 8, 0, false).
		AddItem(ui.searchInput, 1, 0, false).
		AddItem(ui.caseTable, 0, 1, true)

	ui.mainPanel = tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(ui.detailView, 0, 2, false).
		AddItem(ui.regionTable, 0, 2, false).
		AddItem(ui.auditView, 0, 1, false)

	ui.layout = tview.NewFlex().
		SetDirection(tview.FlexColumn).
		AddItem(leftCol, 52, 0, true).
		AddItem(ui.mainPanel, 0, 1, false)

	root := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(ui.layout, 0, 1, true).
		AddItem(ui.statusBar, 1, 0, false)

	ui.app.SetRoot(root, true)

	ui.setupEventHandlers()

	ui.renderTitle()
	ui.renderOverview()
	ui.renderCases()
	ui.renderDetail()
	ui.renderRegions()
	ui.renderAudit()
	ui.renderStatusHints()

	ui.app.SetFocus(ui.caseTable)
}

// setupEventHandlers sets up event handlers for UI components
func (ui *UI) setupEventHandlers() {
	// Selection moves in the case table drive the detail pane.
	ui.caseTable.SetSelectionChangedFunc(func(row, col int) {
		ui.onCaseSelected(row)
	})
	ui.caseTable.SetSelectedFunc(func(row, col int) {
		ui.onCaseSelected(row)
	})

	// Enter or Space on a finding marks it examined.
	ui.regionTable.SetSelectedFunc(func(row, col int) {
		ui.acknowledgeRow(row)
	})
	ui.regionTable.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if event.Key() == tcell.KeyRune && event.Rune() == ' ' {
			row, _ := ui.regionTable.GetSelection()
			ui.acknowledgeRow(row)
			return nil
		}
		return event
	})
}

// setupKeybindings installs the global key handler.
func (ui *UI) setupKeybindings() {
	ui.globalInputCapture = func(event *tcell.EventKey) *tcell.EventKey {
		// Modal screens and the search box own their keys.
		if ui.isDialogActive() {
			return event
		}
		if ui.app.GetFocus() == ui.searchInput {
			return event
		}

		switch event.Key() {
		case tcell.KeyCtrlC:
			ui.Stop()
			return nil
		case tcell.KeyTab:
			ui.cycleFocus(1)
			return nil
		case tcell.KeyBacktab:
			ui.cycleFocus(-1)
			return nil
		case tcell.KeyEsc:
			ui.renderStatusHints()
			return nil
		}

		if event.Key() != tcell.KeyRune {
			return event
		}

		switch event.Rune() {
		case 'q':
			ui.Stop()
			return nil
		case 'r':
			go func() {
				ui.refreshCases("manual")
				ui.refreshSummary()
			}()
			ui.setStatusDirect("[%s]Refreshing cases...[-:-:-]", ui.theme.TagWarning)
			return nil
		case '/':
			ui.app.SetFocus(ui.searchInput)
			ui.setStatusDirect("[%s]Filter cases; Enter or Esc returns to the list[-:-:-]", ui.theme.TagAccent)
			return nil
		case 'f':
			ui.cycleStatusFilter()
			return nil
		case 'F':
			ui.ws.SetStatusFilter("")
			ui.renderCases()
			ui.setStatusDirect("[%s]Status filter cleared[-:-:-]", ui.theme.TagAccent)
			return nil
		case 'a':
			ui.runAnalyze()
			return nil
		case 'v':
			ui.showVerifyForm()
			return nil
		case 'e':
			ui.runExport()
			return nil
		case 'n':
			ui.showCreateCaseForm()
			return nil
		case 'E':
			ui.showEditCaseForm()
			return nil
		case 'd':
			ui.showDeleteCaseConfirm()
			return nil
		case 'j':
			ui.moveSelection(1)
			return nil
		case 'k':
			ui.moveSelection(-1)
			return nil
		case 'g':
			ui.moveToBoundary(true)
			return nil
		case 'G':
			ui.moveToBoundary(false)
			return nil
		case 'h':
			ui.app.SetFocus(ui.caseTable)
			ui.renderStatusHints()
			return nil
		case 'l':
			ui.app.SetFocus(ui.regionTable)
			ui.renderStatusHints()
			return nil
		case 't':
			ui.cycleTheme()
			return nil
		case '?':
			ui.showHelp()
			return nil
		}
		return event
	}
	ui.app.SetInputCapture(ui.globalInputCapture)
}

// onCaseSelected reacts to a selection move in the case table. Row 0 is
// the header.
func (ui *UI) onCaseSelected(row int) {
	filtered := ui.ws.Filtered()
	idx := row - 1
	if idx < 0 || idx >= len(filtered) {
		return
	}
	slideID := filtered[idx].SlideID
	if slideID == ui.ws.SelectedSlide() {
		return
	}

	generation := ui.ws.SelectSlide(slideID)
	ui.renderDetail()
	ui.renderRegions()
	ui.renderAudit()
	ui.renderStatusHints()

	ui.recordAction(slideID, "SELECTED", "")

	// PENDING cases have no billing detail to fetch yet.
	if filtered[idx].Status != billing.StatusPending {
		go ui.fetchDetail(generation, slideID)
	}
}

// fetchDetail loads the detail record for a selection. The generation
// tag decides on re-entry whether the response still matters.
func (ui *UI) fetchDetail(generation uint64, slideID string) {
	ctx, cancel := context.WithTimeout(ui.ctx, 10*time.Second)
	defer cancel()

	detail, err := ui.client.GetCase(ctx, slideID)
	if err != nil {
		ui.logger.Printf("Detail fetch for %s failed: %v", slideID, err)
		ui.app.QueueUpdateDraw(func() {
			if generation == ui.ws.Generation() {
				ui.setStatusDirect("[%s]Failed to load %s: %v[-:-:-]", ui.theme.TagError, slideID, err)
			}
		})
		return
	}

	ui.app.QueueUpdateDraw(func() {
		if !ui.ws.ApplyDetail(generation, detail) {
			return
		}
		ui.renderDetail()
		ui.renderRegions()
		ui.renderAudit()
		ui.renderStatusHints()
	})
}

// refreshCases reloads the case list from the backend. When the backend
// is unreachable and nothing is loaded yet, the last cached snapshot is
// shown instead, clearly marked as offline.
func (ui *UI) refreshCases(source string) {
	if !atomic.CompareAndSwapInt32(&ui.refreshing, 0, 1) {
		ui.logger.Printf("refreshCases(%s): already refreshing, skipping", source)
		return
	}
	defer atomic.StoreInt32(&ui.refreshing, 0)

	ctx, cancel := context.WithTimeout(ui.ctx, 10*time.Second)
	defer cancel()

	cases, err := ui.client.ListCases(ctx, "")
	if err != nil {
		ui.logger.Printf("refreshCases(%s): %v", source, err)
		ui.loadSnapshotFallback(err)
		return
	}

	ui.app.QueueUpdateDraw(func() {
		ui.offline = false
		selChanged := ui.ws.ReplaceCases(cases)
		ui.renderCases()
		ui.renderOverview()
		if selChanged {
			ui.renderDetail()
			ui.renderRegions()
			ui.renderAudit()
			if sel := ui.ws.SelectedCase(); sel != nil && sel.Status != billing.StatusPending {
				go ui.fetchDetail(ui.ws.Generation(), sel.SlideID)
			}
		}
		ui.renderStatusHints()
		ui.setStatusDirect("[%s]Loaded %d cases[-:-:-]", ui.theme.TagSuccess, len(cases))
	})

	if ui.cache != nil {
		if err := ui.cache.SaveSnapshot(ui.ctx, cases); err != nil {
			ui.logger.Printf("snapshot save failed: %v", err)
		}
	}
}

// loadSnapshotFallback fills the workspace from the local cache after a
// failed refresh. Live data always wins: the fallback only applies while
// the workspace is still empty.
func (ui *UI) loadSnapshotFallback(cause error) {
	if ui.cache == nil {
		ui.app.QueueUpdateDraw(func() {
			ui.setStatusDirect("[%s]Refresh failed: %v[-:-:-]", ui.theme.TagError, cause)
		})
		return
	}

	cases, fetchedAt, err := ui.cache.LoadSnapshot(ui.ctx)

	ui.app.QueueUpdateDraw(func() {
		// Workspace reads stay on the event goroutine.
		if len(ui.ws.Cases()) > 0 {
			ui.setStatusDirect("[%s]Refresh failed: %v[-:-:-]", ui.theme.TagError, cause)
			return
		}
		if err != nil || len(cases) == 0 {
			ui.setStatusDirect("[%s]Backend unreachable and no cached snapshot: %v[-:-:-]", ui.theme.TagError, cause)
			return
		}
		ui.offline = true
		ui.snapshotAt = fetchedAt
		selChanged := ui.ws.ReplaceCases(cases)
		ui.renderCases()
		ui.renderOverview()
		if selChanged {
			ui.renderDetail()
			ui.renderRegions()
			ui.renderAudit()
		}
		ui.renderStatusHints()
		ui.setStatusDirect("[%s]Backend unreachable; showing snapshot from %s[-:-:-]",
			ui.theme.TagWarning, fetchedAt.Format("2006-01-02 15:04"))
	})
}

// refreshSummary reloads the aggregate revenue metrics.
func (ui *UI) refreshSummary() {
	ctx, cancel := context.WithTimeout(ui.ctx, 10*time.Second)
	defer cancel()

	summary, err := ui.client.RevenueSummary(ctx)
	if err != nil {
		ui.logger.Printf("revenue summary fetch failed: %v", err)
		return
	}

	ui.app.QueueUpdateDraw(func() {
		ui.ws.SetSummary(summary)
		ui.renderOverview()
	})
}

// runAnalyze triggers the backend billing analysis for the selected case.
func (ui *UI) runAnalyze() {
	sel := ui.ws.SelectedCase()
	if sel == nil {
		ui.setStatusDirect("[%s]No case selected[-:-:-]", ui.theme.TagWarning)
		return
	}
	if !ui.ws.CanAnalyze() {
		ui.setStatusDirect("[%s]%s has no slide image; upload one before analyzing[-:-:-]",
			ui.theme.TagWarning, sel.SlideID)
		return
	}
	if !atomic.CompareAndSwapInt32(&ui.analyzing, 0, 1) {
		ui.setStatusDirect("[%s]Analysis already running[-:-:-]", ui.theme.TagWarning)
		return
	}

	slideID := sel.SlideID
	imagePath := sel.ImageURL
	ui.setStatusDirect("[%s]Analyzing %s...[-:-:-]", ui.theme.TagWarning, slideID)

	go func() {
		defer atomic.StoreInt32(&ui.analyzing, 0)

		ctx, cancel := context.WithTimeout(ui.ctx, 30*time.Second)
		defer cancel()

		analysis, err := ui.client.Analyze(ctx, api.AnalyzeRequest{
			SlideID:   slideID,
			ImagePath: imagePath,
		})
		if err != nil {
			ui.app.QueueUpdateDraw(func() {
				ui.renderStatusHints()
				ui.showModal(" Analysis Failed ", fmt.Sprintf("Could not analyze %s:\n\n%v", slideID, err))
			})
			return
		}

		ui.app.QueueUpdateDraw(func() {
			if !ui.ws.ApplyAnalysis(slideID, analysis) {
				ui.setStatusDirect("[%s]Discarded analysis for %s (selection moved)[-:-:-]",
					ui.theme.TagMuted, slideID)
				return
			}
			ui.renderCases()
			ui.renderDetail()
			ui.renderRegions()
			ui.renderStatusHints()
			ui.setStatusDirect("[%s]%s: %s -> %s, recovers %s[-:-:-]",
				ui.theme.TagSuccess, slideID, analysis.BaseCPT, analysis.RecommendedCPT,
				billing.FormatUSD(analysis.RevenueDelta))
			ui.recordAction(slideID, "ANALYZED",
				fmt.Sprintf("%s -> %s", analysis.BaseCPT, analysis.RecommendedCPT))
		})
	}()
}

// acknowledgeRow marks the finding shown in a region table row examined.
func (ui *UI) acknowledgeRow(row int) {
	analysis := ui.ws.Analysis()
	if analysis == nil {
		ui.setStatusDirect("[%s]Run analysis (a) before examining findings[-:-:-]", ui.theme.TagWarning)
		return
	}
	idx := row - 1
	if idx < 0 || idx >= len(analysis.AnnotatedRegions) {
		return
	}
	region := analysis.AnnotatedRegions[idx]

	if !ui.ws.AcknowledgeRegion(region.ID) {
		ui.setStatusDirect("[%s]%s already examined[-:-:-]", ui.theme.TagMuted, region.Label)
		return
	}

	ui.renderRegions()
	ui.renderStatusHints()
	ui.setStatusDirect("[%s]Examined %s (%d of %d)[-:-:-]", ui.theme.TagSuccess,
		region.Label, ui.ws.AcknowledgedCount(), len(analysis.AnnotatedRegions))

	slideID := ui.ws.SelectedSlide()
	ui.recordAction(slideID, "REGION_EXAMINED", region.Label)

	// Fire-and-forget: a lost click log never reverts the acknowledgment.
	go func() {
		ctx, cancel := context.WithTimeout(ui.ctx, 5*time.Second)
		defer cancel()
		if _, err := ui.client.LogRegionClick(ctx, api.RegionClickRequest{
			SlideID:     slideID,
			RegionLabel: region.Label,
			User:        ui.opts.PathologistName,
		}); err != nil {
			ui.logger.Printf("region click log failed for %s: %v", slideID, err)
		}
	}()
}

// submitVerification sends the pathologist's confirmation for the
// selected case. Called from the verify form on the event goroutine.
func (ui *UI) submitVerification(pathologist string) {
	if !ui.ws.CanVerify() {
		ui.setStatusDirect("[%s]Examine at least one finding before verifying[-:-:-]", ui.theme.TagWarning)
		return
	}
	if !atomic.CompareAndSwapInt32(&ui.verifying, 0, 1) {
		ui.setStatusDirect("[%s]Verification already running[-:-:-]", ui.theme.TagWarning)
		return
	}

	slideID := ui.ws.SelectedSlide()
	analysis := ui.ws.Analysis()
	req := api.DocumentRequest{
		SlideID:                     slideID,
		PathologistName:             pathologist,
		VerifiedCPTCodes:            analysis.VerifiedCodes(),
		ComplexityIndicatorsClicked: ui.ws.AcknowledgedLabels(),
		BillingData:                 analysis,
	}
	ui.setStatusDirect("[%s]Submitting verification for %s...[-:-:-]", ui.theme.TagWarning, slideID)

	go func() {
		defer atomic.StoreInt32(&ui.verifying, 0)

		ctx, cancel := context.WithTimeout(ui.ctx, 15*time.Second)
		defer cancel()

		documented, err := ui.client.SubmitVerification(ctx, req)
		if err != nil {
			ui.app.QueueUpdateDraw(func() {
				ui.renderStatusHints()
				ui.showModal(" Verification Failed ", fmt.Sprintf("Could not verify %s:\n\n%v", slideID, err))
			})
			return
		}

		ui.app.QueueUpdateDraw(func() {
			if ui.ws.SelectedSlide() == slideID {
				ui.ws.MarkVerified(documented.VerifiedBy)
				ui.renderCases()
				ui.renderDetail()
				ui.renderStatusHints()
			}
			ui.setStatusDirect("[%s]%s verified by %s[-:-:-]", ui.theme.TagSuccess,
				slideID, documented.VerifiedBy)
			ui.recordAction(slideID, "VERIFIED", "by "+documented.VerifiedBy)
		})

		ui.refreshSummary()
	}()
}

// runExport downloads the audit defense PDF for the selected case.
func (ui *UI) runExport() {
	sel := ui.ws.SelectedCase()
	if sel == nil {
		ui.setStatusDirect("[%s]No case selected[-:-:-]", ui.theme.TagWarning)
		return
	}
	if !ui.ws.CanExport() {
		ui.setStatusDirect("[%s]%s is %s; only verified cases export[-:-:-]",
			ui.theme.TagWarning, sel.SlideID, sel.Status)
		return
	}
	if !atomic.CompareAndSwapInt32(&ui.exporting, 0, 1) {
		ui.setStatusDirect("[%s]Export already running[-:-:-]", ui.theme.TagWarning)
		return
	}

	slideID := sel.SlideID
	ui.setStatusDirect("[%s]Exporting audit package for %s...[-:-:-]", ui.theme.TagWarning, slideID)

	go func() {
		defer atomic.StoreInt32(&ui.exporting, 0)

		path, written, err := ui.downloadAuditPDF(slideID)
		if err != nil {
			ui.app.QueueUpdateDraw(func() {
				ui.renderStatusHints()
				ui.showModal(" Export Failed ", fmt.Sprintf("Could not export %s:\n\n%v", slideID, err))
			})
			return
		}

		ui.app.QueueUpdateDraw(func() {
			if ui.ws.SelectedSlide() == slideID {
				ui.ws.MarkExported()
				ui.renderCases()
				ui.renderDetail()
				ui.renderStatusHints()
			}
			ui.recordAction(slideID, "EXPORTED", path)
			ui.showModal(" Export Complete ", fmt.Sprintf("%s\n\n%d bytes written to\n%s", slideID, written, path))
		})

		ui.refreshSummary()
	}()
}

// downloadAuditPDF streams the export into the downloads directory. The
// local status only advances once a non-empty document is on disk.
func (ui *UI) downloadAuditPDF(slideID string) (string, int64, error) {
	if err := os.MkdirAll(ui.opts.DownloadsDir, 0755); err != nil {
		return "", 0, fmt.Errorf("failed to create downloads directory: %w", err)
	}

	name := fmt.Sprintf("audit_%s_%s.pdf", slideID, time.Now().Format("20060102_150405"))
	path := filepath.Join(ui.opts.DownloadsDir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", 0, fmt.Errorf("failed to create %s: %w", path, err)
	}

	ctx, cancel := context.WithTimeout(ui.ctx, 60*time.Second)
	defer cancel()

	written, err := ui.client.DownloadAuditPDF(ctx, slideID, f)
	closeErr := f.Close()
	if err != nil {
		os.Remove(path)
		return "", 0, err
	}
	if closeErr != nil {
		os.Remove(path)
		return "", 0, fmt.Errorf("failed to finish writing %s: %w", path, closeErr)
	}
	return path, written, nil
}

// cycleStatusFilter advances the status filter through the lifecycle.
func (ui *UI) cycleStatusFilter() {
	order := []billing.CaseStatus{"", billing.StatusPending, billing.StatusAnalyzed,
		billing.StatusVerified, billing.StatusExported}
	current := ui.ws.StatusFilter()
	next := order[0]
	for i, s := range order {
		if s == current {
			next = order[(i+1)%len(order)]
			break
		}
	}
	ui.ws.SetStatusFilter(next)
	ui.renderCases()
	if next == "" {
		ui.setStatusDirect("[%s]Showing all statuses[-:-:-]", ui.theme.TagAccent)
	} else {
		ui.setStatusDirect("[%s]Showing %s cases[-:-:-]", ui.theme.TagAccent, next)
	}
}

// recordAction journals an operator action locally and publishes it to
// the audit bus. Both writes are best-effort and never block the event
// goroutine.
func (ui *UI) recordAction(slideID, action, details string) {
	actor := ui.opts.PathologistName
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if ui.cache != nil {
			if err := ui.cache.LogAction(ctx, slideID, action, actor, details); err != nil {
				ui.logger.Printf("journal write failed (%s %s): %v", action, slideID, err)
			}
		}
		if ui.bus != nil {
			if err := ui.bus.PublishAudit(ctx, bus.AuditMessage{
				SlideID: slideID,
				Action:  action,
				Actor:   actor,
				Details: details,
			}); err != nil {
				ui.logger.Printf("audit publish failed (%s %s): %v", action, slideID, err)
			}
		}
	}()
}

// renderTitle draws the static header.
func (ui *UI) renderTitle() {
	ui.appTitle.SetText(fmt.Sprintf(" [%s::b]PathoAI Console[-::-]  [%s]%s[-]",
		ui.theme.TagAccent, ui.theme.TagMuted, ui.client.BaseURL()))
}

// renderOverview draws the revenue summary box.
func (ui *UI) renderOverview() {
	var b strings.Builder

	if ui.offline {
		fmt.Fprintf(&b, "[%s]OFFLINE snapshot %s[-]\n",
			ui.theme.TagWarning, ui.snapshotAt.Format("2006-01-02 15:04"))
	}

	cases := ui.ws.Cases()
	counts := map[billing.CaseStatus]int{}
	for i := range cases {
		counts[cases[i].Status]++
	}
	fmt.Fprintf(&b, "[%s]CASES %d[-]  [%s]P %d[-] [%s]A %d[-] [%s]V %d[-] [%s]X %d[-]\n",
		ui.theme.TagTextPrimary, len(cases),
		ui.theme.TagStatusPending, counts[billing.StatusPending],
		ui.theme.TagStatusAnalyzed, counts[billing.StatusAnalyzed],
		ui.theme.TagStatusVerified, counts[billing.StatusVerified],
		ui.theme.TagStatusExported, counts[billing.StatusExported])

	summary := ui.ws.Summary()
	if summary == nil {
		fmt.Fprintf(&b, "[%s]Revenue metrics not loaded[-]", ui.theme.TagMuted)
	} else {
		fmt.Fprintf(&b, "[%s]Recovered  %s[-]\n", ui.theme.TagMoney,
			billing.FormatUSD(summary.TotalRevenueRecovered))
		fmt.Fprintf(&b, "[%s]Avg/case   %s[-]\n", ui.theme.TagTextPrimary,
			billing.FormatUSD(summary.AverageRecoveryPerCase))
		fmt.Fprintf(&b, "[%s]Audit-ready %d  score %.0f%%[-]\n", ui.theme.TagTextPrimary,
			summary.CasesAuditReady, summary.AverageAuditScore)
		fmt.Fprintf(&b, "[%s]Projection %s/yr[-]", ui.theme.TagMuted,
			billing.FormatUSD(summary.AnnualProjection))
	}

	ui.revenueInfo.SetText(b.String())
}

// renderCases redraws the case table from the filtered view, keeping the
// table cursor on the selected case.
func (ui *UI) renderCases() {
	filtered := ui.ws.Filtered()

	title := fmt.Sprintf(" Cases (%d/%d) ", len(filtered), len(ui.ws.Cases()))
	if f := ui.ws.StatusFilter(); f != "" {
		title = fmt.Sprintf(" Cases (%d/%d) [filter %s] ", len(filtered), len(ui.ws.Cases()), f)
	}
	ui.caseTable.SetTitle(title)

	ui.caseTable.Clear()
	headers := []string{"Slide", "Patient", "Status", "Recovery"}
	for col, header := range headers {
		ui.caseTable.SetCell(0, col, tview.NewTableCell(header).
			SetTextColor(ui.theme.TableHeader).
			SetBackgroundColor(ui.theme.TableHeaderBg).
			SetAttributes(tcell.AttrBold).
			SetSelectable(false))
	}

	selectedRow := 0
	for i := range filtered {
		cs := &filtered[i]
		row := i + 1

		recovery := ""
		if cs.RecoveryValue > 0 {
			recovery = "+" + billing.FormatUSD(cs.RecoveryValue)
		}

		ui.caseTable.SetCell(row, 0, tview.NewTableCell(cs.SlideID).
			SetTextColor(ui.theme.TableRow))
		ui.caseTable.SetCell(row, 1, tview.NewTableCell(cs.PatientName).
			SetTextColor(ui.theme.TableRow).SetExpansion(1))
		ui.caseTable.SetCell(row, 2, tview.NewTableCell(string(cs.Status)).
			SetTextColor(ui.getStatusTcellColor(cs.Status)))
		ui.caseTable.SetCell(row, 3, tview.NewTableCell(recovery).
			SetTextColor(ui.theme.Accent).SetAlign(tview.AlignRight))

		if cs.SlideID == ui.ws.SelectedSlide() {
			selectedRow = row
		}
	}

	if len(filtered) == 0 {
		ui.caseTable.SetCell(1, 0, tview.NewTableCell("No cases match").
			SetTextColor(ui.theme.TableRowMuted).SetSelectable(false))
		return
	}
	if selectedRow > 0 {
		ui.caseTable.Select(selectedRow, 0)
	}
}

// renderDetail redraws the detail pane for the selected case.
func (ui *UI) renderDetail() {
	sel := ui.ws.SelectedCase()
	if sel == nil {
		ui.detailView.SetTitle(" Case Detail ")
		ui.detailView.SetText(fmt.Sprintf("[%s]No case selected.[-]\n\n[%s]n[-] creates a case, [%s]r[-] refreshes the list.",
			ui.theme.TagMuted, ui.theme.TagAccent, ui.theme.TagAccent))
		return
	}

	ui.detailView.SetTitle(fmt.Sprintf(" Case Detail: %s ", sel.SlideID))

	var b strings.Builder
	fmt.Fprintf(&b, "[%s::b]%s[-::-]  [%s]%s[-]\n", ui.theme.TagTextPrimary, sel.PatientName,
		ui.getStatusColor(sel.Status), sel.Status)
	fmt.Fprintf(&b, "[%s]Patient[-] %s   [%s]Slide[-] %s\n",
		ui.theme.TagMuted, sel.PatientID, ui.theme.TagMuted, sel.SlideID)
	fmt.Fprintf(&b, "[%s]Diagnosis[-] %s\n", ui.theme.TagMuted, sel.Diagnosis)
	if sel.ImageURL != "" {
		fmt.Fprintf(&b, "[%s]Image[-] %s\n", ui.theme.TagMuted, ui.client.ResolveImageURL(sel.ImageURL))
	} else {
		fmt.Fprintf(&b, "[%s]Image missing; analysis unavailable[-]\n", ui.theme.TagWarning)
	}

	analysis := ui.ws.Analysis()
	detail := ui.ws.Detail()

	switch {
	case analysis != nil:
		fmt.Fprintf(&b, "\n[%s::b]Billing analysis[-::-] [%s](%s)[-]\n",
			ui.theme.TagAccent, ui.theme.TagMuted, analysis.ModelUsed)
		fmt.Fprintf(&b, "[%s]CPT[-] %s -> [%s]%s[-]", ui.theme.TagMuted,
			analysis.BaseCPT, ui.theme.TagSuccess, analysis.RecommendedCPT)
		if analysis.CPTCodes.AIAssisted != "" {
			fmt.Fprintf(&b, " +%s", analysis.CPTCodes.AIAssisted)
		}
		for _, code := range analysis.CPTCodes.Ancillary {
			fmt.Fprintf(&b, " +%s", code)
		}
		b.WriteString("\n")
		fmt.Fprintf(&b, "[%s]Reimbursement[-] %s -> %s  [%s]delta %s[-]\n", ui.theme.TagMuted,
			billing.FormatUSD(analysis.BaseReimbursement),
			billing.FormatUSD(analysis.OptimizedReimbursement),
			ui.theme.TagMoney, billing.FormatUSD(analysis.RevenueDelta))
		fmt.Fprintf(&b, "[%s]Confidence[-] %.0f%%   [%s]Audit defense[-] %.0f%%\n",
			ui.theme.TagMuted, analysis.ConfidenceScore*100,
			ui.theme.TagMuted, analysis.AuditDefenseScore)
		if len(analysis.ComplexityIndicators) > 0 {
			fmt.Fprintf(&b, "[%s]Complexity[-] %s\n", ui.theme.TagMuted,
				strings.Join(analysis.ComplexityIndicators, ", "))
		}
		if analysis.AuditNarrative != "" {
			fmt.Fprintf(&b, "\n[%s]%s[-]\n", ui.theme.TagTextPrimary, analysis.AuditNarrative)
		}
	case detail != nil && detail.SuggestedCPTCode != "":
		fmt.Fprintf(&b, "\n[%s::b]Recorded billing[-::-]\n", ui.theme.TagAccent)
		fmt.Fprintf(&b, "[%s]CPT[-] %s -> [%s]%s[-]\n", ui.theme.TagMuted,
			detail.BaseCPTCode, ui.theme.TagSuccess, detail.SuggestedCPTCode)
		fmt.Fprintf(&b, "[%s]Reimbursement[-] %s -> %s\n", ui.theme.TagMuted,
			billing.FormatUSD(detail.BaseReimbursement),
			billing.FormatUSD(detail.OptimizedReimbursement))
		if detail.JustificationText != "" {
			fmt.Fprintf(&b, "\n[%s]%s[-]\n", ui.theme.TagTextPrimary, detail.JustificationText)
		}
		if detail.VerifiedBy != "" {
			fmt.Fprintf(&b, "\n[%s]Verified by %s[-]\n", ui.theme.TagSuccess, detail.VerifiedBy)
		}
	case detail == nil && sel.Status != billing.StatusPending:
		fmt.Fprintf(&b, "\n[%s]Loading detail...[-]\n", ui.theme.TagMuted)
	default:
		fmt.Fprintf(&b, "\n[%s]Not analyzed yet. Press a to run the billing analysis.[-]\n",
			ui.theme.TagMuted)
	}

	ui.detailView.SetText(b.String())
	ui.detailView.ScrollToBeginning()
}

// renderRegions redraws the findings table. Regions from a live analysis
// are interactive; regions replayed from the detail record are shown for
// reference only.
func (ui *UI) renderRegions() {
	ui.regionTable.Clear()

	analysis := ui.ws.Analysis()
	detail := ui.ws.Detail()

	var regions []billing.AnnotatedRegion
	interactive := false
	switch {
	case analysis != nil:
		regions = analysis.AnnotatedRegions
		interactive = true
	case detail != nil:
		regions = detail.AnnotatedRegions
	}

	if interactive {
		ui.regionTable.SetTitle(fmt.Sprintf(" Findings (%d/%d examined) ",
			ui.ws.AcknowledgedCount(), len(regions)))
	} else {
		ui.regionTable.SetTitle(" Findings ")
	}

	if len(regions) == 0 {
		ui.regionTable.SetCell(0, 0, tview.NewTableCell("No findings").
			SetTextColor(ui.theme.TableRowMuted).SetSelectable(false))
		return
	}

	headers := []string{" ", "Finding", "CPT Impact", "Billable"}
	for col, header := range headers {
		ui.regionTable.SetCell(0, col, tview.NewTableCell(header).
			SetTextColor(ui.theme.TableHeader).
			SetBackgroundColor(ui.theme.TableHeaderBg).
			SetAttributes(tcell.AttrBold).
			SetSelectable(false))
	}

	for i := range regions {
		region := &regions[i]
		row := i + 1

		mark := "[ ]"
		markColor := ui.theme.TableRowMuted
		if interactive && ui.ws.IsAcknowledged(region.ID) {
			mark = "[x]"
			markColor = ui.theme.Success
		} else if !interactive {
			mark = " - "
		}

		billable := ""
		if region.Billable {
			billable = "yes"
		}

		ui.regionTable.SetCell(row, 0, tview.NewTableCell(mark).SetTextColor(markColor))
		ui.regionTable.SetCell(row, 1, tview.NewTableCell(region.Label).
			SetTextColor(ui.theme.TableRow).SetExpansion(1))
		ui.regionTable.SetCell(row, 2, tview.NewTableCell(region.CPTImpact).
			SetTextColor(ui.theme.TableRowMuted))
		ui.regionTable.SetCell(row, 3, tview.NewTableCell(billable).
			SetTextColor(ui.theme.Accent))
	}
}

// renderAudit redraws the audit trail pane from the detail record.
func (ui *UI) renderAudit() {
	detail := ui.ws.Detail()
	if detail == nil || len(detail.AuditLog) == 0 {
		ui.auditView.SetText(fmt.Sprintf("[%s]No audit entries[-]", ui.theme.TagMuted))
		return
	}

	var b strings.Builder
	// Newest last, like a log tail.
	for _, entry := range detail.AuditLog {
		stamp := entry.Timestamp
		if t, err := billing.ParseTimestamp(entry.Timestamp); err == nil {
			stamp = t.Format("01-02 15:04")
		}
		fmt.Fprintf(&b, "[%s]%s[-] [%s]%s[-] %s", ui.theme.TagMuted, stamp,
			ui.theme.TagAccent, entry.Action, entry.User)
		if entry.Details != "" {
			fmt.Fprintf(&b, " [%s]%s[-]", ui.theme.TagMuted, entry.Details)
		}
		b.WriteString("\n")
	}
	ui.auditView.SetText(b.String())
	ui.auditView.ScrollToEnd()
}

// renderStatusHints refreshes the idle status line.
func (ui *UI) renderStatusHints() {
	ui.statusBar.SetText(ui.buildStatusMain(""))
}

// buildStatusMain composes the status line: an optional message plus the
// context-sensitive shortcut hints.
func (ui *UI) buildStatusMain(message string) string {
	hints := ui.buildShortcutHints()
	if message == "" {
		return hints
	}
	return message + "  " + hints
}

// buildShortcutHints lists the shortcuts that currently apply.
func (ui *UI) buildShortcutHints() string {
	tag := ui.theme.TagAccent
	muted := ui.theme.TagMuted

	parts := []string{
		fmt.Sprintf("[%s]q[-][%s]:quit[-]", tag, muted),
		fmt.Sprintf("[%s]r[-][%s]:refresh[-]", tag, muted),
		fmt.Sprintf("[%s]/[-][%s]:search[-]", tag, muted),
		fmt.Sprintf("[%s]f[-][%s]:filter[-]", tag, muted),
		fmt.Sprintf("[%s]n[-][%s]:new[-]", tag, muted),
	}

	if ui.ws.CanAnalyze() {
		parts = append(parts, fmt.Sprintf("[%s]a[-][%s]:analyze[-]", tag, muted))
	}
	if ui.ws.Analysis() != nil {
		parts = append(parts, fmt.Sprintf("[%s]Space[-][%s]:examine[-]", tag, muted))
	}
	if ui.ws.CanVerify() {
		parts = append(parts, fmt.Sprintf("[%s]v[-][%s]:verify[-]", tag, muted))
	}
	if ui.ws.CanExport() {
		parts = append(parts, fmt.Sprintf("[%s]e[-][%s]:export[-]", tag, muted))
	}
	if ui.ws.SelectedCase() != nil {
		parts = append(parts, fmt.Sprintf("[%s]E[-][%s]:edit[-]", tag, muted))
		parts = append(parts, fmt.Sprintf("[%s]d[-][%s]:delete[-]", tag, muted))
	}
	parts = append(parts, fmt.Sprintf("[%s]?[-][%s]:help[-]", tag, muted))

	return " " + strings.Join(parts, " ")
}

// setStatusDirect writes the status line immediately. Only call on the
// event goroutine (key handlers and QueueUpdateDraw callbacks).
func (ui *UI) setStatusDirect(format string, args ...interface{}) {
	message := fmt.Sprintf(format, args...)
	ui.statusBar.SetText(ui.buildStatusMain(message))
}

// getStatusColor returns the markup tag for a lifecycle status.
func (ui *UI) getStatusColor(status billing.CaseStatus) string {
	switch status {
	case billing.StatusPending:
		return ui.theme.TagStatusPending
	case billing.StatusAnalyzed:
		return ui.theme.TagStatusAnalyzed
	case billing.StatusVerified:
		return ui.theme.TagStatusVerified
	case billing.StatusExported:
		return ui.theme.TagStatusExported
	default:
		return ui.theme.TagMuted
	}
}

// getStatusTcellColor returns the widget color for a lifecycle status.
func (ui *UI) getStatusTcellColor(status billing.CaseStatus) tcell.Color {
	switch status {
	case billing.StatusPending:
		return ui.theme.StatusPending
	case billing.StatusAnalyzed:
		return ui.theme.StatusAnalyzed
	case billing.StatusVerified:
		return ui.theme.StatusVerified
	case billing.StatusExported:
		return ui.theme.StatusExported
	default:
		return ui.theme.TextMuted
	}
}

// moveSelection moves the cursor in the focused table.
func (ui *UI) moveSelection(delta int) {
	table := ui.focusedTable()
	row, _ := table.GetSelection()
	row += delta
	if row < 1 {
		row = 1
	}
	if max := table.GetRowCount() - 1; row > max {
		row = max
	}
	if row >= 1 {
		table.Select(row, 0)
	}
}

// moveToBoundary jumps to the first or last row of the focused table.
func (ui *UI) moveToBoundary(top bool) {
	table := ui.focusedTable()
	if top {
		if table.GetRowCount() > 1 {
			table.Select(1, 0)
		}
		return
	}
	if max := table.GetRowCount() - 1; max >= 1 {
		table.Select(max, 0)
	}
}

func (ui *UI) focusedTable() *tview.Table {
	if ui.app.GetFocus() == ui.regionTable {
		return ui.regionTable
	}
	return ui.caseTable
}

// cycleFocus moves focus between the interactive panes.
func (ui *UI) cycleFocus(direction int) {
	order := []tview.Primitive{ui.caseTable, ui.regionTable, ui.detailView, ui.auditView}
	current := ui.app.GetFocus()
	idx := 0
	for i, p := range order {
		if p == current {
			idx = i
			break
		}
	}
	idx = (idx + direction + len(order)) % len(order)
	ui.app.SetFocus(order[idx])
	ui.renderStatusHints()
}

// isDialogActive reports whether a modal screen owns the keyboard.
func (ui *UI) isDialogActive() bool {
	if ui.helpActive {
		return true
	}
	focus := ui.app.GetFocus()
	if focus == nil {
		return false
	}
	switch focus.(type) {
	case *tview.Button, *tview.Checkbox, *tview.DropDown, *tview.Form, *tview.Modal:
		return true
	case *tview.InputField:
		return focus != ui.searchInput
	}
	return false
}

// applyTheme pushes the current palette onto every widget.
func (ui *UI) applyTheme() {
	t := ui.theme

	for _, tv := range []*tview.TextView{ui.appTitle, ui.revenueInfo, ui.detailView, ui.auditView, ui.statusBar} {
		tv.SetBackgroundColor(t.Surface)
		tv.SetTextColor(t.TextPrimary)
		tv.SetBorderColor(t.Border)
		tv.SetTitleColor(t.Header)
	}

	for _, table := range []*tview.Table{ui.caseTable, ui.regionTable} {
		table.SetBackgroundColor(t.Surface)
		table.SetBorderColor(t.Border)
		table.SetTitleColor(t.Header)
		table.SetSelectedStyle(tcell.StyleDefault.
			Background(t.SelectionBg).
			Foreground(t.SelectionFg))
	}

	ui.searchInput.SetFieldBackgroundColor(t.Surface)
	ui.searchInput.SetFieldTextColor(t.TextPrimary)
	ui.searchInput.SetLabelColor(t.Accent)
	ui.searchInput.SetBackgroundColor(t.Surface)

	ui.renderTitle()
	ui.renderOverview()
	ui.renderCases()
	ui.renderDetail()
	ui.renderRegions()
	ui.renderAudit()
	ui.renderStatusHints()
}

// cycleTheme rotates between the palettes.
func (ui *UI) cycleTheme() {
	switch ui.themeName {
	case "dark":
		ui.setTheme("light")
	case "light":
		ui.setTheme("high-contrast")
	default:
		ui.setTheme("dark")
	}
}

func (ui *UI) setTheme(name string) {
	switch name {
	case "light":
		ui.theme = themeLight()
	case "high-contrast":
		ui.theme = themeHighContrast()
	default:
		name = "dark"
		ui.theme = themeDark()
	}
	ui.themeName = name
	ui.applyTheme()
	ui.setStatusDirect("[%s]Theme: %s[-:-:-]", ui.theme.TagAccent, name)
}

// startRedrawHeartbeat mitigates terminals that occasionally miss repaints.
func (ui *UI) startRedrawHeartbeat() {
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ui.ctx.Done():
				return
			case <-ticker.C:
				ui.app.QueueUpdateDraw(func() {})
			}
		}
	}()
}

// showHelp displays the keybinding reference.
func (ui *UI) showHelp() {
	t := ui.theme
	text := fmt.Sprintf(`[%s::b]PathoAI Console[-::-]

[%s]Navigation[-]
  j/k, arrows     move selection
  g/G             first/last row
  Tab, h/l        switch pane
  /               search cases
  f / F           cycle / clear status filter

[%s]Case workflow[-]
  a               analyze selected slide
  Enter/Space     examine the selected finding
  v               verify case (needs 1+ examined finding)
  e               export audit PDF (verified cases)

[%s]Case management[-]
  n               new case
  E               edit case
  d               delete case

[%s]Other[-]
  r               refresh from backend
  t               cycle theme
  q               quit`,
		t.TagAccent, t.TagAccent, t.TagAccent, t.TagAccent, t.TagAccent)

	modal := tview.NewModal().
		SetText(text).
		AddButtons([]string{"Close"})
	modal.SetTitle(" Help ")
	modal.SetBackgroundColor(t.Surface)
	modal.SetTextColor(t.TextPrimary)
	modal.SetBorderColor(t.FocusBorder)
	modal.SetButtonBackgroundColor(t.SelectionBg)
	modal.SetButtonTextColor(t.SelectionFg)
	modal.SetDoneFunc(func(buttonIndex int, buttonLabel string) {
		ui.helpActive = false
		ui.restoreMainLayout()
	})

	ui.helpActive = true
	ui.lastFocus = ui.app.GetFocus()
	ui.app.SetRoot(modal, true)
	ui.app.SetFocus(modal)
}

// showModal displays a one-button message dialog.
func (ui *UI) showModal(title, text string) {
	modal := tview.NewModal().
		SetText(text).
		AddButtons([]string{"OK"})
	modal.SetTitle(title)
	modal.SetBackgroundColor(ui.theme.Surface)
	modal.SetTextColor(ui.theme.TextPrimary)
	modal.SetBorderColor(ui.theme.FocusBorder)
	modal.SetButtonBackgroundColor(ui.theme.SelectionBg)
	modal.SetButtonTextColor(ui.theme.SelectionFg)
	modal.SetDoneFunc(func(buttonIndex int, buttonLabel string) {
		ui.restoreMainLayout()
	})

	ui.lastFocus = ui.app.GetFocus()
	ui.app.SetRoot(modal, true)
	ui.app.SetFocus(modal)
}

// restoreMainLayout returns from a modal screen to the main layout.
func (ui *UI) restoreMainLayout() {
	root := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(ui.layout, 0, 1, true).
		AddItem(ui.statusBar, 1, 0, false)

	ui.app.SetRoot(root, true)
	if ui.lastFocus != nil {
		ui.app.SetFocus(ui.lastFocus)
	} else {
		ui.app.SetFocus(ui.caseTable)
	}
	ui.renderStatusHints()
}

// GetStats returns internal counters for diagnostics and tests.
func (ui *UI) GetStats() map[string]interface{} {
	return map[string]interface{}{
		"cases":      len(ui.ws.Cases()),
		"filtered":   len(ui.ws.Filtered()),
		"selected":   ui.ws.SelectedSlide(),
		"generation": ui.ws.Generation(),
		"examined":   ui.ws.AcknowledgedCount(),
		"offline":    ui.offline,
		"theme":      ui.themeName,
	}
}
