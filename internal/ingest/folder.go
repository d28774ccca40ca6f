// Package ingest registers slide files dropped into an intake directory
// with the billing backend. DICOM files contribute patient identity from
// their headers; plain images fall back to filename-derived identity.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"

	"github.com/pathoai/patho-console/internal/api"
	"github.com/pathoai/patho-console/internal/bus"
	"github.com/pathoai/patho-console/internal/cache"
)

// ImportOptions controls intake-folder behavior.
type ImportOptions struct {
	Dir      string
	Watch    bool
	Patterns []string // e.g. []string{"*.dcm", "*.png"}
	Actor    string   // recorded on journal and audit entries
	Logger   *log.Logger
}

// fileStamp identifies a file version so unchanged files are not
// re-registered on every watch event.
type fileStamp struct {
	size    int64
	modTime int64
}

// SlideImporter registers slides from a directory (one-shot or watch mode).
type SlideImporter struct {
	client *api.Client
	cache  *cache.Cache
	bus    bus.Bus
	opts   ImportOptions

	seen map[string]fileStamp
	mu   sync.Mutex

	imported int
	skipped  int
	errors   int
}

// NewSlideImporter constructs a slide importer. The cache may be nil
// when journaling is not wanted.
func NewSlideImporter(client *api.Client, c *cache.Cache, b bus.Bus, opts ImportOptions) *SlideImporter {
	if opts.Logger == nil {
		opts.Logger = log.New(log.Writer(), "[intake] ", log.LstdFlags)
	}
	if len(opts.Patterns) == 0 {
		opts.Patterns = []string{"*.dcm", "*.jpg", "*.jpeg", "*.png", "*.tif", "*.tiff"}
	}
	if opts.Actor == "" {
		opts.Actor = "importer"
	}
	return &SlideImporter{
		client: client,
		cache:  c,
		bus:    b,
		opts:   opts,
		seen:   make(map[string]fileStamp),
	}
}

// Stats returns the running import counters.
func (si *SlideImporter) Stats() (imported, skipped, errored int) {
	si.mu.Lock()
	defer si.mu.Unlock()
	return si.imported, si.skipped, si.errors
}

// Run executes the intake per options (one-shot or watch).
func (si *SlideImporter) Run(ctx context.Context) error {
	if err := si.scanOnce(ctx); err != nil {
		return err
	}

	if !si.opts.Watch {
		imported, skipped, errored := si.Stats()
		si.opts.Logger.Printf("Completed one-shot intake: imported=%d skipped=%d errors=%d",
			imported, skipped, errored)
		return nil
	}

	return si.watchLoop(ctx)
}

func (si *SlideImporter) matches(name string) bool {
	lower := strings.ToLower(name)
	for _, pat := range si.opts.Patterns {
		p := strings.TrimSpace(strings.ToLower(pat))
		ok, _ := filepath.Match(p, lower)
		if ok {
			return true
		}
	}
	return false
}

func (si *SlideImporter) scanOnce(ctx context.Context) error {
	entries, err := os.ReadDir(si.opts.Dir)
	if err != nil {
		return fmt.Errorf("read dir: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if !si.matches(e.Name()) {
			continue
		}
		path := filepath.Join(si.opts.Dir, e.Name())
		if err := si.processSlide(ctx, path); err != nil {
			si.opts.Logger.Printf("error importing %s: %v", path, err)
			si.countError()
		}
	}
	return nil
}

func (si *SlideImporter) watchLoop(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("fsnotify: %w", err)
	}
	defer w.Close()

	if err := w.Add(si.opts.Dir); err != nil {
		return fmt.Errorf("watch add: %w", err)
	}

	si.opts.Logger.Printf("Watching intake directory: %s (patterns: %s)",
		si.opts.Dir, strings.Join(si.opts.Patterns, ","))

	for {
		select {
		case <-ctx.Done():
			imported, skipped, errored := si.Stats()
			si.opts.Logger.Printf("Intake stopping: imported=%d skipped=%d errors=%d",
				imported, skipped, errored)
			return ctx.Err()
		case ev := <-w.Events:
			name := filepath.Base(ev.Name)
			if !si.matches(name) {
				continue
			}

			if (ev.Op&fsnotify.Create) != 0 || (ev.Op&fsnotify.Write) != 0 {
				if err := si.processSlide(ctx, ev.Name); err != nil {
					si.opts.Logger.Printf("error importing %s: %v", ev.Name, err)
					si.countError()
				}
			}
			if (ev.Op&fsnotify.Remove) != 0 || (ev.Op&fsnotify.Rename) != 0 {
				si.mu.Lock()
				delete(si.seen, ev.Name)
				si.mu.Unlock()
			}
		case err := <-w.Errors:
			if err != nil {
				si.opts.Logger.Printf("watch error: %v", err)
			}
		}
	}
}

// processSlide registers one slide file: create the case, upload the
// image, journal the import. A case that already exists for the patient
// counts as skipped, not failed.
func (si *SlideImporter) processSlide(ctx context.Context, path string) error {
	st, err := os.Stat(path)
	if err != nil {
		// File might be transiently missing (rename/rotate)
		return err
	}
	stamp := fileStamp{size: st.Size(), modTime: st.ModTime().UnixNano()}

	si.mu.Lock()
	if prev, ok := si.seen[path]; ok && prev == stamp {
		si.mu.Unlock()
		return nil
	}
	si.mu.Unlock()

	patientID, patientName := si.extractIdentity(path)

	created, err := si.client.CreateCase(ctx, api.CreateCaseRequest{
		PatientID:   patientID,
		PatientName: patientName,
		Diagnosis:   "Pending review",
	})
	if err != nil {
		var apiErr *api.Error
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusBadRequest {
			si.opts.Logger.Printf("Skipping %s: %s", filepath.Base(path), apiErr.Detail)
			si.markSeen(path, stamp)
			si.countSkip()
			return nil
		}
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open slide file: %w", err)
	}
	defer f.Close()

	if _, err := si.client.UploadSlideImage(ctx, created.SlideID, filepath.Base(path), f); err != nil {
		return fmt.Errorf("upload slide image: %w", err)
	}

	if si.cache != nil {
		if err := si.cache.LogAction(ctx, created.SlideID, "IMPORTED", si.opts.Actor,
			filepath.Base(path)); err != nil {
			si.opts.Logger.Printf("journal write failed for %s: %v", created.SlideID, err)
		}
	}

	// Best-effort publish (no-op on NullBus)
	_ = si.bus.PublishAudit(ctx, bus.AuditMessage{
		SlideID:   created.SlideID,
		Action:    "IMPORTED",
		Actor:     si.opts.Actor,
		Details:   filepath.Base(path),
		Timestamp: time.Now().Unix(),
	})

	si.markSeen(path, stamp)
	si.countImport()
	si.opts.Logger.Printf("Imported %s as case %s (patient %s)", filepath.Base(path), created.SlideID, patientID)
	return nil
}

// extractIdentity derives patient id and name from a slide file. DICOM
// headers win; anything else falls back to the filename stem.
func (si *SlideImporter) extractIdentity(path string) (patientID, patientName string) {
	base := filepath.Base(path)
	stem := strings.TrimSuffix(base, filepath.Ext(base))

	if strings.EqualFold(filepath.Ext(base), ".dcm") {
		if ds, err := dicom.ParseFile(path, nil); err == nil {
			if id := dicomString(ds, tag.PatientID); id != "" {
				patientID = id
			}
			if name := dicomString(ds, tag.PatientName); name != "" {
				patientName = caretToName(name)
			}
		} else {
			si.opts.Logger.Printf("failed to parse DICOM header of %s: %v", base, err)
		}
	}

	if patientID == "" {
		patientID = stem
	}
	if patientName == "" {
		patientName = "Unknown Patient"
	}
	return patientID, patientName
}

func (si *SlideImporter) markSeen(path string, stamp fileStamp) {
	si.mu.Lock()
	si.seen[path] = stamp
	si.mu.Unlock()
}

func (si *SlideImporter) countImport() {
	si.mu.Lock()
	si.imported++
	si.mu.Unlock()
}

func (si *SlideImporter) countSkip() {
	si.mu.Lock()
	si.skipped++
	si.mu.Unlock()
}

func (si *SlideImporter) countError() {
	si.mu.Lock()
	si.errors++
	si.mu.Unlock()
}

// dicomString reads the first string value of a tag, or "".
func dicomString(ds dicom.Dataset, t tag.Tag) string {
	elem, err := ds.FindElementByTag(t)
	if err != nil {
		return ""
	}
	if vals, ok := elem.Value.GetValue().([]string); ok && len(vals) > 0 {
		return strings.TrimSpace(vals[0])
	}
	return ""
}

// caretToName converts DICOM person-name notation (Family^Given) to
// display order.
func caretToName(raw string) string {
	parts := strings.Split(raw, "^")
	switch {
	case len(parts) >= 2 && parts[1] != "":
		return strings.TrimSpace(parts[1] + " " + parts[0])
	default:
		return strings.TrimSpace(parts[0])
	}
}
