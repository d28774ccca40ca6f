package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pathoai/patho-console/internal/api"
	"github.com/pathoai/patho-console/internal/bus"
	"github.com/pathoai/patho-console/internal/cache"
	"github.com/pathoai/patho-console/internal/ingest"
)

var (
	importWatch    bool
	importPatterns string
	importActor    string
)

// importCmd represents the import command
var importCmd = &cobra.Command{
	Use:   "import <dir>",
	Short: "Register slide files from a directory",
	Long: `Register slide image files from a directory with the backend. Each file
becomes a pathology case with its image uploaded. DICOM files contribute
patient identity from their headers; other images fall back to the
filename. Files whose patient already has a case are skipped.

Examples:
  # One-shot: register existing files and exit
  patho-console import ./incoming

  # Keep watching for new files until interrupted
  patho-console import ./incoming --watch

  # Restrict to DICOM files
  patho-console import ./incoming --pattern "*.dcm"`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)

	importCmd.Flags().BoolVar(&importWatch, "watch", false, "Watch the directory for new files until interrupted")
	importCmd.Flags().StringVar(&importPatterns, "pattern", "", `Comma-separated glob patterns (default "*.dcm,*.jpg,*.jpeg,*.png,*.tif,*.tiff")`)
	importCmd.Flags().StringVar(&importActor, "actor", "", "Actor recorded on journal and audit entries (default the configured pathologist)")
}

func runImport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := GetConfig()
	intakeDir := args[0]

	sink := newLevelWriter(os.Stderr, cfg.Log.Level)
	logger := log.New(sink, "[import] ", log.LstdFlags)

	client, err := api.NewClient(api.Config{
		BaseURL: cfg.API.BaseURL,
		Timeout: cfg.API.Timeout,
	}, log.New(sink, "[api] ", log.LstdFlags))
	if err != nil {
		return fmt.Errorf("failed to create backend client: %w", err)
	}

	localCache, err := cache.New(resolvePathRelativeToBase(getWorkingDir(), cfg.Cache.Path))
	if err != nil {
		return fmt.Errorf("failed to open local cache: %w", err)
	}
	defer localCache.Close()

	auditBus := bus.NewBus(cfg.Redis.URL, log.New(sink, "[bus] ", log.LstdFlags))
	defer auditBus.Close()

	var patterns []string
	for _, p := range strings.Split(importPatterns, ",") {
		if s := strings.TrimSpace(p); s != "" {
			patterns = append(patterns, s)
		}
	}

	actor := importActor
	if actor == "" {
		actor = cfg.Pathologist.Name
	}

	importer := ingest.NewSlideImporter(client, localCache, auditBus, ingest.ImportOptions{
		Dir:      intakeDir,
		Watch:    importWatch,
		Patterns: patterns,
		Actor:    actor,
		Logger:   logger,
	})

	logger.Printf("Starting intake from %s (watch=%v)", intakeDir, importWatch)

	if err := importer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("intake failed: %w", err)
	}

	imported, skipped, errored := importer.Stats()
	fmt.Printf("Imported %d slides (%d skipped, %d errors)\n", imported, skipped, errored)
	if errored > 0 && !importWatch {
		return fmt.Errorf("intake completed with %d errors", errored)
	}
	return nil
}
