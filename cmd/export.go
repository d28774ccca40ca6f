package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/pathoai/patho-console/internal/api"
	"github.com/pathoai/patho-console/internal/billing"
)

var (
	exportSlide string
	exportAll   bool
	exportOut   string
)

// exportCmd represents the export command
var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Download audit shield PDFs",
	Long: `Download audit shield documents without starting the dashboard. Only
verified cases have one; the backend refuses exports for anything
earlier in the workflow.

Examples:
  # One case
  patho-console export --slide WSI-2024-1847

  # Every verified or already exported case, with progress
  patho-console export --all

  # Into a specific directory
  patho-console export --all --out ./audit-shields`,
	Args: cobra.NoArgs,
	RunE: runExportPDFs,
}

func init() {
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().StringVar(&exportSlide, "slide", "", "Slide id to export")
	exportCmd.Flags().BoolVar(&exportAll, "all", false, "Export every verified or exported case")
	exportCmd.Flags().StringVar(&exportOut, "out", "", "Output directory (default the configured downloads directory)")
}

func runExportPDFs(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := GetConfig()

	if exportSlide == "" && !exportAll {
		return fmt.Errorf("specify --slide ID or --all")
	}
	if exportSlide != "" && exportAll {
		return fmt.Errorf("--slide and --all are mutually exclusive")
	}

	outDir := exportOut
	if outDir == "" {
		outDir = cfg.Downloads.Dir
	}
	outDir = resolvePathRelativeToBase(getWorkingDir(), outDir)
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory %s: %w", outDir, err)
	}

	client, err := api.NewClient(api.Config{
		BaseURL: cfg.API.BaseURL,
		Timeout: cfg.API.Timeout,
	}, log.New(newLevelWriter(os.Stderr, cfg.Log.Level), "[api] ", log.LstdFlags))
	if err != nil {
		return fmt.Errorf("failed to create backend client: %w", err)
	}

	if exportSlide != "" {
		path, size, err := downloadShield(ctx, client, exportSlide, outDir)
		if err != nil {
			return fmt.Errorf("failed to export %s: %w", exportSlide, err)
		}
		fmt.Printf("Exported %s (%d bytes)\n", path, size)
		return nil
	}

	cases, err := client.ListCases(ctx, "")
	if err != nil {
		return fmt.Errorf("failed to list cases: %w", err)
	}

	var targets []billing.Case
	for _, cs := range cases {
		if cs.Status == billing.StatusVerified || cs.Status == billing.StatusExported {
			targets = append(targets, cs)
		}
	}
	if len(targets) == 0 {
		fmt.Println("No verified cases to export.")
		return nil
	}

	bar := progressbar.NewOptions(len(targets),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription("Exporting audit shields"),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprintln(os.Stderr)
		}),
	)

	var failures []string
	for _, cs := range targets {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if _, _, err := downloadShield(ctx, client, cs.SlideID, outDir); err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", cs.SlideID, err))
		}
		_ = bar.Add(1)
	}

	fmt.Printf("Exported %d of %d audit shields to %s\n", len(targets)-len(failures), len(targets), outDir)
	for _, failure := range failures {
		fmt.Printf("  failed %s\n", failure)
	}
	if len(failures) > 0 {
		return fmt.Errorf("%d exports failed", len(failures))
	}
	return nil
}

// downloadShield streams one audit shield PDF into outDir under the
// backend's default file name. A failed or empty download leaves no
// file behind.
func downloadShield(ctx context.Context, client *api.Client, slideID, outDir string) (string, int64, error) {
	path := filepath.Join(outDir, fmt.Sprintf("audit_shield_%s.pdf", slideID))
	f, err := os.Create(path)
	if err != nil {
		return "", 0, fmt.Errorf("failed to create %s: %w", path, err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	size, err := client.DownloadAuditPDF(reqCtx, slideID, f)
	if closeErr := f.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("failed to close %s: %w", path, closeErr)
	}
	if err != nil {
		os.Remove(path)
		return "", 0, err
	}
	return path, size, nil
}
