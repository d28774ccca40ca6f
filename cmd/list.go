package cmd

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/pathoai/patho-console/internal/api"
	"github.com/pathoai/patho-console/internal/billing"
	"github.com/pathoai/patho-console/internal/cache"
)

var (
	listStatus string
	listQuery  string
	listCached bool
	listLimit  int
)

// listCmd represents the list command
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List cases in plain text",
	Long: `List pathology billing cases in a simple text format. This works in any
terminal and is the fallback when the dashboard cannot run.

By default the list comes from the backend; --cached reads the last
snapshot from the local cache instead, which also works offline.

Examples:
  # All cases from the backend
  patho-console list

  # Only verified cases
  patho-console list --status verified

  # Free-text match over patient, slide id, and diagnosis
  patho-console list --query carcinoma

  # Offline, from the local snapshot
  patho-console list --cached`,
	Args: cobra.NoArgs,
	RunE: runList,
}

func init() {
	rootCmd.AddCommand(listCmd)

	listCmd.Flags().StringVar(&listStatus, "status", "", "Filter by status (pending, analyzed, verified, exported)")
	listCmd.Flags().StringVar(&listQuery, "query", "", "Free-text filter over patient name, slide id, patient id, diagnosis")
	listCmd.Flags().BoolVar(&listCached, "cached", false, "Read the local snapshot instead of the backend")
	listCmd.Flags().IntVar(&listLimit, "limit", 0, "Maximum number of cases to show (0 = all)")
}

func runList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := GetConfig()

	status := billing.ParseStatus(listStatus)
	if listStatus != "" && status == "" {
		return fmt.Errorf("unknown status %q (use pending, analyzed, verified, or exported)", listStatus)
	}

	var cases []billing.Case
	if listCached {
		localCache, err := cache.New(resolvePathRelativeToBase(getWorkingDir(), cfg.Cache.Path))
		if err != nil {
			return fmt.Errorf("failed to open local cache: %w", err)
		}
		defer localCache.Close()

		snapshot, fetchedAt, err := localCache.LoadSnapshot(ctx)
		if err != nil {
			return fmt.Errorf("failed to load snapshot: %w", err)
		}
		if len(snapshot) == 0 {
			fmt.Println("No snapshot cached yet. Run the dashboard or list without --cached first.")
			return nil
		}
		fmt.Printf("Snapshot fetched %s\n\n", fetchedAt.Local().Format("2006-01-02 15:04:05"))
		cases = snapshot
	} else {
		client, err := api.NewClient(api.Config{
			BaseURL: cfg.API.BaseURL,
			Timeout: cfg.API.Timeout,
		}, log.New(newLevelWriter(os.Stderr, cfg.Log.Level), "[api] ", log.LstdFlags))
		if err != nil {
			return fmt.Errorf("failed to create backend client: %w", err)
		}

		cases, err = client.ListCases(ctx, status)
		if err != nil {
			return fmt.Errorf("failed to list cases: %w", err)
		}
	}

	// The backend already filtered by status on the live path; the
	// snapshot path filters here.
	filtered := make([]billing.Case, 0, len(cases))
	for _, cs := range cases {
		if status != "" && cs.Status != status {
			continue
		}
		if !cs.MatchesQuery(listQuery) {
			continue
		}
		filtered = append(filtered, cs)
		if listLimit > 0 && len(filtered) >= listLimit {
			break
		}
	}

	if len(filtered) == 0 {
		fmt.Println("No cases found.")
		return nil
	}

	fmt.Printf("Found %d cases:\n\n", len(filtered))
	for i, cs := range filtered {
		fmt.Printf("%d. [%s] %s (%s)\n", i+1, cs.Status, cs.PatientName, cs.PatientID)
		fmt.Printf("   Slide: %s\n", cs.SlideID)
		if cs.Diagnosis != "" {
			fmt.Printf("   Diagnosis: %s\n", cs.Diagnosis)
		}
		switch {
		case cs.SuggestedCPT != "" && cs.SuggestedCPT != cs.BaseCPT:
			fmt.Printf("   CPT: %s -> %s\n", cs.BaseCPT, cs.SuggestedCPT)
		case cs.BaseCPT != "":
			fmt.Printf("   CPT: %s\n", cs.BaseCPT)
		}
		if cs.RecoveryValue > 0 {
			fmt.Printf("   Recovery: +%s\n", billing.FormatUSD(cs.RecoveryValue))
		}
		if cs.CreatedAt != "" {
			if t, err := billing.ParseTimestamp(cs.CreatedAt); err == nil {
				fmt.Printf("   Created: %s\n", t.Format("2006-01-02 15:04:05"))
			}
		}
		fmt.Println()
	}

	return nil
}
