package cmd

import (
	"fmt"
	"io"
	"log"
	"sort"

	"github.com/spf13/cobra"

	"github.com/pathoai/patho-console/internal/api"
	"github.com/pathoai/patho-console/internal/billing"
	"github.com/pathoai/patho-console/internal/bus"
	"github.com/pathoai/patho-console/internal/cache"
)

// metricsCmd represents the metrics command
var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Print revenue and local state metrics",
	Long: `Print the backend revenue summary together with local journal, snapshot,
and audit bus statistics.`,
	Args: cobra.NoArgs,
	RunE: runMetrics,
}

func init() {
	rootCmd.AddCommand(metricsCmd)
}

func runMetrics(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := GetConfig()

	client, err := api.NewClient(api.Config{
		BaseURL: cfg.API.BaseURL,
		Timeout: cfg.API.Timeout,
	}, log.New(io.Discard, "", 0))
	if err != nil {
		return fmt.Errorf("failed to create backend client: %w", err)
	}

	summary, err := client.RevenueSummary(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch revenue summary: %w", err)
	}

	fmt.Println("Revenue summary:")
	fmt.Printf("  Cases processed: %d\n", summary.TotalCasesProcessed)
	fmt.Printf("  Revenue recovered: %s\n", billing.FormatUSD(summary.TotalRevenueRecovered))
	fmt.Printf("  Average per case: %s\n", billing.FormatUSD(summary.AverageRecoveryPerCase))
	fmt.Printf("  Audit-ready cases: %d (average score %.1f)\n", summary.CasesAuditReady, summary.AverageAuditScore)
	fmt.Printf("  Efficiency gain: %.1f hours\n", summary.EfficiencyGainHours)
	fmt.Printf("  Annual projection: %s\n", billing.FormatUSD(summary.AnnualProjection))
	if summary.EfficiencyMessage != "" {
		fmt.Printf("  %s\n", summary.EfficiencyMessage)
	}
	if len(summary.CPTBreakdown) > 0 {
		fmt.Println("  CPT breakdown:")
		codes := make([]string, 0, len(summary.CPTBreakdown))
		for code := range summary.CPTBreakdown {
			codes = append(codes, code)
		}
		sort.Strings(codes)
		for _, code := range codes {
			fmt.Printf("    %s: %d\n", code, summary.CPTBreakdown[code])
		}
	}

	// Local state is best-effort: a missing cache or disabled bus still
	// leaves the revenue summary useful on its own.
	localCache, err := cache.New(resolvePathRelativeToBase(getWorkingDir(), cfg.Cache.Path))
	if err == nil {
		defer localCache.Close()
		fmt.Println("\nLocal state:")
		if count, err := localCache.InteractionCount(ctx); err == nil {
			fmt.Printf("  Journal entries: %d\n", count)
		}
		if snapshot, fetchedAt, err := localCache.LoadSnapshot(ctx); err == nil && len(snapshot) > 0 {
			fmt.Printf("  Cached snapshot: %d cases from %s\n",
				len(snapshot), fetchedAt.Local().Format("2006-01-02 15:04:05"))
		}
	}

	auditBus := bus.NewBus(cfg.Redis.URL, log.New(io.Discard, "", 0))
	defer auditBus.Close()
	if stats, err := auditBus.GetStats(ctx); err == nil {
		fmt.Println("Audit bus:")
		keys := make([]string, 0, len(stats))
		for key := range stats {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			fmt.Printf("  %s: %v\n", key, stats[key])
		}
	}

	return nil
}
