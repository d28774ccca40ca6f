package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pathoai/patho-console/internal/cache"
)

var confirmReset bool

// resetCmd represents the reset command
var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Clear the local cache",
	Long: `Clear all local state: the cached case snapshot and the interaction
journal. Backend data is untouched.

WARNING: the interaction journal is the local audit trail. Clearing it
is irreversible.

Examples:
  # Reset with a confirmation prompt
  patho-console reset

  # Reset without prompting
  patho-console reset --yes`,
	Args: cobra.NoArgs,
	RunE: runReset,
}

func init() {
	rootCmd.AddCommand(resetCmd)

	resetCmd.Flags().BoolVarP(&confirmReset, "yes", "y", false, "Skip the confirmation prompt")
}

func runReset(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := GetConfig()

	resolvedCachePath := resolvePathRelativeToBase(getWorkingDir(), cfg.Cache.Path)
	fmt.Printf("This permanently deletes the case snapshot and interaction journal in %s\n", resolvedCachePath)

	if !confirmReset {
		fmt.Print("Are you sure you want to continue? (y/N): ")
		var response string
		fmt.Scanln(&response)
		if r := strings.ToLower(response); r != "y" && r != "yes" {
			fmt.Println("Reset cancelled.")
			return nil
		}
	}

	localCache, err := cache.New(resolvedCachePath)
	if err != nil {
		return fmt.Errorf("failed to open local cache: %w", err)
	}
	defer localCache.Close()

	if err := localCache.Reset(ctx); err != nil {
		return fmt.Errorf("failed to reset local cache: %w", err)
	}

	fmt.Println("Local cache cleared.")
	return nil
}
