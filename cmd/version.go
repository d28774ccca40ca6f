package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	appVersion string
	appCommit  string
	buildDate  string
)

// SetVersion sets version/build metadata and wires Cobra's --version flag.
func SetVersion(version, commit, date string) {
	appVersion = version
	appCommit = commit
	buildDate = date
	// Enable --version flag output via Cobra when Version is non-empty
	rootCmd.Version = version
}

// versionCmd prints detailed version information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		v := appVersion
		if v == "" {
			v = "dev"
		}
		fmt.Printf("patho-console %s\n", v)
		if appCommit != "" {
			fmt.Printf("Commit: %s\n", appCommit)
		}
		if buildDate != "" {
			fmt.Printf("Built: %s\n", buildDate)
		}
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
