package cmd

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/spf13/cobra"

	"github.com/pathoai/patho-console/internal/api"
	"github.com/pathoai/patho-console/internal/bus"
	"github.com/pathoai/patho-console/internal/cache"
	"github.com/pathoai/patho-console/internal/ingest"
	"github.com/pathoai/patho-console/internal/ui"
)

var forceTUI bool

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the billing dashboard",
	Long: `Start the pathology billing dashboard: a terminal interface over the
PathoAI backend for reviewing cases, running AI billing analysis,
verifying flagged findings, and exporting audit shield documents.

The dashboard keeps a local SQLite snapshot so the case list stays
visible when the backend is unreachable, and optionally publishes
operator actions to a Redis audit stream. It runs until quit (q) or
interrupted (Ctrl+C).

Examples:
  # Connect to a local backend (default http://localhost:8000)
  patho-console serve

  # Remote backend with a shared audit stream
  patho-console serve --api https://billing.example.com --redis redis://redis:6379

  # Watch an intake directory for new slide files while the dashboard runs
  patho-console serve --watch ./incoming`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().BoolVar(&forceTUI, "force-tui", false, "Skip the terminal capability probe")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := GetConfig()

	// Probe the terminal before touching anything else. Environments
	// without a TTY get one repair attempt through `script`; after that
	// the headless subcommands are the supported path.
	if !forceTUI && !canInitializeTUI() {
		if needsPseudoTTY() {
			return runWithPseudoTTY(cmd, args)
		}
		return fmt.Errorf("terminal cannot host the dashboard (%s); use the list and export subcommands instead", getTerminalInfo())
	}

	// The dashboard owns the terminal, so logs go to a file. Error
	// lines are mirrored to stderr where they survive screen teardown.
	logFile, err := openLogFile(cfg.Log.File)
	if err != nil {
		return err
	}
	defer logFile.Close()

	fileSink := newLevelWriter(logFile, cfg.Log.Level)
	logger := log.New(io.MultiWriter(fileSink, newLevelWriter(os.Stderr, "error")), "[serve] ", log.LstdFlags)
	logger.Printf("Starting patho-console (terminal: %s)", getTerminalInfo())

	client, err := api.NewClient(api.Config{
		BaseURL: cfg.API.BaseURL,
		Timeout: cfg.API.Timeout,
	}, log.New(fileSink, "[api] ", log.LstdFlags))
	if err != nil {
		return fmt.Errorf("failed to create backend client: %w", err)
	}
	logger.Printf("Backend: %s", client.BaseURL())

	resolvedCachePath := resolvePathRelativeToBase(getWorkingDir(), cfg.Cache.Path)
	localCache, err := cache.New(resolvedCachePath)
	if err != nil {
		return fmt.Errorf("failed to open local cache: %w", err)
	}
	defer localCache.Close()
	logger.Printf("Local cache: %s", resolvedCachePath)

	auditBus := bus.NewBus(cfg.Redis.URL, log.New(fileSink, "[bus] ", log.LstdFlags))
	defer auditBus.Close()

	// Non-fatal reachability probe; the dashboard falls back to the
	// cached snapshot on its own when the backend is down.
	probeCtx, probeCancel := context.WithTimeout(ctx, 3*time.Second)
	if err := client.Health(probeCtx); err != nil {
		logger.Printf("Backend unreachable at startup: %v", err)
	}
	probeCancel()

	// Background workers stop when the dashboard exits.
	svcCtx, svcCancel := context.WithCancel(ctx)
	defer svcCancel()

	if cfg.Watch.Dir != "" {
		intakeDir := resolvePathRelativeToBase(getWorkingDir(), cfg.Watch.Dir)
		if err := os.MkdirAll(intakeDir, 0755); err != nil {
			return fmt.Errorf("failed to create intake directory %s: %w", intakeDir, err)
		}
		importer := ingest.NewSlideImporter(client, localCache, auditBus, ingest.ImportOptions{
			Dir:    intakeDir,
			Watch:  true,
			Actor:  cfg.Pathologist.Name,
			Logger: log.New(fileSink, "[intake] ", log.LstdFlags),
		})
		go func() {
			if err := importer.Run(svcCtx); err != nil && svcCtx.Err() == nil {
				logger.Printf("Intake watcher error: %v", err)
			}
		}()
		logger.Printf("Watching intake directory: %s", intakeDir)
	}

	go logPeriodicStats(svcCtx, localCache, auditBus, logger)

	dashboard := ui.NewUI(ctx, client, localCache, auditBus, ui.Options{
		PathologistName: cfg.Pathologist.Name,
		DownloadsDir:    resolvePathRelativeToBase(getWorkingDir(), cfg.Downloads.Dir),
	}, log.New(fileSink, "[ui] ", log.LstdFlags))

	if err := dashboard.Start(ctx); err != nil {
		return fmt.Errorf("dashboard error: %w", err)
	}

	svcCancel()
	logger.Println("patho-console stopped")
	return nil
}

// logPeriodicStats records bus and journal statistics to the log file
// while the dashboard runs.
func logPeriodicStats(ctx context.Context, localCache *cache.Cache, auditBus bus.Bus, logger *log.Logger) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			statsCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			if stats, err := auditBus.GetStats(statsCtx); err == nil {
				logger.Printf("Audit bus stats: %+v", stats)
			}
			if count, err := localCache.InteractionCount(statsCtx); err == nil {
				logger.Printf("Journal entries: %d", count)
			}
			cancel()
		}
	}
}

// canInitializeTUI tests if tcell can actually be initialized
func canInitializeTUI() bool {
	screen, err := tcell.NewScreen()
	if err != nil {
		return false
	}

	if err := screen.Init(); err != nil {
		return false
	}

	// Clean up immediately
	screen.Fini()
	return true
}

// needsPseudoTTY reports whether the process has no controlling TTY and
// could get one via the `script` command.
func needsPseudoTTY() bool {
	if runtime.GOOS == "windows" {
		return false
	}
	// Try to actually open /dev/tty (not just check if it exists)
	if file, err := os.OpenFile("/dev/tty", os.O_RDWR, 0); err == nil {
		file.Close()
		return false
	}
	return true
}

// runWithPseudoTTY re-executes the serve command under `script` so the
// dashboard gets a pseudo-TTY.
func runWithPseudoTTY(cmd *cobra.Command, args []string) error {
	executable, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get executable path: %w", err)
	}

	cmdArgs := append([]string{"serve"}, args...)

	// Force the TUI on the re-exec so we never loop through the probe.
	hasForceTUI := false
	for _, arg := range args {
		if arg == "--force-tui" {
			hasForceTUI = true
			break
		}
	}
	if !hasForceTUI {
		cmdArgs = append(cmdArgs, "--force-tui")
	}

	quotedArgs := make([]string, len(cmdArgs))
	for i, arg := range cmdArgs {
		quotedArgs[i] = fmt.Sprintf("%q", arg)
	}
	fullCmd := fmt.Sprintf("TERM=%s %q %s",
		os.Getenv("TERM"), executable, strings.Join(quotedArgs, " "))

	scriptCmd := exec.Command("script", "-qec", fullCmd, "/dev/null")
	scriptCmd.Stdin = os.Stdin
	scriptCmd.Stdout = os.Stdout
	scriptCmd.Stderr = os.Stderr
	scriptCmd.Env = os.Environ()

	return scriptCmd.Run()
}

// getTerminalInfo returns a one-line description of the terminal
// environment for logs and error messages.
func getTerminalInfo() string {
	var info []string

	if term := os.Getenv("TERM"); term != "" {
		info = append(info, "TERM="+term)
	} else {
		info = append(info, "TERM=<not set>")
	}

	if termProgram := os.Getenv("TERM_PROGRAM"); termProgram != "" {
		info = append(info, "TERM_PROGRAM="+termProgram)
	}

	if width, height := getTerminalSize(); width > 0 && height > 0 {
		info = append(info, fmt.Sprintf("Size=%dx%d", width, height))
	}

	if isTerminal() {
		info = append(info, "TTY=yes")
	} else {
		info = append(info, "TTY=no")
	}

	if supportsColors() {
		info = append(info, "Colors=yes")
	} else {
		info = append(info, "Colors=no")
	}

	return strings.Join(info, ", ")
}

// getExecutableDir returns the directory of the running executable.
// Falls back to current directory on error.
func getExecutableDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(exe)
}

// getWorkingDir returns the current working directory.
// Falls back to executable directory if os.Getwd fails.
func getWorkingDir() string {
	if wd, err := os.Getwd(); err == nil && wd != "" {
		return wd
	}
	return getExecutableDir()
}

// resolvePathRelativeToBase resolves a possibly relative path against a base directory.
// Absolute paths are returned unchanged.
func resolvePathRelativeToBase(base, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	// Normalize leading "./" for consistent joining
	p = strings.TrimPrefix(p, "./")
	return filepath.Join(base, p)
}

// isTerminal checks if stdout is a terminal
func isTerminal() bool {
	if fileInfo, err := os.Stdout.Stat(); err == nil {
		return (fileInfo.Mode() & os.ModeCharDevice) != 0
	}
	return false
}

// supportsColors checks if terminal supports colors
func supportsColors() bool {
	if os.Getenv("COLORTERM") != "" {
		return true
	}

	term := strings.ToLower(os.Getenv("TERM"))
	for _, marker := range []string{"color", "256", "truecolor", "xterm", "screen", "tmux", "linux", "ansi"} {
		if strings.Contains(term, marker) {
			return true
		}
	}
	return false
}
