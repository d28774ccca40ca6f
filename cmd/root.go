package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile         string
	apiBaseURL      string
	cachePath       string
	redisURL        string
	watchDir        string
	downloadsDir    string
	pathologistName string
	logLevel        string
	logFilePath     string
)

// rootCmd represents the base command. Invoked without a subcommand it
// starts the dashboard, same as `patho-console serve`.
var rootCmd = &cobra.Command{
	Use:   "patho-console",
	Short: "Terminal console for AI-assisted pathology billing",
	Long: `patho-console is a terminal front end for the PathoAI billing backend.
It lists pathology cases, runs AI billing analysis on slide images,
walks the pathologist through verifying the flagged findings, and
exports audit shield documents.

Features:
- Case dashboard with search and status filtering
- AI CPT code analysis with per-region verification
- Optimistic create/edit/delete with server reconciliation
- Offline fallback to a local SQLite snapshot
- Slide intake from a watched directory (DICOM-aware)
- Optional Redis audit stream for operator actions`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.patho-console.yaml)")
	rootCmd.PersistentFlags().StringVar(&apiBaseURL, "api", "http://localhost:8000", "Backend base URL")
	rootCmd.PersistentFlags().StringVar(&cachePath, "cache", "./data/patho-console.db", "Local SQLite cache path")
	rootCmd.PersistentFlags().StringVar(&redisURL, "redis", "", "Redis URL for the audit stream (empty disables publishing)")
	rootCmd.PersistentFlags().StringVar(&watchDir, "watch", "", "Slide intake directory to watch while the dashboard runs")
	rootCmd.PersistentFlags().StringVar(&downloadsDir, "downloads", "downloads", "Directory for exported audit shield PDFs")
	rootCmd.PersistentFlags().StringVar(&pathologistName, "pathologist", "pathologist", "Name recorded on verifications and journal entries")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFilePath, "log-file", "", "Log file for dashboard sessions (default logs/patho-console.log)")

	// Bind flags to viper
	viper.BindPFlag("api.base_url", rootCmd.PersistentFlags().Lookup("api"))
	viper.BindPFlag("cache.path", rootCmd.PersistentFlags().Lookup("cache"))
	viper.BindPFlag("redis.url", rootCmd.PersistentFlags().Lookup("redis"))
	viper.BindPFlag("watch.dir", rootCmd.PersistentFlags().Lookup("watch"))
	viper.BindPFlag("downloads.dir", rootCmd.PersistentFlags().Lookup("downloads"))
	viper.BindPFlag("pathologist.name", rootCmd.PersistentFlags().Lookup("pathologist"))
	viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log.file", rootCmd.PersistentFlags().Lookup("log-file"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory.
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		// Search config in home directory with name ".patho-console" (without extension).
		viper.AddConfigPath(home)
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".patho-console")
	}

	// PATHO_API_BASE_URL, PATHO_REDIS_URL, and so on.
	viper.SetEnvPrefix("PATHO")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}

	// Set defaults
	viper.SetDefault("api.base_url", "http://localhost:8000")
	viper.SetDefault("api.timeout", 15*time.Second)
	viper.SetDefault("cache.path", "./data/patho-console.db")
	viper.SetDefault("redis.url", "")
	viper.SetDefault("watch.dir", "")
	viper.SetDefault("downloads.dir", "downloads")
	viper.SetDefault("pathologist.name", "pathologist")
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.file", "")
}

// GetConfig returns the current configuration values
func GetConfig() Config {
	return Config{
		API: APIConfig{
			BaseURL: viper.GetString("api.base_url"),
			Timeout: viper.GetDuration("api.timeout"),
		},
		Cache: CacheConfig{
			Path: viper.GetString("cache.path"),
		},
		Redis: RedisConfig{
			URL: viper.GetString("redis.url"),
		},
		Watch: WatchConfig{
			Dir: viper.GetString("watch.dir"),
		},
		Downloads: DownloadsConfig{
			Dir: viper.GetString("downloads.dir"),
		},
		Pathologist: PathologistConfig{
			Name: viper.GetString("pathologist.name"),
		},
		Log: LogConfig{
			Level: viper.GetString("log.level"),
			File:  viper.GetString("log.file"),
		},
	}
}

// Config represents the application configuration
type Config struct {
	API         APIConfig         `mapstructure:"api"`
	Cache       CacheConfig       `mapstructure:"cache"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Watch       WatchConfig       `mapstructure:"watch"`
	Downloads   DownloadsConfig   `mapstructure:"downloads"`
	Pathologist PathologistConfig `mapstructure:"pathologist"`
	Log         LogConfig         `mapstructure:"log"`
}

type APIConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type CacheConfig struct {
	Path string `mapstructure:"path"`
}

type RedisConfig struct {
	URL string `mapstructure:"url"`
}

type WatchConfig struct {
	Dir string `mapstructure:"dir"`
}

type DownloadsConfig struct {
	Dir string `mapstructure:"dir"`
}

type PathologistConfig struct {
	Name string `mapstructure:"name"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}
