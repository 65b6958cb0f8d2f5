package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/krillca/krill/pkg/eventsourcing"
	"github.com/krillca/krill/pkg/kv"
	"github.com/krillca/krill/pkg/log"
)

// Version information (set via ldflags during build)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

var configPath string

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "krilld",
	Short: "krilld - the RPKI certificate authority engine room",
	Long: `krilld operates the event-sourced aggregate store and signer
dispatcher underlying an RPKI certificate authority: warming its
in-memory cache, recovering from an inconsistent on-disk state, and
inspecting a CA's command history.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"krilld version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to krilld config file (YAML)")
	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(warmCmd)
	rootCmd.AddCommand(recoverCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(rotateCmd)
}

func initLogging() {
	cfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	level := log.InfoLevel
	switch cfg.LogLevel {
	case "debug":
		level = log.DebugLevel
	case "warn":
		level = log.WarnLevel
	case "error":
		level = log.ErrorLevel
	}
	log.Init(log.Config{Level: level, JSONOutput: cfg.LogJSON})
}

// openStore loads krilld's config and opens the aggregate store it
// describes, registering the built-in ca aggregate factory.
func openStore() (*eventsourcing.AggregateStore, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}
	if uri := os.Getenv("KRILL_KV_STORAGE_URL"); uri != "" {
		cfg.StorageURI = uri
	}
	store, err := kv.Open(cfg.StorageURI, cfg.Namespace)
	if err != nil {
		return nil, fmt.Errorf("open storage %s: %w", cfg.StorageURI, err)
	}
	return eventsourcing.NewAggregateStore(store, caFactory{}), nil
}
