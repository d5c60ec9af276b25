package cli

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/dictdb/internal/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	Database   string
	Namespace  string
	ReadOnly   bool
	Expires    time.Duration
	KeyType    string
	Verbose    bool
	Format     string // "json" | "text"
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the dictdb CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "dictdb",
		Short: "dictdb - persistent dict-like key-value store over SQLite",
		Long: "A persistent, dict-like key-value store with TTL expiry, scoped\n" +
			"transactions and an asynchronous single-writer command queue.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			if opts.Verbose {
				slog.SetLogLoggerLevel(slog.LevelDebug)
			}
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "path to YAML config file")
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "backing database file")
	cmd.PersistentFlags().StringVar(&opts.Namespace, "namespace", "", "namespace (table) to operate on")
	cmd.PersistentFlags().BoolVar(&opts.ReadOnly, "read-only", false, "open the store without write access")
	cmd.PersistentFlags().DurationVar(&opts.Expires, "expires", 0, "entry time-to-live swept once at startup (0 disables)")
	cmd.PersistentFlags().StringVar(&opts.KeyType, "key-type", "", "key column affinity (TEXT|INTEGER|NUMERIC)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	// Add subcommands
	cmd.AddCommand(NewGetCommand(opts))
	cmd.AddCommand(NewSetCommand(opts))
	cmd.AddCommand(NewDelCommand(opts))
	cmd.AddCommand(NewPopCommand(opts))
	cmd.AddCommand(NewKeysCommand(opts))
	cmd.AddCommand(NewItemsCommand(opts))
	cmd.AddCommand(NewCountCommand(opts))
	cmd.AddCommand(NewAgeCommand(opts))
	cmd.AddCommand(NewClearCommand(opts))
	cmd.AddCommand(NewStatsCommand(opts))
	cmd.AddCommand(NewExecCommand(opts))

	return cmd
}

// resolveConfig merges the config file (or defaults) with any flags the
// user set explicitly. Flags win.
func resolveConfig(cmd *cobra.Command, opts *RootOptions) (config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return config.Config{}, err
	}
	flags := cmd.Flags()
	if flags.Changed("db") {
		cfg.Database = opts.Database
	}
	if flags.Changed("namespace") {
		cfg.Namespace = opts.Namespace
	}
	if flags.Changed("read-only") {
		cfg.ReadOnly = opts.ReadOnly
	}
	if flags.Changed("expires") {
		cfg.Expires = opts.Expires
	}
	if flags.Changed("key-type") {
		cfg.KeyType = opts.KeyType
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
