package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/dictdb/internal/dict"
	"github.com/roach88/dictdb/internal/storage"
	"github.com/roach88/dictdb/internal/worker"
)

// openStore builds a Transactional Store from the resolved configuration.
// The caller owns the returned store and must close it.
func openStore(cmd *cobra.Command, opts *RootOptions) (*storage.Store, error) {
	cfg, err := resolveConfig(cmd, opts)
	if err != nil {
		return nil, err
	}
	st, err := storage.Open(storage.Options{
		Path:      cfg.Database,
		Namespace: cfg.Namespace,
		ReadOnly:  cfg.ReadOnly,
		Expires:   cfg.Expires,
		KeyType:   storage.KeyType(cfg.KeyType),
		Trace:     dict.DebugTrace,
	})
	if err != nil {
		return nil, err
	}
	return st, nil
}

func formatter(cmd *cobra.Command, opts *RootOptions) *OutputFormatter {
	return &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
}

// parseValue decodes a CLI value argument: valid JSON is taken as-is,
// anything else is treated as a plain string.
func parseValue(arg string) any {
	var v any
	if err := json.Unmarshal([]byte(arg), &v); err != nil {
		return arg
	}
	return v
}

// NewGetCommand creates the get command.
func NewGetCommand(opts *RootOptions) *cobra.Command {
	var def string

	cmd := &cobra.Command{
		Use:           "get <key>",
		Short:         "Read the value stored under a key",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(cmd, opts)
			if err != nil {
				return err
			}
			defer st.Close()

			var v any
			if cmd.Flags().Changed("default") {
				v, err = st.GetDefault(args[0], parseValue(def))
			} else {
				v, err = st.Get(args[0])
			}
			if err != nil {
				return err
			}
			return formatter(cmd, opts).Value(v)
		},
	}

	cmd.Flags().StringVar(&def, "default", "", "value to return when the key is absent")

	return cmd
}

// NewSetCommand creates the set command.
func NewSetCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "set <key> <value>",
		Short:         "Upsert a value under a key",
		Long:          "Upsert a value under a key.\n\nThe value is parsed as JSON when possible, stored as a string otherwise.",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(cmd, opts)
			if err != nil {
				return err
			}
			defer st.Close()

			if err := st.Set(args[0], parseValue(args[1])); err != nil {
				return err
			}
			return formatter(cmd, opts).Value("ok")
		},
	}
}

// NewDelCommand creates the del command.
func NewDelCommand(opts *RootOptions) *cobra.Command {
	var ignoreMissing bool

	cmd := &cobra.Command{
		Use:           "del <key>",
		Short:         "Delete the entry stored under a key",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(cmd, opts)
			if err != nil {
				return err
			}
			defer st.Close()

			if err := st.Delete(args[0], ignoreMissing); err != nil {
				return err
			}
			return formatter(cmd, opts).Value("ok")
		},
	}

	cmd.Flags().BoolVar(&ignoreMissing, "ignore-missing", false, "treat a missing key as a no-op")

	return cmd
}

// NewPopCommand creates the pop command.
func NewPopCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "pop <key>",
		Short:         "Atomically read and delete the entry stored under a key",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(cmd, opts)
			if err != nil {
				return err
			}
			defer st.Close()

			v, err := st.Pop(args[0])
			if err != nil {
				return err
			}
			return formatter(cmd, opts).Value(v)
		},
	}
}

// NewKeysCommand creates the keys command.
func NewKeysCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "keys",
		Short:         "List every key in the namespace",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(cmd, opts)
			if err != nil {
				return err
			}
			defer st.Close()

			keys, err := st.Keys()
			if err != nil {
				return err
			}
			return formatter(cmd, opts).Keys(keys)
		},
	}
}

// NewItemsCommand creates the items command.
func NewItemsCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "items",
		Short:         "List every key-value pair in the namespace",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(cmd, opts)
			if err != nil {
				return err
			}
			defer st.Close()

			items, err := st.Items()
			if err != nil {
				return err
			}
			return formatter(cmd, opts).Items(items)
		},
	}
}

// NewCountCommand creates the count command.
func NewCountCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "count",
		Short:         "Count the entries in the namespace",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(cmd, opts)
			if err != nil {
				return err
			}
			defer st.Close()

			n, err := st.Count()
			if err != nil {
				return err
			}
			return formatter(cmd, opts).Value(n)
		},
	}
}

// NewAgeCommand creates the age command.
func NewAgeCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "age <key>",
		Short:         "Show how long ago a key was inserted and last updated",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(cmd, opts)
			if err != nil {
				return err
			}
			defer st.Close()

			sinceInsert, sinceUpdate, err := st.Age(args[0])
			if err != nil {
				return err
			}
			return formatter(cmd, opts).Value(map[string]any{
				"inserted": sinceInsert.String(),
				"updated":  sinceUpdate.String(),
			})
		},
	}
}

// NewClearCommand creates the clear command.
func NewClearCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "clear",
		Short:         "Remove every entry in the namespace",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(cmd, opts)
			if err != nil {
				return err
			}
			defer st.Close()

			if err := st.Clear(); err != nil {
				return err
			}
			return formatter(cmd, opts).Value("ok")
		},
	}
}

// NewStatsCommand creates the stats command.
func NewStatsCommand(opts *RootOptions) *cobra.Command {
	var showMetrics bool

	cmd := &cobra.Command{
		Use:           "stats",
		Short:         "Show a diagnostic summary of the namespace",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(cmd, opts)
			if err != nil {
				return err
			}
			defer st.Close()

			if err := formatter(cmd, opts).Value(fmt.Sprint(st)); err != nil {
				return err
			}
			if showMetrics {
				worker.WriteMetrics(cmd.OutOrStdout())
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&showMetrics, "metrics", false, "append process metrics in Prometheus exposition format")

	return cmd
}
