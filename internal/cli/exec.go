package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/dictdb/internal/dict"
	"github.com/roach88/dictdb/internal/worker"
)

// ExecOptions holds flags for the exec command.
type ExecOptions struct {
	*RootOptions
	QueueSize int
}

// NewExecCommand creates the exec command: a raw parameterized statement
// routed through the asynchronous command-queue executor.
func NewExecCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExecOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "exec <statement> [arg...]",
		Short: "Run a raw parameterized statement through the async executor",
		Long: "Run a raw parameterized statement through the async executor.\n\n" +
			"Positional placeholders (?) are filled from the remaining arguments.\n" +
			"SELECT statements print their rows; anything else is fire-and-forget\n" +
			"and is committed before the command returns.\n\n" +
			"Example:\n" +
			"  dictdb exec 'SELECT key, value FROM tb_generic_storage WHERE key = ?' a",
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExec(cmd, opts, args[0], args[1:])
		},
	}

	cmd.Flags().IntVar(&opts.QueueSize, "queue-size", worker.DefaultQueueSize, "command queue capacity")

	return cmd
}

func runExec(cmd *cobra.Command, opts *ExecOptions, stmt string, rawArgs []string) error {
	cfg, err := resolveConfig(cmd, opts.RootOptions)
	if err != nil {
		return err
	}

	queueSize := opts.QueueSize
	if !cmd.Flags().Changed("queue-size") {
		queueSize = cfg.QueueSize
	}

	exec, err := worker.New(cfg.Database,
		worker.WithQueueSize(queueSize),
		worker.WithTrace(dict.DebugTrace),
	)
	if err != nil {
		return err
	}
	defer exec.Close()

	args := make([]any, len(rawArgs))
	for i, a := range rawArgs {
		args[i] = a
	}

	res, err := exec.Execute(stmt, args...)
	if err != nil {
		return err
	}
	if res == nil {
		// Mutation: queued; Close drains and commits it.
		return formatter(cmd, opts.RootOptions).Value("queued")
	}
	return formatter(cmd, opts.RootOptions).Rows(res)
}
