// cmd/history.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/chatprobe/internal/config"
	"github.com/xkilldash9x/chatprobe/internal/observability"
	"github.com/xkilldash9x/chatprobe/internal/store"
)

// storeProvider opens the run history. Tests inject their own.
type storeProvider interface {
	Open(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (store.Store, error)
}

type defaultStoreProvider struct{}

// NewStoreProvider returns the provider backed by store.Open.
func NewStoreProvider() storeProvider {
	return defaultStoreProvider{}
}

func (defaultStoreProvider) Open(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (store.Store, error) {
	return store.Open(ctx, cfg, logger)
}

func newHistoryCmd(provider storeProvider) *cobra.Command {
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Browse runs saved in the history database",
	}
	historyCmd.AddCommand(newHistoryListCmd(provider), newHistoryShowCmd(provider))
	return historyCmd
}

func openHistory(cmd *cobra.Command, provider storeProvider) (store.Store, error) {
	cfg, err := getConfigFromContext(cmd.Context())
	if err != nil {
		return nil, err
	}
	st, err := provider.Open(cmd.Context(), cfg.Database(), observability.GetLogger())
	if errors.Is(err, store.ErrNotConfigured) {
		return nil, fmt.Errorf("%w: set database.driver and database.url (or CHATPROBE_DATABASE_URL)", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open run history: %w", err)
	}
	return st, nil
}

func newHistoryListCmd(provider storeProvider) *cobra.Command {
	var limit int
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List recent runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openHistory(cmd, provider)
			if err != nil {
				return err
			}
			defer st.Close()

			runs, err := st.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded.")
				return nil
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "RUN ID\tSTARTED\tDURATION\tPASSED\tFAILED\tTITLE")
			for _, r := range runs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\n",
					r.RunID,
					r.StartedAt.Local().Format(time.DateTime),
					r.FinishedAt.Sub(r.StartedAt).Round(time.Second),
					r.Passed(), r.Failed, r.Title)
			}
			return tw.Flush()
		},
	}
	listCmd.Flags().IntVarP(&limit, "limit", "l", 20, "maximum number of runs to show (0 for all)")
	return listCmd
}

func newHistoryShowCmd(provider storeProvider) *cobra.Command {
	var outputPath string
	showCmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Print the summary of a stored run as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openHistory(cmd, provider)
			if err != nil {
				return err
			}
			defer st.Close()

			summary, err := st.GetRun(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			data, err := summary.IndentedJSON()
			if err != nil {
				return fmt.Errorf("failed to encode run summary: %w", err)
			}
			data = append(data, '\n')

			if outputPath == "" {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			path, err := homedir.Expand(outputPath)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return fmt.Errorf("failed to create output directory: %w", err)
			}
			if err := os.WriteFile(path, data, 0o644); err != nil {
				return fmt.Errorf("failed to write run summary: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Run %s written to %s\n", args[0], path)
			return nil
		},
	}
	showCmd.Flags().StringVarP(&outputPath, "output", "o", "", "write the summary to a file instead of stdout")
	return showCmd
}
