// cmd/demo.go
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/chatprobe/internal/browser"
	"github.com/xkilldash9x/chatprobe/internal/demo"
	"github.com/xkilldash9x/chatprobe/internal/observability"
)

func newDemoCmd() *cobra.Command {
	demoCmd := &cobra.Command{
		Use:   "demo",
		Short: "Serve the bundled demo chat widget until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			logger := observability.GetLogger()

			srv := demo.New(cfg.Demo(), logger)
			url, err := srv.Start(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Demo widget at %s (Ctrl-C to stop)\n", url)

			select {
			case err := <-srv.Done():
				return err
			case <-ctx.Done():
			}
			sctx, cancel := browser.TeardownContext(ctx, shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(sctx); err != nil {
				logger.Warn("Demo server did not shut down cleanly.", zap.Error(err))
				return err
			}
			return nil
		},
	}
	demoCmd.Flags().String("addr", "", "listen address (default demo.addr)")
	bindKey(demoCmd.Flags(), "addr", "demo.addr")
	return demoCmd
}
