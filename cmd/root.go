// cmd/root.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/chatprobe/internal/config"
	"github.com/xkilldash9x/chatprobe/internal/observability"
)

type contextKey string

const configKey contextKey = "config"

const (
	envPrefix = "CHATPROBE"

	// viperKeyAnnotation maps a command flag onto a configuration key.
	viperKeyAnnotation = "chatprobe/viper-key"
	// runLogAnnotation marks commands that get their own test_run_<ts>.log.
	runLogAnnotation = "chatprobe/run-log"
)

// ErrTestsFailed makes the process exit non-zero after a run with failures.
var ErrTestsFailed = errors.New("one or more tests failed")

// newRootCmd builds the command tree. Every call returns an independent tree
// so tests can execute commands in isolation.
func newRootCmd() *cobra.Command {
	var cfgFile string

	rootCmd := &cobra.Command{
		Use:           "chatprobe",
		Short:         "chatprobe drives chat widgets in a real browser and reports how they answer.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			v := viper.New()
			config.SetDefaults(v)

			if err := initializeConfig(cmd, v, cfgFile); err != nil {
				return fmt.Errorf("failed to initialize configuration: %w", err)
			}

			cfg, err := config.NewConfigFromViper(v)
			if err != nil {
				return fmt.Errorf("failed to load or validate config: %w", err)
			}

			if cmd.Annotations[runLogAnnotation] != "" && cfg.LoggerCfg.LogFile == "" {
				cfg.LoggerCfg.LogFile, err = runLogPath(cfg.Logger(), time.Now())
				if err != nil {
					return err
				}
			}

			observability.InitializeLogger(cfg.Logger())
			observability.GetLogger().Debug("Starting chatprobe", zap.String("version", Version))

			cmd.SetContext(context.WithValue(cmd.Context(), configKey, cfg))
			return nil
		},
	}
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./config.yaml)")
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	rootCmd.AddCommand(
		newRunCmd(),
		newDemoCmd(),
		newHistoryCmd(NewStoreProvider()),
		newLogsCmd(),
		newVersionCmd(),
	)
	return rootCmd
}

// Execute runs the CLI with a signal-aware context.
func Execute(ctx context.Context) error {
	defer observability.Sync()
	rootCmd := newRootCmd()
	err := rootCmd.ExecuteContext(ctx)
	if err != nil && !errors.Is(err, ErrTestsFailed) {
		fmt.Fprintln(rootCmd.ErrOrStderr(), "Error:", err)
	}
	return err
}

// initializeConfig layers the config file, CHATPROBE_* environment variables
// and the flags of the executing command over the defaults in v.
func initializeConfig(cmd *cobra.Command, v *viper.Viper, cfgFile string) error {
	if cfgFile != "" {
		expanded, err := homedir.Expand(cfgFile)
		if err != nil {
			return err
		}
		v.SetConfigFile(expanded)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}
	return bindFlags(cmd, v)
}

// bindFlags binds every flag annotated with a configuration key. Unchanged
// flags only supply their default when nothing else sets the key.
func bindFlags(cmd *cobra.Command, v *viper.Viper) error {
	var errs []error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		keys := f.Annotations[viperKeyAnnotation]
		if len(keys) == 0 {
			return
		}
		if err := v.BindPFlag(keys[0], f); err != nil {
			errs = append(errs, err)
		}
	})
	return errors.Join(errs...)
}

// bindKey annotates flag name on fs with a configuration key.
func bindKey(fs *pflag.FlagSet, name, key string) {
	if err := fs.SetAnnotation(name, viperKeyAnnotation, []string{key}); err != nil {
		panic(err)
	}
}

func runLogPath(cfg config.LoggerConfig, ts time.Time) (string, error) {
	dir, err := homedir.Expand(cfg.LogsDir)
	if err != nil {
		return "", fmt.Errorf("failed to expand logs dir %q: %w", cfg.LogsDir, err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create logs dir: %w", err)
	}
	return filepath.Join(dir, "test_run_"+ts.Format(observability.FileTimestampLayout)+".log"), nil
}

// getConfigFromContext returns the configuration loaded by the root command.
func getConfigFromContext(ctx context.Context) (*config.Config, error) {
	cfg, ok := ctx.Value(configKey).(*config.Config)
	if !ok || cfg == nil {
		return nil, errors.New("configuration not found in command context")
	}
	return cfg, nil
}
