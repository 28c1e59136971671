package riceify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/arthur-debert/riceify/internal/version"
	"github.com/arthur-debert/riceify/pkg/config"
	"github.com/arthur-debert/riceify/pkg/engine"
	"github.com/arthur-debert/riceify/pkg/logging"
	"github.com/arthur-debert/riceify/pkg/paths"
	"github.com/arthur-debert/riceify/pkg/style"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// globalOptions holds the persistent flags shared by every command.
type globalOptions struct {
	verbosity  int
	configPath string
	root       string
	logger     zerolog.Logger
}

// NewRootCmd creates and returns the root command
func NewRootCmd() *cobra.Command {
	// Initialize custom template formatting functions
	initTemplateFormatting()

	opts := &globalOptions{logger: zerolog.Nop()}

	rootCmd := &cobra.Command{
		Use:     "riceify",
		Short:   MsgRootShort,
		Long:    MsgRootLong,
		Version: version.Version,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			opts.logger = logging.SetupLogger(opts.verbosity)
			opts.logger.Debug().Str("command", cmd.Name()).Msg("Command started")
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			_ = cmd.Help()
			return errors.New(MsgErrNoCommand)
		},
		SilenceUsage:      true,
		SilenceErrors:     true,
		DisableAutoGenTag: true,
	}

	// Global flags
	rootCmd.PersistentFlags().CountVarP(&opts.verbosity, "verbose", "v", MsgFlagVerbose)
	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", MsgFlagConfig)
	rootCmd.PersistentFlags().StringVar(&opts.root, "root", "", MsgFlagRoot)

	rootCmd.AddGroup(&cobra.Group{
		ID:    "core",
		Title: "COMMANDS:",
	})
	rootCmd.AddGroup(&cobra.Group{
		ID:    "cache",
		Title: "CACHE:",
	})
	rootCmd.AddGroup(&cobra.Group{
		ID:    "misc",
		Title: "MISC:",
	})

	rootCmd.SetUsageTemplate(MsgUsageTemplate)

	rootCmd.AddCommand(newSaveCmd(opts))
	rootCmd.AddCommand(newApplyCmd(opts))
	rootCmd.AddCommand(newRestoreCmd(opts))
	rootCmd.AddCommand(newListCmd(opts))
	rootCmd.AddCommand(newDeleteCmd(opts))
	rootCmd.AddCommand(newCacheStatusCmd(opts))
	rootCmd.AddCommand(newClearCacheCmd(opts))
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newCompletionCmd())

	return rootCmd
}

// resolvePaths honours --root before falling back to the environment.
func (o *globalOptions) resolvePaths() (paths.Paths, error) {
	if o.root != "" {
		return paths.NewWithRoot(paths.ExpandHome(o.root)), nil
	}
	p, err := paths.New()
	if err != nil {
		return nil, fmt.Errorf(MsgErrInitPaths, err)
	}
	return p, nil
}

func (o *globalOptions) loadConfig(p paths.Paths) (*config.Config, error) {
	configPath := o.configPath
	if configPath == "" {
		configPath = p.ConfigFilePath()
	}
	return config.Load(paths.ExpandHome(configPath))
}

// openEngine loads the configuration and opens an engine over the stores.
// Callers must Close it.
func (o *globalOptions) openEngine() (*engine.Engine, error) {
	p, err := o.resolvePaths()
	if err != nil {
		return nil, err
	}
	cfg, err := o.loadConfig(p)
	if err != nil {
		return nil, err
	}
	o.logger.Debug().
		Str("data", p.DataDir()).
		Str("cache", p.CacheDir()).
		Int("profiles", len(cfg.Profiles)).
		Msg("Opening engine")
	return engine.Open(cfg, engine.Setup{Paths: p, Logger: o.logger})
}

// runTransaction opens an engine, runs fn and prints its result. The error
// fn returns is passed through so that the process exits non-zero whenever
// the transaction did not complete.
func (o *globalOptions) runTransaction(cmd *cobra.Command, all bool, fn func(context.Context, *engine.Engine) (*engine.Result, error)) error {
	eng, err := o.openEngine()
	if err != nil {
		return err
	}
	defer eng.Close()

	res, err := fn(cmd.Context(), eng)
	if res != nil {
		fmt.Fprint(cmd.OutOrStdout(), style.RenderResult(res, all))
	}
	return err
}

// profileNamesCompletion completes the profile names the configuration defines.
func (o *globalOptions) profileNamesCompletion(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if len(args) > 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	p, err := o.resolvePaths()
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	cfg, err := o.loadConfig(p)
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	return cfg.ProfileNames(), cobra.ShellCompDirectiveNoFileComp
}

func newSaveCmd(opts *globalOptions) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:               "save <profile>",
		Short:             MsgSaveShort,
		Long:              MsgSaveLong,
		GroupID:           "core",
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: opts.profileNamesCompletion,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.runTransaction(cmd, all, func(ctx context.Context, e *engine.Engine) (*engine.Result, error) {
				return e.Save(ctx, args[0])
			})
		},
	}
	cmd.Flags().BoolVarP(&all, "all", "a", false, MsgFlagAll)
	return cmd
}

func newApplyCmd(opts *globalOptions) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:               "apply <profile>",
		Short:             MsgApplyShort,
		Long:              MsgApplyLong,
		GroupID:           "core",
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: opts.profileNamesCompletion,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.runTransaction(cmd, all, func(ctx context.Context, e *engine.Engine) (*engine.Result, error) {
				return e.Apply(ctx, args[0])
			})
		},
	}
	cmd.Flags().BoolVarP(&all, "all", "a", false, MsgFlagAll)
	return cmd
}

func newRestoreCmd(opts *globalOptions) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:     "restore",
		Short:   MsgRestoreShort,
		Long:    MsgRestoreLong,
		GroupID: "core",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.runTransaction(cmd, all, func(ctx context.Context, e *engine.Engine) (*engine.Result, error) {
				return e.RestorePrevious(ctx)
			})
		},
	}
	cmd.Flags().BoolVarP(&all, "all", "a", false, MsgFlagAll)
	return cmd
}

func newListCmd(opts *globalOptions) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:     "list",
		Short:   MsgListShort,
		GroupID: "core",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := opts.openEngine()
			if err != nil {
				return err
			}
			defer eng.Close()

			profiles, err := eng.Profiles()
			if err != nil {
				return err
			}
			return writeOutput(cmd.OutOrStdout(), output, profiles, func() string {
				return style.RenderProfiles(profiles)
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "text", MsgFlagOutput)
	return cmd
}

func newDeleteCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:               "delete <profile>",
		Short:             MsgDeleteShort,
		GroupID:           "core",
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: opts.profileNamesCompletion,
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := opts.openEngine()
			if err != nil {
				return err
			}
			defer eng.Close()

			if err := eng.DeleteProfile(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), MsgProfileDeleted, args[0])
			return nil
		},
	}
}

func newCacheStatusCmd(opts *globalOptions) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:     "cache-status",
		Short:   MsgCacheStatusShort,
		GroupID: "cache",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := opts.openEngine()
			if err != nil {
				return err
			}
			defer eng.Close()

			status := eng.CacheStatus()
			return writeOutput(cmd.OutOrStdout(), output, status, func() string {
				return style.RenderCacheStatus(status)
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "text", MsgFlagOutput)
	return cmd
}

func newClearCacheCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "clear-cache",
		Short:   MsgClearCacheShort,
		GroupID: "cache",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := opts.openEngine()
			if err != nil {
				return err
			}
			defer eng.Close()

			if err := eng.ClearCache(); err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), MsgCacheCleared)
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "version",
		Short:   MsgVersionShort,
		GroupID: "misc",
		Args:    cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), MsgVersionFormat, version.Version, version.Commit, version.Date)
		},
	}
}

func newCompletionCmd() *cobra.Command {
	return &cobra.Command{
		Use:                   "completion [bash|zsh|fish|powershell]",
		Short:                 MsgCompletionShort,
		GroupID:               "misc",
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletion(out)
			case "zsh":
				return cmd.Root().GenZshCompletion(out)
			case "fish":
				return cmd.Root().GenFishCompletion(out, true)
			default:
				return cmd.Root().GenPowerShellCompletionWithDesc(out)
			}
		},
	}
}

// writeOutput prints v as JSON or YAML, or calls text for the default format.
func writeOutput(w io.Writer, format string, v interface{}, text func() string) error {
	switch format {
	case "", "text":
		_, err := fmt.Fprint(w, text())
		return err
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf(MsgErrEncodeOutput, err)
		}
		return nil
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf(MsgErrEncodeOutput, err)
		}
		return enc.Close()
	default:
		return fmt.Errorf(MsgErrOutputFormat, format)
	}
}
