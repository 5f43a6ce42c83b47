package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/dmitrijs2005/photodrop/internal/client/config"
	"github.com/dmitrijs2005/photodrop/internal/logging"
	"github.com/spf13/cobra"
)

type globalFlags struct {
	config  string
	server  string
	device  string
	image   string
	verbose bool
}

type commandContext struct {
	flags *globalFlags
	in    io.Reader

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, _, _, err := config.Load(strings.TrimSpace(c.flags.config))
		if err != nil {
			c.configErr = err
			return
		}
		if err := applyFlags(cfg, c.flags); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// applyFlags lays command-line overrides over the loaded file.
func applyFlags(cfg *config.Config, f *globalFlags) error {
	if f.server != "" {
		cfg.Server.URL = f.server
	}
	if f.device != "" {
		cfg.Camera.Device = f.device
	}
	if f.image != "" {
		cfg.Camera.ImagePath = f.image
	}
	if err := cfg.Normalize(); err != nil {
		return err
	}
	return cfg.Validate()
}

func (c *commandContext) logger(w io.Writer) logging.Logger {
	level := slog.LevelWarn
	if c.flags.verbose {
		level = slog.LevelDebug
	}
	return logging.NewText(w, level)
}

// withApp builds the App for one command and closes it afterwards.
func (c *commandContext) withApp(cmd *cobra.Command, fn func(ctx context.Context, a *App) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := NewApp(ctx, cfg, c.logger(cmd.ErrOrStderr()), c.in, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

// NewRootCommand builds the photodrop command tree. With no subcommand it
// starts the interactive shell.
func NewRootCommand() *cobra.Command {
	return newRootCommand(os.Stdin)
}

func newRootCommand(in io.Reader) *cobra.Command {
	flags := &globalFlags{}
	ctx := &commandContext{flags: flags, in: in}

	rootCmd := &cobra.Command{
		Use:           "photodrop",
		Short:         "PhotoDrop kiosk and operator CLI",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if shouldSkipConfig(cmd) {
				return nil
			}
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd, func(c context.Context, a *App) error {
				a.Run(c)
				return nil
			})
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flags.config, "config", "c", "", "Configuration file path")
	pf.StringVar(&flags.server, "server", "", "Backend URL (overrides server.url)")
	pf.StringVar(&flags.device, "device", "", "Camera device path, e.g. /dev/video0")
	pf.StringVar(&flags.image, "image", "", "Serve this still image instead of a camera")
	pf.BoolVarP(&flags.verbose, "verbose", "v", false, "Log debug output to stderr")

	rootCmd.AddCommand(newSubmitCommand(ctx))
	rootCmd.AddCommand(newListCommand(ctx))
	rootCmd.AddCommand(newHistoryCommand(ctx))
	rootCmd.AddCommand(newConfigCommand())

	return rootCmd
}

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var email, folder string
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Take one photo and upload it with the customer's details",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd, func(c context.Context, a *App) error {
				return a.Submit(c, []string{email, folder})
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Customer email (prompted when empty)")
	cmd.Flags().StringVar(&folder, "folder", "", "Folder number (prompted when empty)")
	return cmd
}

func newListCommand(ctx *commandContext) *cobra.Command {
	var tree bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Log in as operator and list submissions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd, func(c context.Context, a *App) error {
				if err := a.Login(c); err != nil {
					return err
				}
				if tree {
					return a.Tree(c)
				}
				return a.List(c, nil)
			})
		},
	}
	cmd.Flags().BoolVar(&tree, "tree", false, "Group by folder number")
	return cmd
}

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show submissions accepted on this kiosk",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd, func(c context.Context, a *App) error {
				return a.History(c, []string{fmt.Sprint(limit)})
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", defaultHistoryLen, "Number of entries")
	return cmd
}

func newConfigCommand() *cobra.Command {
	configCmd := &cobra.Command{
		Use:         "config",
		Short:       "Configuration utilities",
		Annotations: map[string]string{"skipConfigLoad": "true"},
	}
	configCmd.AddCommand(newConfigInitCommand())
	configCmd.AddCommand(newConfigValidateCommand())
	return configCmd
}

func newConfigInitCommand() *cobra.Command {
	var targetPath string
	var overwrite bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a sample configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			target := strings.TrimSpace(targetPath)
			if target == "" {
				defaultPath, err := config.DefaultConfigPath()
				if err != nil {
					return fmt.Errorf("determine default config path: %w", err)
				}
				target = defaultPath
			}

			if !overwrite {
				if _, err := os.Stat(target); err == nil {
					return fmt.Errorf("config file already exists at %s (use --overwrite to replace it)", target)
				} else if !os.IsNotExist(err) {
					return fmt.Errorf("check config path: %w", err)
				}
			}

			if err := config.CreateSample(target); err != nil {
				return fmt.Errorf("create sample config: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Wrote sample configuration to %s\n", target)
			fmt.Fprintln(out, "Set draft.api_key (or export GEMINI_API_KEY) to enable email drafts.")
			return nil
		},
	}

	cmd.Flags().StringVarP(&targetPath, "path", "p", "", "Destination for the configuration file")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Overwrite existing configuration if present")
	return cmd
}

func newConfigValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("config")
			cfg, resolved, exists, err := config.Load(path)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Config path: %s\n", resolved)
			if !exists {
				fmt.Fprintln(out, "Config file did not exist; defaults were used")
			}
			fmt.Fprintf(out, "Server: %s\n", cfg.Server.URL)
			fmt.Fprintln(out, "Configuration valid")
			return nil
		},
	}
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
