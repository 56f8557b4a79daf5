// Package cli implements copilotctl, the operator command line for the document store.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/arturoeanton/design-copilot/internal/bootstrap"
	"github.com/arturoeanton/design-copilot/pkg/config"
)

// Env is what data commands operate on.
type Env struct {
	Store    bootstrap.Store
	Services *bootstrap.Services
	closer   func() error
}

// Close releases the store.
func (e *Env) Close() error {
	if e.closer == nil {
		return nil
	}
	return e.closer()
}

// Options customizes the root command.
type Options struct {
	// Open builds the store and services from cfg. Defaults to OpenEnv.
	Open func(ctx context.Context, cfg *config.Config) (*Env, error)
}

// OpenEnv opens the configured store and provider.
func OpenEnv(ctx context.Context, cfg *config.Config) (*Env, error) {
	store, err := bootstrap.OpenStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	client, err := bootstrap.NewAIClient(cfg)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("configure AI provider: %w", err)
	}
	services, err := bootstrap.NewServices(cfg, store, client)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return &Env{Store: store, Services: services, closer: store.Close}, nil
}

type rootState struct {
	cfgFile string
	owner   string
	verbose bool
	jsonOut bool

	cfg  *config.Config
	opts Options
}

func (s *rootState) requireOwner() (string, error) {
	owner := strings.TrimSpace(s.owner)
	if owner == "" {
		return "", errors.New("--owner is required (or set COPILOT_OWNER)")
	}
	return owner, nil
}

func (s *rootState) open(ctx context.Context) (*Env, error) {
	return s.opts.Open(ctx, s.cfg)
}

// NewRootCmd builds the copilotctl command tree.
func NewRootCmd(opts Options) *cobra.Command {
	if opts.Open == nil {
		opts.Open = OpenEnv
	}
	st := &rootState{opts: opts}

	cmd := &cobra.Command{
		Use:   "copilotctl",
		Short: "Operate the Design Copilot document store",
		Long: `copilotctl ingests documents, asks questions and manages stored documents
directly against the configured store and AI provider.

Configuration is read from .env, CONFIG_FILE and the environment, like the server.

Examples:
  copilotctl ingest guidelines.md tokens.pdf --owner user-42
  copilotctl ask "Which button style is primary?" --owner user-42
  copilotctl docs list --owner user-42
  copilotctl token --owner user-42`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_ = godotenv.Load()
			if st.cfgFile != "" {
				if err := os.Setenv("CONFIG_FILE", st.cfgFile); err != nil {
					return err
				}
			}
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if !st.verbose {
				cfg.LogLevel = "warn"
			}
			bootstrap.SetupLogging(cfg, cmd.ErrOrStderr())
			st.cfg = cfg
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&st.cfgFile, "config", "", "YAML config file (overrides CONFIG_FILE)")
	cmd.PersistentFlags().StringVar(&st.owner, "owner", os.Getenv("COPILOT_OWNER"), "owner id the command acts for")
	cmd.PersistentFlags().BoolVarP(&st.verbose, "verbose", "v", false, "log at the configured level instead of warn")
	cmd.PersistentFlags().BoolVar(&st.jsonOut, "json", false, "print machine-readable JSON")

	cmd.AddCommand(
		newIngestCmd(st),
		newAskCmd(st),
		newDocsCmd(st),
		newTokenCmd(st),
	)
	return cmd
}

// Execute runs copilotctl and returns the process exit code.
func Execute(version string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := NewRootCmd(Options{})
	root.Version = version
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
