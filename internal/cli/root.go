// Package cli implements the marketctl commands.
package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/kisan-sarthi/backend/internal/client"
	"github.com/kisan-sarthi/backend/internal/logger"
	"github.com/kisan-sarthi/backend/internal/session"
)

const defaultServer = "http://localhost:8089"

// env is the state shared by all commands of one invocation.
type env struct {
	server  string
	home    string
	verbose bool

	log      logger.Logger
	sessions *session.Store
	api      *client.Client
}

func (e *env) setup() error {
	if e.home == "" {
		dir, err := os.UserHomeDir()
		if err != nil {
			return err
		}
		e.home = filepath.Join(dir, ".marketctl")
	}

	if e.log == nil {
		level := "warn"
		if e.verbose {
			level = "debug"
		}
		log, err := logger.New(logger.Config{Level: level, OutputPaths: []string{"stderr"}})
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		e.log = log
	}

	p, err := session.NewFilePersister(e.home)
	if err != nil {
		return err
	}
	e.sessions = session.NewStore(p)
	if err := e.sessions.Init(); err != nil {
		return err
	}
	e.api = client.New(e.server, client.WithToken(e.sessions.Token))
	return nil
}

// NewRootCommand builds the marketctl command tree.
func NewRootCommand(version string) *cobra.Command {
	return newRootCommand(&env{}, version)
}

func newRootCommand(e *env, version string) *cobra.Command {
	server := os.Getenv("MARKETCTL_SERVER")
	if server == "" {
		server = defaultServer
	}

	root := &cobra.Command{
		Use:           "marketctl",
		Short:         "Browse and post Kisan Sarthi marketplace listings",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return e.setup()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if e.log != nil {
				_ = e.log.Sync()
			}
		},
	}

	root.PersistentFlags().StringVar(&e.server, "server", server, "marketplace server base URL")
	root.PersistentFlags().StringVar(&e.home, "home", "", "session directory (default ~/.marketctl)")
	root.PersistentFlags().BoolVarP(&e.verbose, "verbose", "v", false, "log debug output to stderr")

	root.AddCommand(loginCmd(e), logoutCmd(e), whoamiCmd(e), feedCmd(e), listCmd(e))
	return root
}

// Execute runs marketctl with the process arguments.
func Execute(ctx context.Context, version string) error {
	root := NewRootCommand(version)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(root.ErrOrStderr(), "Error:", err)
		return err
	}
	return nil
}
