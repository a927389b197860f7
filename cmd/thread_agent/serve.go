package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/evanhsu/dealthread/internal/server"
)

var (
	servePort        int
	serveRequireAuth bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST API server",
	Long:  "Start an HTTP server exposing the thread, canvas and campaign endpoints.",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 8080, "Port to listen on")
	serveCmd.Flags().BoolVar(&serveRequireAuth, "require-auth", false, "Require bearer tokens on all non-auth routes (needs DATABASE_URL for the user store)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg, err := loadSettings()
	if err != nil {
		return err
	}
	if cfg.Port != 0 && servePort == 8080 {
		servePort = cfg.Port
	}

	rt, err := newRuntime(context.Background(), cfg)
	if err != nil {
		return err
	}
	defer rt.close()

	// The user store is wired only when auth is requested; it drags in the
	// JWT and bcrypt configuration.
	var users server.UserStore
	if serveRequireAuth {
		if rt.users == nil {
			return fmt.Errorf("--require-auth needs DATABASE_URL for the user store")
		}
		users = rt.users
	}

	srv, err := server.New(server.Config{
		Port:        servePort,
		RequireAuth: serveRequireAuth,
	}, server.Deps{
		Engine:       rt.eng,
		Orchestrator: rt.orch,
		Matcher:      rt.matcher,
		Campaigns:    rt.campaigns,
		Users:        users,
		Logger:       rt.logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	return srv.Start()
}
