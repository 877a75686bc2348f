package main

import (
	"context"
	"fmt"
	"net"

	"github.com/spf13/cobra"

	"github.com/blaug210/budget-app/internal/server"
	"github.com/blaug210/budget-app/internal/ui"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the import API over HTTP",
		Long: `Serve budgets, previews and imports over HTTP.

Uploads are imported in the background; follow an import with
GET /api/sessions/{id}/events (Server-Sent Events).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				cfg := a.cfg.Server
				serverOpts := []server.Option{server.WithLogger(a.logger)}

				if cfg.RequireAuth {
					authClient, err := a.firestore.Auth(ctx)
					if err != nil {
						return err
					}
					serverOpts = append(serverOpts, server.WithAuth(authClient))
				}

				srv := server.New(a.store, a.pipeline, server.Config{
					AllowedOrigin:  cfg.AllowedOrigin,
					MaxUploadBytes: int64(cfg.MaxUploadMB) << 20,
					StaticDir:      cfg.StaticDir,
				}, serverOpts...)
				defer srv.Close()

				return srv.Run(ctx, cfg.Addr, func(addr net.Addr) {
					ui.Success(fmt.Sprintf("Serving import API on http://%s", addr))
					if cfg.RequireAuth {
						ui.Info("Firebase ID tokens required on /api routes")
					}
				})
			})
		},
	}

	cmd.Flags().String("addr", "", "Listen address (default 127.0.0.1:8080)")
	return cmd
}
