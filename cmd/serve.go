package cmd

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/securecookie"
	"github.com/spf13/cobra"

	"github.com/edurelay/ltirelay/internal/cachebox"
	"github.com/edurelay/ltirelay/internal/lti"
	"github.com/edurelay/ltirelay/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the launch relay server",
	Long:  `Starts the HTTP server with the login/launch correlator and the score API endpoints.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		store := cachebox.NewMemoryStore()
		boxes := cachebox.NewRequestBox(store, cfg.RequestTTL)

		if cfg.Debug {
			log.Printf("DEBUG: config: addr=%s url=%s tool_config=%s request_ttl=%s launch_ttl=%s append_timezone=%t",
				cfg.ServerAddr, cfg.ServerURL, cfg.ToolConfigPath, cfg.RequestTTL, cfg.LaunchTTL, cfg.AppendTimezone)
		}

		toolConf := lti.NewToolConfigLoader(cfg.ToolConfigPath)
		if _, err := toolConf.Get(); err != nil {
			return fmt.Errorf("load tool config: %w", err)
		}
		log.Printf("Loaded tool config from %s", cfg.ToolConfigPath)

		client := lti.NewClient(toolConf, store, lti.WithLaunchTTL(cfg.LaunchTTL))

		hashKey, blockKey, err := cfg.SessionKeys()
		if err != nil {
			return fmt.Errorf("session keys: %w", err)
		}
		cookies := securecookie.New(hashKey, blockKey)

		handlers := server.NewHandlers(cfg, boxes, server.NewLTIService(client), cookies)
		r := server.NewRouter(server.RouterOptions{Handlers: handlers})

		srv := &http.Server{
			Addr:         cfg.ServerAddr,
			Handler:      r,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		}

		serverErrors := make(chan error, 1)
		go func() {
			log.Printf("Starting server on %s", cfg.ServerAddr)
			log.Printf("Server URL: %s", cfg.ServerURL)
			serverErrors <- srv.ListenAndServe()
		}()

		shutdown := make(chan os.Signal, 1)
		signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

		// SIGHUP reloads the tool registration file without a restart, so
		// platform registrations can be added while launches stay warm.
		reload := make(chan os.Signal, 1)
		signal.Notify(reload, syscall.SIGHUP)

		for {
			select {
			case err := <-serverErrors:
				return fmt.Errorf("server error: %w", err)

			case sig := <-reload:
				log.Printf("Received signal %v, reloading tool config", sig)
				if _, err := toolConf.Reload(); err != nil {
					log.Printf("ERROR: tool config reload failed, keeping previous config: %v", err)
				} else {
					log.Printf("INFO: tool config reloaded from %s", cfg.ToolConfigPath)
				}

			case sig := <-shutdown:
				log.Printf("Received signal %v, shutting down gracefully", sig)

				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()

				if err := srv.Shutdown(ctx); err != nil {
					srv.Close()
					return fmt.Errorf("graceful shutdown failed: %w", err)
				}

				log.Printf("Server stopped")
				return nil
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
