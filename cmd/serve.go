package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mohammad-safakhou/crawlagent/config"
	srv "github.com/mohammad-safakhou/crawlagent/internal/server"
)

func serveCMD() *cobra.Command {
	var cfgPath string
	var serveAddr string
	var serve = &cobra.Command{
		Use:   "serve",
		Short: "Run HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cfgPath)
			if err != nil {
				return err
			}
			if serveAddr != "" {
				cfg.Server.Address = serveAddr
			}

			s, err := srv.New(cfg)
			if err != nil {
				return err
			}

			errCh := make(chan error, 1)
			go func() {
				if err := s.Start(); err != nil && err != http.ErrServerClosed {
					errCh <- err
				}
			}()

			sig := make(chan os.Signal, 1)
			signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
			select {
			case err := <-errCh:
				return err
			case <-sig:
				log.Println("shutting down")
				return s.Shutdown(context.Background())
			}
		},
	}
	serve.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides config)")
	serve.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")

	return serve
}
