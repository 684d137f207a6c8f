package main

import (
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/mohammad-safakhou/crawlagent/config"
	"github.com/mohammad-safakhou/crawlagent/internal/mcp"
	srv "github.com/mohammad-safakhou/crawlagent/internal/server"
)

func stdioCMD() *cobra.Command {
	var cfgPath string
	var stdio = &cobra.Command{
		Use:   "stdio",
		Short: "Serve tools over stdio JSON-RPC",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cfgPath)
			if err != nil {
				return err
			}

			tools, orch := srv.Toolset(cfg, prometheus.NewRegistry())
			return mcp.NewServer(tools, orch).Serve(os.Stdin, os.Stdout)
		},
	}
	stdio.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")

	return stdio
}
