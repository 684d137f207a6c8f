package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	var root = &cobra.Command{Use: "crawlagent"}

	root.AddCommand(serveCMD(), stdioCMD())
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
