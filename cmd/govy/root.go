package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "govy",
	Short: "A scriptable HTTP/HTTPS forward proxy with TLS interception",
	Run: func(cmd *cobra.Command, args []string) {
		if err := runProxy(configPath); err != nil {
			fmt.Fprintf(os.Stderr, "govy: %v\n", err)
			os.Exit(1)
		}
	},
	Example: "  govy --config govy.yaml",
}

func init() {
	rootCmd.Flags().StringVar(&configPath, "config", "", "Configuration file path (YAML)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
