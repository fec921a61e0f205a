package main

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:           "frq",
	Short:         "Free response question generation and grading service",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context(), runOptions{api: true})
	},
}

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Consume generation and evaluation requests",
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context(), runOptions{worker: true})
	},
}

var allCmd = &cobra.Command{
	Use:   "all",
	Short: "Run the HTTP API and the workers in one process",
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context(), runOptions{api: true, worker: true})
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the content table and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		return migrate()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(workerCmd)
	rootCmd.AddCommand(allCmd)
	rootCmd.AddCommand(migrateCmd)
}
