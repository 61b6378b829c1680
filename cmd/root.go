package cmd

import (
	"fmt"
	"log"
	"os"

	"musichud/server"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "musichud",
	Short: "musichud is a shared music playback session server.",
	Run: func(cmd *cobra.Command, args []string) {
		log.Println("Starting musichud server...")
		if err := server.Start(); err != nil {
			log.Fatalf("Server exited: %v", err)
		}
	},
}

// Execute executes the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
