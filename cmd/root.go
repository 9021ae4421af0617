package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command for the drivemanager application
var rootCmd = &cobra.Command{
	Use:   "drivemanager",
	Short: "Browse, upload, download and delete your Google Drive files",
	Long: `drivemanager is a small local web client for Google Drive.

It signs you in with your Google account and shows your most recently
modified files, with upload, download and delete actions.

Run "drivemanager serve" and open the printed address in a browser.`,
	SilenceUsage: true,
}

// version will be set by main
var version = "dev"

// SetVersion sets the version for the root command
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

// Execute is the main entry point for the CLI application
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "drivemanager version %s\n" .Version}}`)

	// If no subcommand is provided, run the web server
	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newVersionCmd())
}
