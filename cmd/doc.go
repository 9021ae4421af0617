// Package cmd implements the command-line interface for drivemanager.
//
// This package provides the following commands:
//   - serve: Start the local web UI (default when no subcommand is given)
//   - version: Display version information
package cmd
