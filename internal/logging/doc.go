// Package logging provides structured logging utilities for drivemanager.
//
// All packages log through log/slog. This package keeps attribute names
// consistent and makes sure user emails and OAuth tokens never reach the logs
// in clear text.
//
// Create a logger with standard attributes:
//
//	logger := logging.WithOperation(slog.Default(), "drive.list")
//	logger.Info("listing files", logging.Status(logging.StatusSuccess))
//
// Sanitize sensitive data before logging:
//
//	logger.Info("signed in", logging.UserHash(email))
package logging
