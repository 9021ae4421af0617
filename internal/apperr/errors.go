// Package apperr defines the error kinds surfaced to the user.
//
// Each kind is a sentinel error. Call sites wrap the underlying cause with the
// kind so that both errors.Is(err, ErrList) and the cause chain keep working:
//
//	return fmt.Errorf("%w: %w", apperr.ErrList, err)
//
// Message maps any wrapped error back to the single line shown in the UI.
package apperr

import (
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/api/googleapi"
)

// Error kinds, one per failing user-visible operation.
var (
	ErrInitialization = errors.New("initialization failed")
	ErrSignIn         = errors.New("sign-in failed")
	ErrSignOut        = errors.New("sign-out failed")
	ErrList           = errors.New("listing files failed")
	ErrUpload         = errors.New("upload failed")
	ErrDelete         = errors.New("delete failed")
	ErrDownload       = errors.New("download failed")
)

var messages = []struct {
	kind error
	text string
}{
	{ErrInitialization, "Failed to initialize Google Drive API"},
	{ErrSignIn, "Failed to sign in"},
	{ErrSignOut, "Failed to sign out"},
	{ErrList, "Failed to load files"},
	{ErrUpload, "Failed to upload file"},
	{ErrDelete, "Failed to delete file"},
	{ErrDownload, "Failed to download file"},
}

// Wrap attaches kind to err. A nil err yields nil.
func Wrap(kind, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", kind, err)
}

// Message returns the user-facing text for err, or a generic line when err
// carries none of the known kinds.
func Message(err error) string {
	if err == nil {
		return ""
	}
	for _, m := range messages {
		if errors.Is(err, m.kind) {
			return m.text
		}
	}
	return "Something went wrong"
}

// Kind returns the sentinel err was wrapped with, or nil.
func Kind(err error) error {
	for _, m := range messages {
		if errors.Is(err, m.kind) {
			return m.kind
		}
	}
	return nil
}

// StatusError reports a non-success HTTP status from the remote API.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("remote responded with status: %d", e.Code)
}

// StatusCode extracts an HTTP status from err. It understands StatusError and
// googleapi.Error and returns 0 when neither is present.
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code
	}
	var ge *googleapi.Error
	if errors.As(err, &ge) {
		return ge.Code
	}
	return 0
}

// IsUnauthorized reports whether err carries a 401 from the remote API.
func IsUnauthorized(err error) bool {
	return StatusCode(err) == http.StatusUnauthorized
}
