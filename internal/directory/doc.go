// Package directory keeps the recent-files listing shown to the user and
// dispatches file operations to Google Drive.
//
// The Service owns three pieces of shared state: the listing itself, the set
// of file IDs with a delete in flight, and the upload flag. Each operation
// reports its own failure through the configured Reporter, so callers only
// need the returned error to decide what to render.
//
// The listing is never spliced after an upload; the Service re-reads the
// first page from Drive instead. A successful delete removes the record
// locally without another list call.
package directory
