// Package drive is a thin wrapper around the Drive v3 API covering the calls
// the file manager makes: the recent-files listing, multipart upload, raw
// content download and delete.
//
// The client is built once on an HTTP client whose token source follows the
// current sign-in, so it never needs rebuilding when the user changes.
//
//	client, err := drive.NewClient(ctx, drive.Options{Metrics: provider.Metrics()},
//		option.WithHTTPClient(google.HTTPClient(ctx)))
//	if err != nil {
//		return err
//	}
//	files, err := client.ListRecent(ctx, drive.DefaultPageSize)
package drive
