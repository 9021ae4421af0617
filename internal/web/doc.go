// Package web serves the Drive manager UI.
//
// Pages are rendered server-side from embedded html/template files. Forms
// post to small action routes that call the session manager or the
// directory service and redirect back to "/". A websocket at /events
// forwards every state-change event so open pages reload their view, and a
// read-only JSON API exposes the same state to other clients.
package web
