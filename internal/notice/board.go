// Package notice holds the single dismissible message shown to the user.
//
// Every failing operation reports through a Board. The Board logs the
// failure, replaces whatever message was showing with the user-facing text for
// the error kind, and tells connected views to re-render.
package notice

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/teemow/drivemanager/internal/apperr"
	"github.com/teemow/drivemanager/internal/events"
	"github.com/teemow/drivemanager/internal/logging"
)

// Notice is one surfaced message.
type Notice struct {
	Text string    `json:"text"`
	Seq  uint64    `json:"seq"`
	At   time.Time `json:"at"`
}

// Board keeps at most one Notice.
type Board struct {
	mu        sync.Mutex
	current   *Notice
	seq       uint64
	logger    *slog.Logger
	publisher events.Publisher
}

// NewBoard creates a Board. publisher may be nil.
func NewBoard(logger *slog.Logger, publisher events.Publisher) *Board {
	if logger == nil {
		logger = slog.Default()
	}
	return &Board{
		logger:    logger,
		publisher: publisher,
	}
}

// Report logs err under operation and makes its message the current notice.
func (b *Board) Report(ctx context.Context, operation string, err error) {
	if err == nil {
		return
	}

	attrs := []any{logging.Operation(operation), logging.Status(logging.StatusError), logging.Err(err)}
	if kind := apperr.Kind(err); kind != nil {
		attrs = append(attrs, slog.String("kind", kind.Error()))
	}
	if code := apperr.StatusCode(err); code != 0 {
		attrs = append(attrs, slog.Int("http_status", code))
	}
	b.logger.ErrorContext(ctx, "operation failed", attrs...)

	b.mu.Lock()
	b.seq++
	b.current = &Notice{
		Text: apperr.Message(err),
		Seq:  b.seq,
		At:   time.Now(),
	}
	b.mu.Unlock()

	b.publish()
}

// Current returns the notice being shown, if any.
func (b *Board) Current() (Notice, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.current == nil {
		return Notice{}, false
	}
	return *b.current, true
}

// Dismiss clears the current notice.
func (b *Board) Dismiss() {
	b.mu.Lock()
	had := b.current != nil
	b.current = nil
	b.mu.Unlock()

	if had {
		b.publish()
	}
}

func (b *Board) publish() {
	if b.publisher != nil {
		b.publisher.Publish(events.Event{Type: events.TypeNotice})
	}
}
