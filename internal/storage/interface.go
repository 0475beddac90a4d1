package storage

import (
	"context"

	"aina-notebook/internal/model"
)

// Listener receives the full history, newest first, every time it changes.
// Listeners run on the store's notifying goroutine and must return quickly; they must
// not subscribe or unsubscribe from inside the callback.
type Listener func(presentations []*model.Presentation)

// HistoryStore keeps finished presentations. Implementations order lists by
// id descending, which is newest first since ids are timestamps.
type HistoryStore interface {
	Init(ctx context.Context) error

	Append(ctx context.Context, p *model.Presentation) error
	Get(ctx context.Context, id string) (*model.Presentation, error)
	List(ctx context.Context) ([]*model.Presentation, error)
	Update(ctx context.Context, p *model.Presentation) error
	Clear(ctx context.Context) error

	// Subscribe calls fn with the current history right away and again after
	// every change until unsubscribe is called or ctx is done.
	Subscribe(ctx context.Context, fn Listener) (unsubscribe func(), err error)

	Close() error
}
