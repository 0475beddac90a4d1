package storage

import (
	"context"
	"sort"
	"sync"

	"aina-notebook/internal/model"

	"github.com/google/uuid"
)

// notifier fans history changes out to in-process subscribers. Every change
// carries the store's sequence number so a slow writer can never overwrite a
// newer list with an older one, nor replace the list a subscriber registered
// with at the same sequence.
type notifier struct {
	mu   sync.Mutex
	seq  uint64
	last []*model.Presentation
	subs map[string]Listener
}

func newNotifier() *notifier {
	return &notifier{subs: make(map[string]Listener)}
}

func (n *notifier) publish(seq uint64, list []*model.Presentation) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if seq <= n.seq {
		return
	}
	n.seq = seq
	n.last = list
	for _, fn := range n.subs {
		fn(cloneList(list))
	}
}

func (n *notifier) subscribe(ctx context.Context, seq uint64, list []*model.Presentation, fn Listener) func() {
	id := uuid.NewString()

	n.mu.Lock()
	if seq >= n.seq {
		n.seq = seq
		n.last = list
	}
	n.subs[id] = fn
	fn(cloneList(n.last))
	n.mu.Unlock()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			n.mu.Lock()
			delete(n.subs, id)
			n.mu.Unlock()
		})
	}
	stop := context.AfterFunc(ctx, unsubscribe)

	return func() {
		stop()
		unsubscribe()
	}
}

func (n *notifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.subs)
}

func (n *notifier) reset() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.subs = make(map[string]Listener)
}

// sortNewestFirst orders by id descending.
func sortNewestFirst(list []*model.Presentation) {
	sort.Slice(list, func(i, j int) bool {
		return list[i].ID > list[j].ID
	})
}

func cloneList(list []*model.Presentation) []*model.Presentation {
	out := make([]*model.Presentation, len(list))
	for i, p := range list {
		out[i] = p.Clone()
	}
	return out
}
