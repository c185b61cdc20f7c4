package signal

import "sync"

// Dispatcher is the reusable ready/channels-changed signal bus every
// concrete node type embeds. Handlers run synchronously, in connection
// order, on the goroutine that fires. Dispatcher does not serialize
// concurrent Fire calls: a later Fire begins only after the earlier
// one's handlers have returned when the producer fires from a single
// goroutine (spec §5 "Ordering guarantees").
type Dispatcher struct {
	mu          sync.Mutex
	modalities  Modality
	ready       []handlerEntry
	channels    []handlerEntry
	nextID      int
}

type handlerEntry struct {
	id int
	fn ReadyFunc
}

// NewDispatcher constructs a Dispatcher advertising the given modalities.
func NewDispatcher(modalities Modality) *Dispatcher {
	return &Dispatcher{modalities: modalities}
}

func (d *Dispatcher) Modalities() Modality { return d.modalities }

func (d *Dispatcher) OnReady(fn ReadyFunc) *Handle {
	return d.connect(&d.ready, fn)
}

func (d *Dispatcher) OnChannelsChanged(fn ReadyFunc) *Handle {
	return d.connect(&d.channels, fn)
}

func (d *Dispatcher) connect(list *[]handlerEntry, fn ReadyFunc) *Handle {
	d.mu.Lock()
	id := d.nextID
	d.nextID++
	*list = append(*list, handlerEntry{id: id, fn: fn})
	d.mu.Unlock()
	return NewHandle(func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		for i, e := range *list {
			if e.id == id {
				*list = append((*list)[:i], (*list)[i+1:]...)
				break
			}
		}
	})
}

// FireReady runs every connected ready handler in connection order,
// synchronously, before returning — upholding the signal-ordering
// invariant tested in spec §8.
func (d *Dispatcher) FireReady() {
	d.mu.Lock()
	handlers := make([]ReadyFunc, len(d.ready))
	for i, e := range d.ready {
		handlers[i] = e.fn
	}
	d.mu.Unlock()
	for _, fn := range handlers {
		fn()
	}
}

func (d *Dispatcher) FireChannelsChanged() {
	d.mu.Lock()
	handlers := make([]ReadyFunc, len(d.channels))
	for i, e := range d.channels {
		handlers[i] = e.fn
	}
	d.mu.Unlock()
	for _, fn := range handlers {
		fn()
	}
}
