package models

import (
	"sync"
	"time"
)

// tickDispatcher calls a set of handlers at a fixed interval.
type tickDispatcher struct {
	startOnce sync.Once
	closeOnce sync.Once
	closeChan chan struct{}
	ticker    *time.Ticker

	handlerIDs SequentialIDGenerator
	mutex      sync.RWMutex
	handlers   map[uint32]func()
}

func newTickDispatcher(interval time.Duration) *tickDispatcher {
	return &tickDispatcher{
		closeChan: make(chan struct{}),
		ticker:    time.NewTicker(interval),
		handlers:  make(map[uint32]func()),
	}
}

func (d *tickDispatcher) handle(h func()) (cancel func()) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	id := d.handlerIDs.New()
	d.handlers[id] = h

	var cancelOnce sync.Once
	return func() {
		cancelOnce.Do(func() {
			d.mutex.Lock()
			defer d.mutex.Unlock()

			delete(d.handlers, id)
			d.handlerIDs.Reuse(id)
		})
	}
}

func (d *tickDispatcher) handlerCount() int {
	d.mutex.RLock()
	defer d.mutex.RUnlock()

	return len(d.handlers)
}

// start blocks until the dispatcher is closed. Only the first call has an
// effect.
func (d *tickDispatcher) start() {
	d.startOnce.Do(func() {
		for {
			select {
			case <-d.closeChan:
				return

			case <-d.ticker.C:
				d.mutex.RLock()
				for _, h := range d.handlers {
					h()
				}
				d.mutex.RUnlock()
			}
		}
	})
}

func (d *tickDispatcher) close() {
	d.closeOnce.Do(func() {
		d.ticker.Stop()
		close(d.closeChan)
	})
}
