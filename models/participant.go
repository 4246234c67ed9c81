package models

import (
	"sync"

	"github.com/aukilabs/fieldofview/protocol"
	"github.com/aukilabs/fieldofview/visibility"
)

// A session participant. Its observer and view config are written by the
// participant connection and read by frame and scan handlers.
type Participant struct {
	ID        uint32
	Responder protocol.ResponseSender

	mutex          sync.RWMutex
	observer       visibility.Observer
	viewConfig     visibility.Config
	visibleTargets []visibility.TargetHandle
}

func NewParticipant(id uint32, responder protocol.ResponseSender, c visibility.Config) *Participant {
	return &Participant{
		ID:         id,
		Responder:  responder,
		viewConfig: c,
	}
}

func (p *Participant) Observer() visibility.Observer {
	p.mutex.RLock()
	defer p.mutex.RUnlock()

	return p.observer
}

func (p *Participant) SetObserver(o visibility.Observer) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	p.observer = o
}

func (p *Participant) ViewConfig() visibility.Config {
	p.mutex.RLock()
	defer p.mutex.RUnlock()

	return p.viewConfig
}

func (p *Participant) SetViewConfig(c visibility.Config) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	p.viewConfig = c
}

// View returns the observer and the view config as they were at the same
// instant.
func (p *Participant) View() (visibility.Observer, visibility.Config) {
	p.mutex.RLock()
	defer p.mutex.RUnlock()

	return p.observer, p.viewConfig
}

func (p *Participant) VisibleTargets() []visibility.TargetHandle {
	p.mutex.RLock()
	defer p.mutex.RUnlock()

	return append([]visibility.TargetHandle(nil), p.visibleTargets...)
}

// SetVisibleTargets replaces the visible set and returns how it changed.
func (p *Participant) SetVisibleTargets(targets []visibility.TargetHandle) (entered, exited []visibility.TargetHandle) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	entered, exited = protocol.DiffTargets(p.visibleTargets, targets)
	p.visibleTargets = append([]visibility.TargetHandle(nil), targets...)
	return entered, exited
}
