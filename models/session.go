package models

import (
	"sort"
	"sync"
	"time"

	"github.com/aukilabs/fieldofview/protocol"
	"github.com/aukilabs/fieldofview/scene"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/google/uuid"
)

const (
	DefaultFrameDuration = time.Second / 30
	DefaultScanInterval  = time.Millisecond * 200
)

// Session groups the participants observing the same scene. Frame handlers
// rebuild fields of view and scan handlers recompute visible targets; both are
// driven by the session tickers.
type Session struct {
	ID          uint32
	SessionUUID string
	Scene       *scene.Scene

	participantIDs   SequentialIDGenerator
	participantMutex sync.RWMutex
	participants     map[uint32]*Participant

	moduleStates map[string]any
	moduleMutex  sync.RWMutex

	frames *tickDispatcher
	scans  *tickDispatcher

	closeOnce sync.Once
}

func NewSession(id uint32, sc *scene.Scene, frameDuration, scanInterval time.Duration) *Session {
	if frameDuration <= 0 {
		frameDuration = DefaultFrameDuration
	}
	if scanInterval <= 0 {
		scanInterval = DefaultScanInterval
	}

	return &Session{
		ID:           id,
		SessionUUID:  uuid.New().String(),
		Scene:        sc,
		participants: make(map[uint32]*Participant),
		moduleStates: make(map[string]any),
		frames:       newTickDispatcher(frameDuration),
		scans:        newTickDispatcher(scanInterval),
	}
}

func (s *Session) SceneID() string {
	if s.Scene == nil {
		return ""
	}
	return s.Scene.ID
}

func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.frames.close()
		s.scans.close()
	})
}

func (s *Session) NewParticipantID() uint32 {
	return s.participantIDs.New()
}

func (s *Session) AddParticipant(p *Participant) {
	s.participantMutex.Lock()
	defer s.participantMutex.Unlock()

	s.participants[p.ID] = p
}

func (s *Session) RemoveParticipant(p *Participant) {
	s.participantMutex.Lock()
	defer s.participantMutex.Unlock()

	if _, ok := s.participants[p.ID]; !ok {
		return
	}
	delete(s.participants, p.ID)
	s.participantIDs.Reuse(p.ID)
}

// GetParticipants returns the participants sorted by id.
func (s *Session) GetParticipants() []*Participant {
	s.participantMutex.RLock()
	defer s.participantMutex.RUnlock()

	participants := make([]*Participant, 0, len(s.participants))
	for _, p := range s.participants {
		participants = append(participants, p)
	}
	sort.Slice(participants, func(i, j int) bool {
		return participants[i].ID < participants[j].ID
	})
	return participants
}

func (s *Session) ParticipantByID(id uint32) (*Participant, bool) {
	s.participantMutex.RLock()
	defer s.participantMutex.RUnlock()

	p, ok := s.participants[id]
	return p, ok
}

func (s *Session) ParticipantCount() int {
	s.participantMutex.RLock()
	defer s.participantMutex.RUnlock()

	return len(s.participants)
}

// Broadcast sends a message to every participant except the sender.
func (s *Session) Broadcast(sender *Participant, p protocol.Payload) {
	msg, err := protocol.MsgFromPayload(p)
	if err != nil {
		logs.WithTag("message", p).Debug(err)
		return
	}

	s.participantMutex.RLock()
	defer s.participantMutex.RUnlock()

	for _, participant := range s.participants {
		if participant == sender {
			continue
		}
		participant.Responder.SendMsg(msg)
	}
}

func (s *Session) SetModuleState(moduleName string, state any) {
	s.moduleMutex.Lock()
	defer s.moduleMutex.Unlock()

	s.moduleStates[moduleName] = state
}

// LoadOrStoreModuleState returns the state of a module, creating it with
// newState when the module has none yet.
func (s *Session) LoadOrStoreModuleState(moduleName string, newState func() any) any {
	s.moduleMutex.Lock()
	defer s.moduleMutex.Unlock()

	state, ok := s.moduleStates[moduleName]
	if !ok {
		state = newState()
		s.moduleStates[moduleName] = state
	}
	return state
}

func (s *Session) ModuleState(moduleName string) (any, bool) {
	s.moduleMutex.RLock()
	defer s.moduleMutex.RUnlock()

	state, ok := s.moduleStates[moduleName]
	return state, ok
}

// HandleFrame registers a handler called at each frame tick.
func (s *Session) HandleFrame(h func()) (cancel func()) {
	return s.frames.handle(h)
}

// HandleScan registers a handler called at each target scan tick.
func (s *Session) HandleScan(h func()) (cancel func()) {
	return s.scans.handle(h)
}

// StartDispatchFrames blocks until the session is closed.
func (s *Session) StartDispatchFrames() {
	s.frames.start()
}

// StartDispatchScans blocks until the session is closed.
func (s *Session) StartDispatchScans() {
	s.scans.start()
}
