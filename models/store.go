package models

import (
	"sort"
	"sync"
)

// SessionStore holds the live sessions, one per scene.
type SessionStore struct {
	initOnce sync.Once
	mutex    sync.RWMutex
	sessions map[string]*Session
	ids      SequentialIDGenerator
}

func (s *SessionStore) init() {
	s.sessions = make(map[string]*Session)
}

// Join adds a participant to the session of the given scene. The session is
// created with newSession when the scene has none. The created return value
// reports whether the session is new, in which case the caller is
// responsible for starting its dispatchers.
func (s *SessionStore) Join(sceneID string, newSession func(id uint32) *Session, newParticipant func(id uint32) *Participant) (session *Session, participant *Participant, created bool) {
	s.initOnce.Do(s.init)
	s.mutex.Lock()
	defer s.mutex.Unlock()

	session, ok := s.sessions[sceneID]
	if !ok {
		session = newSession(s.ids.New())
		s.sessions[sceneID] = session
		created = true

		instrumentIncreaseSessionGauge(sceneID)
		instrumentCountSession(sceneID)
	}

	participant = newParticipant(session.NewParticipantID())
	session.AddParticipant(participant)
	instrumentIncreaseParticipantGauge(sceneID)
	return session, participant, created
}

// Leave removes a participant from its session. The session is closed and
// removed once its last participant left, which is reported by closed.
func (s *SessionStore) Leave(session *Session, participant *Participant) (closed bool) {
	s.initOnce.Do(s.init)
	s.mutex.Lock()
	defer s.mutex.Unlock()

	sceneID := session.SceneID()

	if _, ok := session.ParticipantByID(participant.ID); ok {
		session.RemoveParticipant(participant)
		instrumentDecreaseParticipantGauge(sceneID)
	}

	if session.ParticipantCount() != 0 {
		return false
	}

	if current, ok := s.sessions[sceneID]; ok && current == session {
		delete(s.sessions, sceneID)
		s.ids.Reuse(session.ID)
		instrumentDecreaseSessionGauge(sceneID)
	}

	session.Close()
	return true
}

func (s *SessionStore) GetBySceneID(sceneID string) (*Session, bool) {
	s.initOnce.Do(s.init)
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	session, ok := s.sessions[sceneID]
	return session, ok
}

// Sessions returns the live sessions sorted by scene id.
func (s *SessionStore) Sessions() []*Session {
	s.initOnce.Do(s.init)
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	sessions := make([]*Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		sessions = append(sessions, session)
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].SceneID() < sessions[j].SceneID()
	})
	return sessions
}

func (s *SessionStore) Len() int {
	s.initOnce.Do(s.init)
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return len(s.sessions)
}

// Close closes all the sessions.
func (s *SessionStore) Close() {
	s.initOnce.Do(s.init)
	s.mutex.Lock()
	defer s.mutex.Unlock()

	for sceneID, session := range s.sessions {
		session.Close()
		delete(s.sessions, sceneID)
		instrumentDecreaseSessionGauge(sceneID)
	}
}
