package probe

import (
	"sync"

	"github.com/aukilabs/fieldofview/protocol"
)

// State counts the probes answered in a session.
type State struct {
	mutex  sync.Mutex
	counts map[protocol.MsgType]int64
}

func (s *State) Inc(t protocol.MsgType) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.counts == nil {
		s.counts = make(map[protocol.MsgType]int64)
	}
	s.counts[t]++
}

func (s *State) Counts() map[protocol.MsgType]int64 {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	counts := make(map[protocol.MsgType]int64, len(s.counts))
	for t, c := range s.counts {
		counts[t] = c
	}
	return counts
}
