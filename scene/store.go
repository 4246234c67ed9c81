package scene

import (
	"sort"
	"sync"

	"github.com/aukilabs/go-tooling/pkg/errors"
)

// Store is a registry of the scenes served by the process.
type Store struct {
	initOnce sync.Once
	mutex    sync.RWMutex
	scenes   map[string]*Scene
}

func (s *Store) init() {
	s.initOnce.Do(func() {
		s.scenes = make(map[string]*Scene)
	})
}

// Put creates a scene or replaces the content of an existing one. Replacing
// keeps the *Scene so that joined sessions see the new content.
func (s *Store) Put(id string, doc Document) (*Scene, error) {
	s.init()

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if sc, ok := s.scenes[id]; ok {
		return sc, sc.Replace(doc)
	}

	sc, err := NewScene(id, doc)
	if err != nil {
		return nil, err
	}
	s.scenes[id] = sc
	return sc, nil
}

func (s *Store) Get(id string) (*Scene, bool) {
	s.init()

	s.mutex.RLock()
	defer s.mutex.RUnlock()

	sc, ok := s.scenes[id]
	return sc, ok
}

// MustGet is Get with a typed error for unknown scenes.
func (s *Store) MustGet(id string) (*Scene, error) {
	sc, ok := s.Get(id)
	if !ok {
		return nil, errors.New("scene not found").
			WithType(ErrTypeSceneNotFound).
			WithTag("scene_id", id)
	}
	return sc, nil
}

func (s *Store) Remove(id string) bool {
	s.init()

	s.mutex.Lock()
	defer s.mutex.Unlock()

	_, ok := s.scenes[id]
	delete(s.scenes, id)
	return ok
}

// IDs returns the sorted scene identifiers.
func (s *Store) IDs() []string {
	s.init()

	s.mutex.RLock()
	defer s.mutex.RUnlock()

	ids := make([]string, 0, len(s.scenes))
	for id := range s.scenes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (s *Store) Len() int {
	s.init()

	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return len(s.scenes)
}
