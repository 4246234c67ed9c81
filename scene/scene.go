package scene

import (
	"sync"
	"sync/atomic"

	"github.com/aukilabs/go-tooling/pkg/errors"
)

const (
	ErrTypeSceneNotFound = "scene-not-found"
)

// Scene is a named, mutable set of obstacles and targets. Readers work on
// immutable World snapshots, so a mutation never shows up in the middle of an
// evaluation.
type Scene struct {
	ID string

	mutex sync.Mutex
	doc   Document
	world atomic.Pointer[World]
}

func NewScene(id string, doc Document) (*Scene, error) {
	if !IsValidRef(id) {
		return nil, errors.New("invalid scene id").
			WithType(ErrTypeInvalidSceneDocument).
			WithTag("scene_id", id)
	}

	s := &Scene{ID: id}
	if err := s.Replace(doc); err != nil {
		return nil, err
	}
	return s, nil
}

// Snapshot returns the current state of the scene.
func (s *Scene) Snapshot() *World {
	return s.world.Load()
}

func (s *Scene) Version() uint64 {
	return s.Snapshot().Version()
}

// Document returns a copy of the scene document.
func (s *Scene) Document() Document {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return cloneDocument(s.doc)
}

// Replace swaps the whole content of the scene.
func (s *Scene) Replace(doc Document) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.commit(cloneDocument(doc))
}

// AddObstacle adds an obstacle, or replaces the one with the same ID.
func (s *Scene) AddObstacle(o Obstacle) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	doc := cloneDocument(s.doc)
	replaced := false
	for i := range doc.Obstacles {
		if doc.Obstacles[i].ID == o.ID {
			doc.Obstacles[i] = o
			replaced = true
			break
		}
	}
	if !replaced {
		doc.Obstacles = append(doc.Obstacles, o)
	}
	return s.commit(doc)
}

// RemoveObstacle removes an obstacle and reports whether it existed.
func (s *Scene) RemoveObstacle(id string) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	doc := cloneDocument(s.doc)
	for i := range doc.Obstacles {
		if doc.Obstacles[i].ID == id {
			doc.Obstacles = append(doc.Obstacles[:i], doc.Obstacles[i+1:]...)
			return s.commit(doc) == nil
		}
	}
	return false
}

// SetTarget adds a target, or moves the one with the same handle.
func (s *Scene) SetTarget(t Target) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	doc := cloneDocument(s.doc)
	replaced := false
	for i := range doc.Targets {
		if doc.Targets[i].Handle == t.Handle {
			doc.Targets[i] = t
			replaced = true
			break
		}
	}
	if !replaced {
		doc.Targets = append(doc.Targets, t)
	}
	return s.commit(doc)
}

// RemoveTarget removes a target and reports whether it existed.
func (s *Scene) RemoveTarget(handle string) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	doc := cloneDocument(s.doc)
	for i := range doc.Targets {
		if doc.Targets[i].Handle == handle {
			doc.Targets = append(doc.Targets[:i], doc.Targets[i+1:]...)
			return s.commit(doc) == nil
		}
	}
	return false
}

// commit validates doc and publishes a new world. Must be called with the
// mutex held.
func (s *Scene) commit(doc Document) error {
	if err := doc.Validate(); err != nil {
		return err
	}

	var version uint64 = 1
	if current := s.world.Load(); current != nil {
		version = current.Version() + 1
	}

	world, err := newWorld(doc, version)
	if err != nil {
		return err
	}

	s.doc = doc
	s.world.Store(world)
	return nil
}

func cloneDocument(doc Document) Document {
	clone := doc
	clone.Obstacles = make([]Obstacle, len(doc.Obstacles))
	copy(clone.Obstacles, doc.Obstacles)
	clone.Targets = make([]Target, len(doc.Targets))
	copy(clone.Targets, doc.Targets)
	return clone
}
