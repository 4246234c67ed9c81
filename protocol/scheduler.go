package protocol

import (
	"context"
	"sync"

	"github.com/aukilabs/go-tooling/pkg/errors"
)

const ErrTypeSchedulerClosed = "scheduler-closed"

// Dispatcher queues work for a connection loop.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg Msg) error
	HandleFrame()
	HandleScan()
}

// Consumer is the connection loop side of a scheduler.
type Consumer interface {
	Messages() <-chan Msg
	Frames() <-chan struct{}
	Scans() <-chan struct{}
}

// Scheduler serializes inbound messages, frame ticks and scan ticks into a
// single connection loop. Frame and scan ticks are coalesced: a tick arriving
// while a previous one is still pending is dropped.
type Scheduler struct {
	msgs   chan Msg
	frames chan struct{}
	scans  chan struct{}

	closeOnce sync.Once
	done      chan struct{}
}

func NewScheduler(queueSize int) *Scheduler {
	return &Scheduler{
		msgs:   make(chan Msg, queueSize),
		frames: make(chan struct{}, 1),
		scans:  make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

func (s *Scheduler) Dispatch(ctx context.Context, msg Msg) error {
	select {
	case <-s.done:
		return errors.New("scheduler is closed").WithType(ErrTypeSchedulerClosed)

	default:
	}

	select {
	case s.msgs <- msg:
		return nil

	case <-ctx.Done():
		return ctx.Err()

	case <-s.done:
		return errors.New("scheduler is closed").WithType(ErrTypeSchedulerClosed)
	}
}

func (s *Scheduler) HandleFrame() {
	signal(s.frames, s.done)
}

func (s *Scheduler) HandleScan() {
	signal(s.scans, s.done)
}

func (s *Scheduler) Messages() <-chan Msg {
	return s.msgs
}

func (s *Scheduler) Frames() <-chan struct{} {
	return s.frames
}

func (s *Scheduler) Scans() <-chan struct{} {
	return s.scans
}

func (s *Scheduler) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
	})
}

func signal(c chan struct{}, done chan struct{}) {
	select {
	case <-done:
	case c <- struct{}{}:
	default:
	}
}
