// Package store holds the document store backends. The in-memory store lives
// here; postgres and firestore live in subpackages.
package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"memorymap/internal/memory"

	"github.com/google/uuid"
)

var ErrClosed = errors.New("store closed")

// InMemory is a process-local Store. Subscribers are notified through a
// coalescing signal, so a burst of writes yields one snapshot per subscriber.
type InMemory struct {
	mu       sync.RWMutex
	records  map[string]memory.Memory
	sessions map[string]time.Time
	subs     map[uint64]chan struct{}
	nextSub  uint64

	done      chan struct{}
	closeOnce sync.Once
}

var _ memory.Store = (*InMemory)(nil)

func NewInMemory() *InMemory {
	return &InMemory{
		records:  map[string]memory.Memory{},
		sessions: map[string]time.Time{},
		subs:     map[uint64]chan struct{}{},
		done:     make(chan struct{}),
	}
}

func (s *InMemory) Create(ctx context.Context, m memory.Memory) (string, error) {
	if err := s.alive(ctx); err != nil {
		return "", err
	}
	m = m.Clone()
	m.ID = uuid.NewString()

	s.mu.Lock()
	s.records[m.ID] = m
	s.mu.Unlock()

	s.notify()
	return m.ID, nil
}

func (s *InMemory) Get(ctx context.Context, id string) (memory.Memory, error) {
	if err := s.alive(ctx); err != nil {
		return memory.Memory{}, err
	}
	s.mu.RLock()
	m, ok := s.records[id]
	s.mu.RUnlock()
	if !ok {
		return memory.Memory{}, memory.ErrNotFound
	}
	return m.Clone(), nil
}

func (s *InMemory) List(ctx context.Context) ([]memory.Memory, error) {
	if err := s.alive(ctx); err != nil {
		return nil, err
	}
	return s.snapshot(), nil
}

func (s *InMemory) UpdateFields(ctx context.Context, id string, f memory.Fields) error {
	if err := s.alive(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	m, ok := s.records[id]
	if ok {
		m.ImageURLs = memory.CopyURLs(f.ImageURLs)
		s.records[id] = m
	}
	s.mu.Unlock()
	if !ok {
		return memory.ErrNotFound
	}

	s.notify()
	return nil
}

func (s *InMemory) Delete(ctx context.Context, id string) error {
	if err := s.alive(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	_, ok := s.records[id]
	delete(s.records, id)
	s.mu.Unlock()

	if ok {
		s.notify()
	}
	return nil
}

func (s *InMemory) Subscribe(ctx context.Context, onRecords func([]memory.Memory), onError func(error)) (func(), error) {
	if err := s.alive(ctx); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(ctx)
	signal := make(chan struct{}, 1)
	signal <- struct{}{}

	var (
		mu      sync.Mutex
		stopped bool
	)

	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = signal
	s.mu.Unlock()

	go func() {
		defer func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.done:
				return
			case <-signal:
				snap := s.snapshot()
				mu.Lock()
				if !stopped {
					onRecords(snap)
				}
				mu.Unlock()
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			mu.Lock()
			stopped = true
			mu.Unlock()
		})
	}, nil
}

func (s *InMemory) AuthorizeSession(ctx context.Context, uid string) error {
	if err := s.alive(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	if _, ok := s.sessions[uid]; !ok {
		s.sessions[uid] = time.Now()
	}
	s.mu.Unlock()
	return nil
}

func (s *InMemory) IsSessionAuthorized(ctx context.Context, uid string) (bool, error) {
	if err := s.alive(ctx); err != nil {
		return false, err
	}
	s.mu.RLock()
	_, ok := s.sessions[uid]
	s.mu.RUnlock()
	return ok, nil
}

func (s *InMemory) Close() error {
	s.closeOnce.Do(func() { close(s.done) })
	return nil
}

func (s *InMemory) alive(ctx context.Context) error {
	select {
	case <-s.done:
		return ErrClosed
	default:
	}
	return ctx.Err()
}

func (s *InMemory) snapshot() []memory.Memory {
	s.mu.RLock()
	out := make([]memory.Memory, 0, len(s.records))
	for _, m := range s.records {
		out = append(out, m.Clone())
	}
	s.mu.RUnlock()

	memory.SortNewestFirst(out)
	return out
}

func (s *InMemory) notify() {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
