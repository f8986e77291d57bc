// Package mock provides in-memory resource managers recording what happens to them
package mock

import (
	"fmt"
	"sync"
)

// Store is the durable state behind a Factory
type Store struct {
	mtx  sync.Mutex
	data map[string]string
}

func NewStore() *Store {
	return &Store{data: map[string]string{}}
}

func (s *Store) Get(key string) (string, bool) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	v, ok := s.data[key]
	return v, ok
}

func (s *Store) Len() int {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return len(s.data)
}

func (s *Store) apply(writes map[string]string) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	for k, v := range writes {
		s.data[k] = v
	}
}

// Journal records events in order
type Journal struct {
	mtx    sync.Mutex
	events []string
}

func (j *Journal) Record(format string, args ...interface{}) {
	if j == nil {
		return
	}
	j.mtx.Lock()
	defer j.mtx.Unlock()
	j.events = append(j.events, fmt.Sprintf(format, args...))
}

func (j *Journal) Events() []string {
	j.mtx.Lock()
	defer j.mtx.Unlock()
	return append([]string(nil), j.events...)
}

func (j *Journal) Count(event string) int {
	j.mtx.Lock()
	defer j.mtx.Unlock()
	n := 0
	for _, e := range j.events {
		if e == event {
			n++
		}
	}
	return n
}

func (j *Journal) Reset() {
	j.mtx.Lock()
	defer j.mtx.Unlock()
	j.events = nil
}
