// Copyright (c) 2026 CallVu Ltd.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package ratelimit

import (
	"context"
	"sync"
	"time"
)

// DefaultMaxIdentities caps how many identities the in-memory store
// tracks before evicting the least recently seen one.
const DefaultMaxIdentities = 10000

// MemoryStore keeps per-identity windows in process memory. State does
// not survive a restart and is not shared across instances; it is a
// best-effort single-instance guard.
//
// Prune+check+append runs under one mutex, so the cap is honoured
// exactly even under concurrent requests for the same identity.
type MemoryStore struct {
	mu            sync.Mutex
	windows       map[string]*window
	maxIdentities int
}

type window struct {
	stamps   []time.Time
	lastSeen time.Time
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithMaxIdentities overrides the identity-cardinality cap.
func WithMaxIdentities(n int) MemoryOption {
	return func(s *MemoryStore) { s.maxIdentities = n }
}

// NewMemoryStore creates an in-memory sliding-window store.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		windows:       make(map[string]*window),
		maxIdentities: DefaultMaxIdentities,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Take implements Store. It never returns an error.
func (s *MemoryStore) Take(_ context.Context, identity string, now time.Time, windowDur time.Duration, limit int) (bool, error) {
	cutoff := now.Add(-windowDur)

	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.windows[identity]
	if !ok {
		if len(s.windows) >= s.maxIdentities {
			s.evictOldest()
		}
		w = &window{}
		s.windows[identity] = w
	}
	w.lastSeen = now

	// Prune stamps outside the trailing window. Stamps are appended in
	// order, so the first retained index marks the prune point.
	keep := 0
	for keep < len(w.stamps) && !w.stamps[keep].After(cutoff) {
		keep++
	}
	if keep > 0 {
		w.stamps = append(w.stamps[:0], w.stamps[keep:]...)
	}

	if len(w.stamps) >= limit {
		return false, nil
	}

	w.stamps = append(w.stamps, now)
	return true, nil
}

// evictOldest drops the identity with the oldest lastSeen. Caller holds mu.
func (s *MemoryStore) evictOldest() {
	var oldestKey string
	var oldest time.Time
	first := true
	for k, w := range s.windows {
		if first || w.lastSeen.Before(oldest) {
			oldestKey, oldest = k, w.lastSeen
			first = false
		}
	}
	if oldestKey != "" {
		delete(s.windows, oldestKey)
	}
}

// Len returns the number of tracked identities.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.windows)
}
