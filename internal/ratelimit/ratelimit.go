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

// Package ratelimit bounds how often a given identity (the submitter's
// email) may trigger upstream CRM calls. The window state lives in a
// pluggable Store so a single instance can run on process memory while a
// multi-instance deployment shares a Redis backend.
package ratelimit

import (
	"context"
	"time"
)

// Defaults match the production contract: at most 10 accepted
// submissions per identity per trailing hour.
const (
	DefaultWindow = time.Hour
	DefaultLimit  = 10
)

// Store records accepted attempts per identity and answers whether a new
// attempt fits under the cap. Take must prune entries older than
// now-window, deny without mutation when the remaining count has reached
// limit, and otherwise append now and allow.
type Store interface {
	Take(ctx context.Context, identity string, now time.Time, window time.Duration, limit int) (bool, error)
}

// Limiter is a sliding-window rate limiter over a Store.
//
// Identity is used exactly as received — no case normalization. Whether
// the full address should be normalized is an unresolved product
// question; until it is decided, Bob@acme.com and bob@acme.com are
// separate identities.
type Limiter struct {
	store  Store
	window time.Duration
	limit  int
}

// New creates a limiter. Zero window or limit fall back to the defaults.
func New(store Store, window time.Duration, limit int) *Limiter {
	if window <= 0 {
		window = DefaultWindow
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Limiter{store: store, window: window, limit: limit}
}

// Allow reports whether the identity may proceed at time now. A denied
// attempt is not recorded, so hammering a limited identity does not
// extend its lockout.
func (l *Limiter) Allow(ctx context.Context, identity string, now time.Time) (bool, error) {
	return l.store.Take(ctx, identity, now, l.window, l.limit)
}

// Window returns the configured window duration.
func (l *Limiter) Window() time.Duration { return l.window }
