package repository

import "time"

// Option applies a configuration option to the Sessions registry.
type Option func(*Sessions)

// WithMaxSessions bounds the number of live sessions; the least recently
// used session is ended when the bound is reached.
func WithMaxSessions(n int) Option {
	return func(s *Sessions) {
		if n > 0 {
			s.maxSessions = n
		}
	}
}

// WithTTL sets the idle time after which a session expires.
func WithTTL(ttl time.Duration) Option {
	return func(s *Sessions) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithOnEnd registers a callback invoked when a session ends for any reason,
// with the number of records it held and its age.
// fn runs under the registry lock and must not call back into it.
func WithOnEnd(fn func(id string, records int, age time.Duration)) Option {
	return func(s *Sessions) {
		s.onEnd = fn
	}
}
