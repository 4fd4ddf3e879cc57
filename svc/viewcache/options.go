package viewcache

import "time"

// DefaultUnsettledTTL bounds how long a view with a pending plan or an
// activation is served without running the guard again.
const DefaultUnsettledTTL = 30 * time.Second

// Option configures a cache backend.
type Option func(*settings)

type settings struct {
	unsettledTTL time.Duration
}

// WithUnsettledTTL sets the TTL for views that carry a pending plan or an
// activation. Values above the regular TTL are capped to it.
func WithUnsettledTTL(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.unsettledTTL = d
		}
	}
}

func newSettings(ttl time.Duration, opts []Option) settings {
	s := settings{unsettledTTL: DefaultUnsettledTTL}
	for _, opt := range opts {
		opt(&s)
	}
	if ttl > 0 && s.unsettledTTL > ttl {
		s.unsettledTTL = ttl
	}
	return s
}
