package remote

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/sidkik/ftpsync/pkg/config"
	"github.com/sidkik/ftpsync/pkg/errors"
)

// Session lazily connects to the server and caches the connection so that it
// can be reused by every sync pass. At most one connection is open at a time.
type Session struct {
	store  config.Store
	dialer Dialer

	lock   sync.Mutex
	client Client

	// epoch is incremented by Release. A dial that started before a Release
	// must not cache its result.
	epoch uint64

	dials singleflight.Group
}

// NewSession creates a Session that connects using the config in store.
func NewSession(store config.Store, dialer Dialer) *Session {
	return &Session{store: store, dialer: dialer}
}

// Acquire returns the open connection, or establishes a new one using a
// freshly loaded config. Concurrent callers share the same dial.
func (s *Session) Acquire(ctx context.Context) (Client, error) {
	s.lock.Lock()
	if s.client != nil {
		client := s.client
		s.lock.Unlock()
		return client, nil
	}
	epoch := s.epoch
	s.lock.Unlock()

	res, err, _ := s.dials.Do("dial", func() (interface{}, error) {
		return s.dial(ctx, epoch)
	})
	if err != nil {
		return nil, err
	}
	return res.(Client), nil
}

func (s *Session) dial(ctx context.Context, epoch uint64) (Client, error) {
	// Another caller may have finished dialing between our check in Acquire
	// and entering the singleflight group.
	s.lock.Lock()
	if s.client != nil {
		client := s.client
		s.lock.Unlock()
		return client, nil
	}
	s.lock.Unlock()

	cfg, err := s.store.Load()
	if err != nil {
		return nil, errors.WithContext(err, "load config")
	}

	client, err := s.dialer.Dial(ctx, cfg)
	if err != nil {
		return nil, errors.WithContext(err, "connect")
	}

	s.lock.Lock()
	defer s.lock.Unlock()
	if s.epoch != epoch {
		if err := client.Close(); err != nil {
			log.WithError(err).Debug("Failed to close stale connection")
		}
		return nil, errors.New("session was released while connecting")
	}
	s.client = client
	return client, nil
}

// Release closes the cached connection, if any. It's safe to call multiple
// times.
func (s *Session) Release() {
	s.lock.Lock()
	client := s.client
	s.client = nil
	s.epoch++
	s.lock.Unlock()

	if client == nil {
		return
	}

	if err := client.Close(); err != nil {
		log.WithError(err).Debug("Failed to close SFTP connection")
	}
}
