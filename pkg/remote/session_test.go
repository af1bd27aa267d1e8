package remote_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sidkik/ftpsync/pkg/config"
	"github.com/sidkik/ftpsync/pkg/errors"
	"github.com/sidkik/ftpsync/pkg/remote"
	"github.com/sidkik/ftpsync/pkg/remote/remotetest"
)

func TestAcquireReusesConnection(t *testing.T) {
	dialer := remotetest.NewDialer()
	session := remote.NewSession(config.NewMemoryStore(config.Sync{Host: "h"}), dialer)

	first, err := session.Acquire(context.Background())
	require.NoError(t, err)
	second, err := session.Acquire(context.Background())
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, dialer.Dials())
}

func TestAcquireSingleFlight(t *testing.T) {
	dialer := remotetest.NewDialer()
	session := remote.NewSession(config.NewMemoryStore(config.Sync{Host: "h"}), dialer)
	unblock := dialer.Block()

	var wg sync.WaitGroup
	clients := make([]remote.Client, 10)
	for i := range clients {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			client, err := session.Acquire(context.Background())
			assert.NoError(t, err)
			clients[i] = client
		}()
	}

	unblock()
	wg.Wait()

	assert.Equal(t, 1, dialer.Dials())
	for _, client := range clients {
		assert.Same(t, clients[0], client)
	}
}

func TestRelease(t *testing.T) {
	dialer := remotetest.NewDialer()
	session := remote.NewSession(config.NewMemoryStore(config.Sync{Host: "h"}), dialer)

	// Releasing without a connection is a no-op.
	session.Release()

	_, err := session.Acquire(context.Background())
	require.NoError(t, err)
	first := dialer.Last()

	session.Release()
	session.Release()
	assert.True(t, first.Closed())

	_, err = session.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, dialer.Dials())
	assert.False(t, dialer.Last().Closed())
}

func TestAcquireUsesFreshConfig(t *testing.T) {
	store := config.NewMemoryStore(config.Sync{Host: "old", User: "u", Password: "p"})
	dialer := remotetest.NewDialer()

	var dialedHosts []string
	dialer.Check = func(cfg config.Sync) error {
		dialedHosts = append(dialedHosts, cfg.Host)
		return nil
	}
	session := remote.NewSession(store, dialer)

	_, err := session.Acquire(context.Background())
	require.NoError(t, err)

	cfg, err := store.Load()
	require.NoError(t, err)
	cfg.Host = "new"
	require.NoError(t, store.Save(cfg))

	// The cached connection is kept until it's explicitly released.
	_, err = session.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"old"}, dialedHosts)

	session.Release()
	_, err = session.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"old", "new"}, dialedHosts)
}

func TestAcquireError(t *testing.T) {
	dialer := remotetest.NewDialer()
	authErr := errors.WithCode(errors.New("unable to authenticate"), errors.AuthFailed)
	dialer.FailNext(authErr)
	session := remote.NewSession(config.NewMemoryStore(config.Sync{}), dialer)

	_, err := session.Acquire(context.Background())
	assert.Error(t, err)
	assert.Equal(t, errors.AuthFailed, errors.Classify(err))

	// The failure isn't cached.
	_, err = session.Acquire(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, 2, dialer.Dials())
}
