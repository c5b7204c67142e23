package shutdown

import (
	"context"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_ShutdownCancelsContext(t *testing.T) {
	m := NewManager(context.Background(), nil)

	m.Shutdown()
	m.Shutdown()

	assert.ErrorIs(t, m.Context().Err(), context.Canceled)
	select {
	case <-m.Done():
	default:
		t.Fatal("done channel not closed")
	}
}

func TestManager_ParentCancellationPropagates(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	m := NewManager(parent, nil)
	defer m.Stop()

	cancel()
	assert.ErrorIs(t, m.Context().Err(), context.Canceled)
}

func TestManager_SignalCancelsContext(t *testing.T) {
	m := NewManager(context.Background(), nil)
	m.Listen()
	defer m.Stop()

	require.NoError(t, syscall.Kill(syscall.Getpid(), syscall.SIGTERM))

	select {
	case <-m.Context().Done():
	case <-time.After(5 * time.Second):
		t.Fatal("context not cancelled after SIGTERM")
	}
}

func TestManager_StopAfterShutdown(t *testing.T) {
	m := NewManager(context.Background(), nil)
	m.Listen()

	m.Stop()
	m.Shutdown()
	m.Stop()

	assert.Error(t, m.Context().Err())
}
