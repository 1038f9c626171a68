package state

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegistryIssuesSequentialHandles(t *testing.T) {
	registry := NewCallbackRegistry()
	registry.syslog = testLogger()

	require.Equal(t, Handle(0), registry.Add(func([]byte) {}))
	require.Equal(t, Handle(1), registry.Add(nil))
	require.Equal(t, 2, registry.Len())

	registry.Remove(Handle(0))
	require.Equal(t, 1, registry.Len())
	require.Equal(t, Handle(2), registry.Add(nil), "retired handles must not be reissued")
}

func TestRegistryGet(t *testing.T) {
	registry := NewCallbackRegistry()
	registry.syslog = testLogger()

	var got []byte
	handle := registry.Add(func(payload []byte) { got = payload })
	registry.Get(handle)([]byte("answer"))
	require.Equal(t, []byte("answer"), got)

	require.Nil(t, registry.Get(registry.Add(nil)), "fire-and-forget registrations carry no callback")
}

func TestRegistryGetUnknownHandleAborts(t *testing.T) {
	registry := NewCallbackRegistry()
	registry.syslog = testLogger()

	handle := registry.Add(nil)
	registry.Remove(handle)
	require.Panics(t, func() { registry.Get(handle) })
	require.Panics(t, func() { registry.Get(Handle(99)) })
}
