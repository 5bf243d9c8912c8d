package vkframe

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandListHandleLifecycle(t *testing.T) {
	b := newFakeBackend()
	pool, err := b.CreateCommandPool(0)
	require.NoError(t, err)
	cb, err := b.AllocateCommandBuffer(pool)
	require.NoError(t, err)

	cl := newCommandListHandle(b, cb)
	assert.Equal(t, CommandListInitial, cl.State())

	require.NoError(t, cl.Open())
	assert.Equal(t, CommandListRecording, cl.State())

	require.NoError(t, cl.Close())
	assert.Equal(t, CommandListExecutable, cl.State())

	require.NoError(t, cl.markSubmitted())
	assert.Equal(t, CommandListOnGPU, cl.State())

	require.NoError(t, cl.Reset())
	assert.Equal(t, CommandListInitial, cl.State())
}

func TestCommandListHandleRejectsIllegalTransitions(t *testing.T) {
	b := newFakeBackend()
	pool, _ := b.CreateCommandPool(0)
	cb, _ := b.AllocateCommandBuffer(pool)
	cl := newCommandListHandle(b, cb)

	err := cl.Close()
	var stateErr *ResourceStateError
	require.ErrorAs(t, err, &stateErr)
	assert.Equal(t, "Initial", stateErr.From)

	require.NoError(t, cl.Open())
	err = cl.Reset()
	require.ErrorAs(t, err, &stateErr)
}
