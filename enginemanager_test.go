package vkframe

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngineManagerIndexFormulas(t *testing.T) {
	b := newFakeBackend()
	fam := QueueFamilyInfo{Index: 0, Capabilities: EngineGraphics, QueueCount: 1}
	em, err := newEngineManager(b, fam, 3, 2, 2)
	require.NoError(t, err)

	// frames=3, frameThreads=2 -> 3 slots per frame (main + 2 async-frame).
	assert.Equal(t, 0, em.mainThreadManagerIndex(0))
	assert.Equal(t, 3, em.mainThreadManagerIndex(1))
	assert.Equal(t, 6, em.mainThreadManagerIndex(2))

	assert.Equal(t, 1, em.asyncFrameManagerIndex(0, 1))
	assert.Equal(t, 2, em.asyncFrameManagerIndex(0, 2))
	assert.Equal(t, 4, em.asyncFrameManagerIndex(1, 1))

	// asyncThreads start right after frame 2's slots, at index 9, with
	// global thread ids t=3,4 (frameThreads+1..frameThreads+asyncThreads).
	assert.Equal(t, 9, em.asyncManagerIndex(3))
	assert.Equal(t, 10, em.asyncManagerIndex(4))

	assert.Len(t, em.managers, 3*(2+1)+2)
}

func TestEngineManagerDispatchAndFlush(t *testing.T) {
	b := newFakeBackend()
	fam := QueueFamilyInfo{Index: 0, Capabilities: EngineGraphics, QueueCount: 1}
	em, err := newEngineManager(b, fam, 2, 0, 0)
	require.NoError(t, err)

	var recorded bool
	proc := ProcessFunc{Engines: EngineGraphics, Fn: func(mgr *CommandListManager) error {
		g, err := mgr.Graphics()
		if err != nil {
			return err
		}
		recorded = true
		return g.Clear(RenderTargetHandle{Index: 0}, [4]float32{})
	}}

	wp := newWorkPiece(proc, MainThread, 0, 0, 0)
	wp.setManagerIndex(em.mainThreadManagerIndex(0))
	require.NoError(t, em.dispatch(wp))
	assert.True(t, recorded)
	assert.Equal(t, WorkPopulationCompleted, wp.State())

	task, err := em.flush(0, 0)
	require.NoError(t, err)
	task.Wait()
	assert.True(t, task.Finished())
}

func TestEngineManagerWaitForCompletionCleansAsyncSlots(t *testing.T) {
	b := newFakeBackend()
	fam := QueueFamilyInfo{Index: 0, Capabilities: EngineGraphics, QueueCount: 1}
	em, err := newEngineManager(b, fam, 1, 0, 1)
	require.NoError(t, err)

	wp := newWorkPiece(noopProcess{}, Async, 0, 0, 0)
	wp.setManagerIndex(em.asyncManagerIndex(1))
	require.NoError(t, em.dispatch(wp))

	assert.NoError(t, em.waitForCompletion(0, 0))

	var abandoned *AbandonedAsyncTask
	require.ErrorAs(t, em.waitForCompletion(1, 0), &abandoned)
}

func TestEngineManagerFlushMarkedOnlySubmitsMarkedSlots(t *testing.T) {
	b := newFakeBackend()
	fam := QueueFamilyInfo{Index: 0, Capabilities: EngineGraphics, QueueCount: 1}
	em, err := newEngineManager(b, fam, 1, 1, 0)
	require.NoError(t, err)

	wp := newWorkPiece(noopProcess{}, AsyncFrame, 0, 0, 0)
	idx := em.asyncFrameManagerIndex(0, 1)
	wp.setManagerIndex(idx)
	require.NoError(t, em.dispatch(wp))

	em.markForFlush(idx)
	var results []*GPUTask
	require.NoError(t, em.flushMarked(0, nil, &results))
	assert.Len(t, results, 1)
}
