package vkframe

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGPUTaskFinishedOnlyAfterWait(t *testing.T) {
	b := newFakeBackend()
	sem, err := b.CreateSemaphore()
	require.NoError(t, err)

	task := newSemaphoreGPUTask(b, sem)
	assert.False(t, task.Finished(), "a semaphore-backed task must never report finished without an explicit Wait")

	b.completePending()
	task.Wait()
	assert.True(t, task.Finished())
}

func TestCombineGPUTasksAllFinished(t *testing.T) {
	a := newFinishedGPUTask()
	c := newFinishedGPUTask()
	union := CombineGPUTasks(a, c)
	assert.True(t, union.Finished())
}

func TestCombineGPUTasksWaitsOnEveryChild(t *testing.T) {
	b := newFakeBackend()
	sem1, _ := b.CreateSemaphore()
	sem2, _ := b.CreateSemaphore()
	t1 := newSemaphoreGPUTask(b, sem1)
	t2 := newSemaphoreGPUTask(b, sem2)

	union := CombineGPUTasks(t1, t2, nil)
	require.False(t, union.Finished())

	b.completePending()
	union.Wait()
	assert.True(t, union.Finished())
	assert.True(t, t1.Finished())
	assert.True(t, t2.Finished())
}

func TestCollectWaitSemaphoresSkipsFinished(t *testing.T) {
	finished := newFinishedGPUTask()
	b := newFakeBackend()
	sem, _ := b.CreateSemaphore()
	unfinished := newSemaphoreGPUTask(b, sem)

	out := collectWaitSemaphores([]*GPUTask{finished, unfinished})
	assert.Equal(t, []SemaphoreHandle{sem}, out)
}
