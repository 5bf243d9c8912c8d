package vkframe

import "sync/atomic"

// GPUTask is a handle for "submission finished on the device". It owns
// either a single native semaphore signalled at submit time, or a tree
// of child GPU-tasks produced by CombineGPUTasks (a union); a union is
// finished iff all of its children are.
type GPUTask struct {
	backend  Backend
	sem      *SemaphoreHandle
	children []*GPUTask
	finished atomic.Bool
}

// newFinishedGPUTask returns a task that is already finished and owns no
// semaphore, used by CommandQueueManager.submitCurrent when there is
// nothing to submit.
func newFinishedGPUTask() *GPUTask {
	t := &GPUTask{}
	t.finished.Store(true)
	return t
}

// newSemaphoreGPUTask returns a task backed by a single native semaphore.
func newSemaphoreGPUTask(backend Backend, sem SemaphoreHandle) *GPUTask {
	return &GPUTask{backend: backend, sem: &sem}
}

// CombineGPUTasks produces a union task whose Finished starts true iff
// every input is already finished; otherwise the union records only the
// still-unfinished inputs as children. The union owns no new native
// semaphore.
func CombineGPUTasks(tasks ...*GPUTask) *GPUTask {
	u := &GPUTask{}
	allFinished := true
	for _, t := range tasks {
		if t == nil {
			continue
		}
		if t.Finished() {
			continue
		}
		allFinished = false
		u.children = append(u.children, t)
	}
	if allFinished {
		u.finished.Store(true)
	}
	return u
}

// Finished reports whether this task (and, for a union, every child) has
// completed, without blocking. A leaf task backed by a semaphore only
// becomes finished once Wait has actually been called on it — this
// implementation has no non-blocking way to poll a semaphore.
func (t *GPUTask) Finished() bool {
	if t.finished.Load() {
		return true
	}
	if t.sem != nil {
		return false
	}
	for _, c := range t.children {
		if !c.Finished() {
			return false
		}
	}
	t.finished.Store(true)
	return true
}

// Wait blocks on this task's own semaphore (if any) and recursively on
// every child, then marks the task finished so a later Wait returns
// immediately.
func (t *GPUTask) Wait() {
	if t.Finished() {
		return
	}
	if t.sem != nil {
		t.backend.WaitSemaphore(*t.sem)
	}
	for _, c := range t.children {
		c.Wait()
	}
	t.finished.Store(true)
}

// release destroys this task's own semaphore, if it owns one. Callers
// must only call this once the task is already Finished — i.e. after
// Wait has actually run to completion — since nothing may wait on a
// destroyed semaphore afterwards. A no-op on a union, which owns no
// semaphore of its own.
func (t *GPUTask) release() {
	if t.sem != nil {
		t.backend.DestroySemaphore(*t.sem)
	}
}

// collectWaitSemaphores flattens the native semaphores of every
// unfinished task in tasks (depth-first; duplicates are legal wait
// conditions and are not removed).
func collectWaitSemaphores(tasks []*GPUTask) []SemaphoreHandle {
	var out []SemaphoreHandle
	for _, t := range tasks {
		if t == nil {
			continue
		}
		t.collectInto(&out)
	}
	return out
}

func (t *GPUTask) collectInto(out *[]SemaphoreHandle) {
	if t.Finished() {
		return
	}
	if t.sem != nil {
		*out = append(*out, *t.sem)
	}
	for _, c := range t.children {
		c.collectInto(out)
	}
}
