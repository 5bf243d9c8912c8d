package vkframe

import (
	"sync"

	"github.com/vkframe/vkframe/internal/syncutil"
)

// workerPool runs frameThreads+asyncThreads goroutines that consume
// work pieces from the device's two bounded queues and hand them to the
// engine owning each piece's required capabilities (§4.4). Worker t is
// 1-based; t<=frameThreads consumes frameAsyncQueue, the rest consume
// asyncQueue.
type workerPool struct {
	device       *Device
	frameThreads int
	asyncThreads int
	wg           sync.WaitGroup
}

func newWorkerPool(d *Device, frameThreads, asyncThreads int) *workerPool {
	return &workerPool{
		device:       d,
		frameThreads: frameThreads,
		asyncThreads: asyncThreads,
	}
}

func (p *workerPool) start() {
	total := p.frameThreads + p.asyncThreads
	p.wg.Add(total)
	for t := 1; t <= total; t++ {
		go p.run(t)
	}
}

func (p *workerPool) run(t int) {
	defer p.wg.Done()
	var queue *syncutil.MPMCQueue[*WorkPiece]
	if t <= p.frameThreads {
		queue = p.device.frameAsyncQueue
	} else {
		queue = p.device.asyncQueue
	}
	for {
		wp := queue.Consume()
		if wp.process == nil {
			// shutdown sentinel
			return
		}
		switch wp.mode {
		case AsyncFrame:
			wp.setManagerIndex(p.device.engines[wp.engineIndex].asyncFrameManagerIndex(wp.frameIndexAtDispatch, t))
		case Async:
			wp.setManagerIndex(p.device.engines[wp.engineIndex].asyncManagerIndex(t))
		}
		_ = p.device.engines[wp.engineIndex].dispatch(wp)
	}
}

// stop enqueues one no-op sentinel per worker to unblock every consumer,
// then waits for all workers to exit before returning, so a caller that
// proceeds to tear down the backend never races a worker still inside
// EngineManager.dispatch.
func (p *workerPool) stop() {
	for t := 1; t <= p.frameThreads; t++ {
		p.device.frameAsyncQueue.Produce(&WorkPiece{})
	}
	for t := 1; t <= p.asyncThreads; t++ {
		p.device.asyncQueue.Produce(&WorkPiece{})
	}
	p.wg.Wait()
}
