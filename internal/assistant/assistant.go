// Package assistant implements the optional single-worker background
// decompression pipeline: a FIFO of pending decode jobs consumed by one
// goroutine, with blocking and non-blocking ways to collect the results.
package assistant

import (
	"log"
	"sync"

	"github.com/gwlucastrig/gvrs-go/internal/codec"
	"github.com/gwlucastrig/gvrs-go/internal/raster"
)

// Job is one unit of pending work: decode tile's payload using master,
// given its element specs.
type Job struct {
	TileIndex int
	Specs     []raster.Spec
	NRows     int
	NCols     int
	Payload   []byte
}

// Result is a completed decode, or an error if the payload was corrupt or
// the decoder could not be resolved.
type Result struct {
	TileIndex int
	Tile      *raster.Tile
	Err       error
}

// PoisonFunc is invoked when a decode fails so the owning file can mark
// itself poisoned instead of silently dropping the tile.
type PoisonFunc func(tileIndex int, err error)

// Assistant runs a single background goroutine that decodes tiles handed
// to it by Submit, in FIFO order.
type Assistant struct {
	master  *codec.Master
	onErr   PoisonFunc
	verbose bool

	mu       sync.Mutex
	cond     *sync.Cond
	pending  []Job
	inFlight int // tileIndex currently being decoded, or noTile
	done     map[int]Result
	doneOrd  []int // insertion order, for drain() ordering
	stopping bool
	wg       sync.WaitGroup
}

// New starts the background worker. master must not be mutated by the
// application thread while the assistant is non-quiescent; callers must
// call WaitForCompletion before touching master directly.
func New(master *codec.Master, onErr PoisonFunc, verbose bool) *Assistant {
	a := &Assistant{
		master:   master,
		onErr:    onErr,
		verbose:  verbose,
		inFlight: noTile,
		done:     make(map[int]Result),
	}
	a.cond = sync.NewCond(&a.mu)
	a.wg.Add(1)
	go a.run()
	return a
}

// Submit enqueues a tile for background decoding. Non-blocking.
func (a *Assistant) Submit(j Job) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopping {
		return
	}
	a.pending = append(a.pending, j)
	a.cond.Broadcast()
}

// Drain collects all currently completed results, in completion order,
// and clears them from the assistant's result set. Used as a prefetch
// hint by the cache.
func (a *Assistant) Drain() []Result {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Result, 0, len(a.doneOrd))
	for _, idx := range a.doneOrd {
		out = append(out, a.done[idx])
		delete(a.done, idx)
	}
	a.doneOrd = a.doneOrd[:0]
	return out
}

// WaitFor blocks until tileIndex's decode completes (if it was submitted),
// returning its result. ok is false if tileIndex was never submitted and
// never will complete (callers should fall back to a synchronous read).
func (a *Assistant) WaitFor(tileIndex int) (Result, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for {
		if r, ok := a.done[tileIndex]; ok {
			delete(a.done, tileIndex)
			a.removeFromOrder(tileIndex)
			return r, true
		}
		if !a.isPendingOrInFlightLocked(tileIndex) {
			return Result{}, false
		}
		a.cond.Wait()
	}
}

func (a *Assistant) removeFromOrder(tileIndex int) {
	for i, idx := range a.doneOrd {
		if idx == tileIndex {
			a.doneOrd = append(a.doneOrd[:i], a.doneOrd[i+1:]...)
			return
		}
	}
}

func (a *Assistant) isPendingOrInFlightLocked(tileIndex int) bool {
	for _, j := range a.pending {
		if j.TileIndex == tileIndex {
			return true
		}
	}
	return a.inFlight == tileIndex
}

// WaitForCompletion blocks until the pending queue and any in-flight job
// have drained; the codec master must be quiescent before the application
// thread touches it directly.
func (a *Assistant) WaitForCompletion() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for len(a.pending) > 0 || a.inFlight != noTile {
		a.cond.Wait()
	}
}

// Stop signals the worker to exit after finishing any in-progress decode,
// drains the queue, and joins. Cooperative: it does not interrupt a decode
// already underway.
func (a *Assistant) Stop() {
	a.mu.Lock()
	if a.stopping {
		a.mu.Unlock()
		a.wg.Wait()
		return
	}
	a.stopping = true
	a.cond.Broadcast()
	a.mu.Unlock()
	a.wg.Wait()
}

const noTile = -1

func (a *Assistant) run() {
	defer a.wg.Done()
	for {
		a.mu.Lock()
		for len(a.pending) == 0 && !a.stopping {
			a.cond.Wait()
		}
		if len(a.pending) == 0 && a.stopping {
			a.mu.Unlock()
			a.cond.Broadcast()
			return
		}
		job := a.pending[0]
		a.pending = a.pending[1:]
		a.inFlight = job.TileIndex
		a.mu.Unlock()

		tile := raster.NewTile(job.TileIndex, job.NRows, job.NCols, job.Specs)
		err := tile.Decode(job.Payload, a.master)

		a.mu.Lock()
		a.inFlight = noTile
		if err != nil {
			if a.verbose {
				log.Printf("gvrs: background decode of tile %d failed: %v", job.TileIndex, err)
			}
			if a.onErr != nil {
				a.onErr(job.TileIndex, err)
			}
			a.mu.Unlock()
			a.cond.Broadcast()
			continue
		}
		a.done[job.TileIndex] = Result{TileIndex: job.TileIndex, Tile: tile}
		a.doneOrd = append(a.doneOrd, job.TileIndex)
		a.mu.Unlock()
		a.cond.Broadcast()
	}
}
