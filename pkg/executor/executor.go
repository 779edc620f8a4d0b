// Package executor provides the single-writer serialized task queue the
// persistence core dispatches through — the E1 collaborator from the
// specification.
//
// tapedb is single-threaded cooperative (spec §5): every mutating operation
// (append, compact, close) runs one at a time, in submission order, and
// correctness never depends on a lock beyond that serialization. Executor
// additionally buffers tasks submitted before [Executor.ProcessBuffer] is
// called, modeling the window between construction and a completed Load
// where tasks must queue rather than run against a not-yet-loaded log.
//
// This is a single-process translation of the mutex-ordering discipline the
// teacher codebase uses to serialize writers ahead of cross-process file
// locking (mddb.go's acquireWriteLockWithWalRecover): one mutex guards
// ordering, held for the duration of each task.
package executor

import "sync"

// Task is a unit of serialized work. It returns an error, which Push
// reports back to the caller via the returned completion.
type Task func() error

// Executor serializes Task execution and buffers tasks submitted before the
// first call to [Executor.ProcessBuffer].
//
// The zero value is not usable; construct with [New].
type Executor struct {
	mu sync.Mutex

	bufMu     sync.Mutex
	buffering bool
	buffered  []bufferedTask

	closed bool
}

type bufferedTask struct {
	task Task
	done chan error
}

// New returns an Executor that buffers tasks until [Executor.ProcessBuffer]
// is called.
func New() *Executor {
	return &Executor{buffering: true}
}

// Push submits a task for serialized execution.
//
// If the executor is still buffering (no [Executor.ProcessBuffer] call
// yet), the task is queued and Push blocks until the buffer is drained and
// this task's turn comes, mirroring the spec's requirement that requests
// arriving before load completed are serviced afterward, in order. Once
// draining has started, Push runs the task immediately under the
// executor's single mutex, so at most one task is ever in flight.
func (e *Executor) Push(task Task) error {
	e.bufMu.Lock()
	if e.buffering {
		done := make(chan error, 1)
		e.buffered = append(e.buffered, bufferedTask{task: task, done: done})
		e.bufMu.Unlock()

		return <-done
	}
	e.bufMu.Unlock()

	return e.run(task)
}

// ProcessBuffer releases every task buffered before this call and switches
// the executor into immediate-dispatch mode. Idempotent: calling it again
// is a no-op. Must be called exactly once, after the persistence
// controller's Load has installed the log descriptor.
func (e *Executor) ProcessBuffer() {
	e.bufMu.Lock()
	if !e.buffering {
		e.bufMu.Unlock()

		return
	}

	e.buffering = false
	pending := e.buffered
	e.buffered = nil
	e.bufMu.Unlock()

	for _, bt := range pending {
		bt.done <- e.run(bt.task)
	}
}

// run executes task under the executor's ordering mutex, guaranteeing that
// no two tasks ever overlap and that tasks observe each other's effects in
// submission order.
func (e *Executor) run(task Task) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	return task()
}

// Buffering reports whether the executor is still queuing tasks rather
// than running them.
func (e *Executor) Buffering() bool {
	e.bufMu.Lock()
	defer e.bufMu.Unlock()

	return e.buffering
}
