// Package jobqueue implements the job-queue broker: clients put prioritized
// jobs onto named queues, get the highest-priority job across a set of
// queues (optionally long-polling until one appears), and can delete or
// abort jobs they're holding.
package jobqueue

import (
	"context"
	"encoding/json"
	"sync"
)

// ClientID identifies a connection for the lifetime of the process.
type ClientID uint64

// Job is one unit of work. Task is kept as raw JSON since the broker never
// needs to interpret it.
type Job struct {
	ID       uint64
	Queue    string
	Priority uint64
	Task     json.RawMessage
}

type waiter struct {
	queues []string
	wake   chan struct{}
}

// Broker holds every queue and in-flight job assignment. Within a queue,
// jobs of equal priority are served FIFO (earliest put wins), matching the
// reference implementation's first-match scan.
type Broker struct {
	mu         sync.Mutex
	nextID     uint64
	queues     map[string][]*Job
	clientJobs map[ClientID][]*Job
	waiters    map[ClientID]*waiter
}

// New returns an empty Broker.
func New() *Broker {
	return &Broker{
		nextID:     1,
		queues:     make(map[string][]*Job),
		clientJobs: make(map[ClientID][]*Job),
		waiters:    make(map[ClientID]*waiter),
	}
}

// Put appends a new job to queue and returns its id. It wakes at most one
// client currently long-polling on that queue.
func (b *Broker) Put(queue string, priority uint64, task json.RawMessage) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	job := &Job{ID: b.nextID, Queue: queue, Priority: priority, Task: task}
	b.nextID++
	b.queues[queue] = append(b.queues[queue], job)
	b.wakeOneLocked(queue)
	return job.ID
}

// Get returns the highest-priority job across queues, assigning it to
// clientID. If none is available and wait is true, it blocks (releasing
// the broker lock) until one arrives or ctx is cancelled, re-checking under
// the lock each time it wakes — so a waiter can be woken spuriously by some
// other client's event and simply find nothing yet, without losing its
// place.
func (b *Broker) Get(ctx context.Context, clientID ClientID, queues []string, wait bool) (*Job, bool) {
	b.mu.Lock()
	if job, ok := b.takeHighestLocked(clientID, queues); ok {
		b.mu.Unlock()
		return job, true
	}
	if !wait {
		b.mu.Unlock()
		return nil, false
	}

	w := &waiter{queues: queues, wake: make(chan struct{}, 1)}
	b.waiters[clientID] = w
	b.mu.Unlock()

	for {
		select {
		case <-ctx.Done():
			b.mu.Lock()
			delete(b.waiters, clientID)
			b.mu.Unlock()
			return nil, false
		case <-w.wake:
		}

		b.mu.Lock()
		if job, ok := b.takeHighestLocked(clientID, queues); ok {
			delete(b.waiters, clientID)
			b.mu.Unlock()
			return job, true
		}
		// Woken for a different queue/job; re-register and keep waiting.
		b.waiters[clientID] = w
		b.mu.Unlock()
	}
}

// takeHighestLocked finds and removes the highest-priority job across
// queues, assigning it to clientID. Must be called with mu held.
func (b *Broker) takeHighestLocked(clientID ClientID, queues []string) (*Job, bool) {
	var best *Job
	var bestQueue string
	var bestIndex int

	for _, q := range queues {
		jobs := b.queues[q]
		for i, j := range jobs {
			if best == nil || j.Priority > best.Priority {
				best, bestQueue, bestIndex = j, q, i
			}
		}
	}
	if best == nil {
		return nil, false
	}

	jobs := b.queues[bestQueue]
	b.queues[bestQueue] = append(jobs[:bestIndex], jobs[bestIndex+1:]...)
	b.clientJobs[clientID] = append(b.clientJobs[clientID], best)
	return best, true
}

// Delete removes a job by id from wherever it currently lives (queued or
// held by some client). Reports whether it found one.
func (b *Broker) Delete(jobID uint64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	removed := false
	for q, jobs := range b.queues {
		for i, j := range jobs {
			if j.ID == jobID {
				b.queues[q] = append(jobs[:i], jobs[i+1:]...)
				removed = true
				break
			}
		}
	}
	for c, jobs := range b.clientJobs {
		for i, j := range jobs {
			if j.ID == jobID {
				b.clientJobs[c] = append(jobs[:i], jobs[i+1:]...)
				removed = true
				break
			}
		}
	}
	return removed
}

// Abort requeues a job clientID is currently holding. Reports an error if
// the client isn't holding that job.
func (b *Broker) Abort(clientID ClientID, jobID uint64) (ok bool, errMsg string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	held := b.clientJobs[clientID]
	idx := -1
	for i, j := range held {
		if j.ID == jobID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false, "client not working on this job"
	}

	job := held[idx]
	b.clientJobs[clientID] = append(held[:idx], held[idx+1:]...)
	b.queues[job.Queue] = append(b.queues[job.Queue], job)
	b.wakeOneLocked(job.Queue)
	return true, ""
}

// Disconnect requeues every job clientID was holding, waking one waiter per
// requeued job.
func (b *Broker) Disconnect(clientID ClientID) {
	b.mu.Lock()
	defer b.mu.Unlock()

	jobs := b.clientJobs[clientID]
	delete(b.clientJobs, clientID)
	delete(b.waiters, clientID)

	for _, job := range jobs {
		b.queues[job.Queue] = append(b.queues[job.Queue], job)
		b.wakeOneLocked(job.Queue)
	}
}

// wakeOneLocked wakes the first waiter (by map iteration) whose requested
// queues include queue, and forgets it so it isn't woken twice for the same
// opportunity. Must be called with mu held.
func (b *Broker) wakeOneLocked(queue string) {
	for id, w := range b.waiters {
		for _, q := range w.queues {
			if q == queue {
				select {
				case w.wake <- struct{}{}:
				default:
				}
				delete(b.waiters, id)
				return
			}
		}
	}
}
