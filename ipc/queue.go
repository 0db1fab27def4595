package ipc

import (
	"slices"
	"sync"

	"farmhand"
)

// Queue is the ordered buffer of actions pending delivery to the worker.
// The supervisor enqueues from its control goroutine while the action
// server dequeues from request handlers, so every operation takes the lock.
// Delivery is strictly FIFO except for EnqueueFront.
type Queue struct {
	mu      sync.Mutex
	actions []farmhand.Action
}

func NewQueue() *Queue {
	return &Queue{}
}

// Enqueue appends an action at the back.
func (q *Queue) Enqueue(a farmhand.Action) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.actions = append(q.actions, a)
}

// EnqueueFront inserts an action at the head, ahead of any pending work.
// Only the shutdown close action uses this.
func (q *Queue) EnqueueFront(a farmhand.Action) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.actions = slices.Insert(q.actions, 0, a)
}

// Dequeue pops the head action. ok is false when the queue is empty.
func (q *Queue) Dequeue() (a farmhand.Action, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.actions) == 0 {
		return farmhand.Action{}, false
	}
	a = q.actions[0]
	q.actions = q.actions[1:]
	return a, true
}

// Len reports the number of pending actions. The supervisor polls this to
// detect that the worker has drained its initialization actions.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.actions)
}
