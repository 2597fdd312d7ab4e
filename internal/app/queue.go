package app

import "github.com/focusduo/focusduo/internal/domain"

// WaitQueue is the FIFO holding area for users seeking an unspecified
// partner. Entries are user snapshots taken at enqueue time; the matchmaker
// prunes against the registry before every match attempt.
type WaitQueue struct {
	entries []domain.User
}

func NewWaitQueue() *WaitQueue {
	return &WaitQueue{}
}

func (q *WaitQueue) Len() int { return len(q.entries) }

// Entries returns a copy of the queue in FIFO order.
func (q *WaitQueue) Entries() []domain.User {
	out := make([]domain.User, len(q.entries))
	copy(out, q.entries)
	return out
}

func (q *WaitQueue) Enqueue(u domain.User) {
	q.entries = append(q.entries, u)
}

// Remove drops the entry with the given connection id, if present.
func (q *WaitQueue) Remove(id domain.UserID) bool {
	for i, e := range q.entries {
		if e.ID == id {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			return true
		}
	}
	return false
}

func (q *WaitQueue) Contains(id domain.UserID) bool {
	for _, e := range q.entries {
		if e.ID == id {
			return true
		}
	}
	return false
}

// Prune retains only entries accepted by keep, preserving order.
func (q *WaitQueue) Prune(keep func(domain.User) bool) {
	fresh := q.entries[:0]
	for _, e := range q.entries {
		if keep(e) {
			fresh = append(fresh, e)
		}
	}
	q.entries = fresh
}

// Pop removes and returns the oldest entry.
func (q *WaitQueue) Pop() (domain.User, bool) {
	if len(q.entries) == 0 {
		return domain.User{}, false
	}
	head := q.entries[0]
	q.entries = q.entries[1:]
	return head, true
}
