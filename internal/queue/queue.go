package queue

// Queue is the playback order plus a cursor into it. The cursor is always
// a valid index, or 0 when the queue is empty.
//
// A Queue is not safe for concurrent use; the playback engine owns it.
type Queue struct {
	items []Item
	index int
}

// New creates a queue holding items with the cursor at index.
func New(items []Item, index int) *Queue {
	q := &Queue{}
	q.Replace(items, index)
	return q
}

// Items returns a copy of the queue contents.
func (q *Queue) Items() []Item {
	out := make([]Item, len(q.items))
	copy(out, q.items)
	return out
}

// Len returns the number of items.
func (q *Queue) Len() int {
	return len(q.items)
}

// Index returns the cursor.
func (q *Queue) Index() int {
	return q.index
}

// Current returns the item under the cursor.
func (q *Queue) Current() (Item, bool) {
	return q.At(q.index)
}

// At returns the item at i.
func (q *Queue) At(i int) (Item, bool) {
	if i < 0 || i >= len(q.items) {
		return Item{}, false
	}
	return q.items[i], true
}

// IndexOf returns the position of the item with id, or -1.
func (q *Queue) IndexOf(id string) int {
	for i, it := range q.items {
		if it.ID == id {
			return i
		}
	}
	return -1
}

// SetIndex moves the cursor. Out of range indexes are ignored.
func (q *Queue) SetIndex(i int) bool {
	if i < 0 || i >= len(q.items) {
		return false
	}
	q.index = i
	return true
}

// Add appends items. The cursor does not move.
func (q *Queue) Add(items ...Item) {
	q.items = append(q.items, items...)
}

// Remove deletes the item with id and reports where it was and whether the
// cursor pointed at it. Removing the current item leaves the cursor on the
// item that took its place, or on the new last item.
func (q *Queue) Remove(id string) (index int, wasCurrent bool) {
	index = q.IndexOf(id)
	if index < 0 {
		return -1, false
	}
	wasCurrent = index == q.index
	q.items = append(q.items[:index:index], q.items[index+1:]...)

	switch {
	case len(q.items) == 0:
		q.index = 0
	case index < q.index:
		q.index--
	case q.index >= len(q.items):
		q.index = len(q.items) - 1
	}
	return index, wasCurrent
}

// Move reorders one item and keeps the cursor on the same logical item.
// Invalid or equal indexes leave the queue untouched.
func (q *Queue) Move(from, to int) bool {
	n := len(q.items)
	if from < 0 || from >= n || to < 0 || to >= n || from == to {
		return false
	}
	moved := q.items[from]
	if from < to {
		copy(q.items[from:to], q.items[from+1:to+1])
	} else {
		copy(q.items[to+1:from+1], q.items[to:from])
	}
	q.items[to] = moved

	switch {
	case q.index == from:
		q.index = to
	case from < q.index && to >= q.index:
		q.index--
	case from > q.index && to <= q.index:
		q.index++
	}
	return true
}

// Clear empties the queue.
func (q *Queue) Clear() {
	q.items = nil
	q.index = 0
}

// Replace swaps in new contents and puts the cursor at index, clamped.
func (q *Queue) Replace(items []Item, index int) {
	q.items = make([]Item, len(items))
	copy(q.items, items)
	q.index = 0
	if index > 0 && index < len(q.items) {
		q.index = index
	}
	if index >= len(q.items) && len(q.items) > 0 {
		q.index = len(q.items) - 1
	}
}
