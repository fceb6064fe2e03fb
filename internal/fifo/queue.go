// Copyright 2024 The Cockroach Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or
// implied. See the License for the specific language governing
// permissions and limitations under the License.

// Adapted from https://github.com/cockroachdb/fifo/blob/0bbfbd93/queue.go

package fifo

// Queue is a FIFO queue that optionally retains only its newest values. It is
// not safe for concurrent access.
//
// Values live in a linked list of fixed size chunks, each a small ring
// buffer. Drained chunks go to a per-queue spare list and are reused.
type Queue[T any] struct {
	// limit bounds Len when positive. Pushing onto a full queue evicts the
	// front value.
	limit      int
	len        int
	head, tail *chunk[T]
	spare      *chunk[T]
}

// MakeQueue returns a queue retaining at most limit values. A limit of zero
// or less leaves the queue unbounded.
func MakeQueue[T any](limit int) Queue[T] {
	return Queue[T]{limit: limit}
}

func (q *Queue[T]) Len() int {
	return q.len
}

// Full reports whether the next PushBack evicts a value.
func (q *Queue[T]) Full() bool {
	return q.limit > 0 && q.len == q.limit
}

// PushBack appends t. When the queue is full the front value is evicted and
// returned.
func (q *Queue[T]) PushBack(t T) (evicted T, ok bool) {
	if q.Full() {
		evicted, ok = q.PopFront()
	}
	if q.head == nil {
		q.head = q.newChunk()
		q.tail = q.head
	} else if q.tail.full() {
		next := q.newChunk()
		q.tail.next = next
		q.tail = next
	}
	q.tail.push(t)
	q.len++
	return evicted, ok
}

// Front returns the oldest value.
func (q *Queue[T]) Front() (t T, ok bool) {
	if q.len == 0 {
		return t, false
	}
	return q.head.buf[q.head.head], true
}

// PopFront removes and returns the oldest value.
func (q *Queue[T]) PopFront() (t T, ok bool) {
	if q.len == 0 {
		return t, false
	}
	t = q.head.pop()
	if q.head.len == 0 {
		drained := q.head
		q.head = drained.next
		if q.head == nil {
			q.tail = nil
		}
		q.release(drained)
	}
	q.len--
	return t, true
}

// AppendTo appends the values to dst, oldest first.
func (q *Queue[T]) AppendTo(dst []T) []T {
	for c := q.head; c != nil; c = c.next {
		for i := int32(0); i < c.len; i++ {
			dst = append(dst, c.buf[(c.head+i)%chunkSize])
		}
	}
	return dst
}

func (q *Queue[T]) newChunk() *chunk[T] {
	if q.spare == nil {
		return new(chunk[T])
	}
	c := q.spare
	q.spare = c.next
	c.next = nil
	return c
}

func (q *Queue[T]) release(c *chunk[T]) {
	c.head, c.len = 0, 0
	c.next = q.spare
	q.spare = c
}

// The chunk size amortizes allocations without holding on to much memory
// when T is large.
const chunkSize = 128

type chunk[T any] struct {
	buf       [chunkSize]T
	head, len int32
	next      *chunk[T]
}

func (c *chunk[T]) full() bool {
	return c.len == chunkSize
}

func (c *chunk[T]) push(t T) {
	c.buf[(c.head+c.len)%chunkSize] = t
	c.len++
}

func (c *chunk[T]) pop() T {
	t := c.buf[c.head]
	var zero T
	c.buf[c.head] = zero
	c.head = (c.head + 1) % chunkSize
	c.len--
	return t
}
