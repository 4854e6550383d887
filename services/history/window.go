// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package history

// Window is a fixed-size circular buffer that keeps the newest items.
//
// # Description
//
// Push is O(1). When the window is full the oldest item is overwritten,
// which is how the rolling history file stays bounded.
//
// # Thread Safety
//
// NOT safe for concurrent use; caller must synchronize.
type Window[T any] struct {
	data  []T
	head  int // next write position
	count int
}

// NewWindow creates a window holding at most capacity items. A capacity
// below 1 is raised to 1.
func NewWindow[T any](capacity int) *Window[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Window[T]{data: make([]T, capacity)}
}

// Push adds item, evicting the oldest item when full.
func (w *Window[T]) Push(item T) {
	w.data[w.head] = item
	w.head = (w.head + 1) % len(w.data)
	if w.count < len(w.data) {
		w.count++
	}
}

// Len returns the number of items held.
func (w *Window[T]) Len() int { return w.count }

// Cap returns the capacity.
func (w *Window[T]) Cap() int { return len(w.data) }

// Slice returns a copy of the items from oldest to newest.
func (w *Window[T]) Slice() []T {
	if w.count == 0 {
		return nil
	}
	out := make([]T, 0, w.count)
	start := (w.head - w.count + len(w.data)) % len(w.data)
	for i := 0; i < w.count; i++ {
		out = append(out, w.data[(start+i)%len(w.data)])
	}
	return out
}

// Newest returns up to n items, newest first.
func (w *Window[T]) Newest(n int) []T {
	if n <= 0 || w.count == 0 {
		return nil
	}
	if n > w.count {
		n = w.count
	}
	out := make([]T, n)
	for i := 0; i < n; i++ {
		idx := w.head - 1 - i
		if idx < 0 {
			idx += len(w.data)
		}
		out[i] = w.data[idx]
	}
	return out
}
