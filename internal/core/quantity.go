package core

import (
	"fmt"
	"sync"
)

const DefaultMaxQuantity = 100

// ClampQuantity limits q to [0, max].
func ClampQuantity(q, max int) int {
	if q < 0 {
		return 0
	}
	if q > max {
		return max
	}
	return q
}

// QuantityEditor holds the per-code copy counts of a print dialog. A zero
// count keeps the code listed but excludes it from the job.
type QuantityEditor struct {
	mu    sync.RWMutex
	items []PrintItem
	qty   map[string]int
	max   int
}

func NewQuantityEditor(items []PrintItem, max int) *QuantityEditor {
	if max < 1 {
		max = DefaultMaxQuantity
	}
	e := &QuantityEditor{
		items: make([]PrintItem, len(items)),
		qty:   make(map[string]int, len(items)),
		max:   max,
	}
	copy(e.items, items)
	for _, item := range items {
		e.qty[item.Code] = ClampQuantity(item.Qty, max)
	}
	return e
}

func (e *QuantityEditor) Max() int {
	return e.max
}

func (e *QuantityEditor) Set(code string, q int) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.qty[code]; !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownCode, code)
	}
	e.qty[code] = ClampQuantity(q, e.max)
	return e.qty[code], nil
}

// SetAll applies every count or none of them: an unknown code leaves the
// editor unchanged.
func (e *QuantityEditor) SetAll(quantities map[string]int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for code := range quantities {
		if _, ok := e.qty[code]; !ok {
			return fmt.Errorf("%w: %s", ErrUnknownCode, code)
		}
	}
	for code, q := range quantities {
		e.qty[code] = ClampQuantity(q, e.max)
	}
	return nil
}

func (e *QuantityEditor) Increment(code string) (int, error) {
	return e.adjust(code, 1)
}

func (e *QuantityEditor) Decrement(code string) (int, error) {
	return e.adjust(code, -1)
}

func (e *QuantityEditor) adjust(code string, delta int) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	current, ok := e.qty[code]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownCode, code)
	}
	e.qty[code] = ClampQuantity(current+delta, e.max)
	return e.qty[code], nil
}

func (e *QuantityEditor) Get(code string) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.qty[code]
}

// Total is the number of labels the job will print.
func (e *QuantityEditor) Total() int {
	e.mu.RLock()
	defer e.mu.RUnlock()

	total := 0
	for _, q := range e.qty {
		total += q
	}
	return total
}

// Quantities returns a copy of the per-code counts.
func (e *QuantityEditor) Quantities() map[string]int {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make(map[string]int, len(e.qty))
	for code, q := range e.qty {
		out[code] = q
	}
	return out
}

// Items returns the listed items with their current counts, zeros included.
func (e *QuantityEditor) Items() []PrintItem {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]PrintItem, len(e.items))
	for i, item := range e.items {
		item.Qty = e.qty[item.Code]
		out[i] = item
	}
	return out
}
