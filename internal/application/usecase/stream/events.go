package stream

import (
	"slices"
	"sync"

	"canlidoviz/internal/domain"
)

type listener[T any] struct {
	id uint64
	fn T
}

// Events 面向使用方的事件注册表。监听器按注册顺序调用，调用时不持锁，
// 在产生事件的 goroutine 上执行。
type Events struct {
	mu     sync.RWMutex
	nextID uint64

	changed []listener[func(domain.Quote)]
	logs    []listener[func(domain.LogEntry)]
	failed  []listener[func()]
}

// OnCurrencyChanged 注册报价变化监听，返回的函数用于取消注册
func (e *Events) OnCurrencyChanged(fn func(domain.Quote)) func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	id := e.allocID()
	e.changed = append(e.changed, listener[func(domain.Quote)]{id: id, fn: fn})
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		e.changed = without(e.changed, id)
	}
}

func (e *Events) OnLog(fn func(domain.LogEntry)) func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	id := e.allocID()
	e.logs = append(e.logs, listener[func(domain.LogEntry)]{id: id, fn: fn})
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		e.logs = without(e.logs, id)
	}
}

func (e *Events) OnReconnectFailed(fn func()) func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	id := e.allocID()
	e.failed = append(e.failed, listener[func()]{id: id, fn: fn})
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		e.failed = without(e.failed, id)
	}
}

func (e *Events) HasLogListener() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.logs) > 0
}

func (e *Events) emitChanged(q domain.Quote) {
	e.mu.RLock()
	ls := slices.Clone(e.changed)
	e.mu.RUnlock()
	for _, l := range ls {
		l.fn(q)
	}
}

// emitLog 返回是否有监听器收到该条日志
func (e *Events) emitLog(entry domain.LogEntry) bool {
	e.mu.RLock()
	ls := slices.Clone(e.logs)
	e.mu.RUnlock()
	for _, l := range ls {
		l.fn(entry)
	}
	return len(ls) > 0
}

func (e *Events) emitReconnectFailed() {
	e.mu.RLock()
	ls := slices.Clone(e.failed)
	e.mu.RUnlock()
	for _, l := range ls {
		l.fn()
	}
}

// 调用方持有 e.mu
func (e *Events) allocID() uint64 {
	e.nextID++
	return e.nextID
}

func without[T any](ls []listener[T], id uint64) []listener[T] {
	out := make([]listener[T], 0, len(ls))
	for _, l := range ls {
		if l.id != id {
			out = append(out, l)
		}
	}
	return out
}
