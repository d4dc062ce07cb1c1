package stream

import (
	"context"
	"sync"

	"canlidoviz/internal/application/port"
	"canlidoviz/internal/domain"
)

type fakeResolver struct {
	mu    sync.Mutex
	data  map[domain.Category]map[int]string
	errs  map[domain.Category]error
	calls map[domain.Category]int
}

func newFakeResolver() *fakeResolver {
	return &fakeResolver{
		data:  make(map[domain.Category]map[int]string),
		errs:  make(map[domain.Category]error),
		calls: make(map[domain.Category]int),
	}
}

func (f *fakeResolver) Resolve(ctx context.Context, c domain.Category) (map[int]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[c]++
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := f.errs[c]; err != nil {
		return nil, err
	}
	out := make(map[int]string, len(f.data[c]))
	for k, v := range f.data[c] {
		out[k] = v
	}
	return out, nil
}

func (f *fakeResolver) callCount(c domain.Category) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[c]
}

type emitCall struct {
	event   string
	payload any
}

type fakeTransport struct {
	mu         sync.Mutex
	h          port.TransportHandler
	connectErr error
	emitErr    error
	emits      []emitCall
	closes     int

	emitted chan emitCall
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{emitted: make(chan emitCall, 16)}
}

func (f *fakeTransport) Connect(ctx context.Context, h port.TransportHandler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connectErr != nil {
		return f.connectErr
	}
	f.h = h
	return nil
}

func (f *fakeTransport) Emit(ctx context.Context, event string, payload any) error {
	f.mu.Lock()
	f.emits = append(f.emits, emitCall{event: event, payload: payload})
	err := f.emitErr
	f.mu.Unlock()

	f.emitted <- emitCall{event: event, payload: payload}
	return err
}

func (f *fakeTransport) ID() string { return "" }

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	return nil
}

func (f *fakeTransport) handler() port.TransportHandler {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.h
}

func (f *fakeTransport) emitCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.emits)
}

func (f *fakeTransport) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closes
}
