package callpath

import (
	"context"
	"sync"
)

// Interceptor transforms a value on its way through a call.
//
// Interceptors receive the call context of the invocation:
//
//	func auth(ctx context.Context, call *callpath.CallContext, req *callpath.RequestOptions) (*callpath.RequestOptions, error) {
//	    req.Header.Set("Authorization", "Bearer "+token)
//	    return req, nil
//	}
//
// Returning a nil value keeps the previous one, so an interceptor that
// only observes or mutates in place can return nil, nil. A non-nil error
// aborts the call.
type Interceptor[T any] func(ctx context.Context, call *CallContext, v *T) (*T, error)

// InterceptorManager is an ordered list of interceptors shared by every
// call made through one client. It is safe for concurrent use.
type InterceptorManager[T any] struct {
	mu      sync.RWMutex
	next    uint64
	entries []interceptorEntry[T]
}

type interceptorEntry[T any] struct {
	id uint64
	fn Interceptor[T]
}

// Add appends fn and returns a function that removes it again.
// Removing more than once is a no-op.
func (m *InterceptorManager[T]) Add(fn Interceptor[T]) (remove func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next++
	id := m.next
	m.entries = append(m.entries, interceptorEntry[T]{id: id, fn: fn})
	return func() { m.remove(id) }
}

func (m *InterceptorManager[T]) remove(id uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, e := range m.entries {
		if e.id == id {
			m.entries = append(m.entries[:i:i], m.entries[i+1:]...)
			return
		}
	}
}

// Len returns the number of registered interceptors.
func (m *InterceptorManager[T]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Run folds v through the interceptors in registration order.
// The list is read once when Run starts; interceptors added or removed
// while it runs take effect on the next Run.
func (m *InterceptorManager[T]) Run(ctx context.Context, call *CallContext, v *T) (*T, error) {
	m.mu.RLock()
	entries := make([]interceptorEntry[T], len(m.entries))
	copy(entries, m.entries)
	m.mu.RUnlock()

	for _, e := range entries {
		var err error
		if v, err = apply(ctx, call, e.fn, v); err != nil {
			return v, err
		}
	}
	return v, nil
}

// apply runs one interceptor, keeping v when it returns nil.
func apply[T any](ctx context.Context, call *CallContext, fn Interceptor[T], v *T) (*T, error) {
	if fn == nil {
		return v, nil
	}
	out, err := fn(ctx, call, v)
	if err != nil {
		return v, err
	}
	if out == nil {
		return v, nil
	}
	return out, nil
}
