// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package auth

import (
	"context"
	"runtime"
	"sync"

	"github.com/samber/oops"
)

// ErrPoolClosed is returned when work is submitted to a closed HashPool.
var ErrPoolClosed = oops.Code("HASH_POOL_CLOSED").Errorf("hash pool is closed")

// HashPool runs key derivations on a fixed set of workers so slow hashing
// cannot starve request handlers. It implements PasswordHasher.
type HashPool struct {
	inner PasswordHasher
	jobs  chan func()

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewHashPool starts workers goroutines around inner. workers <= 0 means runtime.NumCPU().
func NewHashPool(inner PasswordHasher, workers int) *HashPool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	p := &HashPool{
		inner: inner,
		jobs:  make(chan func()),
	}
	p.wg.Add(workers)
	for range workers {
		go p.work()
	}
	return p
}

func (p *HashPool) work() {
	defer p.wg.Done()
	for job := range p.jobs {
		job()
	}
}

// submit hands job to a worker, giving up if ctx ends first.
func (p *HashPool) submit(ctx context.Context, job func()) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}
	select {
	case p.jobs <- job:
		return nil
	case <-ctx.Done():
		return oops.Code("HASH_POOL_CANCELLED").Wrap(ctx.Err())
	}
}

// Hash derives a record on a pool worker.
func (p *HashPool) Hash(ctx context.Context, password string) (string, error) {
	type result struct {
		record string
		err    error
	}
	done := make(chan result, 1)
	err := p.submit(ctx, func() {
		record, err := p.inner.Hash(ctx, password)
		done <- result{record, err}
	})
	if err != nil {
		return "", err
	}
	select {
	case r := <-done:
		return r.record, r.err
	case <-ctx.Done():
		return "", oops.Code("HASH_POOL_CANCELLED").Wrap(ctx.Err())
	}
}

// Verify checks a password on a pool worker. Returns false if ctx ends first.
func (p *HashPool) Verify(ctx context.Context, password, record string) bool {
	done := make(chan bool, 1)
	if err := p.submit(ctx, func() {
		done <- p.inner.Verify(ctx, password, record)
	}); err != nil {
		return false
	}
	select {
	case ok := <-done:
		return ok
	case <-ctx.Done():
		return false
	}
}

// NeedsUpgrade delegates to the wrapped hasher; it does no derivation.
func (p *HashPool) NeedsUpgrade(record string) bool {
	return p.inner.NeedsUpgrade(record)
}

// Close stops accepting work and waits for running derivations to finish.
func (p *HashPool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.jobs)
	p.mu.Unlock()
	p.wg.Wait()
}
