// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package expstat

import (
	"context"
	"sync"
	"sync/atomic"
)

type throttle struct {
	Max       int
	wg        sync.WaitGroup
	ch        chan bool
	err       atomic.Value
	setupOnce sync.Once
	errorOnce sync.Once
}

func (t *throttle) Acquire() {
	t.setupOnce.Do(func() { t.ch = make(chan bool, t.Max) })
	t.wg.Add(1)
	t.ch <- true
}

func (t *throttle) Release() {
	t.wg.Done()
	<-t.ch
}

func (t *throttle) Report(err error) {
	if err != nil {
		t.errorOnce.Do(func() { t.err.Store(err) })
	}
}

func (t *throttle) Err() error {
	err, _ := t.err.Load().(error)
	return err
}

func (t *throttle) Wait() error {
	t.wg.Wait()
	return t.Err()
}

// forEach calls fn(i) for i in [0,n) using at most max goroutines,
// and returns the first error. It stops starting new calls once ctx
// is done or an error has been reported.
func forEach(ctx context.Context, max, n int, fn func(i int) error) error {
	if max < 1 {
		max = 1
	}
	th := throttle{Max: max}
	for i := 0; i < n; i++ {
		if th.Err() != nil {
			break
		}
		if err := ctx.Err(); err != nil {
			th.Report(err)
			break
		}
		i := i
		th.Acquire()
		go func() {
			defer th.Release()
			th.Report(fn(i))
		}()
	}
	return th.Wait()
}
