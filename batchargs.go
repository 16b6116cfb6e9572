// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package mas5

import (
	"context"
	"flag"
	"fmt"
	"sync"
)

// batchArgs splits a list of input chips into batches, each of which
// can run in its own container.
type batchArgs struct {
	batch   int
	batches int
}

func (b *batchArgs) Flags(flags *flag.FlagSet) {
	flags.IntVar(&b.batches, "batches", 1, "number of batches")
	flags.IntVar(&b.batch, "batch", -1, "only do `N`th batch (-1 = all)")
}

// Args returns the flags that select the given batch.
func (b *batchArgs) Args(batch int) []string {
	return []string{
		fmt.Sprintf("-batches=%d", b.batches),
		fmt.Sprintf("-batch=%d", batch),
	}
}

// RunBatches calls runFunc once per selected batch, concurrently, and
// returns the outputs and the first error. An error cancels the
// context passed to the other calls.
func (b *batchArgs) RunBatches(ctx context.Context, runFunc func(context.Context, int) (string, error)) ([]string, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	outputs := make([]string, b.batches)
	var eg errGroup
	for batch := 0; batch < b.batches; batch++ {
		if b.batch >= 0 && b.batch != batch {
			continue
		}
		batch := batch
		eg.Add(1)
		go func() {
			defer eg.Done()
			out, err := runFunc(ctx, batch)
			outputs[batch] = out
			if err != nil {
				eg.Error(fmt.Errorf("batch %d: %w", batch, err))
				cancel()
			}
		}()
	}
	err := eg.Wait()
	if b.batch >= 0 {
		outputs = outputs[b.batch : b.batch+1]
	}
	return outputs, err
}

// Slice returns the part of in that belongs to the selected batch, or
// all of in if no batch is selected.
func (b *batchArgs) Slice(in []string) []string {
	if b.batches <= 1 || b.batch < 0 {
		return in
	}
	batchsize := (len(in) + b.batches - 1) / b.batches
	if batchsize*b.batch >= len(in) {
		return nil
	}
	out := in[batchsize*b.batch:]
	if len(out) > batchsize {
		out = out[:batchsize]
	}
	return out
}

// errGroup is a WaitGroup that remembers the first error reported.
type errGroup struct {
	sync.WaitGroup
	err     error
	errOnce sync.Once
}

func (eg *errGroup) Error(err error) {
	if err != nil {
		eg.errOnce.Do(func() { eg.err = err })
	}
}

func (eg *errGroup) Wait() error {
	eg.WaitGroup.Wait()
	return eg.err
}
