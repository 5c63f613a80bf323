// Copyright (C) 2025 The certificate-transparency authors.
//
// This Source Code Form is subject to the terms of the Mozilla
// Public License, v. 2.0. If a copy of the MPL was not distributed
// with this file, You can obtain one at http://mozilla.org/MPL/2.0/.
//
// This software is distributed WITHOUT A WARRANTY OF ANY KIND.
// See the Mozilla Public License for details.

package ctclient

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Consumer receives entries from an EntryProducer.  Write is called
// once per fetched batch, always from the producer's own goroutine, in
// strictly increasing index order, never interleaved across batches.
// A consumer that wants backpressure holds the producer and calls
// Pause/Resume on it; calling Pause from inside Write is the intended
// usage.
type Consumer interface {
	Write(entries []Entry)
}

// Result is the single terminal outcome of a producer run.
type Result struct {
	// Count is the total number of entries delivered to the consumer,
	// including batches delivered before a failure.  Delivered entries
	// are never retracted.
	Count uint64

	// Err is non-nil if the run ended with a failure.
	Err error
}

type producerState int

const (
	producerIdle producerState = iota
	producerFetching
	producerDelivering
	producerPaused
	producerCompleted
	producerFailed
)

// EntryProducer fetches an inclusive entry range in bounded batches,
// one request in flight at a time, and streams each batch to a
// Consumer.  It is a pull producer: Pause withholds the next request
// (it never cancels one already in flight) and Resume continues from
// where the fetch loop left off.
type EntryProducer struct {
	log        Log
	start, end uint64
	batchSize  uint64

	mu     sync.Mutex
	state  producerState
	paused bool
	resume chan struct{}
}

// NewEntryProducer prepares a producer for the inclusive range
// [start, end].  batchSize 0 requests the whole range in a single
// unsplit request.
func NewEntryProducer(log Log, start, end, batchSize uint64) *EntryProducer {
	return &EntryProducer{
		log:       log,
		start:     start,
		end:       end,
		batchSize: batchSize,
	}
}

// Start begins fetching and returns a channel that receives exactly
// one Result once the whole range has been delivered, the log signals
// exhaustion, or an unrecoverable error occurs.  A producer can only
// be started once.
func (p *EntryProducer) Start(ctx context.Context, consumer Consumer) <-chan Result {
	resultCh := make(chan Result, 1)

	p.mu.Lock()
	if p.state != producerIdle {
		p.mu.Unlock()
		resultCh <- Result{Err: errors.New("producer has already been started")}
		return resultCh
	}
	p.state = producerFetching
	p.mu.Unlock()

	go func() {
		count, err := p.run(ctx, consumer)
		p.mu.Lock()
		if err != nil {
			p.state = producerFailed
		} else {
			p.state = producerCompleted
		}
		p.mu.Unlock()
		resultCh <- Result{Count: count, Err: err}
	}()
	return resultCh
}

func (p *EntryProducer) run(ctx context.Context, consumer Consumer) (uint64, error) {
	if p.start > p.end {
		return 0, fmt.Errorf("invalid entry range [%d, %d]", p.start, p.end)
	}

	next := p.start
	var delivered uint64
	for next <= p.end {
		batchEnd := p.end
		if p.batchSize > 0 {
			batchEnd = min(next+p.batchSize-1, p.end)
		}

		p.setState(producerFetching)
		entries, err := p.log.GetEntries(ctx, next, batchEnd)
		if err != nil {
			// The in-flight batch is discarded entirely; batches
			// already delivered stand.
			return delivered, err
		}
		if len(entries) == 0 {
			// A log may lag its advertised size.  An empty 200
			// response means we have reached its current end, which
			// is normal completion rather than a failure.
			return delivered, nil
		}

		// Advance by the count actually received; logs may
		// under-deliver.
		next += uint64(len(entries))
		delivered += uint64(len(entries))

		p.setState(producerDelivering)
		consumer.Write(entries)

		if err := p.waitIfPaused(ctx); err != nil {
			return delivered, err
		}
	}
	return delivered, nil
}

func (p *EntryProducer) setState(state producerState) {
	p.mu.Lock()
	p.state = state
	p.mu.Unlock()
}

// waitIfPaused blocks between batches while the consumer holds the
// producer paused.  No request is in flight during the wait.
func (p *EntryProducer) waitIfPaused(ctx context.Context) error {
	p.mu.Lock()
	paused, resume := p.paused, p.resume
	if paused {
		p.state = producerPaused
	}
	p.mu.Unlock()

	if !paused {
		return nil
	}
	select {
	case <-resume:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pause stops the producer from issuing further batch requests.
// Pausing while already paused, or after the run has finished, is a
// no-op.
func (p *EntryProducer) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.paused || p.state == producerCompleted || p.state == producerFailed {
		return
	}
	p.paused = true
	p.resume = make(chan struct{})
}

// Resume lets a paused producer continue from its next unfetched
// index.  Resuming while not paused is a no-op.
func (p *EntryProducer) Resume() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.paused {
		return
	}
	p.paused = false
	close(p.resume)
}
