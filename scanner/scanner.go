// Copyright (C) 2025 The certificate-transparency authors.
//
// This Source Code Form is subject to the terms of the Mozilla
// Public License, v. 2.0. If a copy of the MPL was not distributed
// with this file, You can obtain one at http://mozilla.org/MPL/2.0/.
//
// This software is distributed WITHOUT A WARRANTY OF ANY KIND.
// See the Mozilla Public License for details.

// Package scanner retrieves a large entry range from a CT log by
// splitting it into download jobs, fetching the jobs on concurrent
// workers with retry, and delivering every entry to a callback in
// strict index order.  Retry policy lives here, layered above the
// ctclient core, which performs none itself.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ekasper/certificate-transparency/ctclient"
)

const defaultJobSize = 1000

// errLogExhausted signals that the log returned fewer entries than the
// requested range holds; the scan ends normally at that point.
var errLogExhausted = errors.New("log exhausted before end of range")

// Options configures a Scanner.
type Options struct {
	// JobSize is the number of entries per download job.  Defaults to
	// 1000, matching what most logs will serve in one response.
	JobSize uint64

	// BatchSize is the per-request batch size used inside each job;
	// 0 issues one unsplit request per job.
	BatchSize uint64

	// Workers is the number of download jobs fetched concurrently.
	// Defaults to 1.
	Workers int

	// MaxRetries bounds the retries of a failed job; -1 retries
	// forever and 0 fails on the first error.
	MaxRetries int

	// StateDir, if non-empty, is where resume state is persisted so an
	// interrupted scan continues where it left off.
	StateDir string

	Verbose bool
}

// EntryFunc is invoked once per fetched entry, in increasing index
// order.  Returning an error aborts the scan.
type EntryFunc func(index uint64, entry ctclient.Entry) error

type Scanner struct {
	log  ctclient.Log
	name string
	opts Options

	// retryMinSleep is the initial retry backoff; shortened in tests.
	retryMinSleep time.Duration
}

// New creates a Scanner for the given log.  name is used in log
// messages and resume state file names, so it must be unique per log
// and filesystem-safe.
func New(ctlog ctclient.Log, name string, opts Options) *Scanner {
	if opts.JobSize == 0 {
		opts.JobSize = defaultJobSize
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	return &Scanner{
		log:           ctlog,
		name:          name,
		opts:          opts,
		retryMinSleep: 1 * time.Second,
	}
}

// job is one bounded sub-range of the scan, fetched by a single
// worker.
type job struct {
	number     uint64
	begin, end uint64 // inclusive
	entries    []ctclient.Entry
}

// short reports whether the log delivered fewer entries than the job's
// range holds, i.e. the log ended before the requested end.
func (j *job) short() bool {
	return uint64(len(j.entries)) < j.end-j.begin+1
}

// Run scans the inclusive range [start, end], invoking fn for every
// entry in index order.  It returns the number of entries processed in
// this run.  If the log holds fewer entries than requested, the scan
// ends normally at the log's current end.
func (s *Scanner) Run(ctx context.Context, start, end uint64, fn EntryFunc) (uint64, error) {
	if start > end {
		return 0, fmt.Errorf("invalid scan range [%d, %d]", start, end)
	}

	actualStart := start
	var statePath string
	if s.opts.StateDir != "" {
		if err := os.MkdirAll(s.opts.StateDir, 0777); err != nil {
			return 0, fmt.Errorf("error preparing state directory: %w", err)
		}
		statePath = filepath.Join(s.opts.StateDir, fmt.Sprintf("%s-scan-%d-%d.state", s.name, start, end))
		lastProcessed, found, err := readResumeIndex(statePath)
		if err != nil {
			return 0, fmt.Errorf("could not read resume state file: %w", err)
		}
		if found {
			actualStart = lastProcessed + 1
			if s.opts.Verbose {
				log.Printf("%s: resuming scan from index %d", s.name, actualStart)
			}
		} else if s.opts.Verbose {
			log.Printf("%s: starting new scan from index %d", s.name, actualStart)
		}
		if actualStart > end {
			log.Printf("%s: scan has already completed, nothing to do", s.name)
			_ = os.Remove(statePath)
			return 0, nil
		}
	}

	group, gctx := errgroup.WithContext(ctx)
	jobs := make(chan *job)
	completed := make(chan *job, s.opts.Workers)
	var fetchWg sync.WaitGroup

	// Job generation worker.
	group.Go(func() error {
		defer close(jobs)
		var number uint64
		for begin := actualStart; begin <= end; {
			jobEnd := min(begin+s.opts.JobSize-1, end)
			j := &job{number: number, begin: begin, end: jobEnd}
			number++
			select {
			case <-gctx.Done():
				return gctx.Err()
			case jobs <- j:
			}
			begin = jobEnd + 1
		}
		return nil
	})

	// Download workers.
	fetchWg.Add(s.opts.Workers)
	for i := 0; i < s.opts.Workers; i++ {
		group.Go(func() error {
			defer fetchWg.Done()
			for j := range jobs {
				if err := s.fetchJob(gctx, j); err != nil {
					return err
				}
				select {
				case <-gctx.Done():
					return gctx.Err()
				case completed <- j:
				}
			}
			return nil
		})
	}

	// Coordinator to close the completed channel once all workers are
	// done.
	group.Go(func() error {
		fetchWg.Wait()
		close(completed)
		return nil
	})

	// Delivery worker: reassembles jobs into index order and saves
	// progress after each one.
	var processed uint64
	group.Go(func() error {
		pending := make(map[uint64]*job)
		var nextNumber uint64
		for j := range completed {
			pending[j.number] = j
			for {
				next, ok := pending[nextNumber]
				if !ok {
					break
				}
				delete(pending, nextNumber)
				nextNumber++

				for offset, entry := range next.entries {
					index := next.begin + uint64(offset)
					if err := fn(index, entry); err != nil {
						return fmt.Errorf("error processing entry %d: %w", index, err)
					}
				}
				processed += uint64(len(next.entries))

				if statePath != "" && len(next.entries) > 0 {
					lastProcessed := next.begin + uint64(len(next.entries)) - 1
					if err := writeTextFile(statePath, strconv.FormatUint(lastProcessed, 10), 0666); err != nil {
						log.Printf("CRITICAL: failed to save resume state: %v", err)
						return err
					}
					if s.opts.Verbose {
						log.Printf("%s: progress saved, last processed index: %d", s.name, lastProcessed)
					}
				}

				if next.short() {
					return errLogExhausted
				}
			}
		}
		return nil
	})

	err := group.Wait()
	if errors.Is(err, errLogExhausted) {
		err = nil
	}
	if err == nil {
		if statePath != "" {
			_ = os.Remove(statePath)
		}
		if s.opts.Verbose {
			log.Printf("%s: scan completed, %d entries processed", s.name, processed)
		}
	}
	return processed, err
}

// collectConsumer buffers a job's entries as its producer delivers
// them.
type collectConsumer struct {
	entries []ctclient.Entry
}

func (c *collectConsumer) Write(entries []ctclient.Entry) {
	c.entries = append(c.entries, entries...)
}

// fetchJob downloads one job's range, retrying the whole job on
// failure.  A retry refetches from the job's beginning; nothing from a
// failed attempt is kept.
func (s *Scanner) fetchJob(ctx context.Context, j *job) error {
	return s.withRetry(ctx, s.opts.MaxRetries, func() error {
		consumer := &collectConsumer{}
		producer := ctclient.NewEntryProducer(s.log, j.begin, j.end, s.opts.BatchSize)
		result := <-producer.Start(ctx, consumer)
		if result.Err != nil {
			return result.Err
		}
		j.entries = consumer.entries
		return nil
	})
}
