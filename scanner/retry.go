// Copyright (C) 2025 The certificate-transparency authors.
//
// This Source Code Form is subject to the terms of the Mozilla
// Public License, v. 2.0. If a copy of the MPL was not distributed
// with this file, You can obtain one at http://mozilla.org/MPL/2.0/.
//
// This software is distributed WITHOUT A WARRANTY OF ANY KIND.
// See the Mozilla Public License for details.

package scanner

import (
	"context"
	"errors"
	"fmt"
	mathrand "math/rand"
	"time"
)

// withRetry runs f until it succeeds, backing off exponentially with
// jitter between attempts.  maxRetries of -1 retries forever; 0 fails
// on the first error.
func (s *Scanner) withRetry(ctx context.Context, maxRetries int, f func() error) error {
	minSleep := s.retryMinSleep
	numRetries := 0
	for ctx.Err() == nil {
		err := f()
		if err == nil {
			return nil
		}

		// If the context was canceled, exit immediately.
		if errors.Is(err, context.Canceled) || ctx.Err() != nil {
			return err
		}

		if maxRetries != -1 && numRetries >= maxRetries {
			if numRetries == 0 {
				return err
			}
			return fmt.Errorf("%w (retried %d times)", err, numRetries)
		}

		sleepTime := minSleep + time.Duration(mathrand.Int63n(int64(minSleep)))
		if err := sleep(ctx, sleepTime); err != nil {
			return err
		}
		minSleep = min(minSleep*2, 1*time.Minute) // Cap the sleep time
		numRetries++
	}
	return ctx.Err()
}

func sleep(ctx context.Context, duration time.Duration) error {
	timer := time.NewTimer(duration)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
