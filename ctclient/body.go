// Copyright (C) 2025 The certificate-transparency authors.
//
// This Source Code Form is subject to the terms of the Mozilla
// Public License, v. 2.0. If a copy of the MPL was not distributed
// with this file, You can obtain one at http://mozilla.org/MPL/2.0/.
//
// This software is distributed WITHOUT A WARRANTY OF ANY KIND.
// See the Mozilla Public License for details.

package ctclient

import "bytes"

// DefaultMaxResponseSize is the response body cap applied when a log
// client is not configured with an explicit maximum.
const DefaultMaxResponseSize = 50 * 1024 * 1024

// bodyAccumulator collects one response body as it streams in,
// enforcing a maximum size.  It resolves exactly once: after the cap
// trips, further chunks are discarded, the buffer is released, and
// Result keeps returning the same error no matter how many more chunks
// arrive.  Returning an error from Write stops io.Copy, which causes
// the caller to close the response body and hence the connection.
type bodyAccumulator struct {
	url string
	max int64
	buf bytes.Buffer
	err error
}

func newBodyAccumulator(url string, max int64) *bodyAccumulator {
	return &bodyAccumulator{url: url, max: max}
}

func (a *bodyAccumulator) Write(p []byte) (int, error) {
	if a.err != nil {
		return 0, a.err
	}
	if int64(a.buf.Len())+int64(len(p)) > a.max {
		a.err = &ResponseSizeExceededError{URL: a.url, MaxSize: a.max}
		a.buf.Reset()
		return 0, a.err
	}
	return a.buf.Write(p)
}

// Result returns the accumulated body, or the size-exceeded error if
// the cap was hit at any point during the stream.
func (a *bodyAccumulator) Result() ([]byte, error) {
	if a.err != nil {
		return nil, a.err
	}
	return a.buf.Bytes(), nil
}
