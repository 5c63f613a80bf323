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
	"bytes"
	"fmt"
)

// HTTPError is returned by `get` when the HTTP status is not 200 OK,
// including when the log reports that a requested entry range lies
// beyond its current tree size.
type HTTPError struct {
	Status     string
	StatusCode int
	URL        string
	Body       []byte
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("Get %q: %s (%q)", e.URL, e.Status, bytes.TrimSpace(e.Body))
}

// ResponseSizeExceededError is returned when a response body exceeds
// the configured maximum size.  This is a local defensive limit, not a
// condition reported by the log.
type ResponseSizeExceededError struct {
	URL     string
	MaxSize int64
}

func (e *ResponseSizeExceededError) Error() string {
	return fmt.Sprintf("Get %q: response body exceeds maximum size of %d bytes", e.URL, e.MaxSize)
}

// InvalidResponseError is returned when a response cannot be used: the
// JSON doesn't parse, a required field is absent, or a field fails to
// decode.  One bad field invalidates the entire response.
type InvalidResponseError struct {
	URL    string
	Reason string
	Err    error
}

func (e *InvalidResponseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("Get %q: invalid response: %s: %s", e.URL, e.Reason, e.Err)
	}
	return fmt.Sprintf("Get %q: invalid response: %s", e.URL, e.Reason)
}

func (e *InvalidResponseError) Unwrap() error {
	return e.Err
}
