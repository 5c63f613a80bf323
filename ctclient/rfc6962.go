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
	"fmt"
	"net/http"
	"net/url"

	"github.com/ekasper/certificate-transparency/cttypes"
)

// Log is the read surface of a CT log consumed by the fetching
// pipeline.
type Log interface {
	GetSTH(ctx context.Context) (*cttypes.SignedTreeHead, error)

	// GetEntries returns the entries in [startInclusive, endInclusive].
	// The log may return fewer entries than requested; that is not an
	// error at this layer, and the caller decides how to proceed from
	// the count it actually received.
	GetEntries(ctx context.Context, startInclusive, endInclusive uint64) ([]Entry, error)
}

// Entry is one leaf record of the log.  Ownership passes to the
// consumer on delivery.
type Entry struct {
	LeafInput []byte `json:"leaf_input"`
	ExtraData []byte `json:"extra_data"`
}

// RFC6962Log fetches tree heads and entries from a log speaking the
// RFC 6962 monitoring protocol.
type RFC6962Log struct {
	URL *url.URL

	// HTTPClient, if non-nil, is used instead of the default client.
	HTTPClient *http.Client

	// MaxResponseSize bounds every response body; 0 means
	// DefaultMaxResponseSize.  The cap applies uniformly to all
	// requests issued by this client.
	MaxResponseSize int64
}

func (l *RFC6962Log) maxResponseSize() int64 {
	if l.MaxResponseSize > 0 {
		return l.MaxResponseSize
	}
	return DefaultMaxResponseSize
}

func (l *RFC6962Log) GetSTH(ctx context.Context) (*cttypes.SignedTreeHead, error) {
	fullURL := l.URL.JoinPath("/ct/v1/get-sth").String()

	// Pointer fields distinguish an absent field from a zero value.
	var parsed struct {
		TreeSize  *uint64                  `json:"tree_size"`
		Timestamp *uint64                  `json:"timestamp"`
		RootHash  *cttypes.Hash            `json:"sha256_root_hash"`
		Signature *cttypes.DigitallySigned `json:"tree_head_signature"`
	}
	if err := getJSON(ctx, l.HTTPClient, fullURL, l.maxResponseSize(), &parsed); err != nil {
		return nil, err
	}
	switch {
	case parsed.TreeSize == nil:
		return nil, &InvalidResponseError{URL: fullURL, Reason: `missing "tree_size" field`}
	case parsed.Timestamp == nil:
		return nil, &InvalidResponseError{URL: fullURL, Reason: `missing "timestamp" field`}
	case parsed.RootHash == nil:
		return nil, &InvalidResponseError{URL: fullURL, Reason: `missing "sha256_root_hash" field`}
	case parsed.Signature == nil:
		return nil, &InvalidResponseError{URL: fullURL, Reason: `missing "tree_head_signature" field`}
	}
	return &cttypes.SignedTreeHead{
		TreeSize:  *parsed.TreeSize,
		Timestamp: *parsed.Timestamp,
		RootHash:  *parsed.RootHash,
		Signature: *parsed.Signature,
	}, nil
}

func (l *RFC6962Log) GetEntries(ctx context.Context, startInclusive, endInclusive uint64) ([]Entry, error) {
	if startInclusive > endInclusive {
		return nil, fmt.Errorf("invalid entry range [%d, %d]", startInclusive, endInclusive)
	}
	fullURL := l.URL.JoinPath("/ct/v1/get-entries").String() + fmt.Sprintf("?start=%d&end=%d", startInclusive, endInclusive)

	var parsed struct {
		Entries []struct {
			LeafInput *[]byte `json:"leaf_input"`
			ExtraData *[]byte `json:"extra_data"`
		} `json:"entries"`
	}
	if err := getJSON(ctx, l.HTTPClient, fullURL, l.maxResponseSize(), &parsed); err != nil {
		return nil, err
	}
	if parsed.Entries == nil {
		return nil, &InvalidResponseError{URL: fullURL, Reason: `missing "entries" field`}
	}
	if requested := endInclusive - startInclusive + 1; uint64(len(parsed.Entries)) > requested {
		return nil, &InvalidResponseError{URL: fullURL, Reason: fmt.Sprintf("server returned %d entries when at most %d were requested", len(parsed.Entries), requested)}
	}

	entries := make([]Entry, len(parsed.Entries))
	for i, entry := range parsed.Entries {
		if entry.LeafInput == nil {
			return nil, &InvalidResponseError{URL: fullURL, Reason: fmt.Sprintf(`entry %d is missing the "leaf_input" field`, i)}
		}
		if entry.ExtraData == nil {
			return nil, &InvalidResponseError{URL: fullURL, Reason: fmt.Sprintf(`entry %d is missing the "extra_data" field`, i)}
		}
		entries[i] = Entry{LeafInput: *entry.LeafInput, ExtraData: *entry.ExtraData}
	}
	return entries, nil
}
