// Copyright (C) 2025 The certificate-transparency authors.
//
// This Source Code Form is subject to the terms of the Mozilla
// Public License, v. 2.0. If a copy of the MPL was not distributed
// with this file, You can obtain one at http://mozilla.org/MPL/2.0/.
//
// This software is distributed WITHOUT A WARRANTY OF ANY KIND.
// See the Mozilla Public License for details.

// Package ctclient implements a streaming client for RFC 6962
// Certificate Transparency logs: single-request tree head and entry
// retrieval, plus a pull-based EntryProducer that fetches an entry
// range in bounded batches under consumer-driven backpressure.
package ctclient

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"
)

var UserAgent = ""

// NewHTTPClient creates an HTTP client suitable for communicating with CT logs using the default environment proxy settings.
func NewHTTPClient() *http.Client {
	return NewHTTPClientWithProxy(nil)
}

// NewHTTPClientWithProxy creates an HTTP client suitable for communicating with CT logs via a specific proxy.
// If proxyURL is nil, http.ProxyFromEnvironment is used.
func NewHTTPClientWithProxy(proxyURL *url.URL) *http.Client {
	proxyFunc := http.ProxyFromEnvironment
	if proxyURL != nil {
		proxyFunc = http.ProxyURL(proxyURL)
	}

	return &http.Client{
		Transport: &http.Transport{
			Proxy: proxyFunc,
			// Set a specific Dial timeout to fail faster on dead hosts
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout:   15 * time.Second,
			ResponseHeaderTimeout: 30 * time.Second,
			MaxIdleConnsPerHost:   10,
			IdleConnTimeout:       90 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
			TLSClientConfig: &tls.Config{
				// Several logs use certificates that are not widely
				// trusted.  Responses are authenticated by the log's CT
				// public key, not by the TLS layer, so certificate
				// validation buys nothing here.
				InsecureSkipVerify: true,
			},
			ForceAttemptHTTP2: true,
		},
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return errors.New("redirects not followed")
		},
		Timeout: 60 * time.Second, // Overall request timeout
	}
}

// Create an HTTP client suitable for communicating with CT logs.  dialContext, if non-nil, is used for dialing.
func NewDialHTTPClient(dialContext func(context.Context, string, string) (net.Conn, error)) *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			TLSHandshakeTimeout:   15 * time.Second,
			ResponseHeaderTimeout: 30 * time.Second,
			MaxIdleConnsPerHost:   10,
			IdleConnTimeout:       90 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: true,
			},
			DialContext:       dialContext,
			ForceAttemptHTTP2: true,
		},
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return errors.New("redirects not followed")
		},
		Timeout: 60 * time.Second,
	}
}

var defaultHTTPClient = NewHTTPClient()

func SetDefaultHTTPClient(client *http.Client) {
	defaultHTTPClient = client
}

// maxErrorBody bounds how much of a non-200 response is captured for
// the error message.
const maxErrorBody = 8192

func get(ctx context.Context, httpClient *http.Client, fullURL string, maxResponseSize int64) ([]byte, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, err
	}
	request.Header.Set("User-Agent", UserAgent)

	if httpClient == nil {
		httpClient = defaultHTTPClient
	}

	response, err := httpClient.Do(request)
	if err != nil {
		return nil, err
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(response.Body, maxErrorBody))
		return nil, &HTTPError{
			Status:     response.Status,
			StatusCode: response.StatusCode,
			URL:        fullURL,
			Body:       body,
		}
	}

	// A fresh accumulator per request; the deferred Close disconnects
	// the transport as soon as the size cap aborts the copy.
	body := newBodyAccumulator(fullURL, maxResponseSize)
	if _, err := io.Copy(body, response.Body); err != nil {
		var sizeErr *ResponseSizeExceededError
		if errors.As(err, &sizeErr) {
			return nil, err
		}
		return nil, fmt.Errorf("Get %q: error reading response: %w", fullURL, err)
	}
	return body.Result()
}

func getJSON(ctx context.Context, httpClient *http.Client, fullURL string, maxResponseSize int64, response any) error {
	responseBytes, err := get(ctx, httpClient, fullURL, maxResponseSize)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(responseBytes, response); err != nil {
		return &InvalidResponseError{URL: fullURL, Reason: "error parsing response JSON", Err: err}
	}
	return nil
}
