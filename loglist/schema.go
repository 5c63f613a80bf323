// Copyright (C) 2025 The certificate-transparency authors.
//
// This Source Code Form is subject to the terms of the Mozilla
// Public License, v. 2.0. If a copy of the MPL was not distributed
// with this file, You can obtain one at http://mozilla.org/MPL/2.0/.
//
// This software is distributed WITHOUT A WARRANTY OF ANY KIND.
// See the Mozilla Public License for details.

// Package loglist reads the JSON log list format published by CT log
// list operators, reduced to the fields the fetching tools need.
package loglist

import (
	"strings"
	"time"
)

type List struct {
	Version          string     `json:"version"`
	LogListTimestamp time.Time  `json:"log_list_timestamp"` // Only present in v3 of schema
	Operators        []Operator `json:"operators"`
}

type Operator struct {
	Name  string   `json:"name"`
	Email []string `json:"email"`
	Logs  []Log    `json:"logs"`
}

type Log struct {
	Key         []byte `json:"key"`
	MMD         int    `json:"mmd"`
	URL         string `json:"url"`
	Description string `json:"description"`
	State       State  `json:"state"`

	fileName string
}

type State struct {
	Pending *struct {
		Timestamp time.Time `json:"timestamp"`
	} `json:"pending"`

	Qualified *struct {
		Timestamp time.Time `json:"timestamp"`
	} `json:"qualified"`

	Usable *struct {
		Timestamp time.Time `json:"timestamp"`
	} `json:"usable"`

	Readonly *struct {
		Timestamp time.Time `json:"timestamp"`
	} `json:"readonly"`

	Retired *struct {
		Timestamp time.Time `json:"timestamp"`
	} `json:"retired"`

	Rejected *struct {
		Timestamp time.Time `json:"timestamp"`
	} `json:"rejected"`
}

func (state *State) IsApproved() bool {
	return state.Qualified != nil || state.Usable != nil || state.Readonly != nil
}

// GetCleanName derives a filesystem-safe name from the log's URL, for
// use in state file names and log messages.
func (log *Log) GetCleanName() string {
	if log.fileName != "" {
		return log.fileName
	}

	logEntryPath := log.URL
	logEntryPath = strings.TrimPrefix(logEntryPath, "https://")
	logEntryPath = strings.TrimPrefix(logEntryPath, "http://")
	logEntryPath = strings.Map(func(r rune) rune {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '-' || r == '.' || r == '_' {
			return r
		}
		if r == ':' || r == '/' {
			return '_'
		}
		return -1 // remove this character
	}, logEntryPath)
	logEntryPath = strings.TrimSuffix(logEntryPath, "_")
	log.fileName = logEntryPath

	return log.fileName
}

// AllLogs returns every log in the list, across all operators.
func (list *List) AllLogs() []*Log {
	var logs []*Log
	for i := range list.Operators {
		for j := range list.Operators[i].Logs {
			logs = append(logs, &list.Operators[i].Logs[j])
		}
	}
	return logs
}

// FindByName returns the logs whose description or URL contains the
// given string, case-insensitively.
func (list *List) FindByName(name string) []*Log {
	name = strings.ToLower(name)
	var matches []*Log
	for _, log := range list.AllLogs() {
		if strings.Contains(strings.ToLower(log.Description), name) || strings.Contains(strings.ToLower(log.URL), name) {
			matches = append(matches, log)
		}
	}
	return matches
}
