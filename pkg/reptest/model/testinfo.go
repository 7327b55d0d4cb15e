// Package model contains the data types exchanged by reptest clients and
// servers.
package model

import (
	"encoding/json"
	"time"
)

// TestInfo is the metadata record exchanged in both directions on every
// request. The server keeps no state between requests: everything it needs
// to know about a test run travels inside this record.
//
// Server-stamped times are Unix milliseconds and are omitted when zero.
// Client-stamped values are never interpreted by the server and are kept as
// the literal the client sent. Decoding is lenient, see UnmarshalJSON.
type TestInfo struct {
	TestID        string `json:"testID,omitempty"`
	ExternalIP    string `json:"externalIP,omitempty"`
	OldExternalIP string `json:"oldExternalIP,omitempty"`
	Pathname      string `json:"pathname,omitempty"`

	TestBegin           int64 `json:"testBegin,omitempty"`
	ServerTimestamp     int64 `json:"serverTimestamp,omitempty"`
	ServerRequestBegin  int64 `json:"serverRequestBegin,omitempty"`
	ServerRequestEnd    int64 `json:"serverRequestEnd,omitempty"`
	ServerResponseBegin int64 `json:"serverResponseBegin,omitempty"`
	ServerResponseEnd   int64 `json:"serverResponseEnd,omitempty"`

	ServerReceiveLength *int64 `json:"serverReceiveLength,omitempty"`
	UploadReceiveLength *int64 `json:"uploadReceiveLength,omitempty"`

	TestNumber            json.RawMessage `json:"testNumber,omitempty"`
	ClientTimestamp       json.RawMessage `json:"clientTimestamp,omitempty"`
	ClientRequestBegin    json.RawMessage `json:"clientRequestBegin,omitempty"`
	ClientRequestEnd      json.RawMessage `json:"clientRequestEnd,omitempty"`
	ClientResponseBegin   json.RawMessage `json:"clientResponseBegin,omitempty"`
	ClientResponseEnd     json.RawMessage `json:"clientResponseEnd,omitempty"`
	ClientReceiveLength   json.RawMessage `json:"clientReceiveLength,omitempty"`
	DownloadReceiveLength json.RawMessage `json:"downloadReceiveLength,omitempty"`

	Interval       *Setting `json:"interval,omitempty"`
	DownloadLength *Setting `json:"downloadLength,omitempty"`
	UploadLength   *Setting `json:"uploadLength,omitempty"`

	Error *Fault `json:"error,omitempty"`
}

// Fault describes an error that occurred while serving a request.
type Fault struct {
	ErrorTime int64  `json:"errorTime"`
	Err       string `json:"err"`
}

// NewFault returns a Fault for msg at time t.
func NewFault(t time.Time, msg string) *Fault {
	return &Fault{
		ErrorTime: t.UnixMilli(),
		Err:       msg,
	}
}

// ErrorEntry is the record logged for failures that happen before a TestInfo
// can be built, such as a connection reset while reading a request body.
type ErrorEntry struct {
	ClientIP  string `json:"clientIP,omitempty"`
	ErrorTime int64  `json:"errorTime"`
	Error     string `json:"error"`
}

// ServerEvent is the record logged when the server starts and when it starts
// listening.
type ServerEvent struct {
	ServerTimestamp int64  `json:"serverTimestamp"`
	StartTime       string `json:"startTime,omitempty"`
	Host            string `json:"host,omitempty"`
	Port            int    `json:"port,omitempty"`
}

// Millis converts t to Unix milliseconds, the time unit used on the wire.
func Millis(t time.Time) int64 {
	return t.UnixMilli()
}

// Int64 returns a pointer to v. It is a convenience for the length fields.
func Int64(v int64) *int64 {
	return &v
}
