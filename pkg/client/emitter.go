package client

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/m-lab/reptest/pkg/reptest/model"
)

// timeFormat is the layout of local times in human-readable reports.
const timeFormat = "2006-01-02 15:04:05"

// Emitter is an interface for emitting results.
type Emitter interface {
	// OnBegin is called when the server has answered the begin request.
	OnBegin(info *model.TestInfo)
	// OnRecord is called for every TestInfo sent or received by the client.
	OnRecord(info *model.TestInfo)
	// OnResult is called when a download or upload completes.
	OnResult(Result)
	// OnError is called on errors.
	OnError(err error)
	// OnDebug is called to print debug information.
	OnDebug(msg string)
}

// HumanReadable writes one JSON record per line to Log and a human-readable
// report to Report. Nil writers default to stdout and stderr respectively.
type HumanReadable struct {
	Debug  bool
	Log    io.Writer
	Report io.Writer
}

func (e HumanReadable) log() io.Writer {
	if e.Log == nil {
		return os.Stdout
	}
	return e.Log
}

func (e HumanReadable) report() io.Writer {
	if e.Report == nil {
		return os.Stderr
	}
	return e.Report
}

// OnBegin prints the test ID, the external address and the begin time.
func (e HumanReadable) OnBegin(info *model.TestInfo) {
	fmt.Fprintf(e.report(), "Begin:\n    Test ID = %s\n    External IP = %s\n    Test Begin Time = %s\n\n",
		info.TestID, info.ExternalIP, time.UnixMilli(info.TestBegin).Format(timeFormat))
}

// OnRecord prints info as a single JSON line.
func (e HumanReadable) OnRecord(info *model.TestInfo) {
	b, err := json.Marshal(info)
	if err != nil {
		e.OnError(err)
		return
	}
	fmt.Fprintln(e.log(), string(b))
}

// OnResult prints the transferred megabytes, the duration and the rate.
func (e HumanReadable) OnResult(r Result) {
	fmt.Fprintf(e.report(), "%s\n    Time: %s\n    Megabytes: %.3f\n    Seconds: %.3f\n    Megabits / Second: %.3f\n\n",
		r.Title(), r.Time.Format(timeFormat), r.Megabytes(), r.Elapsed.Seconds(), r.Mbps())
}

// OnError is called on errors.
func (e HumanReadable) OnError(err error) {
	fmt.Fprintln(e.report(), err)
}

// OnDebug is called to print debug information.
func (e HumanReadable) OnDebug(msg string) {
	if e.Debug {
		fmt.Fprintf(e.report(), "DEBUG: %s\n", msg)
	}
}

// Checks that HumanReadable implements Emitter.
var _ Emitter = &HumanReadable{}
