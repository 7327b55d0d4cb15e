// Package report converts JSON-lines logs written by the reptest server and
// client into CSV.
package report

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gocarina/gocsv"
	"github.com/klauspost/compress/gzip"
	"github.com/m-lab/reptest/pkg/reptest/metadata"
	"github.com/m-lab/reptest/pkg/reptest/model"
)

const (
	// TimeFormat is the layout of formatted millisecond times.
	TimeFormat = "2006-01-02 15:04:05.000"

	// maxLineLength is the longest accepted input line.
	maxLineLength = 1 << 16
)

// Row is a CSV row. Field order is column order.
type Row struct {
	TestID         string `csv:"testID"`
	ExternalIP     string `csv:"externalIP"`
	TestBegin      string `csv:"testBegin"`
	TestNumber     string `csv:"testNumber"`
	Pathname       string `csv:"pathname"`
	Interval       string `csv:"interval"`
	DownloadLength string `csv:"downloadLength"`
	UploadLength   string `csv:"uploadLength"`

	ClientReceiveLength string `csv:"clientReceiveLength"`
	ServerReceiveLength string `csv:"serverReceiveLength"`
	UploadReceiveLength string `csv:"uploadReceiveLength"`

	ClientTimestamp     string `csv:"clientTimestamp"`
	ClientRequestBegin  string `csv:"clientRequestBegin"`
	ClientRequestEnd    string `csv:"clientRequestEnd"`
	ClientResponseBegin string `csv:"clientResponseBegin"`
	ClientResponseEnd   string `csv:"clientResponseEnd"`
	ServerTimestamp     string `csv:"serverTimestamp"`
	ServerRequestBegin  string `csv:"serverRequestBegin"`
	ServerRequestEnd    string `csv:"serverRequestEnd"`
	ServerResponseBegin string `csv:"serverResponseBegin"`
	ServerResponseEnd   string `csv:"serverResponseEnd"`

	Error string `csv:"error"`
}

// Options control the conversion.
type Options struct {
	// Raw disables time formatting: times are written as milliseconds since
	// the Unix epoch.
	Raw bool
	// Location is the time zone of formatted times. If nil, time.Local is used.
	Location *time.Location
}

// Stats summarize a conversion.
type Stats struct {
	Rows    int
	Skipped int
}

// NewReader returns a reader of the uncompressed content of r, which may or
// may not be gzip-compressed.
func NewReader(r io.Reader) (io.Reader, error) {
	br := bufio.NewReader(r)
	magic, err := br.Peek(2)
	if err == nil && magic[0] == 0x1f && magic[1] == 0x8b {
		return gzip.NewReader(br)
	}
	return br, nil
}

// Convert reads one TestInfo per line from r and writes a CSV table with a
// header row to w. Empty lines are ignored. Lines that are not JSON objects
// are skipped with a warning.
func Convert(r io.Reader, w io.Writer, opts Options) (Stats, error) {
	var stats Stats
	in, err := NewReader(r)
	if err != nil {
		return stats, fmt.Errorf("cannot read input: %w", err)
	}
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 4096), maxLineLength)

	rows := []*Row{}
	line := 0
	for scanner.Scan() {
		line++
		b := bytes.TrimSpace(scanner.Bytes())
		if len(b) == 0 {
			continue
		}
		info, err := metadata.Decode(b)
		if err != nil {
			log.Warn("skipping line", "line", line, "error", err)
			stats.Skipped++
			continue
		}
		rows = append(rows, NewRow(info, opts))
	}
	if err := scanner.Err(); err != nil {
		return stats, fmt.Errorf("line %d: %w", line+1, err)
	}
	if err := gocsv.Marshal(rows, w); err != nil {
		return stats, err
	}
	stats.Rows = len(rows)
	return stats, nil
}

// NewRow formats info as a Row.
func NewRow(info *model.TestInfo, opts Options) *Row {
	f := timeFormatter(opts)
	row := &Row{
		TestID:         info.TestID,
		ExternalIP:     info.ExternalIP,
		TestBegin:      f.millis(info.TestBegin),
		TestNumber:     model.RawText(info.TestNumber),
		Pathname:       info.Pathname,
		Interval:       setting(info.Interval),
		DownloadLength: setting(info.DownloadLength),
		UploadLength:   setting(info.UploadLength),

		ClientReceiveLength: model.RawText(info.ClientReceiveLength),
		ServerReceiveLength: length(info.ServerReceiveLength),
		UploadReceiveLength: length(info.UploadReceiveLength),

		ClientTimestamp:     f.number(info.ClientTimestamp),
		ClientRequestBegin:  f.number(info.ClientRequestBegin),
		ClientRequestEnd:    f.number(info.ClientRequestEnd),
		ClientResponseBegin: f.number(info.ClientResponseBegin),
		ClientResponseEnd:   f.number(info.ClientResponseEnd),
		ServerTimestamp:     f.millis(info.ServerTimestamp),
		ServerRequestBegin:  f.millis(info.ServerRequestBegin),
		ServerRequestEnd:    f.millis(info.ServerRequestEnd),
		ServerResponseBegin: f.millis(info.ServerResponseBegin),
		ServerResponseEnd:   f.millis(info.ServerResponseEnd),
	}
	if info.Error != nil {
		row.Error = info.Error.Err
	}
	return row
}

type formatter struct {
	raw bool
	loc *time.Location
}

func timeFormatter(opts Options) formatter {
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	return formatter{raw: opts.Raw, loc: loc}
}

// millis formats a server time. Zero means unset.
func (f formatter) millis(ms int64) string {
	if ms == 0 {
		return ""
	}
	if f.raw {
		return strconv.FormatInt(ms, 10)
	}
	return time.UnixMilli(ms).In(f.loc).Format(TimeFormat)
}

// number formats a client time. Values that are not integer milliseconds
// are copied as text.
func (f formatter) number(raw json.RawMessage) string {
	if len(raw) == 0 || raw[0] == '"' {
		return model.RawText(raw)
	}
	ms, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return model.RawText(raw)
	}
	return f.millis(ms)
}

func setting(s *model.Setting) string {
	if s == nil || !s.Valid {
		return ""
	}
	return strconv.FormatInt(s.Value, 10)
}

func length(n *int64) string {
	if n == nil {
		return ""
	}
	return strconv.FormatInt(*n, 10)
}
