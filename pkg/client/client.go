// Package client implements a reptest client. A client contacts the server
// once to obtain a test ID and the server's view of its configuration, then
// runs cycles of one download test and one upload test until it is stopped.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/m-lab/go/memoryless"
	"github.com/m-lab/reptest/internal/producer"
	"github.com/m-lab/reptest/pkg/reptest/metadata"
	"github.com/m-lab/reptest/pkg/reptest/model"
	"github.com/m-lab/reptest/pkg/reptest/spec"
	"github.com/m-lab/reptest/pkg/version"
)

const (
	// DefaultInterval is the default time between two test cycles.
	DefaultInterval = spec.DefaultInterval * time.Second

	// DefaultDownloadLength is the default number of bytes per download.
	DefaultDownloadLength = spec.DefaultDownloadLength

	// DefaultUploadLength is the default number of bytes per upload.
	DefaultUploadLength = spec.DefaultUploadLength

	libraryName = "reptest-client"

	// maxReplyLength bounds the size of a JSON reply from the server.
	maxReplyLength = 1 << 16

	// readBufferSize is the size of the buffer used to drain downloads.
	readBufferSize = spec.FillerBlockSize
)

var (
	// ErrNotStarted is returned by the subtests if Begin has not been called.
	ErrNotStarted = errors.New("test not started: call Begin first")

	libraryVersion = version.Version
)

// Result is the client-side measurement of one download or upload.
type Result struct {
	// Subtest is the kind of subtest.
	Subtest spec.SubtestKind
	// Time is the time the subtest started.
	Time time.Time
	// Bytes is the number of payload bytes transferred.
	Bytes int64
	// Elapsed is the measured transfer time.
	Elapsed time.Duration
}

// Title returns the capitalized subtest name.
func (r Result) Title() string {
	s := string(r.Subtest)
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// Megabytes returns the number of transferred bytes in millions.
func (r Result) Megabytes() float64 {
	return float64(r.Bytes) / 1e6
}

// Mbps returns the rate in megabits per second, counting payload bits only.
// It returns 0 if no time elapsed.
func (r Result) Mbps() float64 {
	if r.Elapsed <= 0 {
		return 0
	}
	return r.Megabytes() * 8 / r.Elapsed.Seconds()
}

// Client is a client for the reptest protocol. It is not safe for concurrent
// use: cycles are meant to run one at a time.
type Client struct {
	// ClientName is the name of the client sent to the server as part of the user-agent.
	ClientName string
	// ClientVersion is the version of the client sent to the server as part of the user-agent.
	ClientVersion string

	config     Config
	httpClient *http.Client
	now        func() time.Time

	// State adopted from the server's replies.
	testID         string
	externalIP     string
	testBegin      int64
	testNumber     int
	interval       int64
	downloadLength int64
	uploadLength   int64
}

// makeUserAgent creates the user agent string.
func makeUserAgent(clientName, clientVersion string) string {
	return clientName + "/" + clientVersion + " " + libraryName + "/" + libraryVersion
}

// New returns a new Client with the provided client name, version and config.
// It panics if clientName or clientVersion are empty.
func New(clientName, clientVersion string, config Config) *Client {
	if clientName == "" || clientVersion == "" {
		panic("client name and version must be non-empty")
	}
	config.Server = strings.TrimSuffix(config.Server, "/")
	if config.Interval <= 0 {
		config.Interval = DefaultInterval
	}
	if config.DownloadLength <= 0 {
		config.DownloadLength = DefaultDownloadLength
	}
	if config.UploadLength <= 0 {
		config.UploadLength = DefaultUploadLength
	}
	if config.Emitter == nil {
		config.Emitter = HumanReadable{}
	}
	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		ClientName:    clientName,
		ClientVersion: clientVersion,

		config:     config,
		httpClient: httpClient,
		now:        time.Now,

		interval:       int64(config.Interval / time.Second),
		downloadLength: config.DownloadLength,
		uploadLength:   config.UploadLength,
	}
}

// TestID returns the test ID assigned by the server, or an empty string
// before Begin.
func (c *Client) TestID() string {
	return c.testID
}

// Interval returns the time between two test cycles.
func (c *Client) Interval() time.Duration {
	return time.Duration(c.interval) * time.Second
}

// DownloadLength returns the number of bytes requested per download.
func (c *Client) DownloadLength() int64 {
	return c.downloadLength
}

// UploadLength returns the number of bytes sent per upload.
func (c *Client) UploadLength() int64 {
	return c.uploadLength
}

// millis returns the current time in milliseconds since the Unix epoch.
func (c *Client) millis() int64 {
	return model.Millis(c.now())
}

func (c *Client) jsMillis() json.RawMessage {
	return model.Number(c.millis())
}

// newInfo returns a TestInfo carrying the client's current state. Every
// setting is sent on every request: the server fills in defaults for absent
// ones, and the reply is adopted.
func (c *Client) newInfo(path string) *model.TestInfo {
	return &model.TestInfo{
		ExternalIP:      c.externalIP,
		TestID:          c.testID,
		TestBegin:       c.testBegin,
		Pathname:        path,
		ClientTimestamp: c.jsMillis(),
		Interval:        model.NewSetting(c.interval),
		DownloadLength:  model.NewSetting(c.downloadLength),
		UploadLength:    model.NewSetting(c.uploadLength),
	}
}

// post sends body to path. The caller must close the response body.
func (c *Client) post(ctx context.Context, path, contentType string, body io.Reader,
	length int64) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.Server+path, body)
	if err != nil {
		return nil, err
	}
	req.ContentLength = length
	if length == 0 {
		req.Body = http.NoBody
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("User-Agent", makeUserAgent(c.ClientName, c.ClientVersion))
	return c.httpClient.Do(req)
}

// exchange posts info as JSON to path and decodes the server's reply.
func (c *Client) exchange(ctx context.Context, path string, info *model.TestInfo) (*model.TestInfo, error) {
	b, err := metadata.Encode(info)
	if err != nil {
		return nil, err
	}
	resp, err := c.post(ctx, path, spec.ContentTypeJSON, bytes.NewReader(b), int64(len(b)))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	defer resp.Body.Close()
	return readReply(path, resp)
}

// readReply decodes a TestInfo reply and turns any error the server reported
// into an error.
func readReply(path string, resp *http.Response) (*model.TestInfo, error) {
	b, err := io.ReadAll(io.LimitReader(resp.Body, maxReplyLength))
	if err != nil {
		return nil, fmt.Errorf("%s: reading reply: %w", path, err)
	}
	reply, err := metadata.Decode(b)
	if err != nil {
		return nil, fmt.Errorf("%s: status %d: %w", path, resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := http.StatusText(resp.StatusCode)
		if reply.Error != nil {
			msg = reply.Error.Err
		}
		return reply, fmt.Errorf("%s: status %d: %s", path, resp.StatusCode, msg)
	}
	return reply, nil
}

// adopt copies the state the server has the last word on.
func (c *Client) adopt(reply *model.TestInfo) {
	if reply.TestID != "" {
		c.testID = reply.TestID
	}
	if reply.ExternalIP != "" {
		c.externalIP = reply.ExternalIP
	}
	if reply.TestBegin != 0 {
		c.testBegin = reply.TestBegin
	}
	c.interval = reply.Interval.Get(c.interval)
	c.downloadLength = reply.DownloadLength.Get(c.downloadLength)
	c.uploadLength = reply.UploadLength.Get(c.uploadLength)
}

// Begin makes the initial contact with the server, which assigns the test
// ID and may revise the requested interval and lengths.
func (c *Client) Begin(ctx context.Context) error {
	info := c.newInfo(spec.BeginPath)
	info.TestBegin = c.millis()
	reply, err := c.exchange(ctx, spec.BeginPath, info)
	if err != nil {
		return fmt.Errorf("failed to begin communication with %s: %w", c.config.Server, err)
	}
	c.adopt(reply)
	c.config.Emitter.OnRecord(reply)
	c.config.Emitter.OnBegin(reply)
	return nil
}

// DownloadTest downloads downloadLength bytes and reports the measurement to
// the server.
func (c *Client) DownloadTest(ctx context.Context) (Result, error) {
	if c.testID == "" {
		return Result{}, ErrNotStarted
	}
	info := c.newInfo(spec.DownloadPath)
	info.TestNumber = model.Number(int64(c.testNumber))
	b, err := metadata.Encode(info)
	if err != nil {
		return Result{}, err
	}

	start := c.now()
	info.ClientRequestBegin = c.jsMillis()
	resp, err := c.post(ctx, spec.DownloadPath, spec.ContentTypeJSON, bytes.NewReader(b), int64(len(b)))
	if err != nil {
		return Result{}, fmt.Errorf("failed to download data from %s: %w", c.config.Server, err)
	}
	defer resp.Body.Close()
	info.ClientRequestEnd = c.jsMillis()
	if resp.StatusCode != http.StatusOK {
		_, err := readReply(spec.DownloadPath, resp)
		return Result{}, err
	}
	info.ClientResponseBegin = c.jsMillis()
	responseBegin := c.now()
	n, err := io.CopyBuffer(io.Discard, resp.Body, make([]byte, readBufferSize))
	responseEnd := c.now()
	info.ClientResponseEnd = model.Number(model.Millis(responseEnd))
	info.ClientReceiveLength = model.Number(n)
	if err != nil {
		return Result{}, fmt.Errorf("download interrupted after %d bytes: %w", n, err)
	}
	c.config.Emitter.OnRecord(info)

	result := Result{
		Subtest: spec.SubtestDownload,
		Time:    start,
		Bytes:   n,
		Elapsed: responseEnd.Sub(responseBegin),
	}
	c.config.Emitter.OnResult(result)
	return result, c.report(ctx, spec.DownreportPath, info)
}

// UploadTest uploads uploadLength bytes and reports the measurement to the
// server.
func (c *Client) UploadTest(ctx context.Context) (Result, error) {
	if c.testID == "" {
		return Result{}, ErrNotStarted
	}
	info := c.newInfo(spec.UploadPath)
	info.TestNumber = model.Number(int64(c.testNumber))

	start := c.now()
	info.ClientRequestBegin = c.jsMillis()
	resp, err := c.post(ctx, spec.UploadPath, spec.ContentTypeBinary,
		producer.New(uint64(c.uploadLength)), c.uploadLength)
	if err != nil {
		return Result{}, fmt.Errorf("failed to upload data to %s: %w", c.config.Server, err)
	}
	defer resp.Body.Close()
	info.ClientRequestEnd = c.jsMillis()
	info.ClientResponseBegin = c.jsMillis()
	reply, err := readReply(spec.UploadPath, resp)
	end := c.now()
	info.ClientResponseEnd = model.Number(model.Millis(end))
	if err != nil {
		return Result{}, err
	}
	info.UploadReceiveLength = reply.UploadReceiveLength
	c.config.Emitter.OnRecord(info)

	result := Result{
		Subtest: spec.SubtestUpload,
		Time:    start,
		Bytes:   c.uploadLength,
		Elapsed: end.Sub(start),
	}
	c.config.Emitter.OnResult(result)
	return result, c.report(ctx, spec.UpreportPath, info)
}

// report sends the completed measurement to the server.
func (c *Client) report(ctx context.Context, path string, info *model.TestInfo) error {
	info.ClientTimestamp = c.jsMillis()
	info.Pathname = path
	reply, err := c.exchange(ctx, path, info)
	if err != nil {
		return fmt.Errorf("failed to report result to %s: %w", c.config.Server, err)
	}
	c.adopt(reply)
	c.config.Emitter.OnRecord(reply)
	return nil
}

// Cycle runs one download test and one upload test, then increments the test
// number.
func (c *Client) Cycle(ctx context.Context) error {
	defer func() { c.testNumber++ }()
	if _, err := c.DownloadTest(ctx); err != nil {
		return err
	}
	_, err := c.UploadTest(ctx)
	return err
}

// Run calls Begin and then runs test cycles separated by randomized delays
// averaging the server-approved interval. It returns after Count cycles, or
// when ctx is canceled. Errors of individual cycles are emitted and do not
// stop the run.
func (c *Client) Run(ctx context.Context) error {
	if err := c.Begin(ctx); err != nil {
		return err
	}
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	cycles := 0
	interval := c.Interval()
	if interval < time.Second {
		interval = time.Second
	}
	err := memoryless.Run(runCtx, func() {
		if err := c.Cycle(runCtx); err != nil && runCtx.Err() == nil {
			c.config.Emitter.OnError(err)
		}
		cycles++
		if c.config.Count > 0 && cycles >= c.config.Count {
			cancel()
			return
		}
		c.config.Emitter.OnDebug(fmt.Sprintf("cycle %d complete, next in about %v", cycles, interval))
	}, memoryless.Config{
		// Randomized delays avoid aligning every client of a server to the
		// same schedule.
		Expected: interval,
		Min:      interval / 2,
		Max:      interval * 2,
	})
	if err != nil {
		return err
	}
	return ctx.Err()
}
