package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/m-lab/go/testingx"
	"github.com/m-lab/reptest/internal/handler"
	"github.com/m-lab/reptest/pkg/reptest/metadata"
	"github.com/m-lab/reptest/pkg/reptest/model"
	"github.com/m-lab/reptest/pkg/reptest/spec"
)

// discardSink drops telemetry records.
type discardSink struct{}

func (discardSink) Record(any) {}

// captureEmitter records everything emitted by a Client.
type captureEmitter struct {
	mu      sync.Mutex
	begins  []*model.TestInfo
	records []*model.TestInfo
	results []Result
	errors  []error
}

func (e *captureEmitter) OnBegin(info *model.TestInfo) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.begins = append(e.begins, info)
}

func (e *captureEmitter) OnRecord(info *model.TestInfo) {
	e.mu.Lock()
	defer e.mu.Unlock()
	cp := *info
	e.records = append(e.records, &cp)
}

func (e *captureEmitter) OnResult(r Result) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.results = append(e.results, r)
}

func (e *captureEmitter) OnError(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.errors = append(e.errors, err)
}

func (e *captureEmitter) OnDebug(string) {}

func setupTestServer(bounds metadata.Bounds) *httptest.Server {
	return httptest.NewServer(handler.New(handler.Config{Bounds: bounds}, discardSink{}))
}

func testBounds() metadata.Bounds {
	return metadata.Bounds{
		spec.IntervalField:       {Default: 1, Min: 1, Max: 60},
		spec.DownloadLengthField: {Default: 1000, Min: 10, Max: 100000},
		spec.UploadLengthField:   {Default: 1000, Min: 10, Max: 50000},
	}
}

func TestNew(t *testing.T) {
	t.Run("new clients have the expected name and version", func(t *testing.T) {
		c := New("test", "v1.0.0", Config{})
		if c.ClientName != "test" || c.ClientVersion != "v1.0.0" {
			t.Errorf("client.New() returned client with wrong name/version")
		}
		if c.Interval() != DefaultInterval || c.DownloadLength() != DefaultDownloadLength ||
			c.UploadLength() != DefaultUploadLength {
			t.Errorf("client.New() did not apply defaults")
		}
	})
	t.Run("empty name panics", func(t *testing.T) {
		defer func() {
			if recover() == nil {
				t.Errorf("client.New() did not panic")
			}
		}()
		New("", "v1.0.0", Config{})
	})
}

func Test_makeUserAgent(t *testing.T) {
	t.Run("generate requested user agent", func(t *testing.T) {
		got := makeUserAgent("clientname", "clientversion")
		expected := fmt.Sprintf("%s/%s %s/%s", "clientname", "clientversion",
			libraryName, libraryVersion)
		if got != expected {
			t.Errorf("makeUserAgent() = %s, want %s", got, expected)
		}
	})
}

func TestClient_Begin(t *testing.T) {
	s := setupTestServer(testBounds())
	defer s.Close()

	e := &captureEmitter{}
	c := New("test", "v1.0.0", Config{
		Server:         s.URL + "/",
		Interval:       time.Hour,
		DownloadLength: 5_000_000,
		UploadLength:   20_000,
		Emitter:        e,
	})
	err := c.Begin(context.Background())
	testingx.Must(t, err, "Begin failed")

	if !strings.HasPrefix(c.TestID(), "127.0.0.1-") {
		t.Errorf("TestID() = %q", c.TestID())
	}
	// The server's bounds win.
	if c.Interval() != 60*time.Second {
		t.Errorf("Interval() = %v, want 60s", c.Interval())
	}
	if c.DownloadLength() != 100000 {
		t.Errorf("DownloadLength() = %d, want 100000", c.DownloadLength())
	}
	if c.UploadLength() != 20_000 {
		t.Errorf("UploadLength() = %d, want 20000", c.UploadLength())
	}
	if len(e.begins) != 1 || e.begins[0].TestBegin == 0 {
		t.Errorf("OnBegin not called as expected: %+v", e.begins)
	}
}

func TestClient_BeginErrors(t *testing.T) {
	s := setupTestServer(testBounds())
	defer s.Close()

	c := New("test", "v1.0.0", Config{Server: s.URL + "/prefix", Emitter: &captureEmitter{}})
	err := c.Begin(context.Background())
	if err == nil || !strings.Contains(err.Error(), "404") {
		t.Errorf("Begin() error = %v, want a 404", err)
	}

	c = New("test", "v1.0.0", Config{Server: "http://127.0.0.1:0", Emitter: &captureEmitter{}})
	if err := c.Begin(context.Background()); err == nil {
		t.Errorf("Begin() against a closed port did not fail")
	}
}

func TestClient_NotStarted(t *testing.T) {
	c := New("test", "v1.0.0", Config{Emitter: &captureEmitter{}})
	if _, err := c.DownloadTest(context.Background()); err != ErrNotStarted {
		t.Errorf("DownloadTest() error = %v, want ErrNotStarted", err)
	}
	if _, err := c.UploadTest(context.Background()); err != ErrNotStarted {
		t.Errorf("UploadTest() error = %v, want ErrNotStarted", err)
	}
}

func TestClient_Cycle(t *testing.T) {
	s := setupTestServer(testBounds())
	defer s.Close()

	e := &captureEmitter{}
	c := New("test", "v1.0.0", Config{
		Server:         s.URL,
		DownloadLength: 65537,
		UploadLength:   40000,
		Emitter:        e,
	})
	testingx.Must(t, c.Begin(context.Background()), "Begin failed")

	for i := 0; i < 2; i++ {
		testingx.Must(t, c.Cycle(context.Background()), "Cycle failed")
	}
	if len(e.results) != 4 {
		t.Fatalf("got %d results, want 4", len(e.results))
	}
	for i, r := range e.results {
		want := Result{Subtest: spec.SubtestDownload, Bytes: 65537}
		if i%2 == 1 {
			want = Result{Subtest: spec.SubtestUpload, Bytes: 40000}
		}
		if r.Subtest != want.Subtest || r.Bytes != want.Bytes {
			t.Errorf("result %d = %+v, want %+v", i, r, want)
		}
	}

	// begin, then (download, downreport, upload, upreport) per cycle.
	if len(e.records) != 9 {
		t.Fatalf("got %d records, want 9", len(e.records))
	}
	download, downreport := e.records[1], e.records[2]
	if string(download.ClientReceiveLength) != "65537" || string(download.TestNumber) != "0" {
		t.Errorf("unexpected download record: %+v", download)
	}
	if downreport.Pathname != spec.DownreportPath || string(downreport.ClientReceiveLength) != "65537" ||
		downreport.TestID != c.TestID() {
		t.Errorf("unexpected downreport reply: %+v", downreport)
	}
	upload := e.records[3]
	if upload.UploadReceiveLength == nil || *upload.UploadReceiveLength != 40000 {
		t.Errorf("unexpected upload record: %+v", upload)
	}
	if string(e.records[7].TestNumber) != "1" {
		t.Errorf("testNumber of second cycle = %s, want 1", e.records[7].TestNumber)
	}
	if len(e.errors) != 0 {
		t.Errorf("unexpected errors: %v", e.errors)
	}
}

func TestClient_KeepsApprovedLengths(t *testing.T) {
	s := setupTestServer(testBounds())
	defer s.Close()

	c := New("test", "v1.0.0", Config{
		Server:         s.URL,
		DownloadLength: 65537,
		UploadLength:   40000,
		Emitter:        &captureEmitter{},
	})
	testingx.Must(t, c.Begin(context.Background()), "Begin failed")
	check := func(stage string) {
		t.Helper()
		if c.DownloadLength() != 65537 || c.UploadLength() != 40000 {
			t.Errorf("after %s: download=%d upload=%d, want 65537 and 40000",
				stage, c.DownloadLength(), c.UploadLength())
		}
	}
	check("begin")
	_, err := c.DownloadTest(context.Background())
	testingx.Must(t, err, "DownloadTest failed")
	check("downreport")
	r, err := c.UploadTest(context.Background())
	testingx.Must(t, err, "UploadTest failed")
	check("upreport")
	if r.Bytes != 40000 {
		t.Errorf("uploaded %d bytes, want 40000", r.Bytes)
	}
	r, err = c.DownloadTest(context.Background())
	testingx.Must(t, err, "DownloadTest failed")
	if r.Bytes != 65537 {
		t.Errorf("second download got %d bytes, want 65537", r.Bytes)
	}
}

func TestClient_Run(t *testing.T) {
	s := setupTestServer(testBounds())
	defer s.Close()

	e := &captureEmitter{}
	c := New("test", "v1.0.0", Config{
		Server:         s.URL,
		Interval:       time.Second,
		DownloadLength: 1000,
		UploadLength:   1000,
		Count:          1,
		Emitter:        e,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	testingx.Must(t, c.Run(ctx), "Run failed")
	if len(e.results) != 2 {
		t.Errorf("got %d results, want 2", len(e.results))
	}
}

func TestResult(t *testing.T) {
	r := Result{Subtest: spec.SubtestDownload, Bytes: 20_000_000, Elapsed: 2 * time.Second}
	if r.Title() != "Download" {
		t.Errorf("Title() = %q", r.Title())
	}
	if r.Megabytes() != 20 {
		t.Errorf("Megabytes() = %f", r.Megabytes())
	}
	if r.Mbps() != 80 {
		t.Errorf("Mbps() = %f", r.Mbps())
	}
	if (Result{Bytes: 1}).Mbps() != 0 {
		t.Errorf("Mbps() without elapsed time must be 0")
	}
}

func TestHumanReadable(t *testing.T) {
	logBuf, reportBuf := &bytes.Buffer{}, &bytes.Buffer{}
	e := HumanReadable{Log: logBuf, Report: reportBuf}

	e.OnRecord(&model.TestInfo{TestID: "id", Pathname: spec.DownloadPath})
	var got map[string]any
	testingx.Must(t, json.Unmarshal(logBuf.Bytes(), &got), "log line is not JSON")
	if got["testID"] != "id" || !strings.HasSuffix(logBuf.String(), "}\n") {
		t.Errorf("unexpected log line %q", logBuf.String())
	}

	e.OnResult(Result{Subtest: spec.SubtestUpload, Bytes: 2_000_000, Elapsed: time.Second})
	for _, want := range []string{"Upload\n", "Megabytes: 2.000", "Seconds: 1.000", "Megabits / Second: 16.000"} {
		if !strings.Contains(reportBuf.String(), want) {
			t.Errorf("report %q does not contain %q", reportBuf.String(), want)
		}
	}

	e.OnDebug("hidden")
	if strings.Contains(reportBuf.String(), "hidden") {
		t.Errorf("debug output printed without Debug")
	}
}
