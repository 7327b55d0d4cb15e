package client

import (
	"net/http"
	"time"
)

// Config is the configuration for a Client.
type Config struct {
	// Server is the base URL of the server, e.g. http://localhost:8080. A
	// trailing slash is ignored.
	Server string

	// Interval is the requested time between two test cycles. The server may
	// replace it with a value within its bounds, which the client then adopts.
	Interval time.Duration

	// DownloadLength and UploadLength are the requested number of bytes per
	// download and upload. As with Interval, the server has the last word.
	DownloadLength int64
	UploadLength   int64

	// Count is the number of test cycles to run. If set to 0, cycles run
	// until the context is canceled.
	Count int

	// Emitter is the interface used to emit the results of the test. It can be overridden
	// to provide a custom output.
	Emitter Emitter

	// HTTPClient is the client used for all requests. If nil,
	// http.DefaultClient is used.
	HTTPClient *http.Client
}
