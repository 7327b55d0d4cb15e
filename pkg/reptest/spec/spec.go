// Package spec contains constants for the reptest protocol.
package spec

const (
	// RootPath serves the client web page.
	RootPath = "/"
	// EchoPath serves the diagnostic page.
	EchoPath = "/echo"
	// BeginPath starts a run of tests.
	BeginPath = "/begin"
	// DownloadPath selects the download subtest.
	DownloadPath = "/download"
	// DownreportPath receives the client's download measurement.
	DownreportPath = "/downreport"
	// UploadPath selects the upload subtest.
	UploadPath = "/upload"
	// UpreportPath receives the client's upload measurement.
	UpreportPath = "/upreport"

	// MaxJSONLength is the default number of request body bytes retained for
	// JSON decoding. Larger bodies are counted but not kept.
	MaxJSONLength = 2048

	// FillerBlockSize is the size of the block synthetic payloads are cut
	// from. It is the largest chunk a download handler ever writes at once.
	FillerBlockSize = 1 << 14

	// ContentTypeJSON is the content type of TestInfo bodies.
	ContentTypeJSON = "application/json"
	// ContentTypeBinary is the content type of synthetic payloads.
	ContentTypeBinary = "application/octet-stream"

	// ClientPage and EchoPage are the file names looked up in the asset
	// directory for RootPath and EchoPath.
	ClientPage = "client.html"
	EchoPage   = "echo.html"
)

// Names of the configuration fields of a TestInfo.
const (
	IntervalField       = "interval"
	DownloadLengthField = "downloadLength"
	UploadLengthField   = "uploadLength"
)

// Default bounds for configuration fields. Lengths are bytes and the
// interval is seconds.
const (
	DefaultDownloadLength = 20_000_000
	MinDownloadLength     = 1
	MaxDownloadLength     = 1_000_000_000

	DefaultUploadLength = 2_000_000
	MinUploadLength     = 1
	MaxUploadLength     = 1_000_000_000

	DefaultInterval = 3600
	MinInterval     = 10
	MaxInterval     = 86400
)

// SubtestKind indicates the subtest kind
type SubtestKind string

const (
	// SubtestDownload is a download subtest
	SubtestDownload = SubtestKind("download")

	// SubtestUpload is a upload subtest
	SubtestUpload = SubtestKind("upload")
)
