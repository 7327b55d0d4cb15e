package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/handlers"
	"github.com/m-lab/go/bytecount"
	"github.com/m-lab/go/flagx"
	"github.com/m-lab/go/prometheusx"
	"github.com/m-lab/go/rtx"
	"github.com/m-lab/reptest/internal/handler"
	"github.com/m-lab/reptest/internal/netx"
	"github.com/m-lab/reptest/internal/telemetry"
	"github.com/m-lab/reptest/pkg/reptest/metadata"
	"github.com/m-lab/reptest/pkg/reptest/model"
	"github.com/m-lab/reptest/pkg/reptest/spec"
	"github.com/m-lab/reptest/pkg/version"
)

var (
	flagHost           = flag.String("host", "", "Listen host. Empty means all interfaces")
	flagPort           = flag.Int("port", 8080, "Listen port")
	flagAssets         = flag.String("assets", "./static", "Directory holding client.html and echo.html")
	flagTelemetry      = flag.String("telemetry", "-", "Path of the telemetry log, '-' for stdout. A .gz suffix compresses it")
	flagTelemetryQueue = flag.Int("telemetry.queue", telemetry.DefaultQueueSize, "Number of telemetry records that can be pending")
	flagAccessLog      = flag.Bool("access-log", false, "Write an Apache combined access log to stderr")
	flagReadTimeout    = flag.Duration("read-timeout", 10*time.Minute, "Maximum duration for reading a request, including its body")
	flagWriteTimeout   = flag.Duration("write-timeout", 10*time.Minute, "Maximum duration for writing a response")
	flagIdleTimeout    = flag.Duration("idle-timeout", 2*time.Minute, "Maximum time to wait for the next request on a keep-alive connection")
	flagDebug          = flag.Bool("debug", false, "Enable debug logging")

	flagJSONLimit       = bytecount.ByteCount(spec.MaxJSONLength)
	flagDownloadDefault = bytecount.ByteCount(spec.DefaultDownloadLength)
	flagDownloadMin     = bytecount.ByteCount(spec.MinDownloadLength)
	flagDownloadMax     = bytecount.ByteCount(spec.MaxDownloadLength)
	flagUploadDefault   = bytecount.ByteCount(spec.DefaultUploadLength)
	flagUploadMin       = bytecount.ByteCount(spec.MinUploadLength)
	flagUploadMax       = bytecount.ByteCount(spec.MaxUploadLength)

	flagIntervalDefault = flag.Int64("interval.default", spec.DefaultInterval, "Default interval between test cycles, in seconds")
	flagIntervalMin     = flag.Int64("interval.min", spec.MinInterval, "Minimum interval between test cycles, in seconds")
	flagIntervalMax     = flag.Int64("interval.max", spec.MaxInterval, "Maximum interval between test cycles, in seconds")
)

func init() {
	flag.Var(&flagJSONLimit, "json-limit", "Number of request body bytes retained for JSON decoding")
	flag.Var(&flagDownloadDefault, "download.default", "Default download length")
	flag.Var(&flagDownloadMin, "download.min", "Minimum download length")
	flag.Var(&flagDownloadMax, "download.max", "Maximum download length")
	flag.Var(&flagUploadDefault, "upload.default", "Default upload length")
	flag.Var(&flagUploadMin, "upload.min", "Minimum upload length")
	flag.Var(&flagUploadMax, "upload.max", "Maximum upload length")
}

// bounds returns the field bounds configured through flags.
func bounds() metadata.Bounds {
	return metadata.Bounds{
		spec.IntervalField: {
			Default: *flagIntervalDefault,
			Min:     *flagIntervalMin,
			Max:     *flagIntervalMax,
		},
		spec.DownloadLengthField: {
			Default: int64(flagDownloadDefault),
			Min:     int64(flagDownloadMin),
			Max:     int64(flagDownloadMax),
		},
		spec.UploadLengthField: {
			Default: int64(flagUploadDefault),
			Min:     int64(flagUploadMin),
			Max:     int64(flagUploadMax),
		},
	}
}

// withMiddleware wraps h with panic recovery and, optionally, access logging.
func withMiddleware(h http.Handler, accessLog bool) http.Handler {
	h = handlers.RecoveryHandler(handlers.PrintRecoveryStack(true))(h)
	if accessLog {
		h = handlers.CombinedLoggingHandler(os.Stderr, h)
	}
	return h
}

// httpServer creates a new *http.Server with explicit Read, Write and Idle
// timeouts, the provided address and handler.
//
// This server can only be used with a net.Listener that returns netx.ConnInfo
// after accepting a new connection.
func httpServer(addr string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:    addr,
		Handler: h,
		// NOTE: set absolute read and write timeouts for server connections.
		// The write timeout bounds the longest download a client can get.
		ReadTimeout:  *flagReadTimeout,
		WriteTimeout: *flagWriteTimeout,
		IdleTimeout:  *flagIdleTimeout,
		ConnContext:  netx.WithConnInfo,
	}
}

func main() {
	flag.Parse()
	rtx.Must(flagx.ArgsFromEnv(flag.CommandLine), "Could not parse env args")

	// Initialize logging and metrics.
	log.SetReportCaller(true)
	log.SetReportTimestamp(true)
	if *flagDebug {
		log.SetLevel(log.DebugLevel)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b := bounds()
	rtx.Must(b.Validate(), "Invalid bounds")

	promSrv := prometheusx.MustServeMetrics()
	defer promSrv.Close()

	sink, err := telemetry.Open(*flagTelemetry, *flagTelemetryQueue)
	rtx.Must(err, "Could not open telemetry log %q", *flagTelemetry)
	defer func() {
		if err := sink.Close(); err != nil {
			log.Error("failed to close telemetry log", "error", err)
		}
	}()
	start := time.Now()
	sink.Record(model.ServerEvent{
		ServerTimestamp: model.Millis(start),
		StartTime:       start.Format(time.RFC1123),
	})

	h := handler.New(handler.Config{
		AssetDir:      *flagAssets,
		MaxJSONLength: int(flagJSONLimit),
		Bounds:        b,
	}, sink)
	srv := httpServer(net.JoinHostPort(*flagHost, strconv.Itoa(*flagPort)),
		withMiddleware(h, *flagAccessLog))

	tcpl, err := net.Listen("tcp", srv.Addr)
	rtx.Must(err, "failed to create listener")
	l := netx.NewListener(tcpl.(*net.TCPListener))
	addr := l.Addr().(*net.TCPAddr)
	log.Info("About to listen for reptest clients", "version", version.Version,
		"endpoint", addr.String(), "assets", *flagAssets)
	sink.Record(model.ServerEvent{
		ServerTimestamp: model.Millis(time.Now()),
		Host:            *flagHost,
		Port:            addr.Port,
	})

	go func() {
		err := srv.Serve(l)
		if !errors.Is(err, http.ErrServerClosed) {
			rtx.Must(err, "Could not start server")
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("server did not shut down cleanly", "error", err)
	}
}
