// Command reptest-client runs repeated download and upload tests against a
// reptest server. The JSON log of every exchange goes to stdout and a
// human-readable report goes to stderr.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/m-lab/go/bytecount"
	"github.com/m-lab/go/flagx"
	"github.com/m-lab/go/rtx"
	"github.com/m-lab/reptest/pkg/client"
	"github.com/m-lab/reptest/pkg/version"
)

const clientName = "reptest-client-go"

var (
	flagServer   = flag.String("server", "", "Server host[:port] or base URL (required)")
	flagInterval = flag.Duration("interval", client.DefaultInterval, "Time between test cycles, subject to the server's bounds")
	flagCount    = flag.Int("count", 0, "Number of test cycles to run, 0 for no limit")
	flagDebug    = flag.Bool("debug", false, "Print debug output")

	flagDownload = bytecount.ByteCount(client.DefaultDownloadLength)
	flagUpload   = bytecount.ByteCount(client.DefaultUploadLength)
)

func init() {
	flag.Var(&flagDownload, "download", "Number of bytes to download, subject to the server's bounds")
	flag.Var(&flagUpload, "upload", "Number of bytes to upload, subject to the server's bounds")
}

// serverURL turns host[:port] into an http URL. Full URLs are kept.
func serverURL(s string) string {
	if strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://") {
		return s
	}
	return "http://" + s
}

func main() {
	flag.Parse()
	rtx.Must(flagx.ArgsFromEnv(flag.CommandLine), "Could not parse env args")

	if *flagServer == "" {
		fmt.Fprintf(os.Stderr, "Usage: %s -server host[:port] [options]\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(1)
	}
	log.SetOutput(os.Stderr)
	if *flagDebug {
		log.SetLevel(log.DebugLevel)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cl := client.New(clientName, version.Version, client.Config{
		Server:         serverURL(*flagServer),
		Interval:       *flagInterval,
		DownloadLength: int64(flagDownload),
		UploadLength:   int64(flagUpload),
		Count:          *flagCount,
		Emitter:        client.HumanReadable{Debug: *flagDebug},
	})
	start := time.Now()
	err := cl.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error("test run failed", "error", err)
		os.Exit(1)
	}
	log.Debug("test run complete", "testID", cl.TestID(), "elapsed", time.Since(start))
}
