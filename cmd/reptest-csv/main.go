// Command reptest-csv converts reptest JSON-lines logs, plain or gzipped, to
// CSV with a header row. It reads the named file, or stdin if none is given,
// and writes to stdout.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/m-lab/go/flagx"
	"github.com/m-lab/go/rtx"
	"github.com/m-lab/go/warnonerror"
	"github.com/m-lab/reptest/internal/report"
)

var (
	flagRaw = flag.Bool("raw", false, "Do not format times: write milliseconds since the Unix epoch")
	flagUTC = flag.Bool("utc", false, "Format times in UTC instead of local time")
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [-raw] [-utc] [filename]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	rtx.Must(flagx.ArgsFromEnv(flag.CommandLine), "Could not parse env args")
	if flag.NArg() > 1 {
		flag.Usage()
		os.Exit(1)
	}

	var in io.Reader = os.Stdin
	if flag.NArg() == 1 {
		fp, err := os.Open(flag.Arg(0))
		rtx.Must(err, "Could not open %s", flag.Arg(0))
		defer warnonerror.Close(fp, "Could not close input")
		in = fp
	}

	opts := report.Options{Raw: *flagRaw}
	if *flagUTC {
		opts.Location = time.UTC
	}
	stats, err := report.Convert(in, os.Stdout, opts)
	if err != nil {
		log.Error("conversion failed", "rows", stats.Rows, "error", err)
		os.Exit(1)
	}
	log.Debug("conversion complete", "rows", stats.Rows, "skipped", stats.Skipped)
}
