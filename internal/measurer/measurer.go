// Package measurer periodically samples the byte counters of a connection
// while a download is in progress.
package measurer

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
	"github.com/m-lab/go/memoryless"
	"github.com/m-lab/go/rtx"
)

const (
	// MinInterval, AvgInterval and MaxInterval bound the randomized time
	// between two samples.
	MinInterval = 250 * time.Millisecond
	AvgInterval = time.Second
	MaxInterval = 2 * time.Second
)

// Counters is implemented by connections that count their bytes, such as
// netx.ConnInfo.
type Counters interface {
	ByteCounters() (uint64, uint64)
}

// Sample is a snapshot of the byte counters of a connection.
type Sample struct {
	// Elapsed is the time since Start was called.
	Elapsed time.Duration
	// BytesRead and BytesWritten are the connection's counters. They include
	// earlier requests on the same keep-alive connection.
	BytesRead    uint64
	BytesWritten uint64
}

type measurer struct {
	conn      Counters
	ticker    *memoryless.Ticker
	startTime time.Time

	dstChan chan Sample
}

// Start starts a measurer goroutine that periodically reads the byte
// counters of conn and sends them over the returned channel. The channel is
// closed once ctx is done. Samples are dropped if the reader falls behind.
func Start(ctx context.Context, conn Counters) <-chan Sample {
	// 10 seconds of samples at the average interval.
	dst := make(chan Sample, 10)

	t, err := memoryless.NewTicker(ctx, memoryless.Config{
		Min:      MinInterval,
		Expected: AvgInterval,
		Max:      MaxInterval,
	})
	// This can only error if min/expected/max above are set to invalid
	// values. Since they are constants, we panic here.
	rtx.PanicOnError(err, "ticker creation failed (this should never happen)")

	m := &measurer{
		conn:      conn,
		ticker:    t,
		startTime: time.Now(),
		dstChan:   dst,
	}
	go m.loop(ctx)
	return dst
}

func (m *measurer) loop(ctx context.Context) {
	defer close(m.dstChan)
	defer m.ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.ticker.C:
			m.measure()
		}
	}
}

func (m *measurer) measure() {
	read, written := m.conn.ByteCounters()
	select {
	case m.dstChan <- Sample{
		Elapsed:      time.Since(m.startTime),
		BytesRead:    read,
		BytesWritten: written,
	}:
	default:
		log.Debug("measurer: dropping sample, reader is behind")
	}
}
