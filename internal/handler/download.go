package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/charmbracelet/log"
	"github.com/m-lab/reptest/internal/measurer"
	"github.com/m-lab/reptest/internal/metrics"
	"github.com/m-lab/reptest/internal/netx"
	"github.com/m-lab/reptest/internal/producer"
	"github.com/m-lab/reptest/pkg/reptest/model"
	"github.com/m-lab/reptest/pkg/reptest/spec"
)

// download streams exactly downloadLength bytes of filler. The length has
// already been clamped, so the headers can be committed before the first
// byte is produced.
func (h *Handler) download(rw http.ResponseWriter, req *http.Request, info *model.TestInfo) {
	length := info.DownloadLength.Get(h.config.Bounds[spec.DownloadLengthField].Default)
	if length < 0 {
		length = 0
	}
	rw.Header().Set("Content-Type", spec.ContentTypeBinary)
	rw.Header().Set("Content-Length", strconv.FormatInt(length, 10))
	rw.WriteHeader(http.StatusOK)

	// The request context is canceled when the client goes away, which stops
	// the producer between two chunks.
	ctx, cancel := context.WithCancel(req.Context())
	defer cancel()
	if ci, ok := netx.FromContext(ctx); ok {
		go logProgress(info.TestID, ci.UUID(), measurer.Start(ctx, ci))
	}
	written, err := producer.New(uint64(length)).Stream(ctx, rw)
	metrics.PayloadBytes.WithLabelValues(string(spec.SubtestDownload)).Add(float64(written))
	if err != nil {
		metrics.StreamErrors.WithLabelValues(string(spec.SubtestDownload)).Inc()
		log.Info("download aborted", "source", req.RemoteAddr, "testID", info.TestID,
			"written", written, "length", length, "error", err)
		info.Error = model.NewFault(h.now(), "download aborted: "+err.Error())
	}
}

// logProgress logs connection samples until the channel is closed.
func logProgress(testID, uuid string, samples <-chan measurer.Sample) {
	for s := range samples {
		log.Debug("download progress", "testID", testID, "uuid", uuid,
			"elapsed", s.Elapsed, "conn_written", s.BytesWritten)
	}
}
