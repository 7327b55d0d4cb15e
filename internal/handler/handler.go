// Package handler implements the reptest HTTP server.
//
// Every request goes through the same ordered stages: the body is read
// (keeping at most a bounded prefix), decoded into a TestInfo, stamped with
// the server's observations, normalized, dispatched to the operation for its
// path and finally recorded to telemetry once the response has been handed
// to the transport.
package handler

import (
	"fmt"
	"math/rand"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/m-lab/reptest/internal/ingest"
	"github.com/m-lab/reptest/internal/metrics"
	"github.com/m-lab/reptest/internal/netx"
	"github.com/m-lab/reptest/internal/telemetry"
	"github.com/m-lab/reptest/pkg/reptest/metadata"
	"github.com/m-lab/reptest/pkg/reptest/model"
	"github.com/m-lab/reptest/pkg/reptest/spec"
)

// Fault messages reported in TestInfo.Error.
const (
	errInvalidJSON  = "400 Incoming data was not valid JSON"
	errNotFound     = "404 Page Not Found"
	errPostRequired = "418 POST method required"
)

// Config is the configuration of a Handler.
type Config struct {
	// AssetDir is the directory holding the static client pages.
	AssetDir string
	// MaxJSONLength is the number of body bytes retained for JSON decoding.
	MaxJSONLength int
	// Bounds are the bounds of the configuration fields.
	Bounds metadata.Bounds
}

// operation handles a dispatched request. By the time it is called, info has
// been decoded, stamped and normalized.
type operation func(h *Handler, rw http.ResponseWriter, req *http.Request,
	info *model.TestInfo)

// route is an entry of the dispatch table.
type route struct {
	name     string
	op       operation
	postOnly bool
}

var routes = map[string]route{
	spec.RootPath:       {name: "root", op: (*Handler).root},
	spec.EchoPath:       {name: "echo", op: (*Handler).echo},
	spec.BeginPath:      {name: "begin", op: (*Handler).begin, postOnly: true},
	spec.DownloadPath:   {name: "download", op: (*Handler).download, postOnly: true},
	spec.DownreportPath: {name: "downreport", op: (*Handler).report, postOnly: true},
	spec.UploadPath:     {name: "upload", op: (*Handler).upload, postOnly: true},
	spec.UpreportPath:   {name: "upreport", op: (*Handler).report, postOnly: true},
}

// Handler is the reptest http.Handler. It keeps no per-test state: all of it
// travels in the TestInfo carried by each request.
type Handler struct {
	config Config
	sink   telemetry.Recorder

	now    func() time.Time
	suffix func() int
}

// New returns a Handler recording to sink. Zero values in config are replaced
// with the protocol defaults.
func New(config Config, sink telemetry.Recorder) *Handler {
	if config.MaxJSONLength <= 0 {
		config.MaxJSONLength = spec.MaxJSONLength
	}
	if config.Bounds == nil {
		config.Bounds = metadata.DefaultBounds()
	}
	return &Handler{
		config: config,
		sink:   sink,
		now:    time.Now,
		suffix: func() int { return rand.Intn(1000) },
	}
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(rw http.ResponseWriter, req *http.Request) {
	arrival := h.now()
	r, known := routes[req.URL.Path]
	name := r.name
	if !known {
		name = "unknown"
	}
	metrics.ActiveRequests.WithLabelValues(name).Inc()
	defer metrics.ActiveRequests.WithLabelValues(name).Dec()

	// Stage 1: read the whole body. Only JSON control messages are retained;
	// upload payloads are counted and discarded.
	limit := 0
	if isJSON(req) && req.URL.Path != spec.UploadPath {
		limit = h.config.MaxJSONLength
	}
	body, err := ingest.Read(req.Body, limit)
	requestEnd := h.now()
	if err != nil {
		log.Info("failed to read request body", "source", req.RemoteAddr,
			"path", req.URL.Path, "read", body.Total, "error", err)
		metrics.RequestsTotal.WithLabelValues(name, "aborted").Inc()
		h.sink.Record(model.ErrorEntry{
			ClientIP:  remoteIP(req),
			ErrorTime: model.Millis(requestEnd),
			Error:     err.Error(),
		})
		return
	}
	if req.URL.Path == spec.UploadPath {
		metrics.PayloadBytes.WithLabelValues(string(spec.SubtestUpload)).Add(float64(body.Total))
	}

	// Stage 2: decode. Bodies that are not declared as JSON are ignored.
	info := &model.TestInfo{}
	var decodeErr error
	if limit > 0 {
		var decoded *model.TestInfo
		decoded, decodeErr = metadata.Decode(body.Retained)
		if decodeErr == nil {
			info = decoded
		}
	}
	// A client cannot report faults on the server's behalf.
	info.Error = nil
	h.stamp(info, req, arrival, requestEnd, body.Total)

	// Stage 3: dispatch.
	rec := &recorder{ResponseWriter: rw, code: http.StatusOK}
	switch {
	case decodeErr != nil:
		log.Debug("invalid JSON body", "source", req.RemoteAddr, "error", decodeErr)
		h.fail(rec, info, http.StatusBadRequest, errInvalidJSON)
	case !known:
		h.clamp(info)
		h.fail(rec, info, http.StatusNotFound, errNotFound)
	case r.postOnly && req.Method != http.MethodPost:
		h.clamp(info)
		h.fail(rec, info, http.StatusTeapot, errPostRequired)
	default:
		h.clamp(info)
		r.op(h, rec, req, info)
	}

	// Stage 4: record, once the response has been handed to the transport.
	if err := http.NewResponseController(rw).Flush(); err != nil {
		log.Debug("flush failed", "source", req.RemoteAddr, "error", err)
	}
	info.ServerResponseEnd = model.Millis(h.now())
	metrics.RequestsTotal.WithLabelValues(name, strconv.Itoa(rec.code)).Inc()
	if ci, ok := netx.FromContext(req.Context()); ok {
		read, written := ci.ByteCounters()
		log.Debug("request complete", "uuid", ci.UUID(), "path", req.URL.Path,
			"code", rec.code, "conn_read", read, "conn_written", written)
	}
	h.sink.Record(info)
}

// stamp records the server's observations of the current request in info.
func (h *Handler) stamp(info *model.TestInfo, req *http.Request, arrival,
	requestEnd time.Time, received int64) {
	ip := remoteIP(req)
	if info.ExternalIP != "" && info.ExternalIP != ip {
		// The client's address changed since the previous request.
		info.OldExternalIP = info.ExternalIP
	}
	info.ExternalIP = ip
	info.ServerTimestamp = model.Millis(arrival)
	info.Pathname = req.URL.Path
	info.ServerRequestBegin = model.Millis(arrival)
	info.ServerRequestEnd = model.Millis(requestEnd)
	info.ServerResponseBegin = model.Millis(h.now())
	info.ServerReceiveLength = model.Int64(received)
}

// clamp normalizes the configuration fields of info.
func (h *Handler) clamp(info *model.TestInfo) {
	for _, field := range metadata.Clamp(info, h.config.Bounds) {
		metrics.ClampedFields.WithLabelValues(field).Inc()
	}
}

// fail replies with status and a TestInfo whose error is set to msg.
func (h *Handler) fail(rw http.ResponseWriter, info *model.TestInfo, status int,
	msg string) {
	info.Error = model.NewFault(h.now(), msg)
	h.writeJSON(rw, status, info)
}

// begin starts a run of tests. The test ID is assigned here, once.
func (h *Handler) begin(rw http.ResponseWriter, req *http.Request, info *model.TestInfo) {
	if info.TestID == "" {
		info.TestID = fmt.Sprintf("%s-%d-%03d", info.ExternalIP,
			info.ServerTimestamp, h.suffix())
	}
	info.TestBegin = info.ServerTimestamp
	h.writeJSON(rw, http.StatusOK, info)
}

// report acknowledges a client's download or upload measurement.
func (h *Handler) report(rw http.ResponseWriter, req *http.Request, info *model.TestInfo) {
	h.writeJSON(rw, http.StatusOK, info)
}

// upload reports how many payload bytes were received.
func (h *Handler) upload(rw http.ResponseWriter, req *http.Request, info *model.TestInfo) {
	info.UploadReceiveLength = info.ServerReceiveLength
	h.writeJSON(rw, http.StatusOK, info)
}

// writeJSON writes info as the whole response body.
func (h *Handler) writeJSON(rw http.ResponseWriter, status int, info *model.TestInfo) {
	b, err := metadata.Encode(info)
	if err != nil {
		// Every field of TestInfo is encodable, so this should not happen.
		log.Error("failed to encode TestInfo", "error", err)
		rw.WriteHeader(http.StatusInternalServerError)
		return
	}
	rw.Header().Set("Content-Type", spec.ContentTypeJSON)
	rw.Header().Set("Content-Length", strconv.Itoa(len(b)))
	rw.WriteHeader(status)
	if _, err := rw.Write(b); err != nil {
		log.Debug("failed to write response", "error", err)
	}
}

// isJSON reports whether req declares a JSON body.
func isJSON(req *http.Request) bool {
	return strings.HasPrefix(req.Header.Get("Content-Type"), spec.ContentTypeJSON)
}

// remoteIP returns the transport-level address of the peer. Forwarding
// headers are not consulted.
func remoteIP(req *http.Request) string {
	host, _, err := net.SplitHostPort(req.RemoteAddr)
	if err != nil {
		return req.RemoteAddr
	}
	return host
}

// recorder remembers the status code written through it.
type recorder struct {
	http.ResponseWriter
	code int
}

func (r *recorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

// Unwrap allows http.ResponseController to reach the original writer.
func (r *recorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}
