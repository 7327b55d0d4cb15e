package handler

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/charmbracelet/log"
	"github.com/m-lab/reptest/pkg/reptest/metadata"
	"github.com/m-lab/reptest/pkg/reptest/model"
	"github.com/m-lab/reptest/pkg/reptest/spec"
)

// root serves the client page. Without it, the server replies 404.
func (h *Handler) root(rw http.ResponseWriter, req *http.Request, info *model.TestInfo) {
	if !h.servePage(rw, req, spec.ClientPage) {
		h.fail(rw, info, http.StatusNotFound, errNotFound)
	}
}

// echo serves the diagnostic page, or a plain text description of the
// request if the page is not available.
func (h *Handler) echo(rw http.ResponseWriter, req *http.Request, info *model.TestInfo) {
	if h.servePage(rw, req, spec.EchoPage) {
		return
	}
	b, err := metadata.Encode(info)
	if err != nil {
		log.Error("failed to encode TestInfo", "error", err)
	}
	text := fmt.Sprintf("method=%s\nurl=%s\n%s\n%s\n", req.Method, req.URL.RequestURI(),
		b, strconv.Quote(req.RemoteAddr))
	rw.Header().Set("Content-Type", "text/plain; charset=utf-8")
	rw.Header().Set("Content-Length", strconv.Itoa(len(text)))
	rw.WriteHeader(http.StatusOK)
	if _, err := rw.Write([]byte(text)); err != nil {
		log.Debug("failed to write response", "error", err)
	}
}

// servePage serves the named file from the asset directory. It returns false
// without writing anything if the file cannot be opened.
func (h *Handler) servePage(rw http.ResponseWriter, req *http.Request, name string) bool {
	if h.config.AssetDir == "" {
		return false
	}
	fp, err := os.Open(filepath.Join(h.config.AssetDir, name))
	if err != nil {
		log.Warn("cannot open page", "name", name, "error", err)
		return false
	}
	defer fp.Close()
	st, err := fp.Stat()
	if err != nil || st.IsDir() {
		log.Warn("cannot serve page", "name", name, "error", err)
		return false
	}
	http.ServeContent(rw, req, name, st.ModTime(), fp)
	return true
}
