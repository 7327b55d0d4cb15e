package main

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/m-lab/reptest/pkg/reptest/metadata"
	"github.com/m-lab/reptest/pkg/reptest/spec"
)

func Test_bounds(t *testing.T) {
	b := bounds()
	if err := b.Validate(); err != nil {
		t.Fatalf("default flags produce invalid bounds: %v", err)
	}
	want := metadata.DefaultBounds()
	for name, r := range want {
		if b[name] != r {
			t.Errorf("bounds()[%s] = %+v, want %+v", name, b[name], r)
		}
	}
}

func Test_withMiddleware(t *testing.T) {
	panicking := http.HandlerFunc(func(rw http.ResponseWriter, req *http.Request) {
		panic("boom")
	})
	for _, accessLog := range []bool{false, true} {
		rw := httptest.NewRecorder()
		withMiddleware(panicking, accessLog).ServeHTTP(rw,
			httptest.NewRequest(http.MethodGet, spec.RootPath, nil))
		if rw.Code != http.StatusInternalServerError {
			t.Errorf("accessLog=%v: status = %d, want 500", accessLog, rw.Code)
		}
	}
}

func Test_httpServer(t *testing.T) {
	srv := httpServer(":0", http.NotFoundHandler())
	if srv.ReadTimeout != *flagReadTimeout || srv.WriteTimeout != *flagWriteTimeout ||
		srv.IdleTimeout != *flagIdleTimeout {
		t.Errorf("timeouts not applied: %+v", srv)
	}
	if srv.ConnContext == nil {
		t.Errorf("ConnContext not set")
	}
}
