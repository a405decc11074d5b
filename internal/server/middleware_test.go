package server

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

type observedRequest struct {
	route string
	code  int
}

type fakeObserver struct {
	mu   sync.Mutex
	seen []observedRequest
}

func (o *fakeObserver) ObserveRequest(route string, code int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.seen = append(o.seen, observedRequest{route, code})
}

func TestRecoverPanicsReturns500(t *testing.T) {
	obs := &fakeObserver{}
	handler := chain(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}), requestID, accessLog(obs), recoverPanics)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/explode", nil))

	if rr.Code != http.StatusInternalServerError {
		t.Errorf("Expected 500, got %d", rr.Code)
	}
	if rr.Header().Get(RequestIDHeader) == "" {
		t.Error("Expected a request ID on the error response")
	}
	if len(obs.seen) != 1 || obs.seen[0] != (observedRequest{"unmatched", http.StatusInternalServerError}) {
		t.Errorf("Expected the 500 to be observed, got %+v", obs.seen)
	}
}

func TestRecoverPanicsPropagatesAbort(t *testing.T) {
	handler := recoverPanics(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic(http.ErrAbortHandler)
	}))

	defer func() {
		if rec := recover(); rec != http.ErrAbortHandler {
			t.Errorf("Expected http.ErrAbortHandler to propagate, got %v", rec)
		}
	}()
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
}

func TestAccessLogRecordsRouteAndStatus(t *testing.T) {
	obs := &fakeObserver{}
	handler := chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setRoute(r, "/things")
		w.WriteHeader(http.StatusTeapot)
		w.WriteHeader(http.StatusOK)
	}), accessLog(obs))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/things", nil))

	if len(obs.seen) != 1 || obs.seen[0] != (observedRequest{"/things", http.StatusTeapot}) {
		t.Errorf("Expected the first status to win, got %+v", obs.seen)
	}
}

func TestStatusRecorderDefaultsTo200(t *testing.T) {
	rec := &statusRecorder{ResponseWriter: httptest.NewRecorder()}
	if rec.statusCode() != http.StatusOK {
		t.Errorf("Expected 200 when nothing was written, got %d", rec.statusCode())
	}

	if _, err := rec.Write([]byte("x")); err != nil {
		t.Fatal(err)
	}
	if rec.statusCode() != http.StatusOK {
		t.Errorf("Expected 200 after an implicit header, got %d", rec.statusCode())
	}
}

func TestStatusRecorderFlushes(t *testing.T) {
	inner := httptest.NewRecorder()
	rec := &statusRecorder{ResponseWriter: inner}

	if err := http.NewResponseController(rec).Flush(); err != nil {
		t.Fatalf("Flush through the recorder failed: %v", err)
	}
	if !inner.Flushed {
		t.Error("Expected the wrapped writer to be flushed")
	}
}
