package httpclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.opentelemetry.io/otel/trace/noop"
)

var tracer = noop.NewTracerProvider().Tracer("")

func TestPostJSONForwardsHeadersAndBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer abc" {
			t.Errorf("authorization = %q", r.Header.Get("Authorization"))
		}
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("content type = %q", r.Header.Get("Content-Type"))
		}
		var in map[string]any
		_ = json.NewDecoder(r.Body).Decode(&in)
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(map[string]any{"echo": in["product"]})
	}))
	defer srv.Close()

	c := NewClient(tracer, time.Second, false)
	resp, err := c.PostJSON(context.Background(), srv.URL+"/reserve",
		http.Header{"Authorization": {"Bearer abc"}}, map[string]any{"product": "Champagne Premium"})
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var out map[string]string
	if err := resp.Decode(&out); err != nil || out["echo"] != "Champagne Premium" {
		t.Fatalf("decoded = %v, %v", out, err)
	}
}

func TestTimeoutIsTransportError(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	c := NewClient(tracer, 50*time.Millisecond, false)
	start := time.Now()
	if _, err := c.Get(context.Background(), srv.URL+"/stock", nil); err == nil {
		t.Fatal("expected timeout error")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("call not bounded: %v", elapsed)
	}
}

func TestUnreachableIsTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewClient(tracer, time.Second, false)
	if _, err := c.Get(context.Background(), url+"/stock", nil); err == nil {
		t.Fatal("expected connection error")
	}
}

func TestDefaultTimeout(t *testing.T) {
	if c := NewClient(tracer, 0, true); c.Timeout != DefaultTimeout {
		t.Fatalf("timeout = %v", c.Timeout)
	}
}
