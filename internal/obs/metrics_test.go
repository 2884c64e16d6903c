package obs

import (
	"net/http"
	"net/http/httptest"
	"runtime"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                       "/",
		"/metrics":               "/metrics",
		"/users/01HZX":           "/users/:id",
		"/api/users/01HZX":       "/api/users/:id",
		"/users/abc/extra":       "/users/abc/extra",
		"/users/":                "/users/",
		"/profile":               "/profile",
		"/api/login":             "/api/login",
		"/forgery-token?x=1":     "/forgery-token",
		"/api/forgery-token?x=1": "/api/forgery-token",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}

func TestInstrumentCountsByCanonicalPath(t *testing.T) {
	Init()
	h := Instrument(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodDelete, "/users/:id", "404"))
	req := httptest.NewRequest(http.MethodDelete, "/users/abc", nil)
	h.ServeHTTP(httptest.NewRecorder(), req)
	after := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodDelete, "/users/:id", "404"))

	if after-before != 1 {
		t.Fatalf("expected one counted request, got %v", after-before)
	}
}

func TestGateDecisionCounter(t *testing.T) {
	Init()
	before := testutil.ToFloat64(gateDecisions.WithLabelValues("auth", "expired"))
	GateDecision("auth", "expired")
	if got := testutil.ToFloat64(gateDecisions.WithLabelValues("auth", "expired")) - before; got != 1 {
		t.Fatalf("expected increment of 1, got %v", got)
	}
}

func TestInitBuildInfoKeepsSingleSeries(t *testing.T) {
	InitBuildInfo("1.0.0", "abc")
	InitBuildInfo("1.0.1", "")

	if n := testutil.CollectAndCount(buildInfo); n != 1 {
		t.Fatalf("expected one build_info series, got %d", n)
	}
	if v := testutil.ToFloat64(buildInfo.WithLabelValues(serviceLabel, "1.0.1", "unknown", runtime.Version())); v != 1 {
		t.Fatalf("unexpected build_info value %v", v)
	}
}
