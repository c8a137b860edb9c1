package telemetry

import (
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

var fqNamePattern = regexp.MustCompile(`fqName: "([a-z0-9_]+)"`)

func allCollectors() []prometheus.Collector {
	return []prometheus.Collector{
		APIRequestsTotal, APIRequestDuration, APIActiveConnections,
		DatabaseQueryDuration, DatabaseErrorsTotal, DatabaseConnectionsActive,
		SearchDuration, SlotsOfferedTotal, CommitsTotal, CommitDuration,
		ReservationTransitionsTotal, AutoReleasesTotal, SweeperTicksTotal, SweeperErrorsTotal,
		LeaderElectionStatus, LeaderElectionChanges, CacheHitsTotal, CacheMissesTotal,
	}
}

func exportedMetricNames() map[string]bool {
	names := map[string]bool{}
	for _, c := range allCollectors() {
		ch := make(chan *prometheus.Desc, 4)
		go func() {
			c.Describe(ch)
			close(ch)
		}()
		for d := range ch {
			if m := fqNamePattern.FindStringSubmatch(d.String()); m != nil {
				names[m[1]] = true
			}
		}
	}
	return names
}

func TestMetricNamesNamespaced(t *testing.T) {
	names := exportedMetricNames()
	for _, want := range []string{
		"dronepad_api_requests_total",
		"dronepad_commits_total",
		"dronepad_auto_releases_total",
		"dronepad_leader_election_status",
		"dronepad_sweeper_ticks_total",
	} {
		if !names[want] {
			t.Errorf("metric %s not registered", want)
		}
	}
}

func TestMetricsMiddlewareUsesRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(MetricsMiddleware)
	r.Get("/reservations/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	before := testutil.ToFloat64(APIRequestsTotal.WithLabelValues("GET", "/reservations/{id}", "404"))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/reservations/abc", nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
	after := testutil.ToFloat64(APIRequestsTotal.WithLabelValues("GET", "/reservations/{id}", "404"))
	if after-before != 1 {
		t.Fatalf("request counter delta = %v, want 1", after-before)
	}
	if got := testutil.ToFloat64(APIActiveConnections); got != 0 {
		t.Fatalf("active connections = %v after request", got)
	}
}

func TestHandlerServesMetrics(t *testing.T) {
	CommitsTotal.WithLabelValues("confirmed").Add(0)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !regexp.MustCompile(`dronepad_commits_total\{outcome="confirmed"\}`).MatchString(rec.Body.String()) {
		t.Fatal("commit counter not exposed")
	}
}
