package monitoring

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
)

func TestHealthCheckerAggregatesStatus(t *testing.T) {
	hc := NewHealthChecker("leads", "v1")
	hc.AddCheck("db", func() CheckResult { return CheckResult{Status: StatusHealthy} })
	hc.AddOptionalCheck("kafka", func() CheckResult { return CheckResult{Status: StatusUnhealthy} })

	status := hc.CheckHealth()
	if status.Status != StatusDegraded {
		t.Fatalf("optional failure should degrade, got %q", status.Status)
	}

	hc.AddCheck("config", func() CheckResult { return CheckResult{Status: StatusUnhealthy} })
	if got := hc.CheckHealth().Status; got != StatusUnhealthy {
		t.Fatalf("required failure should be unhealthy, got %q", got)
	}
}

func TestHealthHandlerStatusCode(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hc := NewHealthChecker("leads", "v1")
	hc.AddCheck("config", ConfigurationHealthCheck(map[string]string{"JWT_SECRET": ""}))

	r := gin.New()
	r.GET("/health", hc.Handler())
	w := httptest.NewRecorder()
	req, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, "/health", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
	var body HealthStatus
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body.Checks["config"].Status != StatusUnhealthy {
		t.Fatalf("expected config check in body, got %+v", body.Checks)
	}
}

func TestDatabaseHealthCheck(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	mock.ExpectPing()

	if res := DatabaseHealthCheck(db)(); res.Status != StatusHealthy {
		t.Fatalf("expected healthy, got %+v", res)
	}
	if res := DatabaseHealthCheck(nil)(); res.Status != StatusUnhealthy {
		t.Fatalf("expected unhealthy for nil db")
	}
}

func TestRedisHealthCheck(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	defer client.Close()

	if res := RedisHealthCheck(client)(); res.Status != StatusHealthy {
		t.Fatalf("expected healthy, got %+v", res)
	}
	mr.Close()
	if res := RedisHealthCheck(client)(); res.Status != StatusUnhealthy {
		t.Fatalf("expected unhealthy after redis shutdown, got %+v", res)
	}
}

func TestMetricsCollectorIsolatedRegistries(t *testing.T) {
	// Two collectors with the same service name must not collide.
	a := NewMetricsCollector("leads", "v1", "abc")
	b := NewMetricsCollector("leads", "v1", "abc")
	a.NewCounter("unlocks_total", "x", []string{"status"}).WithLabelValues("ok").Inc()
	b.NewCounter("unlocks_total", "x", []string{"status"})

	families, err := a.Registry().Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	found := false
	for _, f := range families {
		if f.GetName() == "leads_unlocks_total" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected leads_unlocks_total in registry")
	}
}
