// Package telemetry implements the 30s-TTL cache over the external
// metrics provider, grounded on the original hive/aggregator.py's
// MetricsCache + HiveAggregator.get_system_metrics, re-architected as an
// explicit wired member (spec.md §9) instead of a module-level global.
package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/auranet/aura-core/pkg/core/hive"
	"github.com/auranet/aura-core/pkg/util"
)

const (
	ttl            = 30 * time.Second
	metricsTimeout = 5 * time.Second
)

// MetricsProvider queries a Prometheus-compatible endpoint for a single
// instant-vector scalar.
type MetricsProvider interface {
	QueryScalar(ctx context.Context, query string) (float64, error)
}

// PrometheusProvider implements MetricsProvider against a Prometheus
// HTTP API base URL, using net/http directly: no ecosystem Prometheus
// client is wired elsewhere in this repo's dependency tree, and a
// single instant-query GET doesn't warrant pulling one in just for this
// call site.
type PrometheusProvider struct {
	baseURL string
	client  *http.Client
}

func NewPrometheusProvider(baseURL string) *PrometheusProvider {
	return &PrometheusProvider{baseURL: baseURL, client: &http.Client{}}
}

func (p *PrometheusProvider) QueryScalar(ctx context.Context, query string) (float64, error) {
	u := fmt.Sprintf("%s/api/v1/query?query=%s", p.baseURL, url.QueryEscape(query))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return 0, fmt.Errorf("build prometheus query: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("prometheus query failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("prometheus query returned status %d", resp.StatusCode)
	}

	var body struct {
		Data struct {
			Result []struct {
				Value []any `json:"value"`
			} `json:"result"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("decode prometheus response: %w", err)
	}
	if len(body.Data.Result) == 0 || len(body.Data.Result[0].Value) < 2 {
		return 0, fmt.Errorf("prometheus query %q returned no samples", query)
	}
	str, ok := body.Data.Result[0].Value[1].(string)
	if !ok {
		return 0, fmt.Errorf("prometheus query %q returned non-string sample", query)
	}
	var f float64
	if _, err := fmt.Sscanf(str, "%g", &f); err != nil {
		return 0, fmt.Errorf("parse prometheus sample %q: %w", str, err)
	}
	return f, nil
}

// Cache is the process-wide TelemetryCache: a single mutex-guarded
// object (spec.md §5), never a global variable.
type Cache struct {
	mu        sync.Mutex
	provider  MetricsProvider
	clock     util.Clock
	log       *zap.SugaredLogger
	cached    hive.SystemHealth
	timestamp time.Time
	hasValue  bool
}

func NewCache(provider MetricsProvider, clock util.Clock, log *zap.SugaredLogger) *Cache {
	return &Cache{provider: provider, clock: clock, log: log}
}

// Get returns the cached snapshot if still within TTL, else refreshes
// it. Consecutive reads within TTL make zero outbound calls.
func (c *Cache) Get(ctx context.Context) hive.SystemHealth {
	c.mu.Lock()
	if c.hasValue && c.clock.Now().Sub(c.timestamp) < ttl {
		snapshot := c.cached
		snapshot.Cached = true
		c.mu.Unlock()
		return snapshot
	}
	c.mu.Unlock()

	return c.refresh(ctx)
}

func (c *Cache) refresh(ctx context.Context) hive.SystemHealth {
	refreshCtx, cancel := context.WithTimeout(ctx, metricsTimeout)
	defer cancel()

	type result struct {
		value float64
		err   error
	}
	cpuCh := make(chan result, 1)
	memCh := make(chan result, 1)

	go func() {
		v, err := c.provider.QueryScalar(refreshCtx, `avg(rate(process_cpu_seconds_total[1m])) * 100`)
		cpuCh <- result{v, err}
	}()
	go func() {
		v, err := c.provider.QueryScalar(refreshCtx, `avg(process_resident_memory_bytes) / 1048576`)
		memCh <- result{v, err}
	}()

	cpuRes, memRes := <-cpuCh, <-memCh

	switch {
	case cpuRes.err == nil && memRes.err == nil:
		health := hive.SystemHealth{Status: hive.HealthOK, CPUPercent: cpuRes.value, MemoryMB: memRes.value}
		c.store(health)
		return health

	case cpuRes.err == nil || memRes.err == nil:
		health := hive.SystemHealth{Status: hive.HealthPartial}
		if cpuRes.err == nil {
			health.CPUPercent = cpuRes.value
		} else {
			health.Warning = "cpu_metric_unavailable"
		}
		if memRes.err == nil {
			health.MemoryMB = memRes.value
		} else {
			health.Warning = "memory_metric_unavailable"
		}
		c.log.Warnw("partial telemetry", "cpu_err", cpuRes.err, "mem_err", memRes.err, "event", "aggregator_perceive")
		c.store(health)
		return health

	default:
		c.log.Warnw("telemetry refresh failed, falling back to stale cache", "cpu_err", cpuRes.err, "mem_err", memRes.err, "event", "aggregator_perceive")
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.hasValue {
			stale := c.cached
			stale.Cached = true
			stale.Warning = "stale_data"
			return stale
		}
		return hive.SystemHealth{Status: hive.HealthUnknown}
	}
}

func (c *Cache) store(health hive.SystemHealth) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cached = health
	c.cached.Cached = false
	c.timestamp = c.clock.Now()
	c.hasValue = true
}
