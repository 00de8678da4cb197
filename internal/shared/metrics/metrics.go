// Package metrics keeps process-wide counters and renders them in the
// Prometheus text exposition format.
package metrics

import (
	"bytes"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/gin-gonic/gin"
)

type counter struct {
	name string
	help string
	v    atomic.Uint64
}

// labeledCounter counts per value of one label, e.g. provider name.
type labeledCounter struct {
	name  string
	help  string
	label string
	mu    sync.Mutex
	byVal map[string]uint64
}

var (
	registry []*counter
	labeled  []*labeledCounter
)

func newCounter(name, help string) *counter {
	c := &counter{name: name, help: help}
	registry = append(registry, c)
	return c
}

func newLabeledCounter(name, help, label string) *labeledCounter {
	c := &labeledCounter{name: name, help: help, label: label, byVal: map[string]uint64{}}
	labeled = append(labeled, c)
	return c
}

func (c *counter) add(n int) {
	if n > 0 {
		c.v.Add(uint64(n))
	}
}

func (c *labeledCounter) inc(value string) {
	if value == "" {
		value = "unknown"
	}
	c.mu.Lock()
	c.byVal[value]++
	c.mu.Unlock()
}

// Render order follows declaration order.
var (
	runsStarted      = newCounter("runs_started_total", "Total analysis runs started")
	runsCompleted    = newCounter("runs_completed_total", "Total analysis runs completed")
	runsFailed       = newCounter("runs_failed_total", "Total analysis runs failed")
	clausesAnalyzed  = newCounter("clauses_analyzed_total", "Clauses with a stored result")
	clausesDropped   = newCounter("clauses_dropped_total", "Clauses dropped after all providers failed")
	chunkingDegraded = newCounter("chunking_degraded_total", "Semantic chunking runs that fell back to fixed windows")
	rewriteViolation = newCounter("rewrite_violations_total", "Rewrites whose reported risk was not Low")
	batchFallback    = newCounter("batch_fallback_records_total", "Batch records replaced by fallback rows")

	jobsReceived      = newCounter("run_jobs_received_total", "Queue messages received by the worker")
	jobsCompleted     = newCounter("run_jobs_completed_total", "Queue messages processed and deleted")
	jobsFailed        = newCounter("run_jobs_failed_total", "Queue messages left for redelivery")
	jobsUnrecoverable = newCounter("run_jobs_deleted_unrecoverable_total", "Malformed queue messages deleted")

	providerFailures = newLabeledCounter("provider_failures_total", "Failed provider calls", "provider")
	rateLimited      = newLabeledCounter("http_rate_limited_total", "Requests rejected by the rate limiter", "group")

	runDuration = newHistogram([]float64{100, 250, 500, 1000, 2000, 5000, 10000, 30000, 60000, 120000})
)

func IncRunStarted()   { runsStarted.add(1) }
func IncRunCompleted() { runsCompleted.add(1) }
func IncRunFailed()    { runsFailed.add(1) }

// AddClausesAnalyzed counts clauses that produced a result.
func AddClausesAnalyzed(n int) { clausesAnalyzed.add(n) }

// AddClausesDropped counts clauses dropped after every provider failed.
func AddClausesDropped(n int) { clausesDropped.add(n) }

// IncProviderFailure counts one failed call to the named provider.
func IncProviderFailure(provider string) { providerFailures.inc(provider) }

func IncChunkingDegraded() { chunkingDegraded.add(1) }
func IncRewriteViolation() { rewriteViolation.add(1) }

// AddBatchFallbacks counts batch records replaced by fallback rows.
func AddBatchFallbacks(n int) { batchFallback.add(n) }

// Queue worker counters.
func IncJobsReceived()             { jobsReceived.add(1) }
func IncJobsCompleted()            { jobsCompleted.add(1) }
func IncJobsFailed()               { jobsFailed.add(1) }
func IncJobsDeletedUnrecoverable() { jobsUnrecoverable.add(1) }

// IncRateLimited counts a request rejected in the given limiter group.
func IncRateLimited(group string) { rateLimited.inc(group) }

// ObserveRunDurationMs records a run duration in milliseconds.
func ObserveRunDurationMs(value float64) {
	if value < 0 {
		value = 0
	}
	runDuration.Observe(value)
}

// Handler exposes metrics in Prometheus text format.
func Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Content-Type", "text/plain; version=0.0.4")
		c.String(http.StatusOK, Render())
	}
}

// Render renders every metric in Prometheus text format.
func Render() string {
	var buf bytes.Buffer
	for _, c := range registry {
		writeHeader(&buf, c.name, c.help, "counter")
		fmt.Fprintf(&buf, "%s %d\n", c.name, c.v.Load())
	}
	for _, c := range labeled {
		writeHeader(&buf, c.name, c.help, "counter")
		c.mu.Lock()
		values := make([]string, 0, len(c.byVal))
		for v := range c.byVal {
			values = append(values, v)
		}
		sort.Strings(values)
		for _, v := range values {
			fmt.Fprintf(&buf, "%s{%s=%q} %d\n", c.name, c.label, v, c.byVal[v])
		}
		c.mu.Unlock()
	}
	writeHistogram(&buf, "run_duration_ms", "Analysis run duration in milliseconds", runDuration.Snapshot())
	return buf.String()
}

type histogram struct {
	mu      sync.Mutex
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

type histogramSnapshot struct {
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

func newHistogram(buckets []float64) *histogram {
	return &histogram{buckets: buckets, counts: make([]uint64, len(buckets))}
}

func (h *histogram) Observe(value float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += value
	for i, bound := range h.buckets {
		if value <= bound {
			h.counts[i]++
			return
		}
	}
}

func (h *histogram) Snapshot() histogramSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return histogramSnapshot{
		buckets: append([]float64(nil), h.buckets...),
		counts:  append([]uint64(nil), h.counts...),
		sum:     h.sum,
		count:   h.count,
	}
}

func writeHeader(buf *bytes.Buffer, name, help, kind string) {
	fmt.Fprintf(buf, "# HELP %s %s\n# TYPE %s %s\n", name, help, name, kind)
}

func writeHistogram(buf *bytes.Buffer, name, help string, snap histogramSnapshot) {
	writeHeader(buf, name, help, "histogram")
	var cumulative uint64
	for i, bound := range snap.buckets {
		cumulative += snap.counts[i]
		fmt.Fprintf(buf, "%s_bucket{le=\"%s\"} %d\n", name, formatFloat(bound), cumulative)
	}
	fmt.Fprintf(buf, "%s_bucket{le=\"+Inf\"} %d\n", name, snap.count)
	fmt.Fprintf(buf, "%s_sum %s\n", name, formatFloat(snap.sum))
	fmt.Fprintf(buf, "%s_count %d\n", name, snap.count)
}

func formatFloat(value float64) string {
	if value == float64(int64(value)) {
		return strconv.FormatInt(int64(value), 10)
	}
	return strconv.FormatFloat(value, 'f', -1, 64)
}

