package monitoring

import (
	"fmt"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"
)

// MetricType 指标类型
type MetricType string

const (
	MetricTypeCounter MetricType = "counter"
	MetricTypeGauge   MetricType = "gauge"
)

const (
	MetricDiagnoses       = "diabetesdx_diagnoses_total"
	MetricPersistFailures = "diabetesdx_persist_failures_total"
	MetricExportFailures  = "diabetesdx_export_failures_total"
	MetricHTTPRequests    = "diabetesdx_http_requests_total"
	MetricModelReloads    = "diabetesdx_model_reloads_total"
)

var metricHelp = map[string]string{
	MetricDiagnoses:       "Diagnoses scored, by label",
	MetricPersistFailures: "Diagnoses that could not be stored",
	MetricExportFailures:  "Reports that could not be written",
	MetricHTTPRequests:    "HTTP requests served, by method and status",
	MetricModelReloads:    "Model artifacts swapped in after retraining",
}

type series struct {
	name   string
	typ    MetricType
	labels map[string]string
	value  float64
}

// MetricsCollector 指标收集器
type MetricsCollector struct {
	mu        sync.RWMutex
	series    map[string]*series
	startTime time.Time
}

func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		series:    make(map[string]*series),
		startTime: time.Now(),
	}
}

// IncrCounter 增加计数器
func (mc *MetricsCollector) IncrCounter(name string, labels map[string]string) {
	mc.record(name, MetricTypeCounter, labels, func(v float64) float64 { return v + 1 })
}

// SetGauge 设置仪表
func (mc *MetricsCollector) SetGauge(name string, value float64, labels map[string]string) {
	mc.record(name, MetricTypeGauge, labels, func(float64) float64 { return value })
}

func (mc *MetricsCollector) record(name string, typ MetricType, labels map[string]string, update func(float64) float64) {
	key := seriesKey(name, labels)
	mc.mu.Lock()
	defer mc.mu.Unlock()
	s, ok := mc.series[key]
	if !ok {
		copied := make(map[string]string, len(labels))
		for k, v := range labels {
			copied[k] = v
		}
		s = &series{name: name, typ: typ, labels: copied}
		mc.series[key] = s
	}
	s.value = update(s.value)
}

// Value returns the current value of one series, 0 if never recorded.
func (mc *MetricsCollector) Value(name string, labels map[string]string) float64 {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	if s, ok := mc.series[seriesKey(name, labels)]; ok {
		return s.value
	}
	return 0
}

// GetUptime 获取运行时间
func (mc *MetricsCollector) GetUptime() time.Duration {
	return time.Since(mc.startTime)
}

// ExportPrometheus 导出Prometheus文本格式
func (mc *MetricsCollector) ExportPrometheus() string {
	mc.mu.RLock()
	keys := make([]string, 0, len(mc.series))
	for k := range mc.series {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	seen := make(map[string]bool)
	for _, k := range keys {
		s := mc.series[k]
		if !seen[s.name] {
			seen[s.name] = true
			help := metricHelp[s.name]
			if help == "" {
				help = "Metric " + s.name
			}
			fmt.Fprintf(&b, "# HELP %s %s\n# TYPE %s %s\n", s.name, help, s.name, s.typ)
		}
		fmt.Fprintf(&b, "%s%s %g\n", s.name, formatLabels(s.labels), s.value)
	}
	mc.mu.RUnlock()

	mc.writeRuntime(&b)
	return b.String()
}

func (mc *MetricsCollector) writeRuntime(b *strings.Builder) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	fmt.Fprintf(b, "# TYPE process_uptime_seconds gauge\nprocess_uptime_seconds %g\n", mc.GetUptime().Seconds())
	fmt.Fprintf(b, "# TYPE go_goroutines gauge\ngo_goroutines %d\n", runtime.NumGoroutine())
	fmt.Fprintf(b, "# TYPE go_memstats_heap_alloc_bytes gauge\ngo_memstats_heap_alloc_bytes %d\n", m.HeapAlloc)
}

// GetSystemStats 获取系统统计
func (mc *MetricsCollector) GetSystemStats() map[string]any {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	diagnoses := mc.Value(MetricDiagnoses, map[string]string{"label": "1"}) +
		mc.Value(MetricDiagnoses, map[string]string{"label": "0"})
	return map[string]any{
		"uptime":     mc.GetUptime().Round(time.Second).String(),
		"goroutines": runtime.NumGoroutine(),
		"heap_alloc": m.HeapAlloc,
		"num_gc":     m.NumGC,
		"diagnoses":  diagnoses,
	}
}

func seriesKey(name string, labels map[string]string) string {
	return name + formatLabels(labels)
}

func formatLabels(labels map[string]string) string {
	if len(labels) == 0 {
		return ""
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%q", k, labels[k])
	}
	return "{" + strings.Join(parts, ",") + "}"
}
