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
	MetricTypeCounter   MetricType = "counter"
	MetricTypeGauge     MetricType = "gauge"
	MetricTypeHistogram MetricType = "histogram"
)

// maxHistory bounds the samples kept per series.
const maxHistory = 1000

// Metric is one recorded sample of a series.
type Metric struct {
	Name      string            `json:"name"`
	Type      MetricType        `json:"type"`
	Value     float64           `json:"value"`
	Labels    map[string]string `json:"labels,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Help      string            `json:"help,omitempty"`
}

// MetricsCollector keeps a bounded in-memory history per series, where a
// series is a metric name plus its label set.
type MetricsCollector struct {
	metrics     map[string][]*Metric
	metricsLock sync.RWMutex

	startTime time.Time
}

// NewMetricsCollector 创建指标收集器
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		metrics:   make(map[string][]*Metric),
		startTime: time.Now(),
	}
}

// RecordMetric stores metric under its series key. Counters accumulate onto
// the previous sample of the same series.
func (mc *MetricsCollector) RecordMetric(metric *Metric) {
	mc.metricsLock.Lock()
	defer mc.metricsLock.Unlock()

	metric.Timestamp = time.Now()
	key := SeriesKey(metric.Name, metric.Labels)
	history := mc.metrics[key]
	if metric.Type == MetricTypeCounter && len(history) > 0 {
		metric.Value += history[len(history)-1].Value
	}
	history = append(history, metric)
	if len(history) > maxHistory {
		history = history[len(history)-maxHistory:]
	}
	mc.metrics[key] = history
}

// GetMetric returns a copy of the history of one series.
func (mc *MetricsCollector) GetMetric(key string) ([]*Metric, error) {
	mc.metricsLock.RLock()
	defer mc.metricsLock.RUnlock()

	metrics, ok := mc.metrics[key]
	if !ok {
		return nil, fmt.Errorf("metric %s not found", key)
	}

	result := make([]*Metric, len(metrics))
	for i, m := range metrics {
		metricCopy := *m
		result[i] = &metricCopy
	}
	return result, nil
}

// GetAllMetrics 获取所有指标
func (mc *MetricsCollector) GetAllMetrics() map[string][]*Metric {
	mc.metricsLock.RLock()
	defer mc.metricsLock.RUnlock()

	result := make(map[string][]*Metric, len(mc.metrics))
	for key, metrics := range mc.metrics {
		metricCopy := make([]*Metric, len(metrics))
		for i, m := range metrics {
			m := *m
			metricCopy[i] = &m
		}
		result[key] = metricCopy
	}
	return result
}

// GetMetricSummary 获取指标摘要
func (mc *MetricsCollector) GetMetricSummary(key string) (map[string]interface{}, error) {
	metrics, err := mc.GetMetric(key)
	if err != nil {
		return nil, err
	}
	return summarize(key, metrics), nil
}

// Snapshot summarizes every series.
func (mc *MetricsCollector) Snapshot() map[string]interface{} {
	all := mc.GetAllMetrics()
	series := make(map[string]interface{}, len(all))
	for key, metrics := range all {
		series[key] = summarize(key, metrics)
	}
	return map[string]interface{}{
		"uptime": mc.GetUptime().String(),
		"series": series,
		"system": mc.GetSystemStats(),
	}
}

func summarize(key string, metrics []*Metric) map[string]interface{} {
	if len(metrics) == 0 {
		return map[string]interface{}{"name": key, "count": 0}
	}
	latest := metrics[len(metrics)-1]
	min, max, sum := metrics[0].Value, metrics[0].Value, 0.0
	for _, m := range metrics {
		sum += m.Value
		if m.Value < min {
			min = m.Value
		}
		if m.Value > max {
			max = m.Value
		}
	}
	return map[string]interface{}{
		"name":      key,
		"type":      latest.Type,
		"count":     len(metrics),
		"latest":    latest.Value,
		"min":       min,
		"max":       max,
		"average":   sum / float64(len(metrics)),
		"timestamp": latest.Timestamp,
	}
}

// IncrCounter 增加计数器
func (mc *MetricsCollector) IncrCounter(name string, value float64, labels map[string]string) {
	mc.RecordMetric(&Metric{
		Name:   name,
		Type:   MetricTypeCounter,
		Value:  value,
		Labels: labels,
	})
}

// SetGauge 设置仪表
func (mc *MetricsCollector) SetGauge(name string, value float64, labels map[string]string) {
	mc.RecordMetric(&Metric{
		Name:   name,
		Type:   MetricTypeGauge,
		Value:  value,
		Labels: labels,
	})
}

// RecordHistogram 记录直方图
func (mc *MetricsCollector) RecordHistogram(name string, value float64, labels map[string]string) {
	mc.RecordMetric(&Metric{
		Name:   name,
		Type:   MetricTypeHistogram,
		Value:  value,
		Labels: labels,
	})
}

// ExportPrometheus writes the latest sample of each series in the
// Prometheus text format.
func (mc *MetricsCollector) ExportPrometheus() string {
	all := mc.GetAllMetrics()
	keys := make([]string, 0, len(all))
	for key := range all {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var b strings.Builder
	described := make(map[string]bool)
	for _, key := range keys {
		metricList := all[key]
		if len(metricList) == 0 {
			continue
		}
		metric := metricList[len(metricList)-1]
		if !described[metric.Name] {
			help := metric.Help
			if help == "" {
				help = fmt.Sprintf("Metric %s", metric.Name)
			}
			fmt.Fprintf(&b, "# HELP %s %s\n", metric.Name, help)
			fmt.Fprintf(&b, "# TYPE %s %s\n", metric.Name, prometheusType(metric.Type))
			described[metric.Name] = true
		}
		fmt.Fprintf(&b, "%s %g\n", key, metric.Value)
	}
	return b.String()
}

func prometheusType(t MetricType) MetricType {
	if t == MetricTypeHistogram {
		// only the latest observation is exported
		return MetricTypeGauge
	}
	return t
}

// GetUptime 获取运行时间
func (mc *MetricsCollector) GetUptime() time.Duration {
	return time.Since(mc.startTime)
}

// GetSystemStats 获取系统统计
func (mc *MetricsCollector) GetSystemStats() map[string]interface{} {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return map[string]interface{}{
		"goroutines": runtime.NumGoroutine(),
		"memory": map[string]interface{}{
			"alloc":      m.Alloc,
			"sys":        m.Sys,
			"heap_alloc": m.HeapAlloc,
			"heap_inuse": m.HeapInuse,
			"gc_count":   m.NumGC,
		},
		"num_cpu": runtime.NumCPU(),
	}
}

// SeriesKey renders name{k="v",...} with labels sorted by key.
func SeriesKey(name string, labels map[string]string) string {
	if len(labels) == 0 {
		return name
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, len(keys))
	for i, k := range keys {
		pairs[i] = fmt.Sprintf(`%s="%s"`, k, labels[k])
	}
	return name + "{" + strings.Join(pairs, ",") + "}"
}
