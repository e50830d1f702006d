// Package metrics holds the engine's operational metrics: per-level LSM
// shape and compaction counters, WAL throughput, and operation latency
// histograms, both as plain Go structs (for the pretty-printed String()
// the teacher's own metrics.go produces) and wired into Prometheus
// collectors for scraping. Grounded on the teacher's root metrics.go.
package metrics

import (
	"bytes"
	"fmt"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/prometheus/client_golang/prometheus"
)

// NumLevels mirrors manifest.NumLevels; duplicated here (rather than
// imported) so this package has no dependency on the storage engine's
// internals and can be reused to report metrics for any level count.
const NumLevels = 7

// LevelMetrics holds per-level metrics: file counts, total size, compaction
// score, and the byte flows a compaction produces.
type LevelMetrics struct {
	NumFiles      int64
	Size          uint64
	Score         float64
	BytesIn       uint64
	BytesIngested uint64
	BytesMoved    uint64
	BytesRead     uint64
	BytesWritten  uint64
}

// Add accumulates u's counters into m, used when folding a finished
// compaction's byte counts into the running per-level totals.
func (m *LevelMetrics) Add(u *LevelMetrics) {
	m.BytesIn += u.BytesIn
	m.BytesIngested += u.BytesIngested
	m.BytesMoved += u.BytesMoved
	m.BytesRead += u.BytesRead
	m.BytesWritten += u.BytesWritten
}

// WriteAmp is the level's write amplification: bytes written divided by
// bytes that arrived from elsewhere.
func (m *LevelMetrics) WriteAmp() float64 {
	if m.BytesIn == 0 {
		return 0
	}
	return float64(m.BytesWritten) / float64(m.BytesIn)
}

func (m *LevelMetrics) format(buf *bytes.Buffer) {
	fmt.Fprintf(buf, "%6d %9d %7.2f %9d %9d %9d %9d %9d %7.1f\n",
		m.NumFiles, m.Size, m.Score, m.BytesIn, m.BytesIngested,
		m.BytesMoved, m.BytesRead, m.BytesWritten, m.WriteAmp())
}

// WALMetrics tracks write-ahead log throughput.
type WALMetrics struct {
	Files         int64
	ObsoleteFiles int64
	Size          uint64
	BytesIn       uint64
	BytesWritten  uint64
}

// Metrics is the full set of engine metrics, safe for concurrent update:
// every field access goes through the methods below, which take mu.
type Metrics struct {
	mu     sync.Mutex
	WAL    WALMetrics
	Levels [NumLevels]LevelMetrics

	getLatency *hdrhistogram.Histogram
	putLatency *hdrhistogram.Histogram
	scanLatency *hdrhistogram.Histogram

	reg             *prometheus.Registry
	compactionCount prometheus.Counter
	flushCount      prometheus.Counter
	levelSizeGauge  *prometheus.GaugeVec
	levelFilesGauge *prometheus.GaugeVec
	opLatencyHist   *prometheus.HistogramVec
}

// histogramMaxLatency bounds the HDR histogram's tracked range to ten
// seconds, a generous ceiling for a single point operation; values above it
// are clamped to the ceiling rather than dropped, matching hdrhistogram's
// own recommended usage for latency SLOs.
const histogramMaxLatency = int64(10 * time.Second)

// New builds an empty Metrics set and registers its Prometheus collectors
// with reg. reg may be nil, in which case Prometheus collection is skipped
// but the plain counters/histograms above still work.
func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		getLatency:  hdrhistogram.New(1, histogramMaxLatency, 3),
		putLatency:  hdrhistogram.New(1, histogramMaxLatency, 3),
		scanLatency: hdrhistogram.New(1, histogramMaxLatency, 3),
		reg:         reg,
	}
	if reg == nil {
		return m
	}

	m.compactionCount = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "strata", Name: "compactions_total", Help: "Number of completed compactions.",
	})
	m.flushCount = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "strata", Name: "flushes_total", Help: "Number of memtable flushes.",
	})
	m.levelSizeGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "strata", Name: "level_size_bytes", Help: "Total sstable bytes per level.",
	}, []string{"level"})
	m.levelFilesGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "strata", Name: "level_files", Help: "Number of sstables per level.",
	}, []string{"level"})
	m.opLatencyHist = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "strata", Name: "op_latency_seconds", Help: "Per-operation latency.",
		Buckets: prometheus.ExponentialBuckets(0.00001, 2, 20),
	}, []string{"op"})

	reg.MustRegister(m.compactionCount, m.flushCount, m.levelSizeGauge, m.levelFilesGauge, m.opLatencyHist)
	return m
}

// RecordOp records the latency of one completed operation, updating both
// the HDR histogram (for precise percentile queries via Percentiles) and
// the Prometheus histogram (for scraping), if one is wired.
func (m *Metrics) RecordOp(op string, d time.Duration) {
	nanos := d.Nanoseconds()
	if nanos < 1 {
		nanos = 1
	}
	m.mu.Lock()
	switch op {
	case "get":
		m.getLatency.RecordValue(nanos)
	case "put":
		m.putLatency.RecordValue(nanos)
	case "scan":
		m.scanLatency.RecordValue(nanos)
	}
	m.mu.Unlock()

	if m.opLatencyHist != nil {
		m.opLatencyHist.WithLabelValues(op).Observe(d.Seconds())
	}
}

// Percentiles returns the p50/p95/p99/p99.9 latency, in nanoseconds, for
// the named operation ("get", "put" or "scan").
func (m *Metrics) Percentiles(op string) (p50, p95, p99, p999 int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var h *hdrhistogram.Histogram
	switch op {
	case "get":
		h = m.getLatency
	case "put":
		h = m.putLatency
	case "scan":
		h = m.scanLatency
	default:
		return 0, 0, 0, 0
	}
	return h.ValueAtQuantile(50), h.ValueAtQuantile(95), h.ValueAtQuantile(99), h.ValueAtQuantile(99.9)
}

// RecordCompaction folds a finished compaction's byte counts into the
// target level's running totals and bumps the compaction counter.
func (m *Metrics) RecordCompaction(level int, bytesIn, bytesRead, bytesWritten uint64) {
	m.mu.Lock()
	l := &m.Levels[level]
	l.BytesIn += bytesIn
	l.BytesRead += bytesRead
	l.BytesWritten += bytesWritten
	m.mu.Unlock()

	if m.compactionCount != nil {
		m.compactionCount.Inc()
	}
}

// RecordFlush bumps the flush counter and L0's incoming/written byte counts.
func (m *Metrics) RecordFlush(bytesWritten uint64) {
	m.mu.Lock()
	m.Levels[0].BytesIn += bytesWritten
	m.Levels[0].BytesWritten += bytesWritten
	m.mu.Unlock()

	if m.flushCount != nil {
		m.flushCount.Inc()
	}
}

// SetLevelShape overwrites the file count/size/score snapshot for level,
// called each time a new Version is installed.
func (m *Metrics) SetLevelShape(level int, numFiles int64, size uint64, score float64) {
	m.mu.Lock()
	l := &m.Levels[level]
	l.NumFiles, l.Size, l.Score = numFiles, size, score
	m.mu.Unlock()

	if m.levelSizeGauge != nil {
		levelLabel := fmt.Sprintf("%d", level)
		m.levelSizeGauge.WithLabelValues(levelLabel).Set(float64(size))
		m.levelFilesGauge.WithLabelValues(levelLabel).Set(float64(numFiles))
	}
}

// String pretty-prints the metrics in the same column layout the teacher's
// metrics.go produces, for the manifest-dump/stats CLI subcommands.
func (m *Metrics) String() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var buf bytes.Buffer
	var total LevelMetrics
	fmt.Fprintf(&buf, "level_files_____size___score_______in__ingest____move____read___write___w-amp\n")
	for level := 0; level < NumLevels; level++ {
		l := &m.Levels[level]
		fmt.Fprintf(&buf, "%5d ", level)
		l.format(&buf)
		total.Add(l)
		total.NumFiles += l.NumFiles
		total.Size += l.Size
	}
	total.BytesIn = m.WAL.BytesWritten + total.BytesIngested
	total.BytesWritten += total.BytesIn
	fmt.Fprintf(&buf, "total ")
	total.format(&buf)
	return buf.String()
}
