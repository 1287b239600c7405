package monitoring

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// bottleneckFraction marks a stage as a bottleneck once it exceeds this
// share of the request's total time.
const bottleneckFraction = 0.3

type StageRecord struct {
	Duration float64                `json:"duration"` // seconds
	Metadata map[string]interface{} `json:"metadata"`
}

type requestRecord struct {
	StartTime time.Time
	Stages    map[string]StageRecord
	order     []string
}

// Summary is the finalized view of one request's timings.
type Summary struct {
	TotalTime   float64            `json:"total_time"`
	Stages      map[string]float64 `json:"stages"`
	Bottlenecks []string           `json:"bottlenecks"`
}

type persistedRecord struct {
	StartTime float64                `json:"start_time"`
	TotalTime float64                `json:"total_time"`
	Timestamp string                 `json:"timestamp"`
	Stages    map[string]StageRecord `json:"stages"`
}

// PerformanceMonitor records per-stage timings for live requests and writes
// one JSON line per finished request for offline analysis. It sits off the
// critical path: every operation on an unknown request id is a no-op, and
// persistence failures are swallowed.
type PerformanceMonitor struct {
	logDir string
	logger *log.Logger

	mu   sync.Mutex
	live map[string]*requestRecord
}

func NewPerformanceMonitor(logDir string, logger *log.Logger) *PerformanceMonitor {
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		logger.Printf("[MONITOR] Cannot create log dir %s: %v", logDir, err)
	}
	return &PerformanceMonitor{
		logDir: logDir,
		logger: logger,
		live:   make(map[string]*requestRecord),
	}
}

// StartRequest begins timing a request. Restarting a live id resets it.
func (m *PerformanceMonitor) StartRequest(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.live[id] = &requestRecord{
		StartTime: time.Now(),
		Stages:    make(map[string]StageRecord),
	}
}

// LogStage records the named stage's duration and metadata. Re-logging the
// same stage name overwrites the previous entry.
func (m *PerformanceMonitor) LogStage(id, stage string, duration time.Duration, metadata map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()

	record, ok := m.live[id]
	if !ok {
		return
	}
	if _, seen := record.Stages[stage]; !seen {
		record.order = append(record.order, stage)
	}
	if metadata == nil {
		metadata = map[string]interface{}{}
	}
	record.Stages[stage] = StageRecord{
		Duration: duration.Seconds(),
		Metadata: metadata,
	}
}

// EndRequest finalizes the record, persists it and returns the summary.
// Unknown ids yield an empty summary.
func (m *PerformanceMonitor) EndRequest(id string) Summary {
	m.mu.Lock()
	record, ok := m.live[id]
	if ok {
		delete(m.live, id)
	}
	m.mu.Unlock()

	if !ok {
		return Summary{Stages: map[string]float64{}, Bottlenecks: []string{}}
	}

	summary := summarize(record)
	m.persist(record, summary.TotalTime)
	return summary
}

// summarize computes total time as the sum of stage durations and flags
// stages exceeding the bottleneck fraction, preserving stage order.
func summarize(record *requestRecord) Summary {
	total := 0.0
	stages := make(map[string]float64, len(record.Stages))
	for name, data := range record.Stages {
		total += data.Duration
		stages[name] = data.Duration
	}

	bottlenecks := []string{}
	for _, name := range record.order {
		if total > 0 && record.Stages[name].Duration > total*bottleneckFraction {
			bottlenecks = append(bottlenecks, name)
		}
	}

	return Summary{
		TotalTime:   total,
		Stages:      stages,
		Bottlenecks: bottlenecks,
	}
}

func (m *PerformanceMonitor) persist(record *requestRecord, totalTime float64) {
	now := time.Now()
	entry := persistedRecord{
		StartTime: float64(record.StartTime.UnixNano()) / 1e9,
		TotalTime: totalTime,
		Timestamp: now.Format(time.RFC3339),
		Stages:    record.Stages,
	}

	line, err := json.Marshal(entry)
	if err != nil {
		m.logger.Printf("[MONITOR] Cannot encode record: %v", err)
		return
	}

	path := filepath.Join(m.logDir, now.Format("20060102")+"_performance.jsonl")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		m.logger.Printf("[MONITOR] Cannot open %s: %v", path, err)
		return
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		m.logger.Printf("[MONITOR] Cannot append to %s: %v", path, err)
	}
}
