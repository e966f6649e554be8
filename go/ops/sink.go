package ops

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"
)

// RecordType tags a metrics log record.
type RecordType string

const (
	AgentEvent            RecordType = "agent_event"
	SolutionMetric        RecordType = "solution_metric"
	RoutingRecommendation RecordType = "routing_recommendation"
	RequestTracking       RecordType = "request_tracking"
)

// Record is one line of the per-day metrics log. Kinds populate
// different field subsets; the zero fields are omitted on the wire.
type Record struct {
	RecordType RecordType `json:"record_type,omitempty"`
	Timestamp  string     `json:"timestamp"`

	// agent_event
	Agent string `json:"agent,omitempty"`
	Event string `json:"event,omitempty"`

	// solution_metric
	Metric string  `json:"metric,omitempty"`
	Value  float64 `json:"value,omitempty"`

	// routing_recommendation
	RecommendedAgent string  `json:"recommended_agent,omitempty"`
	Reason           string  `json:"reason,omitempty"`
	Confidence       float64 `json:"confidence,omitempty"`

	// request_tracking
	Request string `json:"request,omitempty"`
	Mode    string `json:"mode,omitempty"`
	Level   string `json:"level,omitempty"`
}

// InferType resolves the kind of legacy records written before the
// record_type field existed, from which fields are present.
func (r Record) InferType() RecordType {
	if r.RecordType != "" {
		return r.RecordType
	}
	switch {
	case r.Event != "":
		return AgentEvent
	case r.Metric != "":
		return SolutionMetric
	case r.RecommendedAgent != "":
		return RoutingRecommendation
	default:
		return RequestTracking
	}
}

// Sink receives metric records.
type Sink interface {
	Append(Record) error
}

var recordsAppended = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "router_metric_records_appended_total",
	Help: "metric log records appended, by record type",
}, []string{"record_type"})

// FileSink appends records to per-day NDJSON files under |Dir|.
// Each record is written with a single write call so concurrent
// appenders interleave whole lines.
type FileSink struct {
	Dir string
	// Now is injectable for tests.
	Now func() time.Time
}

func NewFileSink(dir string) *FileSink {
	return &FileSink{Dir: dir, Now: time.Now}
}

func (s *FileSink) dayPath(day string) string {
	return filepath.Join(s.Dir, day+".ndjson")
}

// Append writes |r| as one line of today's log, stamping the record
// and its type if the caller left them unset.
func (s *FileSink) Append(r Record) error {
	var now = s.Now().UTC()
	if r.Timestamp == "" {
		r.Timestamp = now.Format(time.RFC3339)
	}
	r.RecordType = r.InferType()

	var line, err = json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encoding metric record: %w", err)
	}
	line = append(line, '\n')

	if err = os.MkdirAll(s.Dir, 0700); err != nil {
		return fmt.Errorf("creating metrics directory: %w", err)
	}
	var f *os.File
	if f, err = os.OpenFile(s.dayPath(now.Format("2006-01-02")), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600); err != nil {
		return fmt.Errorf("opening metrics log: %w", err)
	}
	defer f.Close()

	if _, err = f.Write(line); err != nil {
		return fmt.Errorf("appending metric record: %w", err)
	}
	recordsAppended.WithLabelValues(string(r.RecordType)).Inc()
	return nil
}

// ReadDay returns the records of |day| (YYYY-MM-DD). Malformed lines
// are skipped: a torn trailing line is an expected artifact of a
// concurrent appender.
func (s *FileSink) ReadDay(day string) ([]Record, error) {
	var f, err = os.Open(s.dayPath(day))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening metrics log: %w", err)
	}
	defer f.Close()

	var out []Record
	var scanner = bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var line = scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var r Record
		if err = json.Unmarshal(line, &r); err != nil {
			log.WithFields(log.Fields{"day": day, "err": err}).
				Debug("skipping malformed metrics line")
			continue
		}
		r.RecordType = r.InferType()
		out = append(out, r)
	}
	if err = scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading metrics log: %w", err)
	}
	return out, nil
}

var dayFileRe = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2})\.ndjson$`)

// Cleanup removes dated log files older than |retention| and returns
// how many were removed.
func (s *FileSink) Cleanup(retention time.Duration) (int, error) {
	var entries, err = os.ReadDir(s.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("listing metrics directory: %w", err)
	}
	var cutoff = s.Now().UTC().Add(-retention)
	var removed int
	for _, entry := range entries {
		var m = dayFileRe.FindStringSubmatch(entry.Name())
		if m == nil {
			continue
		}
		var day, parseErr = time.Parse("2006-01-02", m[1])
		if parseErr != nil || !day.Before(cutoff) {
			continue
		}
		if err = os.Remove(filepath.Join(s.Dir, entry.Name())); err != nil {
			return removed, fmt.Errorf("removing %s: %w", entry.Name(), err)
		}
		removed++
	}
	if removed > 0 {
		log.WithFields(log.Fields{"removed": removed}).Info("metrics retention cleanup")
	}
	return removed, nil
}

// DefaultRetention is how long dated metric logs are kept.
const DefaultRetention = 90 * 24 * time.Hour
