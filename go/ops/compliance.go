package ops

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// ComplianceAnalyzer joins routing recommendations against agent start
// events to measure whether recommendations were followed.
type ComplianceAnalyzer struct {
	sink *FileSink
	// Window bounds how long after a recommendation a matching agent
	// start still counts as compliance.
	Window time.Duration
}

func NewComplianceAnalyzer(sink *FileSink) *ComplianceAnalyzer {
	return &ComplianceAnalyzer{sink: sink, Window: 5 * time.Minute}
}

// ComplianceReport summarizes one or more days of joined records.
type ComplianceReport struct {
	Days            []string       `json:"days"`
	Recommendations int            `json:"recommendations"`
	Followed        int            `json:"followed"`
	Ignored         int            `json:"ignored"`
	Rate            float64        `json:"rate"`
	IgnoredByAgent  map[string]int `json:"ignored_by_agent,omitempty"`
}

// Daily analyzes a single day's log.
func (a *ComplianceAnalyzer) Daily(day string) (ComplianceReport, error) {
	var records, err = a.sink.ReadDay(day)
	if err != nil {
		return ComplianceReport{}, err
	}
	return a.analyze([]string{day}, records), nil
}

// Weekly analyzes the seven days ending at |end| (YYYY-MM-DD).
func (a *ComplianceAnalyzer) Weekly(end string) (ComplianceReport, error) {
	var endDay, err = time.Parse("2006-01-02", end)
	if err != nil {
		return ComplianceReport{}, fmt.Errorf("parsing report day: %w", err)
	}
	var days []string
	var records []Record
	for i := 6; i >= 0; i-- {
		var day = endDay.AddDate(0, 0, -i).Format("2006-01-02")
		var dayRecords, readErr = a.sink.ReadDay(day)
		if readErr != nil {
			return ComplianceReport{}, readErr
		}
		days = append(days, day)
		records = append(records, dayRecords...)
	}
	return a.analyze(days, records), nil
}

func (a *ComplianceAnalyzer) analyze(days []string, records []Record) ComplianceReport {
	var report = ComplianceReport{Days: days, IgnoredByAgent: make(map[string]int)}

	// Index agent starts by time for the window join.
	type start struct {
		at    time.Time
		agent string
	}
	var starts []start
	for _, r := range records {
		if r.InferType() != AgentEvent || r.Event != "start" {
			continue
		}
		if at, err := time.Parse(time.RFC3339, r.Timestamp); err == nil {
			starts = append(starts, start{at: at, agent: r.agentKey()})
		}
	}
	sort.Slice(starts, func(i, j int) bool { return starts[i].at.Before(starts[j].at) })

	for _, r := range records {
		if r.InferType() != RoutingRecommendation || r.RecommendedAgent == "" {
			continue
		}
		report.Recommendations++
		var at, err = time.Parse(time.RFC3339, r.Timestamp)
		if err != nil {
			report.Ignored++
			report.IgnoredByAgent[r.RecommendedAgent]++
			continue
		}
		var followed bool
		var want = normalizeAgent(r.RecommendedAgent)
		for _, s := range starts {
			if s.at.Before(at) {
				continue
			}
			if s.at.Sub(at) > a.Window {
				break
			}
			if s.agent == want {
				followed = true
				break
			}
		}
		if followed {
			report.Followed++
		} else {
			report.Ignored++
			report.IgnoredByAgent[r.RecommendedAgent]++
		}
	}
	if report.Recommendations > 0 {
		report.Rate = float64(report.Followed) / float64(report.Recommendations)
	}
	if len(report.IgnoredByAgent) == 0 {
		report.IgnoredByAgent = nil
	}
	return report
}

func (r Record) agentKey() string { return normalizeAgent(r.Agent) }

func normalizeAgent(agent string) string {
	return strings.ToLower(strings.TrimSpace(agent))
}
