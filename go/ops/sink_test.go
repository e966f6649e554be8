package ops

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func fixedNow(day string, hour, min int) func() time.Time {
	var d, err = time.Parse("2006-01-02", day)
	if err != nil {
		panic(err)
	}
	return func() time.Time {
		return d.Add(time.Duration(hour)*time.Hour + time.Duration(min)*time.Minute)
	}
}

func TestAppendAndReadDay(t *testing.T) {
	var sink = NewFileSink(t.TempDir())
	sink.Now = fixedNow("2025-06-10", 12, 0)

	require.NoError(t, sink.Append(Record{RecordType: AgentEvent, Agent: "mid-analyst", Event: "start"}))
	require.NoError(t, sink.Append(Record{RecordType: SolutionMetric, Metric: "escalation_rate", Value: 0.25}))

	var records, err = sink.ReadDay("2025-06-10")
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, AgentEvent, records[0].RecordType)
	require.NotEmpty(t, records[0].Timestamp)
	require.Equal(t, 0.25, records[1].Value)

	// A different day reads empty.
	records, err = sink.ReadDay("2025-06-11")
	require.NoError(t, err)
	require.Empty(t, records)
}

func TestAppendModesAndLayout(t *testing.T) {
	var dir = t.TempDir()
	var sink = NewFileSink(dir)
	sink.Now = fixedNow("2025-06-10", 12, 0)

	require.NoError(t, sink.Append(Record{RecordType: RequestTracking, Request: "fix typo"}))

	var info, err = os.Stat(filepath.Join(dir, "2025-06-10.ndjson"))
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestReadDayToleratesTornTail(t *testing.T) {
	var dir = t.TempDir()
	var sink = NewFileSink(dir)
	sink.Now = fixedNow("2025-06-10", 12, 0)

	require.NoError(t, sink.Append(Record{RecordType: AgentEvent, Agent: "a", Event: "start"}))
	// Simulate a concurrent appender torn mid-record.
	var f, err = os.OpenFile(filepath.Join(dir, "2025-06-10.ndjson"), os.O_APPEND|os.O_WRONLY, 0600)
	require.NoError(t, err)
	_, err = f.WriteString(`{"record_type":"agent_ev`)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	records, err := sink.ReadDay("2025-06-10")
	require.NoError(t, err)
	require.Len(t, records, 1)
}

func TestLegacyTypeInference(t *testing.T) {
	var cases = []struct {
		record Record
		expect RecordType
	}{
		{Record{Agent: "a", Event: "stop"}, AgentEvent},
		{Record{Metric: "tokens", Value: 12}, SolutionMetric},
		{Record{RecommendedAgent: "mid-analyst", Confidence: 0.8}, RoutingRecommendation},
		{Record{Request: "fix typo"}, RequestTracking},
		{Record{RecordType: SolutionMetric, Request: "x"}, SolutionMetric},
	}
	for _, tc := range cases {
		require.Equal(t, tc.expect, tc.record.InferType())
	}
}

func TestCleanupRetention(t *testing.T) {
	var dir = t.TempDir()
	var sink = NewFileSink(dir)
	sink.Now = fixedNow("2025-06-10", 12, 0)

	for _, name := range []string{"2025-01-01.ndjson", "2025-06-09.ndjson", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("{}\n"), 0600))
	}

	var removed, err = sink.Cleanup(DefaultRetention)
	require.NoError(t, err)
	require.Equal(t, 1, removed)

	_, err = os.Stat(filepath.Join(dir, "2025-01-01.ndjson"))
	require.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(dir, "2025-06-09.ndjson"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "notes.txt"))
	require.NoError(t, err)
}

func TestCleanupMissingDir(t *testing.T) {
	var sink = NewFileSink(filepath.Join(t.TempDir(), "absent"))
	var removed, err = sink.Cleanup(DefaultRetention)
	require.NoError(t, err)
	require.Zero(t, removed)
}
