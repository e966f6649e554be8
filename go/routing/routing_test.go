package routing

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBoundaryValidation(t *testing.T) {
	var c = NewCore(Config{})

	var _, err = c.Route("")
	require.ErrorIs(t, err, ErrInvalidRequest)

	_, err = c.Route("   \t\n ")
	require.ErrorIs(t, err, ErrInvalidRequest)

	_, err = c.Route(strings.Repeat("x", MaxRequestLength+1))
	require.ErrorIs(t, err, ErrInvalidRequest)

	_, err = c.Route(strings.Repeat("x", 100))
	require.NoError(t, err)
}

func TestEscalationRules(t *testing.T) {
	var c = NewCore(Config{})

	for _, tc := range []struct {
		request    string
		reason     string
		confidence float64
	}{
		{"What is the best approach for caching here?", "complexity signal", 1.0},
		{"Which is better, channels or mutexes?", "complexity signal", 1.0},
		{"Delete all temp files", "destructive verb", 1.0},
		{"remove every stale entry", "destructive verb", 1.0},
		{"Update the parser", "without an explicit file", 0.9},
		{"modify the agents/reviewer definition", "agent definition directory", 1.0},
		{"Fix bug and add tests and update docs", "multiple objectives (2 separators)", 0.9},
		{"Build a caching layer", "creation verb", 0.85},
	} {
		var res, err = c.Route(tc.request)
		require.NoError(t, err, tc.request)
		require.Equal(t, Escalate, res.Decision, tc.request)
		require.Contains(t, res.Reason, tc.reason, tc.request)
		require.Equal(t, tc.confidence, res.Confidence, tc.request)
		require.Empty(t, res.Agent, tc.request)
	}
}

func TestCheapDirectPath(t *testing.T) {
	var c = NewCore(Config{})

	var res, err = c.Route("Fix typo in README.md")
	require.NoError(t, err)
	require.Equal(t, Direct, res.Decision)
	require.Equal(t, "cheap-general", res.Agent)
	require.GreaterOrEqual(t, res.Confidence, 0.9)
}

func TestStrongAndMidMatching(t *testing.T) {
	var c = NewCore(Config{})

	var res, err = c.Route("Prove the invariant holds for concurrent writers")
	require.NoError(t, err)
	require.Equal(t, Direct, res.Decision)
	require.Equal(t, "strong-reasoner", res.Agent)

	res, err = c.Route("Analyze the failure pattern in worker.log")
	require.NoError(t, err)
	require.Equal(t, Direct, res.Decision)
	require.Equal(t, "mid-analyst", res.Agent)
}

func TestBelowThresholdEscalatesWithCandidate(t *testing.T) {
	var c = NewCore(Config{})

	// "compare" scores 0.5 on the mid tier, below the 0.8 keyword
	// threshold: the candidate rides along on the escalation.
	var res, err = c.Route("compare outputs of run1.log versus run2.log")
	require.NoError(t, err)
	require.Equal(t, Escalate, res.Decision)
	require.Equal(t, "mid-analyst", res.Agent)
	require.Contains(t, res.Reason, "below threshold")
}

func TestNoMatchEscalates(t *testing.T) {
	var c = NewCore(Config{})

	var res, err = c.Route("ponder quietly about nothing in particular")
	require.NoError(t, err)
	require.Equal(t, Escalate, res.Decision)
	require.Empty(t, res.Agent)
	require.Equal(t, 1.0, res.Confidence)
}

func TestRoutingIsDeterministic(t *testing.T) {
	var c = NewCore(Config{})
	var first, err = c.Route("Fix typo in README.md")
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		var again, err = c.Route("Fix typo in README.md")
		require.NoError(t, err)
		require.Equal(t, first, again)
	}
}

func TestExplicitFileDetection(t *testing.T) {
	for req, want := range map[string]bool{
		"fix main.go":               true,
		"look at ./scripts/run.sh":  true,
		"open ~/notes/todo.txt":     true,
		"check pkg/router":          true,
		"bump version to 3.14":      true, // Known limitation: versions match.
		"make things faster please": false,
	} {
		require.Equal(t, want, ExplicitFileMentioned(req), req)
	}
}

func TestObjectiveSeparatorCount(t *testing.T) {
	require.Equal(t, 0, CountObjectiveSeparators("just one thing"))
	require.Equal(t, 2, CountObjectiveSeparators("a and b and c"))
	require.Equal(t, 2, CountObjectiveSeparators("build, then test; ship"))
}

type fakeMatcher struct {
	agent string
	conf  float64
	err   error
}

func (m *fakeMatcher) Match(string) (string, float64, error) { return m.agent, m.conf, m.err }
func (m *fakeMatcher) Threshold() float64                    { return 0.7 }

func TestFallbackMatcherFailsClosedToKeywords(t *testing.T) {
	var m = &FallbackMatcher{
		Primary:  &fakeMatcher{err: fmt.Errorf("model unavailable")},
		Fallback: &KeywordMatcher{},
	}
	var agent, conf, err = m.Match("Fix typo in README.md")
	require.NoError(t, err)
	require.Equal(t, "cheap-general", agent)
	require.GreaterOrEqual(t, conf, 0.9)
	require.Equal(t, 0.8, m.Threshold()) // Keyword threshold applies to the fallback answer.
}

func TestFallbackMatcherUsesPrimaryThreshold(t *testing.T) {
	var m = &FallbackMatcher{
		Primary:  &fakeMatcher{agent: "mid-analyst", conf: 0.75},
		Fallback: &KeywordMatcher{},
	}
	var agent, conf, err = m.Match("anything")
	require.NoError(t, err)
	require.Equal(t, "mid-analyst", agent)
	require.Equal(t, 0.75, conf)
	require.Equal(t, 0.7, m.Threshold())

	// 0.75 clears the LLM threshold although it misses the keyword one.
	var c = NewCore(Config{Matcher: m})
	res, err := c.Route("ponder quietly about nothing in particular")
	require.NoError(t, err)
	require.Equal(t, Direct, res.Decision)
	require.Equal(t, "mid-analyst", res.Agent)
}
