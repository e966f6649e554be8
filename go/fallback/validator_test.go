package fallback

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/infolead/router/go/tier"
	"github.com/stretchr/testify/require"
)

func TestResultsFound(t *testing.T) {
	var v = NewValidator(Config{})

	for result, want := range map[string]bool{
		"three matches in pkg/":   true,
		"":                        false,
		"   ":                     false,
		"[]":                      false,
		"{}":                      false,
		"Sorry, no results here.": false,
	} {
		var verdicts, passed, _ = v.Validate([]string{TagResultsFound}, result, ExecContext{})
		require.Len(t, verdicts, 1)
		require.Equal(t, want, passed, "%q", result)
	}
}

func TestOutputValid(t *testing.T) {
	var v = NewValidator(Config{})

	for result, want := range map[string]bool{
		"all done, rewrote 3 sections":        true,
		"ERROR: could not open file":          false,
		"step 2 Failed: no permission":        false,
		"Traceback: most recent call last":    false,
		`{"status":"error","detail":"boom"}`:  false,
		`{"error":"nope"}`:                    false,
		`{"status":"ok","rows":10}`:           true,
	} {
		var _, passed, _ = v.Validate([]string{TagOutputValid}, result, ExecContext{})
		require.Equal(t, want, passed, "%q", result)
	}
}

func TestUserVerifyAlwaysPassesButFlags(t *testing.T) {
	var v = NewValidator(Config{})
	var verdicts, passed, _ = v.Validate([]string{TagUserVerify}, "whatever", ExecContext{})
	require.True(t, passed)
	require.True(t, verdicts[0].UserVerify)
}

func TestUnknownTagFails(t *testing.T) {
	var v = NewValidator(Config{})
	var _, passed, reason = v.Validate([]string{"made_up"}, "x", ExecContext{})
	require.False(t, passed)
	require.Contains(t, reason, "unknown validator tag")
}

func TestSyntaxValidJSON(t *testing.T) {
	var v = NewValidator(Config{})
	var dir = t.TempDir()

	var good = filepath.Join(dir, "good.json")
	require.NoError(t, os.WriteFile(good, []byte(`{"a":1}`), 0o600))
	var _, passed, _ = v.Validate([]string{TagSyntaxValid}, "", ExecContext{ModifiedFile: good})
	require.True(t, passed)

	var bad = filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"a":`), 0o600))
	_, passed, reason := v.Validate([]string{TagSyntaxValid}, "", ExecContext{ModifiedFile: bad})
	require.False(t, passed)
	require.Contains(t, reason, "json syntax")
}

func TestSyntaxValidTex(t *testing.T) {
	var v = NewValidator(Config{})
	var dir = t.TempDir()

	var good = filepath.Join(dir, "doc.tex")
	require.NoError(t, os.WriteFile(good, []byte(`\begin{proof}{x}\end{proof}`), 0o600))
	var _, passed, _ = v.Validate([]string{TagSyntaxValid}, "", ExecContext{ModifiedFile: good})
	require.True(t, passed)

	var unbalanced = filepath.Join(dir, "broken.tex")
	require.NoError(t, os.WriteFile(unbalanced, []byte(`\begin{proof} {{ \end{lemma}`), 0o600))
	_, passed, reason := v.Validate([]string{TagSyntaxValid}, "", ExecContext{ModifiedFile: unbalanced})
	require.False(t, passed)
	require.Contains(t, reason, "mismatch")
}

func TestSyntaxValidExtractsPathFromResult(t *testing.T) {
	var v = NewValidator(Config{})
	var bad = filepath.Join(t.TempDir(), "cfg.json")
	require.NoError(t, os.WriteFile(bad, []byte("{broken"), 0o600))

	var _, passed, _ = v.Validate([]string{TagSyntaxValid}, "I modified "+bad+" as requested", ExecContext{})
	require.False(t, passed)
}

func TestMissingExternalToolPasses(t *testing.T) {
	var c = toolChecker{tool: "definitely-not-installed-checker-xyz"}
	var verdict = c.Check("whatever.js")
	require.True(t, verdict.Passed)
}

func TestNoLogicChange(t *testing.T) {
	var v = NewValidator(Config{})

	// No test command: pass.
	var _, passed, _ = v.Validate([]string{TagNoLogicChange}, "", ExecContext{})
	require.True(t, passed)

	_, passed, _ = v.Validate([]string{TagNoLogicChange}, "", ExecContext{TestCommand: []string{"true"}})
	require.True(t, passed)

	_, passed, reason := v.Validate([]string{TagNoLogicChange}, "", ExecContext{
		TestCommand: []string{"sh", "-c", "echo assertion failure in TestFoo; exit 1"},
	})
	require.False(t, passed)
	require.Contains(t, reason, "Tests failed")
}

func TestShouldSkipTier(t *testing.T) {
	// The strongest tier is never skipped, whatever the reason.
	require.False(t, ShouldSkipTier("fundamental design flaw", tier.Strong))

	// Mechanical indicators keep the chain intact.
	for _, reason := range []string{
		"syntax error near line 12",
		"brace mismatch in paper.tex",
		"json syntax error in cfg.json",
		"grep: no matches found",
		"node: command not found",
		"tests timed out",
	} {
		require.False(t, ShouldSkipTier(reason, tier.Mid), reason)
	}

	// Reasoning failures skip intermediate tiers.
	for _, reason := range []string{
		"Tests failed due to wrong logic",
		"Assertion error: incorrect logic in algorithm",
		"unexpected behavior under load",
		"this is an architectural problem",
		"race condition between writers",
		"fundamental misunderstanding of the data model",
	} {
		require.True(t, ShouldSkipTier(reason, tier.Mid), reason)
	}

	// Anything else keeps the chain.
	require.False(t, ShouldSkipTier("agent returned nothing useful", tier.Mid))
}
