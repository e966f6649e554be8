package fallback

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/infolead/router/go/tier"
	log "github.com/sirupsen/logrus"
)

// Validator tags form a closed set; unknown tags fail validation
// loudly rather than silently passing.
const (
	TagSyntaxValid   = "syntax_valid"
	TagNoLogicChange = "no_logic_change"
	TagResultsFound  = "results_found"
	TagOutputValid   = "output_valid"
	TagUserVerify    = "user_verify"
)

// ExecContext carries the execution facts validators inspect.
type ExecContext struct {
	// ModifiedFile is the path the agent claims to have modified.
	ModifiedFile string
	// TestCommand, when present, is run by no_logic_change.
	TestCommand []string
	// WorkDir is the working directory for TestCommand.
	WorkDir string
}

// Verdict is one validator's outcome.
type Verdict struct {
	Tag    string `json:"tag"`
	Passed bool   `json:"passed"`
	Reason string `json:"reason,omitempty"`
	// UserVerify flags the observable side effect of the user_verify
	// tag for the host to surface.
	UserVerify bool `json:"user_verify,omitempty"`
}

// SyntaxChecker validates one file's syntax. Absence of an external
// tool must be reported as a pass, never a failure.
type SyntaxChecker interface {
	Check(path string) Verdict
}

// jsonChecker validates JSON documents with the standard decoder.
type jsonChecker struct{}

func (jsonChecker) Check(path string) Verdict {
	var data, err = os.ReadFile(path)
	if err != nil {
		return Verdict{Tag: TagSyntaxValid, Passed: false, Reason: fmt.Sprintf("reading %s: %v", path, err)}
	}
	if !json.Valid(data) {
		return Verdict{Tag: TagSyntaxValid, Passed: false, Reason: fmt.Sprintf("json syntax error in %s", path)}
	}
	return Verdict{Tag: TagSyntaxValid, Passed: true}
}

// texChecker balances braces and \begin/\end environments.
type texChecker struct{}

var beginRe = regexp.MustCompile(`\\begin\{([^}]*)\}`)
var endRe = regexp.MustCompile(`\\end\{([^}]*)\}`)

func (texChecker) Check(path string) Verdict {
	var data, err = os.ReadFile(path)
	if err != nil {
		return Verdict{Tag: TagSyntaxValid, Passed: false, Reason: fmt.Sprintf("reading %s: %v", path, err)}
	}
	var depth = 0
	for _, ch := range string(data) {
		if ch == '{' {
			depth++
		} else if ch == '}' {
			depth--
		}
	}
	if depth != 0 {
		return Verdict{Tag: TagSyntaxValid, Passed: false, Reason: fmt.Sprintf("brace mismatch in %s", path)}
	}

	var begins = make(map[string]int)
	for _, m := range beginRe.FindAllStringSubmatch(string(data), -1) {
		begins[m[1]]++
	}
	for _, m := range endRe.FindAllStringSubmatch(string(data), -1) {
		begins[m[1]]--
	}
	for env, n := range begins {
		if n != 0 {
			return Verdict{Tag: TagSyntaxValid, Passed: false, Reason: fmt.Sprintf("environment mismatch for %q in %s", env, path)}
		}
	}
	return Verdict{Tag: TagSyntaxValid, Passed: true}
}

// toolChecker shells out to an external syntax checker. A missing tool
// is a pass, preserving behavior on hosts without the toolchain.
type toolChecker struct {
	tool    string
	args    []string
	timeout time.Duration
}

func (c toolChecker) Check(path string) Verdict {
	if _, err := exec.LookPath(c.tool); err != nil {
		return Verdict{Tag: TagSyntaxValid, Passed: true, Reason: fmt.Sprintf("%s not installed, skipping check", c.tool)}
	}
	var timeout = c.timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	var ctx, cancel = context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var cmd = exec.CommandContext(ctx, c.tool, append(append([]string{}, c.args...), path)...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return Verdict{Tag: TagSyntaxValid, Passed: false,
			Reason: fmt.Sprintf("syntax error in %s: %s", path, firstLine(string(out)))}
	}
	return Verdict{Tag: TagSyntaxValid, Passed: true}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// Config parameterizes a Validator.
type Config struct {
	// Checkers maps file extensions (with dot) to syntax checkers.
	// Defaults cover .json, .tex, .js and .ts.
	Checkers map[string]SyntaxChecker
	// TestTimeout bounds the no_logic_change test command.
	TestTimeout time.Duration
}

// Validator evaluates the closed set of validation tags against a
// result. Tags dispatch through a table populated at construction.
type Validator struct {
	checkers    map[string]SyntaxChecker
	testTimeout time.Duration
	table       map[string]func(result string, ectx ExecContext) Verdict
}

func NewValidator(cfg Config) *Validator {
	var v = &Validator{
		checkers:    cfg.Checkers,
		testTimeout: cfg.TestTimeout,
	}
	if v.checkers == nil {
		v.checkers = map[string]SyntaxChecker{
			".json": jsonChecker{},
			".tex":  texChecker{},
			".js":   toolChecker{tool: "node", args: []string{"--check"}},
			".ts":   toolChecker{tool: "tsc", args: []string{"--noEmit"}},
		}
	}
	if v.testTimeout <= 0 {
		v.testTimeout = 2 * time.Minute
	}
	v.table = map[string]func(string, ExecContext) Verdict{
		TagSyntaxValid:   v.syntaxValid,
		TagNoLogicChange: v.noLogicChange,
		TagResultsFound:  v.resultsFound,
		TagOutputValid:   v.outputValid,
		TagUserVerify:    v.userVerify,
	}
	return v
}

// Validate runs every tag and returns the verdicts plus the first
// failure reason, if any.
func (v *Validator) Validate(tags []string, result string, ectx ExecContext) ([]Verdict, bool, string) {
	var verdicts []Verdict
	var passed = true
	var reason string
	for _, tag := range tags {
		var fn, ok = v.table[tag]
		var verdict Verdict
		if !ok {
			verdict = Verdict{Tag: tag, Passed: false, Reason: fmt.Sprintf("unknown validator tag %q", tag)}
		} else {
			verdict = fn(result, ectx)
		}
		verdicts = append(verdicts, verdict)
		if !verdict.Passed && passed {
			passed = false
			reason = verdict.Reason
		}
	}
	return verdicts, passed, reason
}

func (v *Validator) syntaxValid(result string, ectx ExecContext) Verdict {
	var path = ectx.ModifiedFile
	if path == "" {
		path = extractModifiedFile(result)
	}
	if path == "" {
		return Verdict{Tag: TagSyntaxValid, Passed: true, Reason: "no modified file to check"}
	}
	var checker, ok = v.checkers[strings.ToLower(filepath.Ext(path))]
	if !ok {
		return Verdict{Tag: TagSyntaxValid, Passed: true, Reason: "no checker for extension"}
	}
	return checker.Check(path)
}

var modifiedFileRe = regexp.MustCompile(`(?i)(?:modified|edited|updated|wrote)\s+([\w./~-]+\.\w{1,8})`)

func extractModifiedFile(result string) string {
	if m := modifiedFileRe.FindStringSubmatch(result); m != nil {
		return m[1]
	}
	return ""
}

func (v *Validator) noLogicChange(result string, ectx ExecContext) Verdict {
	if len(ectx.TestCommand) == 0 {
		return Verdict{Tag: TagNoLogicChange, Passed: true, Reason: "no test command configured"}
	}
	var ctx, cancel = context.WithTimeout(context.Background(), v.testTimeout)
	defer cancel()

	var cmd = exec.CommandContext(ctx, ectx.TestCommand[0], ectx.TestCommand[1:]...)
	cmd.Dir = ectx.WorkDir
	var out, err = cmd.CombinedOutput()
	if ctx.Err() == context.DeadlineExceeded {
		return Verdict{Tag: TagNoLogicChange, Passed: false, Reason: "tests timed out"}
	}
	if err != nil {
		log.WithFields(log.Fields{"cmd": ectx.TestCommand, "err": err}).Debug("validation tests failed")
		return Verdict{Tag: TagNoLogicChange, Passed: false,
			Reason: fmt.Sprintf("Tests failed: %s", firstLine(string(out)))}
	}
	return Verdict{Tag: TagNoLogicChange, Passed: true}
}

func (v *Validator) resultsFound(result string, _ ExecContext) Verdict {
	var trimmed = strings.TrimSpace(result)
	var lower = strings.ToLower(trimmed)
	if trimmed == "" || trimmed == "[]" || trimmed == "{}" || strings.Contains(lower, "no results") {
		return Verdict{Tag: TagResultsFound, Passed: false, Reason: "no results found"}
	}
	return Verdict{Tag: TagResultsFound, Passed: true}
}

var errorMarkers = []string{"error:", "failed:", "exception:", "traceback:", "fatal:", "panic:", "abort:"}

func (v *Validator) outputValid(result string, _ ExecContext) Verdict {
	var lower = strings.ToLower(result)
	for _, marker := range errorMarkers {
		if strings.Contains(lower, marker) {
			return Verdict{Tag: TagOutputValid, Passed: false,
				Reason: fmt.Sprintf("output contains error marker %q", marker)}
		}
	}
	// A JSON object result is additionally inspected for error fields.
	var doc map[string]interface{}
	if json.Unmarshal([]byte(strings.TrimSpace(result)), &doc) == nil {
		if _, ok := doc["error"]; ok {
			return Verdict{Tag: TagOutputValid, Passed: false, Reason: "result carries an error field"}
		}
		if status, ok := doc["status"].(string); ok && status == "error" {
			return Verdict{Tag: TagOutputValid, Passed: false, Reason: "result status is error"}
		}
	}
	return Verdict{Tag: TagOutputValid, Passed: true}
}

func (v *Validator) userVerify(string, ExecContext) Verdict {
	return Verdict{Tag: TagUserVerify, Passed: true, UserVerify: true}
}

// mechanicalIndicators are failure signals a stronger model cannot
// think its way around; the next fallback tier is still worth trying.
var mechanicalIndicators = []string{
	"syntax error", "brace mismatch", "environment mismatch", "json syntax",
	"no results found", "no matches found", "no files found",
	"command not found", "timed out",
}

// reasoningFailurePatterns indicate the failure is conceptual, so an
// intermediate tier is unlikely to resolve it.
var reasoningFailurePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)tests? failed.*logic`),
	regexp.MustCompile(`(?i)assertion.*error`),
	regexp.MustCompile(`(?i)unexpected (behavior|result|output)`),
	regexp.MustCompile(`(?i)design (flaw|issue|problem)`),
	regexp.MustCompile(`(?i)architectural`),
	regexp.MustCompile(`(?i)race condition`),
	regexp.MustCompile(`(?i)incorrect (logic|algorithm|approach)`),
	regexp.MustCompile(`(?i)fundamental`),
	regexp.MustCompile(`(?i)conceptual`),
	regexp.MustCompile(`(?i)misunderst`),
}

// ShouldSkipTier reports whether |candidate| should be bypassed in the
// fallback chain given the observed |failureReason|. The strongest tier
// is never skipped.
func ShouldSkipTier(failureReason string, candidate tier.Tier) bool {
	if candidate == tier.Strong {
		return false
	}
	var lower = strings.ToLower(failureReason)
	for _, ind := range mechanicalIndicators {
		if strings.Contains(lower, ind) {
			return false
		}
	}
	for _, re := range reasoningFailurePatterns {
		if re.MatchString(failureReason) {
			return true
		}
	}
	return false
}
