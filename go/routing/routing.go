// Package routing implements the mechanical pre-router: a fixed set of
// escalation rules checked in order, followed by agent matching. It
// either delivers a request directly to a named agent or escalates it
// to the deliberating router.
package routing

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Decision says whether a request was routed directly or escalated.
type Decision string

const (
	Direct   Decision = "DIRECT"
	Escalate Decision = "ESCALATE"
)

// Result is the pre-router's decision. Direct results always name an
// agent; escalations may carry the below-threshold candidate.
type Result struct {
	Decision   Decision `json:"decision"`
	Agent      string   `json:"agent,omitempty"`
	Reason     string   `json:"reason"`
	Confidence float64  `json:"confidence"`
}

// MaxRequestLength bounds accepted requests.
const MaxRequestLength = 10000

// ErrInvalidRequest rejects empty, blank, or oversized requests at the
// boundary. Invalid requests are not logged as routing events.
var ErrInvalidRequest = errors.New("invalid request")

// CheckRequest applies the boundary rules shared by every router entry
// point.
func CheckRequest(request string) error {
	if strings.TrimSpace(request) == "" {
		return fmt.Errorf("%w: empty request", ErrInvalidRequest)
	}
	if len(request) > MaxRequestLength {
		return fmt.Errorf("%w: request of %d chars exceeds %d", ErrInvalidRequest, len(request), MaxRequestLength)
	}
	return nil
}

var complexityKeywords = []string{
	"complex", "subtle", "nuanced", "judgment", "trade-off", "best approach",
	"design", "architecture", "should i", "which is better", "recommend", "decide",
}

var destructiveVerbs = []string{"delete", "remove", "drop"}
var bulkQuantifiers = []string{"all", "multiple", "*", "every"}

var mutatingVerbs = []string{"edit", "modify", "change", "update", "delete", "remove"}

var creationVerbs = []string{"new", "create", "design", "build", "implement"}

var objectiveSeparators = []string{" and ", ", then ", " after ", " before ", ";"}

var (
	// Note: the extension form also matches version numbers like 3.14.
	// This is a known limitation; the thresholds below are tuned for it.
	fileExtRe  = regexp.MustCompile(`\b\w+\.\w{2,4}\b`)
	filePathRe = regexp.MustCompile(`(^|\s)(\./|/|~)[\w./~-]+`)
	fileSlashRe = regexp.MustCompile(`\b[\w.-]+/[\w.-]+\b`)

	newFileRe = regexp.MustCompile(`new file\s+\S+`)
)

// ExplicitFileMentioned reports whether the request names a concrete
// file or path.
func ExplicitFileMentioned(request string) bool {
	return fileExtRe.MatchString(request) ||
		filePathRe.MatchString(request) ||
		fileSlashRe.MatchString(request)
}

// CountObjectiveSeparators counts multi-objective separators in the
// request.
func CountObjectiveSeparators(request string) int {
	var lower = strings.ToLower(request)
	var n = 0
	for _, sep := range objectiveSeparators {
		n += strings.Count(lower, sep)
	}
	return n
}

func containsAny(haystack string, needles []string) (string, bool) {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return n, true
		}
	}
	return "", false
}

// escalationRule inspects a request and either returns a Result or
// passes. Rules are checked in order; the first match wins.
type escalationRule func(request, lower string) (Result, bool)

func (c *Core) escalationRules() []escalationRule {
	return []escalationRule{
		// 1. Complexity signals always deserve deliberation.
		func(request, lower string) (Result, bool) {
			if kw, ok := containsAny(lower, complexityKeywords); ok {
				return Result{
					Decision:   Escalate,
					Reason:     fmt.Sprintf("complexity signal %q requires deliberation", kw),
					Confidence: 1.0,
				}, true
			}
			return Result{}, false
		},
		// 2. Destructive verb with a bulk quantifier.
		func(request, lower string) (Result, bool) {
			var verb, hasVerb = containsAny(lower, destructiveVerbs)
			var quant, hasQuant = containsAny(lower, bulkQuantifiers)
			if hasVerb && hasQuant {
				return Result{
					Decision:   Escalate,
					Reason:     fmt.Sprintf("destructive verb %q with bulk quantifier %q", verb, quant),
					Confidence: 1.0,
				}, true
			}
			return Result{}, false
		},
		// 3. Multiple objectives in one request. Checked ahead of the
		// single-file rules so that compound requests escalate with
		// the objective count as their reason.
		func(request, lower string) (Result, bool) {
			if n := CountObjectiveSeparators(request); n >= 2 {
				return Result{
					Decision:   Escalate,
					Reason:     fmt.Sprintf("request contains multiple objectives (%d separators)", n),
					Confidence: 0.9,
				}, true
			}
			return Result{}, false
		},
		// 4. File mutation without an explicit target.
		func(request, lower string) (Result, bool) {
			var verb, hasVerb = containsAny(lower, mutatingVerbs)
			if hasVerb && !ExplicitFileMentioned(request) {
				return Result{
					Decision:   Escalate,
					Reason:     fmt.Sprintf("mutating verb %q without an explicit file", verb),
					Confidence: 0.9,
				}, true
			}
			return Result{}, false
		},
		// 5. Mutation of the agent definitions themselves.
		func(request, lower string) (Result, bool) {
			var _, hasVerb = containsAny(lower, mutatingVerbs)
			if hasVerb && strings.Contains(lower, strings.ToLower(c.cfg.AgentsDir)) {
				return Result{
					Decision:   Escalate,
					Reason:     "request mutates the agent definition directory",
					Confidence: 1.0,
				}, true
			}
			return Result{}, false
		},
		// 6. Creation and design work, excepting "new file <path>".
		func(request, lower string) (Result, bool) {
			var verb, hasVerb = containsAny(lower, creationVerbs)
			if hasVerb && !newFileRe.MatchString(lower) {
				return Result{
					Decision:   Escalate,
					Reason:     fmt.Sprintf("creation verb %q suggests design work", verb),
					Confidence: 0.85,
				}, true
			}
			return Result{}, false
		},
	}
}
