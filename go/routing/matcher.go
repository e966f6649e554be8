package routing

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/infolead/router/go/tier"
	log "github.com/sirupsen/logrus"
)

// AgentMatcher maps a request to a candidate agent with a confidence
// in [0,1]. An empty agent means no match.
type AgentMatcher interface {
	Match(request string) (agent string, confidence float64, err error)
	// Threshold is the minimum confidence at which this matcher's
	// answer is trusted for direct routing.
	Threshold() float64
}

// DefaultAgentNames maps tiers to the stock agent roles used when no
// agent definitions are loaded.
func DefaultAgentNames() map[tier.Tier]string {
	return map[tier.Tier]string{
		tier.Cheap:  "cheap-general",
		tier.Mid:    "mid-analyst",
		tier.Strong: "strong-reasoner",
	}
}

// KeywordMatcher matches requests against tiered keyword patterns.
// Matching is a pure function of the request text, so routing stays
// deterministic under a fixed configuration and answers may be memoized.
type KeywordMatcher struct {
	// Agents maps tiers to agent names; defaults to DefaultAgentNames.
	Agents map[tier.Tier]string

	initMemo sync.Once
	memo     *lru.Cache[string, kwMatch]
}

// kwMatch is a memoized keyword-match answer.
type kwMatch struct {
	agent string
	conf  float64
}

// matcherCacheSize bounds the match memo; repeated requests within a
// session hit the cache, and eviction cannot change any answer.
const matcherCacheSize = 256

// mechanical verbs route to the cheap tier when an explicit file is
// named alongside them.
var mechanicalVerbs = []string{
	"fix", "rename", "format", "sort", "move", "copy", "replace", "typo",
}

// reasoningKeywords route to the mid tier, scored per keyword.
var reasoningKeywords = map[string]float64{
	"analyze":     0.9,
	"refactor":    0.85,
	"debug":       0.8,
	"investigate": 0.8,
	"review":      0.75,
	"explain":     0.7,
	"summarize":   0.6,
	"compare":     0.5,
}

// formalKeywords route to the strong tier, scored per keyword.
var formalKeywords = map[string]float64{
	"proof":        0.95,
	"prove":        0.95,
	"theorem":      0.95,
	"formalize":    0.9,
	"formal":       0.85,
	"mathematical": 0.8,
	"lemma":        0.9,
	"derive":       0.7,
}

func (m *KeywordMatcher) agents() map[tier.Tier]string {
	if m.Agents != nil {
		return m.Agents
	}
	return DefaultAgentNames()
}

func (m *KeywordMatcher) Threshold() float64 { return 0.8 }

func (m *KeywordMatcher) Match(request string) (string, float64, error) {
	m.initMemo.Do(func() {
		// New only fails on a non-positive size.
		m.memo, _ = lru.New[string, kwMatch](matcherCacheSize)
	})
	if hit, ok := m.memo.Get(request); ok {
		return hit.agent, hit.conf, nil
	}
	var agent, conf = m.match(request)
	m.memo.Add(request, kwMatch{agent: agent, conf: conf})
	return agent, conf, nil
}

func (m *KeywordMatcher) match(request string) (string, float64) {
	var lower = strings.ToLower(request)

	// Strong-tier markers are checked first: a request asking for a
	// proof is formal work even when it also names a file.
	var best float64
	for kw, conf := range formalKeywords {
		if strings.Contains(lower, kw) && conf > best {
			best = conf
		}
	}
	if best > 0 {
		return m.agents()[tier.Strong], best
	}

	for kw, conf := range reasoningKeywords {
		if strings.Contains(lower, kw) && conf > best {
			best = conf
		}
	}
	if best > 0 {
		return m.agents()[tier.Mid], best
	}

	if _, ok := containsAny(lower, mechanicalVerbs); ok && ExplicitFileMentioned(request) {
		var conf = 0.90
		// Trivial mechanical edits are near-certain cheap work.
		if strings.Contains(lower, "typo") || strings.Contains(lower, "spelling") ||
			strings.Contains(lower, "syntax") {
			conf = 0.95
		}
		return m.agents()[tier.Cheap], conf
	}
	return "", 0
}

// HookSuppressionEnv is set in the environment of LLM matcher
// subprocesses so the host assistant does not recursively invoke this
// plugin's hooks.
const HookSuppressionEnv = "INFOLEAD_ROUTER_SUPPRESS_HOOKS"

// llmMatchPrompt is the fixed matching prompt. The response contract is
// a single JSON object {"agent": string, "confidence": number}; any
// other shape fails closed to the keyword matcher.
const llmMatchPrompt = `You are an agent dispatcher. Given a user request, answer with a single
JSON object {"agent": "<agent name>", "confidence": <0..1>} naming the
best-suited agent, or {"agent": "", "confidence": 0} if none applies.
Request: %s`

// LLMMatcher asks the cheap tier itself to pick an agent.
type LLMMatcher struct {
	// Command is the argv prefix invoking the cheap tier; the prompt is
	// appended as the final argument.
	Command []string
	// Timeout bounds the subprocess; defaults to 30s.
	Timeout time.Duration
}

func (m *LLMMatcher) Threshold() float64 { return 0.7 }

func (m *LLMMatcher) Match(request string) (string, float64, error) {
	if len(m.Command) == 0 {
		return "", 0, fmt.Errorf("no matcher command configured")
	}
	var timeout = m.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	var ctx, cancel = context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var args = append(append([]string{}, m.Command[1:]...), fmt.Sprintf(llmMatchPrompt, request))
	var cmd = exec.CommandContext(ctx, m.Command[0], args...)
	cmd.Env = append(os.Environ(), HookSuppressionEnv+"=1")

	var out, err = cmd.Output()
	if err != nil {
		return "", 0, fmt.Errorf("invoking matcher agent: %w", err)
	}

	var answer struct {
		Agent      string   `json:"agent"`
		Confidence *float64 `json:"confidence"`
	}
	if err = json.Unmarshal(firstJSONObject(out), &answer); err != nil {
		return "", 0, fmt.Errorf("parsing matcher answer: %w", err)
	}
	if answer.Confidence == nil || *answer.Confidence < 0 || *answer.Confidence > 1 {
		return "", 0, fmt.Errorf("matcher answer has no valid confidence")
	}
	return answer.Agent, *answer.Confidence, nil
}

// firstJSONObject extracts the first {...} span so that chatty model
// output around the object does not break parsing.
func firstJSONObject(out []byte) []byte {
	var s = string(out)
	var start = strings.IndexByte(s, '{')
	var end = strings.LastIndexByte(s, '}')
	if start < 0 || end <= start {
		return out
	}
	return []byte(s[start : end+1])
}

// FallbackMatcher tries a primary matcher and falls back to keywords on
// any error, logging the failure.
type FallbackMatcher struct {
	Primary  AgentMatcher
	Fallback *KeywordMatcher

	// active records which matcher produced the last answer, so the
	// caller applies the producing matcher's threshold.
	lastThreshold float64
}

func (m *FallbackMatcher) Threshold() float64 {
	if m.lastThreshold != 0 {
		return m.lastThreshold
	}
	return m.Fallback.Threshold()
}

func (m *FallbackMatcher) Match(request string) (string, float64, error) {
	var agent, conf, err = m.Primary.Match(request)
	if err == nil {
		m.lastThreshold = m.Primary.Threshold()
		return agent, conf, nil
	}
	log.WithField("err", err).Warn("agent matcher failed, falling back to keywords")
	m.lastThreshold = m.Fallback.Threshold()
	return m.Fallback.Match(request)
}
