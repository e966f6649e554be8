// Package hooks implements the host-assistant hook contract: JSON in
// on stdin, JSON out on stdout, exit code as the signal. Hook failures
// are advisory; only a permission denial changes host behavior.
package hooks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/infolead/router/go/config"
	"github.com/infolead/router/go/ops"
	log "github.com/sirupsen/logrus"
)

// SuppressEnv disables hook side effects when set; the permission hook
// then answers allow unconditionally.
const SuppressEnv = "INFOLEAD_ROUTER_SUPPRESS_HOOKS"

// Event names the hooks this process understands. Unknown events are
// logged and succeed.
const (
	EventAgentStart = "agent_start"
	EventAgentStop  = "agent_stop"
	EventPreToolUse = "PreToolUse"
)

// Input is the envelope the host writes to a hook's stdin.
type Input struct {
	HookEventName string          `json:"hook_event_name"`
	AgentName     string          `json:"agent_name,omitempty"`
	ToolName      string          `json:"tool_name,omitempty"`
	ToolInput     json.RawMessage `json:"tool_input,omitempty"`
}

// PermissionOutput is the PreToolUse response.
type PermissionOutput struct {
	PermissionDecision string `json:"permissionDecision"`
	Reason             string `json:"reason,omitempty"`
}

// Config parameterizes a Handler.
type Config struct {
	// Risk classifies tool input for the permission hook.
	Risk config.RiskPatterns
	// Timeout bounds a single hook invocation.
	Timeout time.Duration
}

// Handler answers hook invocations.
type Handler struct {
	cfg      Config
	recorder *ops.Recorder
	// dispatchFn is replaced in tests to model a slow hook body.
	dispatchFn func(Input, io.Writer) int
}

// New builds a Handler. |recorder| may be nil when metrics are
// unavailable.
func New(cfg Config, recorder *ops.Recorder) *Handler {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	var h = &Handler{cfg: cfg, recorder: recorder}
	h.dispatchFn = h.dispatch
	return h
}

func suppressed() bool { return os.Getenv(SuppressEnv) != "" }

// Run reads one hook input from |in|, dispatches on its event, and
// writes any response to |out|. The returned exit code follows the
// contract: 0 unless the invocation itself was malformed.
func (h *Handler) Run(ctx context.Context, in io.Reader, out io.Writer) int {
	return h.RunAs(ctx, "", in, out)
}

// RunAs behaves as Run, but supplies |event| when the input envelope
// does not name one. Hosts that dispatch by hook endpoint rather than
// by envelope field use this form.
func (h *Handler) RunAs(ctx context.Context, event string, in io.Reader, out io.Writer) int {
	ctx, cancel := context.WithTimeout(ctx, h.cfg.Timeout)
	defer cancel()

	var input Input
	if err := json.NewDecoder(in).Decode(&input); err != nil {
		log.WithField("err", err).Warn("malformed hook input")
		return 1
	}
	if input.HookEventName == "" {
		input.HookEventName = event
	}

	// Dispatch writes into a buffer flushed only when it finishes in
	// time, so the host never sees two responses if the timeout answer
	// below races a late dispatch.
	var buf bytes.Buffer
	var done = make(chan int, 1)
	go func() { done <- h.dispatchFn(input, &buf) }()
	select {
	case code := <-done:
		if buf.Len() != 0 {
			if _, err := out.Write(buf.Bytes()); err != nil {
				log.WithField("err", err).Warn("writing hook response")
				return 1
			}
		}
		return code
	case <-ctx.Done():
		// The permission contract requires an answer within the
		// timeout; failing open here would bypass risk screening.
		if input.HookEventName == EventPreToolUse {
			_ = json.NewEncoder(out).Encode(PermissionOutput{
				PermissionDecision: "deny",
				Reason:             "permission hook timed out",
			})
		}
		return 1
	}
}

func (h *Handler) dispatch(input Input, out io.Writer) int {
	switch input.HookEventName {
	case EventAgentStart, EventAgentStop:
		if suppressed() {
			return 0
		}
		var event = "start"
		if input.HookEventName == EventAgentStop {
			event = "stop"
		}
		if h.recorder != nil {
			h.recorder.RecordAgentEvent(input.AgentName, event)
		}
		return 0

	case EventPreToolUse:
		var decision = h.screen(input)
		if err := json.NewEncoder(out).Encode(decision); err != nil {
			log.WithField("err", err).Warn("writing permission decision")
			return 1
		}
		return 0

	default:
		log.WithField("event", input.HookEventName).Info("ignoring unknown hook event")
		return 0
	}
}

// screen decides a PreToolUse request against the risk patterns.
func (h *Handler) screen(input Input) PermissionOutput {
	if suppressed() {
		return PermissionOutput{PermissionDecision: "allow"}
	}
	var text = strings.ToLower(string(input.ToolInput))
	for _, pattern := range h.cfg.Risk.HighRisk {
		if strings.Contains(text, strings.ToLower(pattern)) {
			return PermissionOutput{
				PermissionDecision: "deny",
				Reason:             fmt.Sprintf("tool input matches high-risk pattern %q", pattern),
			}
		}
	}
	for _, pattern := range h.cfg.Risk.MediumRisk {
		if strings.Contains(text, strings.ToLower(pattern)) {
			log.WithFields(log.Fields{"tool": input.ToolName, "pattern": pattern}).
				Info("allowing medium-risk tool use")
			break
		}
	}
	return PermissionOutput{PermissionDecision: "allow"}
}
