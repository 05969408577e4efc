// Package hook implements ward's hook-mode pipeline: read a coding
// agent's PreToolUse payload from stdin, segment the shell command it
// carries, evaluate every segment against the policy engine, and emit
// an allow/ask/deny decision as JSON. Grounded on
// dgerlanc-mmi/internal/hook/hook.go's Process/ProcessWithResult shape
// and original_source/src/hook.rs + main.rs's run_hook_mode.
package hook

import (
	"encoding/json"
	"io"
	"os"
	"strings"
	"time"

	"github.com/nekoruri/ward/internal/audit"
	"github.com/nekoruri/ward/internal/compose"
	"github.com/nekoruri/ward/internal/config"
	"github.com/nekoruri/ward/internal/constants"
	"github.com/nekoruri/ward/internal/dockerargs"
	"github.com/nekoruri/ward/internal/logger"
	"github.com/nekoruri/ward/internal/model"
	"github.com/nekoruri/ward/internal/policy"
	"github.com/nekoruri/ward/internal/shellseg"
)

// Process reads one hook payload from r and returns its decision as a
// Result.
func Process(r io.Reader) Result {
	return ProcessWithResult(r)
}

// ProcessWithResult reads from r and returns the full Result, so
// callers that need the original command (for CLI echo or testing) can
// get it alongside the decision.
func ProcessWithResult(r io.Reader) Result {
	start := time.Now()

	limited := io.LimitReader(r, constants.MaxHookInputBytes+1)
	rawBytes, err := io.ReadAll(limited)
	if err != nil {
		logger.Debug("failed to read hook input", "error", err)
		return resultFor("", model.DenyDecision("failed to read input"))
	}
	if len(rawBytes) > constants.MaxHookInputBytes {
		logger.Debug("hook input exceeds size limit", "bytes", len(rawBytes))
		return resultFor("", model.DenyDecision("input exceeds the maximum accepted size"))
	}

	var input Input
	if err := json.Unmarshal(rawBytes, &input); err != nil {
		logger.Debug("failed to decode hook input", "error", err)
		return resultFor("", model.DenyDecision("invalid input"))
	}

	if !strings.EqualFold(input.ToolName, ToolNameBash) {
		logger.Debug("not a Bash tool invocation, silently allowing", "tool", input.ToolName)
		return resultFor("", model.AllowDecision())
	}

	cmd := input.ToolInput.Command
	logger.Component("hook").Debug("processing command", "command", cmd)

	cwd := input.Cwd
	if cwd == "" {
		if wd, err := os.Getwd(); err == nil {
			cwd = wd
		}
	}
	home, _ := os.UserHomeDir()
	cfg := config.Get()

	segments, err := shellseg.Split(cmd)
	if err != nil {
		logger.Component("hook").Debug("rejected unparseable command", "command", cmd)
		decision := model.AskDecision("unparseable command")
		logEntry(cmd, decision, nil, cwd, input.SessionID)
		return resultFor(cmd, decision)
	}
	logger.Component("hook").Debug("split command chain", "segments", len(segments))

	overall := model.AllowDecision()
	auditSegments := make([]audit.SegmentEntry, 0, len(segments))
	for _, seg := range segments {
		decision := evaluateSegment(seg, cfg, home, cwd)
		overall = model.Merge(overall, decision)
		auditSegments = append(auditSegments, audit.SegmentEntry{
			Command:  seg.Raw,
			Decision: string(decision.Kind),
			Reasons:  decision.Reasons,
			Wrappers: seg.Wrappers,
		})
	}

	logEntry(cmd, overall, auditSegments, cwd, input.SessionID)
	logger.Component("hook").Debug("decided", "decision", overall.Kind, "duration_ms", time.Since(start).Milliseconds())
	return resultFor(cmd, overall)
}

// evaluateSegment applies the unexpanded-variable/heredoc penalty, the
// wrapper-depth-exceeded penalty, and (when the segment's unwrapped argv
// names the wrapped CLI) full argument parsing plus policy evaluation.
// A segment that isn't a container-CLI invocation at all contributes no
// additional decision beyond the unexpanded-variable check: spec.md's
// guard only has an opinion about commands that touch the wrapped CLI.
func evaluateSegment(seg shellseg.Segment, cfg *config.PolicyConfig, home, cwd string) model.Decision {
	decision := model.AllowDecision()

	if seg.HadUnexpandedVariable {
		decision = model.Merge(decision, model.AskDecision(
			"command segment contains an unresolved variable, heredoc, or command substitution"))
	}
	for _, w := range seg.Wrappers {
		if w == "wrapper-depth-exceeded" {
			return model.Merge(decision, model.DenyDecision(
				"command indirection exceeded the maximum unwrap depth"))
		}
	}

	wrapped, ok := shellseg.IsWrappedCommand(seg.Argv, constants.WrappedBinaryName)
	if !ok {
		return decision
	}

	parsed := dockerargs.ParseArgs(wrapped[1:])

	var analysis *model.ComposeAnalysis
	if composeFileRelevant(parsed.Subcommand) {
		path, found := compose.FindComposeFile(parsed.ComposeFile, cwd)
		switch {
		case found:
			a, err := compose.Analyze(path)
			if err != nil {
				decision = model.Merge(decision, model.AskDecision("compose file could not be read: "+err.Error()))
			} else {
				analysis = &a
			}
		case parsed.ComposeFile != "":
			decision = model.Merge(decision, model.AskDecision("compose file "+parsed.ComposeFile+" was not found"))
		}
	}

	return model.Merge(decision, policy.Evaluate(parsed, analysis, cfg, home, cwd))
}

// composeFileRelevant mirrors policy.composeFileRelevant: only
// up/run/create trigger a compose-file read, matching the original's
// exclusion of exec from file analysis.
func composeFileRelevant(sub model.Subcommand) bool {
	switch sub {
	case model.SubComposeUp, model.SubComposeRun, model.SubComposeCreate:
		return true
	default:
		return false
	}
}

func logEntry(cmd string, decision model.Decision, segments []audit.SegmentEntry, cwd, sessionID string) {
	audit.Log(audit.Entry{
		Mode:      "hook",
		Command:   cmd,
		Decision:  string(decision.Kind),
		Reasons:   decision.Reasons,
		Segments:  segments,
		Cwd:       cwd,
		SessionID: sessionID,
	})
}

func resultFor(cmd string, decision model.Decision) Result {
	reason := model.FormatReason(decision)
	return Result{
		Command:  cmd,
		Decision: string(decision.Kind),
		Reason:   reason,
		Output:   FormatOutput(decision),
	}
}

// FormatOutput renders a Decision as the JSON payload sent back to the
// calling agent. Allow emits no output at all (the caller engages its
// own default permission behavior); ask and deny carry the "ward: ..."
// formatted reason. A marshal failure (which would require a broken
// Decision value) falls back to a literal ask payload rather than
// propagating an error from a pure formatting function.
func FormatOutput(decision model.Decision) string {
	if decision.Kind == model.Allow {
		return ""
	}

	out := Output{
		HookSpecificOutput: SpecificOutput{
			HookEventName:            EventPreToolUse,
			PermissionDecision:       string(decision.Kind),
			PermissionDecisionReason: model.FormatReason(decision),
		},
	}
	data, err := json.Marshal(out)
	if err != nil {
		logger.Debug("failed to marshal hook output", "error", err)
		return `{"hookSpecificOutput":{"hookEventName":"PreToolUse","permissionDecision":"ask","permissionDecisionReason":"ward: internal error"}}`
	}
	return string(data)
}
