package hook

// Tool names recognised in PreToolUse hook input.
const ToolNameBash = "Bash"

// Hook event names.
const EventPreToolUse = "PreToolUse"

// Permission decisions surfaced to the caller.
const (
	DecisionAllow = "allow"
	DecisionAsk   = "ask"
	DecisionDeny  = "deny"
)

// Input represents the JSON input received from a coding agent's
// PreToolUse hook.
type Input struct {
	SessionID      string        `json:"session_id"`
	TranscriptPath string        `json:"transcript_path"`
	Cwd            string        `json:"cwd"`
	PermissionMode string        `json:"permission_mode"`
	HookEventName  string        `json:"hook_event_name"`
	ToolName       string        `json:"tool_name"`
	ToolInput      ToolInputData `json:"tool_input"`
	ToolUseID      string        `json:"tool_use_id"`
}

// ToolInputData contains the command details from the Bash tool.
type ToolInputData struct {
	Command     string `json:"command"`
	Description string `json:"description,omitempty"`
	Timeout     int    `json:"timeout,omitempty"`
}

// Output represents the JSON response sent back to the caller.
type Output struct {
	HookSpecificOutput SpecificOutput `json:"hookSpecificOutput"`
}

// SpecificOutput contains the permission decision details.
type SpecificOutput struct {
	HookEventName            string `json:"hookEventName"`
	PermissionDecision       string `json:"permissionDecision"`
	PermissionDecisionReason string `json:"permissionDecisionReason"`
}

// Result is ProcessWithResult's return value: the outcome of processing
// one hook-mode invocation.
type Result struct {
	Command  string
	Decision string // allow, ask, or deny
	Reason   string
	Output   string
}
