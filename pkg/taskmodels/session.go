package taskmodels

import "time"

// Role is who authored a ChatMessage.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// ChatMessage is one append-only entry in a Session's history.
type ChatMessage struct {
	Role       Role      `json:"role"`
	Content    string    `json:"content"`
	ToolCallID string    `json:"tool_call_id,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Session is an append-only chat log with bounded retention and an optional
// compression checkpoint.
//
// Invariants: MessageCount == len(History); Compressed implies Summary is
// non-empty and the successor session carries ParentSessionID.
type Session struct {
	ID              string        `json:"id"`
	StartTime       time.Time     `json:"start_time"`
	EndTime         *time.Time    `json:"end_time,omitempty"`
	History         []ChatMessage `json:"-"`
	TokenCount      int           `json:"token_count"`
	MessageCount    int           `json:"message_count"`
	Compressed      bool          `json:"compressed"`
	ParentSessionID string        `json:"parent_session_id,omitempty"`
	Summary         string        `json:"summary,omitempty"`
}

// MemoryEntryType classifies what kind of fact a MemoryEntry records.
type MemoryEntryType string

const (
	MemoryErrorSolution  MemoryEntryType = "error_solution"
	MemorySuccessPattern MemoryEntryType = "success_pattern"
	MemoryDiscovery      MemoryEntryType = "discovery"
	MemoryGeneral        MemoryEntryType = "general"
)

// MemoryEntry is the consumed-contract shape the Engine reads and writes via
// the MemoryStore interface (spec §6). Content is opaque JSON to the core.
type MemoryEntry struct {
	ID           string
	Content      []byte
	Type         MemoryEntryType
	Tags         map[string]struct{}
	AccessCount  int
	SuccessRate  float64
	LastAccessed time.Time
}
