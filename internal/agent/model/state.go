package model

import (
	"github.com/cloudwego/eino/schema"
)

// AppState stores per-invocation state for the Eino Graph.
// Concurrency model:
//   - This struct is registered as Graph Local State via compose.WithGenLocalState.
//   - All reads/writes happen only inside Eino state handlers:
//     WithStatePreHandler, WithStatePostHandler, or compose.ProcessState.
//   - Eino serializes access to state within these handlers, so no additional
//     mutex/atomic is required as long as you never touch it outside handlers.
//   - Persistence goes through the conversations manager, never through this
//     struct directly.
type AppState struct {
	ThreadID string

	// History is the full message log for the thread: the checkpointed
	// messages loaded at the start of the run plus everything appended
	// during it. Handlers only ever append; earlier entries are never
	// rewritten, which is what makes the failed-run rollback trivial
	// (nothing was persisted, so the checkpoint still holds the old log).
	History []*schema.Message

	// ToolRoundTrips counts chatbot -> tool executor transitions in this
	// invocation. The branch condition aborts the run once it passes the
	// configured bound.
	ToolRoundTrips int

	// ToolCallIDSeq synthesizes tool_call_id values when the provider
	// omits them (Gemini does for some responses).
	ToolCallIDSeq int

	// Accumulated total LLM cost (USD) across model invocations for this query.
	TotalCostUSD float64
}

// QueryInput represents one invocation: a new user message on a thread.
type QueryInput struct {
	ThreadID string `json:"thread_id"`
	Query    string `json:"query"`
}
