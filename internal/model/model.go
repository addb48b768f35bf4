// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package model defines the entities shared across the ingestion
// pipeline, the hybrid search index, and the query engine: Session,
// Repository, File, Task, Conversation, Message, and their nested
// structural types.
package model

import "time"

// Preferences are a Session's provider/model choices, set via the
// preferences endpoint. Zero value means "not yet configured".
type Preferences struct {
	Provider          string `json:"provider,omitempty"`
	Model             string `json:"model,omitempty"`
	EmbeddingProvider string `json:"embedding_provider,omitempty"`
	EmbeddingModel    string `json:"embedding_model,omitempty"`
	Theme             string `json:"theme,omitempty"`
}

// Session is created by an external session endpoint; its preferences
// are consumed by the pipeline and the query engine.
type Session struct {
	SessionID   string       `json:"session_id"`
	Preferences *Preferences `json:"preferences"`
	RepoIDs     []string     `json:"repo_ids"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// RepoStatus is a Repository's lifecycle state.
type RepoStatus string

const (
	RepoFetched    RepoStatus = "fetched"
	RepoProcessing RepoStatus = "processing"
	RepoCompleted  RepoStatus = "completed"
	RepoFailed     RepoStatus = "failed"
)

// TreeNodeType distinguishes a file leaf from a folder in FileTree.
type TreeNodeType string

const (
	TreeFile   TreeNodeType = "file"
	TreeFolder TreeNodeType = "folder"
)

// TreeNode is one entry of Repository.FileTree: a recursive mapping
// from path segment to node.
type TreeNode struct {
	Type     TreeNodeType        `json:"type"`
	Path     string               `json:"path,omitempty"`
	Size     int64                `json:"size,omitempty"`
	Language string               `json:"language,omitempty"`
	Children map[string]*TreeNode `json:"children,omitempty"`
}

// Repository is one ingestion: a source repo pinned to a session,
// carrying its file tree, status, and (once ingested) its overview.
type Repository struct {
	RepoID               string               `json:"repo_id"`
	SessionID            string               `json:"session_id"`
	SourceURL            string               `json:"source_url"`
	Owner                string               `json:"owner"`
	Name                 string               `json:"name"`
	DefaultBranch        string               `json:"default_branch"`
	FileTree             map[string]*TreeNode `json:"file_tree"`
	Status               RepoStatus           `json:"status"`
	TaskID               string               `json:"task_id,omitempty"`
	FileCount            int                  `json:"file_count"`
	LanguagesHistogram   map[string]int       `json:"languages_histogram"`
	Overview             string               `json:"overview,omitempty"`
	OverviewEmbedding    []float32            `json:"overview_embedding,omitempty"`
	Error                string               `json:"error,omitempty"`
	CreatedAt            time.Time            `json:"created_at"`
	UpdatedAt            time.Time            `json:"updated_at"`
}

// Function is a top-level function or method extracted by the parser.
type Function struct {
	Name         string   `json:"name"`
	ParentClass  string   `json:"parent_class,omitempty"`
	IsMethod     bool     `json:"is_method"`
	Signature    string   `json:"signature"`
	LineStart    int      `json:"line_start"`
	LineEnd      int      `json:"line_end"`
	Parameters   []string `json:"parameters"`
}

// Class is a class/struct/impl block with nested methods.
type Class struct {
	Name      string   `json:"name"`
	LineStart int      `json:"line_start"`
	LineEnd   int       `json:"line_end"`
	Methods   []string `json:"methods"`
}

// ChunkType distinguishes function-level from class-level chunks.
type ChunkType string

const (
	ChunkFunction ChunkType = "function"
	ChunkClass    ChunkType = "class"
)

// Chunk is a function- or class-level slice of a File carrying its own
// embedding and natural-language description.
type Chunk struct {
	ChunkType   ChunkType `json:"chunk_type"`
	ChunkName   string    `json:"chunk_name"`
	ChunkText   string    `json:"chunk_text"`
	Code        string    `json:"code"`
	LineStart   int       `json:"line_start"`
	LineEnd     int       `json:"line_end"`
	ParentClass string    `json:"parent_class,omitempty"`
	Vector      []float32 `json:"vector,omitempty"`
	ChunkIndex  int       `json:"chunk_index"`
	TotalChunks int       `json:"total_chunks"`
}

// Dependencies holds a File's resolved and unresolved import edges.
type Dependencies struct {
	Imports         []string `json:"imports"`
	ImportedBy      []string `json:"imported_by"`
	ExternalImports []string `json:"external_imports"`
}

// ProviderMeta carries best-effort per-file failure and truncation
// state that never escapes to abort the pipeline or a query turn.
type ProviderMeta struct {
	Error      string `json:"error,omitempty"`
	Truncated  bool   `json:"truncated,omitempty"`
}

// File is one source file of a Repository, mutated in place as the
// pipeline's parse, dependency, embedding, and summary stages run.
type File struct {
	FileID       string        `json:"file_id"`
	RepoID       string        `json:"repo_id"`
	Path         string        `json:"path"`
	Filename     string        `json:"filename"`
	Language     string        `json:"language"`
	Content      string        `json:"content"`
	Size         int64         `json:"size"`
	Parsed       bool          `json:"parsed"`
	Embedded     bool          `json:"embedded"`
	Functions    []Function    `json:"functions"`
	Classes      []Class       `json:"classes"`
	Imports      []string      `json:"imports"`
	Dependencies Dependencies  `json:"dependencies"`
	Chunks       []Chunk       `json:"chunks"`
	Summary      string        `json:"summary,omitempty"`
	SummaryVector []float32    `json:"summary_vector,omitempty"`
	ProviderMeta ProviderMeta  `json:"provider_meta"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// TaskKind enumerates the kinds of durable jobs the task store tracks.
type TaskKind string

const TaskProcessFiles TaskKind = "process_files"

// TaskStatus is a Task's lifecycle state.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
)

// Step is a pipeline stage label, in the order the orchestrator
// advances through them.
type Step string

const (
	StepQueued      Step = "queued"
	StepFetching    Step = "fetching"
	StepParsing     Step = "parsing"
	StepEmbedding   Step = "embedding"
	StepSummarizing Step = "summarizing"
	StepOverview    Step = "overview"
	StepFinalizing  Step = "finalizing"
	StepCompleted   Step = "completed"
)

// stepOrder gives each Step its position for monotonicity checks.
var stepOrder = map[Step]int{
	StepQueued:      0,
	StepFetching:    1,
	StepParsing:     2,
	StepEmbedding:   3,
	StepSummarizing: 4,
	StepOverview:    5,
	StepFinalizing:  6,
	StepCompleted:   7,
}

// Advances reports whether moving from s to next is a forward (or
// same-step) transition in the step order.
func (s Step) Advances(next Step) bool {
	return stepOrder[next] >= stepOrder[s]
}

// Progress is a Task's file-processing counters and current stage.
type Progress struct {
	TotalFiles     int  `json:"total_files"`
	ProcessedFiles int  `json:"processed_files"`
	CurrentStep    Step `json:"current_step"`
}

// Task is the durable record of one ingestion job.
type Task struct {
	TaskID    string     `json:"task_id"`
	Kind      TaskKind   `json:"kind"`
	Status    TaskStatus `json:"status"`
	Progress  Progress   `json:"progress"`
	Error     string     `json:"error,omitempty"`
	Result    string     `json:"result,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Conversation is created lazily on the first query for a
// (session_id, repo_id) pair.
type Conversation struct {
	ConversationID string    `json:"conversation_id"`
	SessionID      string    `json:"session_id"`
	RepoID         string    `json:"repo_id"`
	Title          string    `json:"title"`
	SystemPrompt   string    `json:"system_prompt"`
	MessageCount   int       `json:"message_count"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// MessageRole distinguishes a Message's author.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// ToolCallFunction is the {name, arguments} pair of a tool call as
// carried on the wire — arguments remain a string-encoded JSON object
// until the tool registry boundary parses them once.
type ToolCallFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolCall is one entry of a Message's tool_calls array.
type ToolCall struct {
	ID       string           `json:"id"`
	Function ToolCallFunction `json:"function"`
}

// Message is one append-only entry of a Conversation.
type Message struct {
	MessageID      string      `json:"message_id"`
	ConversationID string      `json:"conversation_id"`
	Role           MessageRole `json:"role"`
	Content        string      `json:"content"`
	ToolCalls      []ToolCall  `json:"tool_calls,omitempty"`
	SequenceNumber int         `json:"sequence_number"`
	ProviderMeta   ProviderMeta `json:"provider_meta,omitempty"`
	Timestamp      time.Time   `json:"timestamp"`
}
