package types

import "context"

const (
	// AssistantName is the reserved author name of the bot's own posts
	AssistantName = "llama"

	// MentionToken addresses the assistant in post text
	MentionToken = "@" + AssistantName

	// ExpertGroup is the group whose posts the persona weighs more heavily
	ExpertGroup = "Experts"

	UnknownAuthor = "Unknown"
	UnknownGroup  = "Unknown Group"
)

// ThreadID identifies a thread on the forum
type ThreadID string

// Post represents a single normalized forum post
type Post struct {
	Author string
	Group  string
	Text   string
}

// ThreadSummary is one entry of a category listing
type ThreadSummary struct {
	ID    ThreadID
	Title string
}

// Thread is a forum thread with its posts in chronological order
type Thread struct {
	ID    ThreadID
	Title string
	Posts []Post
}

// Role of a conversation message
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of a conversation sent to the LLM
type Message struct {
	Role    Role
	Content string
}

// Conversation is the persona followed by one turn per post
type Conversation struct {
	System Message
	Turns  []Message
}

// Messages returns the system message followed by the turns as a new slice
func (c Conversation) Messages() []Message {
	out := make([]Message, 0, len(c.Turns)+1)
	out = append(out, c.System)
	return append(out, c.Turns...)
}

// GenerationOptions holds the sampling configuration for a reply
type GenerationOptions struct {
	MaxTokens   int
	Temperature float64
	TopP        float64
}

// Forum provides the forum operations the responder needs
type Forum interface {
	// List the threads of the configured category
	ListThreads(ctx context.Context) ([]ThreadSummary, error)

	// Retrieve a thread with its normalized posts
	GetThread(ctx context.Context, id ThreadID) (*Thread, error)

	// Post a reply to a thread
	Reply(ctx context.Context, id ThreadID, content string) error
}

// LLM provides language model operations
type LLM interface {
	Generate(ctx context.Context, conv Conversation, opts GenerationOptions) (string, error)
	Model() string
}
