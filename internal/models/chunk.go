package models

// Chunk is one retrievable segment of a document.
type Chunk struct {
	Content       string `json:"content"`
	Source        string `json:"source"`
	SequenceIndex int    `json:"sequence_index"`
	// Offset is the byte offset of Content in the extracted document text.
	Offset int `json:"offset"`
}

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is a single message of a conversation.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}
