package models

const (
	ContextSeparator = "\n---\n"
	ThinkTag         = `(?s)<think>.*?</think>`
	SourceLabel      = "[Source: %s]\n%s"
)

const (
	RewritePrompt = "Given the above conversation, generate a search query to look up in order to get information relevant to the conversation. Answer only with the search query."

	RAGSystemPrompt = "Answer the user's questions using only the below context. If the context does not contain the answer, say so.\n\n%s"

	DirectSystemPrompt = "You are a helpful AI assistant. Answer the user's questions based on your general knowledge."

	NoRelevantInfo = "I couldn't find relevant information in the uploaded documents. Please try asking about topics mentioned in your market reports."

	ExtractiveHeader = "Based on your market research documents:"

	NoReadableText = "No readable text content found on this page."
)

// greetings
const (
	GreetingIndexLoaded = "Hello! An existing database is loaded. Ask me anything about it."
	GreetingNoIndex     = "Hello! Please upload a document to start chatting."
	GreetingDirect      = "Hello! I'm ready to answer your questions using my general knowledge."
	GreetingIngested    = "Hello! The file has been processed. How can I help you?"
)
