// Package llmtest provides a scripted chat model for tests.
package llmtest

import (
	"context"
	"sync"

	"github.com/tmc/langchaingo/llms"
)

// Call records one GenerateContent invocation.
type Call struct {
	Messages []llms.MessageContent
	Model    string
}

// Scripted answers with Reply, or with the result of Respond when set.
type Scripted struct {
	Reply   string
	Err     error
	Respond func(messages []llms.MessageContent) (string, error)

	mu    sync.Mutex
	calls []Call
}

func (s *Scripted) GenerateContent(_ context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	opts := llms.CallOptions{}
	for _, o := range options {
		o(&opts)
	}

	s.mu.Lock()
	s.calls = append(s.calls, Call{Messages: messages, Model: opts.Model})
	s.mu.Unlock()

	reply, err := s.Reply, s.Err
	if s.Respond != nil {
		reply, err = s.Respond(messages)
	}
	if err != nil {
		return nil, err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: reply}}}, nil
}

func (s *Scripted) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}
