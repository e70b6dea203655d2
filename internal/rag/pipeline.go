package rag

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"docqa/internal/metrics"
	"docqa/internal/models"
)

var ErrEmptyQuery = errors.New("query is empty")

// Stage is a step in answering one query.
type Stage int

const (
	StageIdle Stage = iota
	StageRewriting
	StageRetrieving
	StageComposing
	StageDone
	StageFailed
)

func (s Stage) String() string {
	switch s {
	case StageIdle:
		return "idle"
	case StageRewriting:
		return "rewriting"
	case StageRetrieving:
		return "retrieving"
	case StageComposing:
		return "composing"
	case StageDone:
		return "done"
	case StageFailed:
		return "failed"
	default:
		return "unknown"
	}
}

type Mode string

const (
	ModeRAG        Mode = "rag"
	ModeExtractive Mode = "extractive"
	ModeDirect     Mode = "direct"
)

// StageEvent reports a transition. Elapsed is the time spent in Previous.
type StageEvent struct {
	SessionID string
	Stage     Stage
	Previous  Stage
	Elapsed   time.Duration
}

type Answer struct {
	Text        string         `json:"answer"`
	Mode        Mode           `json:"mode"`
	Query       string         `json:"query"`
	SearchQuery string         `json:"search_query,omitempty"`
	Sources     []string       `json:"sources,omitempty"`
	Chunks      []models.Chunk `json:"chunks,omitempty"`
}

type PipelineOptions struct {
	// Retriever is nil when no index is available; queries then run in direct mode.
	Retriever *Retriever
	// IndexSize counts the indexed chunks. When set, an empty index is answered
	// without rewriting or searching, and a failing count fails the query.
	IndexSize func(ctx context.Context) (int, error)
	// Rewriter is nil to search with the raw question.
	Rewriter *QueryRewriter
	Composer *Composer
	// Extractive answers by quoting chunks instead of calling the model.
	Extractive bool
	OnStage    func(StageEvent)
}

// Pipeline runs the query lifecycle for sessions.
type Pipeline struct {
	opts PipelineOptions
}

func NewPipeline(opts PipelineOptions) *Pipeline {
	return &Pipeline{opts: opts}
}

// HasIndex reports whether a retriever is configured. An empty index still
// counts: questions are searched and get the no-relevant-information reply.
func (p *Pipeline) HasIndex() bool {
	return p.opts.Retriever != nil
}

// IndexLoaded reports whether the index holds chunks, for choosing a greeting.
func (p *Pipeline) IndexLoaded(ctx context.Context) (bool, error) {
	if !p.HasIndex() {
		return false, nil
	}
	if p.opts.IndexSize == nil {
		return true, nil
	}
	n, err := p.indexSize(ctx)
	return n > 0, err
}

func (p *Pipeline) indexSize(ctx context.Context) (int, error) {
	n, err := p.opts.IndexSize(ctx)
	if err != nil {
		return 0, models.Wrap(models.ErrRetrieval, "count index", err)
	}
	return n, nil
}

// Ask answers query within sess. On success the user and assistant turns are
// appended to the session history; on failure history is left as it was and
// no partial answer is returned.
func (p *Pipeline) Ask(ctx context.Context, sess *Session, query string) (*Answer, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}

	// one query at a time per session; reads and settings changes stay available
	sess.asking.Lock()
	defer sess.asking.Unlock()

	sess.mu.Lock()
	model, ragEnabled, history := sess.Model, sess.RAGEnabled, slices.Clone(sess.History)
	sess.mu.Unlock()

	r := &run{pipeline: p, sessionID: sess.ID, stage: StageIdle, since: time.Now()}

	var (
		answer *Answer
		err    error
	)
	if p.modeFor(ragEnabled) == ModeDirect {
		answer, err = p.answerDirect(ctx, r, model, history, query)
	} else {
		answer, err = p.answerFromIndex(ctx, r, model, history, query)
	}

	if err != nil {
		r.enter(StageFailed)
		metrics.RecordQuery(string(p.modeFor(ragEnabled)), "error")
		log.Error().Err(err).Str("session", sess.ID).Msg("Query failed")
		return nil, err
	}

	sess.mu.Lock()
	sess.History = append(sess.History,
		models.Turn{Role: models.RoleUser, Content: query},
		models.Turn{Role: models.RoleAssistant, Content: answer.Text},
	)
	sess.mu.Unlock()
	r.enter(StageDone)
	metrics.RecordQuery(string(answer.Mode), "ok")
	return answer, nil
}

func (p *Pipeline) modeFor(ragEnabled bool) Mode {
	switch {
	case !ragEnabled || !p.HasIndex():
		return ModeDirect
	case p.opts.Extractive:
		return ModeExtractive
	default:
		return ModeRAG
	}
}

func (p *Pipeline) answerFromIndex(ctx context.Context, r *run, model string, history []models.Turn, query string) (*Answer, error) {
	mode := ModeRAG
	if p.opts.Extractive {
		mode = ModeExtractive
	}

	empty := false
	if p.opts.IndexSize != nil {
		n, err := p.indexSize(ctx)
		if err != nil {
			return nil, err
		}
		empty = n == 0
	}

	searchQuery := query
	if !empty && p.opts.Rewriter != nil && !p.opts.Extractive && len(history) > 0 {
		r.enter(StageRewriting)
		rewritten, err := p.opts.Rewriter.Rewrite(ctx, history, query, model)
		if err != nil {
			log.Warn().Err(err).Str("session", r.sessionID).Msg("Query rewrite failed, searching with the original question")
		} else if rewritten != "" {
			searchQuery = rewritten
		}
	}

	r.enter(StageRetrieving)
	var chunks []models.Chunk
	if !empty {
		var err error
		chunks, err = p.opts.Retriever.Retrieve(ctx, searchQuery)
		if err != nil {
			return nil, err
		}
	}
	metrics.RecordRetrieved(len(chunks))
	log.Debug().Str("session", r.sessionID).Str("search_query", searchQuery).Int("chunks", len(chunks)).Msg("Retrieved chunks")

	r.enter(StageComposing)
	answer := &Answer{Mode: mode, Query: query, SearchQuery: searchQuery}
	switch {
	case len(chunks) == 0:
		answer.Text = models.NoRelevantInfo
	case p.opts.Extractive:
		answer.Text = Extractive(chunks)
		answer.Chunks = chunks
	default:
		text, used, err := p.opts.Composer.ComposeRAG(ctx, query, history, chunks, model)
		if err != nil {
			return nil, err
		}
		answer.Text = text
		answer.Chunks = used
	}
	answer.Sources = Sources(answer.Chunks)
	return answer, nil
}

func (p *Pipeline) answerDirect(ctx context.Context, r *run, model string, history []models.Turn, query string) (*Answer, error) {
	r.enter(StageComposing)
	text, err := p.opts.Composer.ComposeDirect(ctx, query, history, model)
	if err != nil {
		return nil, err
	}
	return &Answer{Text: text, Mode: ModeDirect, Query: query}, nil
}

// run tracks the stage of one Ask call.
type run struct {
	pipeline  *Pipeline
	sessionID string
	stage     Stage
	since     time.Time
}

func (r *run) enter(s Stage) {
	now := time.Now()
	ev := StageEvent{SessionID: r.sessionID, Stage: s, Previous: r.stage, Elapsed: now.Sub(r.since)}
	if r.stage != StageIdle {
		metrics.ObserveStage(r.stage.String(), ev.Elapsed)
	}
	r.stage, r.since = s, now

	if hook := r.pipeline.opts.OnStage; hook != nil {
		hook(ev)
	}
}
