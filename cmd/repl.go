package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog/log"

	"docqa/internal/models"
	"docqa/internal/rag"
)

const replHelp = `Commands:
  /rag on|off       switch document search on or off
  /model <name>     change the chat model
  /clear            forget the conversation
  /insight <name>   run a quick insight (industry-overview, competitor-analysis, market-trends, key-insights)
  /quit             leave`

// chat runs an interactive conversation on stdin until /quit or EOF.
func (a *app) chat(ctx context.Context, pipeline *rag.Pipeline, sess *rag.Session, ingested bool) error {
	return runREPL(ctx, os.Stdin, os.Stdout, pipeline, sess, ingested)
}

func runREPL(ctx context.Context, in io.Reader, out io.Writer, pipeline *rag.Pipeline, sess *rag.Session, ingested bool) error {
	loaded, err := pipeline.IndexLoaded(ctx)
	if err != nil {
		return err
	}
	ragEnabled := sess.View().RAGEnabled
	greeting := rag.Greeting(ragEnabled, loaded)
	if ingested && ragEnabled {
		greeting = models.GreetingIngested
	}
	fmt.Fprintf(out, "%s\n%s\n\n", greeting, replHelp)

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for {
		if ctx.Err() != nil {
			return nil
		}
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			quit, query := replCommand(out, sess, line)
			if quit {
				return nil
			}
			if query == "" {
				continue
			}
			line = query
		}

		answer, err := pipeline.Ask(ctx, sess, line)
		if err != nil {
			log.Debug().Err(err).Msg("Ask failed")
			fmt.Fprintf(out, "Error (%s): %v\n\n", models.KindName(err), err)
			continue
		}
		fmt.Fprintf(out, "%s\n", answer.Text)
		if len(answer.Sources) > 0 {
			fmt.Fprintf(out, "\nSources: %s\n", strings.Join(answer.Sources, ", "))
		}
		fmt.Fprintln(out)
	}
}

// replCommand applies a slash command. It returns the question to ask when
// the command is an insight.
func replCommand(out io.Writer, sess *rag.Session, line string) (quit bool, query string) {
	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch name {
	case "/quit", "/exit":
		return true, ""
	case "/clear":
		sess.ClearHistory()
		fmt.Fprintln(out, "Conversation cleared.")
	case "/rag":
		switch strings.ToLower(arg) {
		case "on":
			sess.SetRAGEnabled(true)
			fmt.Fprintln(out, "Document search on.")
		case "off":
			sess.SetRAGEnabled(false)
			fmt.Fprintln(out, "Document search off, answering from general knowledge.")
		default:
			fmt.Fprintln(out, "Usage: /rag on|off")
		}
	case "/model":
		if arg == "" {
			fmt.Fprintf(out, "Current model: %s\n", sess.View().Model)
			break
		}
		if err := sess.SetModel(arg); err != nil {
			fmt.Fprintf(out, "Error: %v\n", err)
			break
		}
		fmt.Fprintf(out, "Model set to %s.\n", arg)
	case "/insight":
		insight, ok := rag.FindInsight(arg)
		if !ok {
			fmt.Fprintln(out, "Unknown insight.")
			break
		}
		fmt.Fprintf(out, "%s\n", insight.Title)
		return false, insight.Query
	default:
		fmt.Fprintln(out, replHelp)
	}
	return false, ""
}
