// Package cli provides the interactive console for Hanashi.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/hyperjump/hanashi/internal/chat"
	"github.com/hyperjump/hanashi/internal/models"
	"github.com/hyperjump/hanashi/internal/retrieval"
)

// ConversationID is the fixed conversation used by the console.
const ConversationID = "cli"

const (
	userPrompt      = "USER: "
	assistantPrompt = "ASSISTANT: "
)

// Console reads one prompt per line and prints the streamed answer.
type Console struct {
	chat   *chat.Orchestrator
	in     io.Reader
	out    io.Writer
	filter string
}

// NewConsole returns a console over in and out. A blank filter is not sent.
func NewConsole(orch *chat.Orchestrator, in io.Reader, out io.Writer, filter string) *Console {
	return &Console{chat: orch, in: in, out: out, filter: strings.TrimSpace(filter)}
}

// DocumentPrinter returns a retrieval hook that prints the retrieved chunks to w.
func DocumentPrinter(w io.Writer) func(*models.RetrievalResult) {
	return func(res *models.RetrievalResult) {
		fmt.Fprintln(w)
		retrieval.Print(w, res)
	}
}

// Run loops until in is exhausted, "exit" is typed or ctx is canceled.
// Cancellation returns immediately even while waiting for input.
func (c *Console) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	lines, scanErr := c.readLines(ctx)
	for {
		fmt.Fprint(c.out, "\n"+userPrompt)
		var line string
		select {
		case <-ctx.Done():
			fmt.Fprintln(c.out)
			return ctx.Err()
		case l, ok := <-lines:
			if !ok {
				fmt.Fprintln(c.out)
				select {
				case err := <-scanErr:
					return err
				default:
					return ctx.Err()
				}
			}
			line = strings.TrimSpace(l)
		}
		switch line {
		case "":
			continue
		case "exit", "quit":
			return nil
		}
		if err := c.turn(ctx, line); err != nil {
			fmt.Fprintf(c.out, "\nERROR: %v\n", err)
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
}

// readLines scans c.in on its own goroutine. The line channel is closed at end
// of input or cancellation; the scanner error, if any, is sent first.
func (c *Console) readLines(ctx context.Context) (<-chan string, <-chan error) {
	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(c.in)
		sc.Buffer(make([]byte, 64*1024), 1024*1024)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- sc.Err()
	}()
	return lines, scanErr
}

func (c *Console) turn(ctx context.Context, line string) error {
	req := &models.ChatRequest{
		ConversationID:   ConversationID,
		UserPrompt:       line,
		FilterExpression: c.filter,
	}
	events, err := c.chat.Stream(ctx, req)
	if err != nil {
		return err
	}
	fmt.Fprint(c.out, "\n"+assistantPrompt)
	for ev := range events {
		if ev.Err != nil {
			return ev.Err
		}
		fmt.Fprint(c.out, ev.Text)
	}
	fmt.Fprintln(c.out)
	return nil
}
