// Package review implements the human-in-the-loop gate between the decision
// step and rendering. A gate either applies a fixed operator policy or
// prompts on the terminal; non-interactive invocations always defer so cron
// runs never silently approve anything.
package review

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"

	"clipper/internal/decision"
	"clipper/internal/queue"
	"clipper/internal/services"
)

// Verdict is the outcome of reviewing one event.
type Verdict string

const (
	VerdictApprove Verdict = "approve"
	VerdictReject  Verdict = "reject"
	VerdictDefer   Verdict = "defer"
)

// Gate decides what happens to an event that has a valid decision document.
type Gate interface {
	Review(ctx context.Context, item queue.Item, doc decision.Document) (Verdict, error)
}

// StaticGate returns the same verdict for every event.
type StaticGate struct {
	Verdict Verdict
}

// Review implements Gate.
func (g StaticGate) Review(context.Context, queue.Item, decision.Document) (Verdict, error) {
	return g.Verdict, nil
}

// PromptGate asks the operator on the terminal. When the input is not a
// terminal, or the prompt hits end of input, the verdict is defer.
type PromptGate struct {
	in          io.Reader
	out         io.Writer
	interactive bool
}

// NewPromptGate builds a prompt gate over stdin/stdout, detecting whether
// stdin is a terminal.
func NewPromptGate() *PromptGate {
	return &PromptGate{
		in:          os.Stdin,
		out:         os.Stdout,
		interactive: isatty.IsTerminal(os.Stdin.Fd()) || isatty.IsCygwinTerminal(os.Stdin.Fd()),
	}
}

// NewPromptGateFor builds a prompt gate over explicit streams (for tests).
func NewPromptGateFor(in io.Reader, out io.Writer, interactive bool) *PromptGate {
	return &PromptGate{in: in, out: out, interactive: interactive}
}

// Review implements Gate.
func (g *PromptGate) Review(ctx context.Context, item queue.Item, doc decision.Document) (Verdict, error) {
	if !g.interactive {
		return VerdictDefer, nil
	}

	fmt.Fprintf(g.out, "\nevent %s\n", item.EventName)
	fmt.Fprintf(g.out, "  title:    %s\n", doc.Title)
	fmt.Fprintf(g.out, "  window:   %d-%ds (%ds)\n", doc.StartSecRel, doc.EndSecRel, doc.EndSecRel-doc.StartSecRel)
	if item.PublishAt != "" {
		fmt.Fprintf(g.out, "  publish:  %s\n", item.PublishAt)
	}

	reader := bufio.NewReader(g.in)
	for {
		if err := ctx.Err(); err != nil {
			return VerdictDefer, err
		}
		fmt.Fprint(g.out, "[a]pprove / [r]eject / [d]efer? ")
		line, err := reader.ReadString('\n')
		answer := strings.ToLower(strings.TrimSpace(line))
		switch answer {
		case "a", "approve":
			return VerdictApprove, nil
		case "r", "reject":
			return VerdictReject, nil
		case "d", "defer":
			return VerdictDefer, nil
		}
		if err != nil {
			// End of input mid-review parks the item instead of guessing.
			return VerdictDefer, nil
		}
		fmt.Fprintln(g.out, "please answer a, r, or d")
	}
}

// ForAction maps a configured review action to a gate.
func ForAction(action string) (Gate, error) {
	switch action {
	case "approve":
		return StaticGate{Verdict: VerdictApprove}, nil
	case "reject":
		return StaticGate{Verdict: VerdictReject}, nil
	case "defer":
		return StaticGate{Verdict: VerdictDefer}, nil
	case "prompt":
		return NewPromptGate(), nil
	}
	return nil, services.Wrap(services.ErrConfiguration, "review", "gate",
		fmt.Sprintf("unknown review action %q", action), nil)
}
