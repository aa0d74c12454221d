package prune

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xrsl/tailor/pkg/change"
	"github.com/xrsl/tailor/pkg/style"
	"github.com/xrsl/tailor/pkg/utils"
	"github.com/xrsl/tailor/pkg/version"
)

// Action is a reviewer's verdict on the latest applied change.
type Action int

const (
	ActionContinue Action = iota
	ActionAccept
	ActionRollback
)

func (a Action) String() string {
	switch a {
	case ActionAccept:
		return "accept"
	case ActionRollback:
		return "rollback"
	default:
		return "continue"
	}
}

// Decision is returned by a Reviewer. Version is the version to restore
// when Action is ActionRollback.
type Decision struct {
	Action  Action
	Version int
}

// Continue, Accept and RollbackTo build decisions.
func Continue() Decision { return Decision{Action: ActionContinue} }
func Accept() Decision { return Decision{Action: ActionAccept} }
func RollbackTo(n int) Decision { return Decision{Action: ActionRollback, Version: n} }

// Review is shown to a reviewer after a change was applied and stored.
type Review struct {
	DocumentID   string
	Version      version.Version
	Change       change.Change
	TargetLength int
}

// Reviewer decides whether pruning continues after each applied change.
// Review blocks the calling document only.
type Reviewer interface {
	Review(ctx context.Context, r Review) (Decision, error)
}

// AutoReviewer always continues.
type AutoReviewer struct{}

func (AutoReviewer) Review(context.Context, Review) (Decision, error) {
	return Continue(), nil
}

// TerminalReviewer prompts on Out and reads answers from In:
// empty or "c" continues, "a" accepts, "r N" rolls back to version N.
type TerminalReviewer struct {
	In  io.Reader
	Out io.Writer

	scanner *bufio.Scanner
}

func NewTerminalReviewer(in io.Reader, out io.Writer) *TerminalReviewer {
	return &TerminalReviewer{In: in, Out: out, scanner: bufio.NewScanner(in)}
}

func (t *TerminalReviewer) Review(ctx context.Context, r Review) (Decision, error) {
	if t.scanner == nil {
		t.scanner = bufio.NewScanner(t.In)
	}

	fmt.Fprintf(t.Out, "\n%s v%d: %s (%d/%d chars)\n",
		style.B(r.DocumentID), r.Version.Number, r.Change.Kind(), r.Version.Length, r.TargetLength)
	fmt.Fprintf(t.Out, "  %s\n", style.C(style.Gray, oneLine(r.Change.Target())))

	for {
		if err := ctx.Err(); err != nil {
			return Decision{}, err
		}
		fmt.Fprint(t.Out, style.C(style.Cyan, "[c]ontinue, [a]ccept, [r]ollback N: "))
		if !t.scanner.Scan() {
			if err := t.scanner.Err(); err != nil {
				return Decision{}, fmt.Errorf("read review input: %w", err)
			}
			return Decision{}, io.ErrUnexpectedEOF
		}

		d, err := parseDecision(t.scanner.Text(), r.Version.Number)
		if err != nil {
			fmt.Fprintln(t.Out, style.C(style.Yellow, err.Error()))
			continue
		}
		return d, nil
	}
}

func parseDecision(line string, latest int) (Decision, error) {
	fields := strings.Fields(strings.ToLower(line))
	if len(fields) == 0 {
		return Continue(), nil
	}
	switch fields[0] {
	case "c", "continue":
		return Continue(), nil
	case "a", "accept":
		return Accept(), nil
	case "r", "rollback":
		if len(fields) != 2 {
			return Decision{}, fmt.Errorf("usage: r N")
		}
		n, err := strconv.Atoi(strings.TrimPrefix(fields[1], "v"))
		if err != nil || n < 1 || n >= latest {
			return Decision{}, fmt.Errorf("version must be between 1 and %d", latest-1)
		}
		return RollbackTo(n), nil
	default:
		return Decision{}, fmt.Errorf("unknown answer %q", line)
	}
}

func oneLine(s string) string {
	return utils.Truncate(strings.Join(strings.Fields(s), " "), 75)
}
