package permission

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
)

// Question is what interactive prompters ask.
const Question = "Allow push notifications? [y/N] "

// Prompter asks the user for consent. It returns ErrDismissed (or ctx.Err())
// when no answer was given.
type Prompter interface {
	Prompt(ctx context.Context) (granted bool, err error)
}

type PrompterFunc func(ctx context.Context) (bool, error)

func (f PrompterFunc) Prompt(ctx context.Context) (bool, error) { return f(ctx) }

var (
	AutoGrant Prompter = PrompterFunc(func(context.Context) (bool, error) { return true, nil })
	AutoDeny  Prompter = PrompterFunc(func(context.Context) (bool, error) { return false, nil })
)

// IsYes reports whether a prompt answer means consent.
func IsYes(line string) bool {
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes", "allow":
		return true
	default:
		return false
	}
}

// ReaderPrompter asks on out and reads one line from in. It is meant for
// one-shot CLI commands; the interactive console brings its own prompter.
type ReaderPrompter struct {
	in  *bufio.Reader
	out io.Writer
}

func NewReaderPrompter(in io.Reader, out io.Writer) *ReaderPrompter {
	return &ReaderPrompter{in: bufio.NewReader(in), out: out}
}

func (p *ReaderPrompter) Prompt(ctx context.Context) (bool, error) {
	if p.out != nil {
		_, _ = fmt.Fprint(p.out, Question)
	}
	type answer struct {
		line string
		err  error
	}
	ch := make(chan answer, 1)
	go func() {
		line, err := p.in.ReadString('\n')
		ch <- answer{line: line, err: err}
	}()
	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case a := <-ch:
		if a.err != nil && strings.TrimSpace(a.line) == "" {
			return false, ErrDismissed
		}
		return IsYes(a.line), nil
	}
}
