package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/input-output-hk/catalyst-forge-libs/modelsync/conflict"
	"github.com/input-output-hk/catalyst-forge-libs/modelsync/syncer"
)

// preferLocal finishes every merge keeping the local side of each conflict.
var preferLocal = syncer.ResolverFunc(func(_ context.Context, h *conflict.Handler) bool {
	return h.ResolveAll(conflict.ChooseOurs) == nil
})

// prompter asks the user how to resolve each conflicting file.
type prompter struct {
	in  *bufio.Reader
	out io.Writer
}

type answer int8

const (
	answerOurs answer = iota
	answerTheirs
	answerAllOurs
	answerAllTheirs
	answerDiff
	answerCancel
)

// ResolveConflicts implements syncer.Resolver.
func (p *prompter) ResolveConflicts(ctx context.Context, h *conflict.Handler) bool {
	files := h.Files()
	fmt.Fprintf(p.out, "Merging %s conflicts in %d file(s).\n", h.RemoteBranch(), len(files))

	for _, f := range files {
		for {
			if ctx.Err() != nil {
				return false
			}
			a, err := p.ask(fmt.Sprintf("%s (%s)", f.Path, f.Kind))
			if err != nil {
				return false
			}

			switch a {
			case answerDiff:
				diff, err := h.Diff(f.Path)
				if err != nil {
					fmt.Fprintf(p.out, "cannot show diff: %v\n", err)
					continue
				}
				fmt.Fprint(p.out, diff)
				continue
			case answerOurs, answerTheirs:
				choice := conflict.ChooseOurs
				if a == answerTheirs {
					choice = conflict.ChooseTheirs
				}
				if err := h.Resolve(f.Path, choice); err != nil {
					fmt.Fprintf(p.out, "cannot resolve %s: %v\n", f.Path, err)
					return false
				}
			case answerAllOurs, answerAllTheirs:
				choice := conflict.ChooseOurs
				if a == answerAllTheirs {
					choice = conflict.ChooseTheirs
				}
				return h.ResolveAll(choice) == nil
			case answerCancel:
				return false
			}
			break
		}
	}
	return true
}

// ask prompts until the user gives a known answer. End of input cancels.
func (p *prompter) ask(subject string) (answer, error) {
	for {
		fmt.Fprintf(p.out, "%s\n  [o]urs, [t]heirs, [d]iff, [O]urs for all, [T]heirs for all, [c]ancel merge: ", subject)
		line, err := p.in.ReadString('\n')
		if err != nil && line == "" {
			fmt.Fprintln(p.out)
			return answerCancel, err
		}

		switch strings.TrimSpace(line) {
		case "o", "ours":
			return answerOurs, nil
		case "t", "theirs":
			return answerTheirs, nil
		case "O":
			return answerAllOurs, nil
		case "T":
			return answerAllTheirs, nil
		case "d", "diff":
			return answerDiff, nil
		case "c", "cancel", "q":
			return answerCancel, nil
		default:
			fmt.Fprintln(p.out, "Unknown answer.")
		}
	}
}
