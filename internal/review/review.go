// Package review implements the optional interactive per-document
// review session (spec §4.3.5): a numbered entity list with
// delete/edit/merge/done commands, styled with
// github.com/charmbracelet/lipgloss the way
// theRebelliousNerd-codenerd/cmd/nerd/ui styles its terminal output,
// scaled down from that package's full bubbletea TUI to a plain
// line-reader loop since this session is a linear command prompt, not
// a redrawing screen.
package review

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/brunokrugel/kgforge/internal/canon"
	"github.com/brunokrugel/kgforge/internal/model"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#8BC34A"))
	promptStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#2196F3"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFC107"))
	tombStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#e53935")).Strikethrough(true)
)

// Session runs interactive review over an io.Reader/io.Writer pair,
// decoupled from os.Stdin/os.Stdout for testability.
type Session struct {
	In  io.Reader
	Out io.Writer
}

// NewSession builds a Session.
func NewSession(in io.Reader, out io.Writer) *Session {
	return &Session{In: in, Out: out}
}

// Review implements orchestrator.Reviewer: print the numbered entity
// list, then loop on commands until "done" or the reader is
// exhausted. Deletions tombstone rather than remove entries, and
// merges set DupBatchOf, preserving index slots (spec §4.3.5, I5).
func (s *Session) Review(ctx context.Context, docID string, entities []model.ExtractedEntity) ([]model.ExtractedEntity, error) {
	fmt.Fprintln(s.Out, headerStyle.Render(fmt.Sprintf("Review entities for %s", docID)))
	s.printList(entities)

	scanner := bufio.NewScanner(s.In)
	for {
		select {
		case <-ctx.Done():
			return entities, ctx.Err()
		default:
		}

		fmt.Fprint(s.Out, promptStyle.Render("> "))
		if !scanner.Scan() {
			return entities, nil
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		cmd := strings.ToLower(fields[0])

		switch cmd {
		case "done":
			return entities, nil
		case "delete":
			idx, ok := parseIndex(fields, 1, len(entities))
			if !ok {
				fmt.Fprintln(s.Out, warnStyle.Render("usage: delete N"))
				continue
			}
			entities[idx].Dup = model.DupTombstone
			s.printList(entities)
		case "edit":
			idx, ok := parseIndex(fields, 1, len(entities))
			if !ok || len(fields) < 3 {
				fmt.Fprintln(s.Out, warnStyle.Render("usage: edit N new_name"))
				continue
			}
			newName := strings.Join(fields[2:], " ")
			entities[idx].Name = newName
			entities[idx].NormalizedName = strings.ToLower(strings.TrimSpace(newName))
			s.printList(entities)
		case "merge":
			if len(fields) < 3 {
				fmt.Fprintln(s.Out, warnStyle.Render("usage: merge N M"))
				continue
			}
			n, ok1 := parseIndex(fields, 1, len(entities))
			m, ok2 := parseIndex(fields, 2, len(entities))
			if !ok1 || !ok2 {
				fmt.Fprintln(s.Out, warnStyle.Render("usage: merge N M"))
				continue
			}
			if entities[n].TypeID != entities[m].TypeID {
				fmt.Fprintln(s.Out, warnStyle.Render("merge requires the same entity_type"))
				continue
			}
			entities[n].Dup = model.DupBatch
			entities[n].DupBatchOf = m
			s.printList(entities)
		default:
			fmt.Fprintln(s.Out, warnStyle.Render("commands: delete N | edit N name | merge N M | done"))
		}
	}
}

func parseIndex(fields []string, pos, n int) (int, bool) {
	if pos >= len(fields) {
		return 0, false
	}
	idx, err := strconv.Atoi(fields[pos])
	if err != nil || idx < 0 || idx >= n {
		return 0, false
	}
	return idx, true
}

func (s *Session) printList(entities []model.ExtractedEntity) {
	for i, e := range entities {
		line := fmt.Sprintf("  [%d] %s (%s)", i, e.Name, e.TypeID)
		if e.Dup == model.DupTombstone {
			fmt.Fprintln(s.Out, tombStyle.Render(line+" [deleted]"))
			continue
		}
		if e.Dup == model.DupBatch {
			line += fmt.Sprintf(" [merged into %d]", e.DupBatchOf)
		}
		fmt.Fprintln(s.Out, line)
	}
}

// PickWinner implements canon.DecisionPicker for the after_batch global
// dedup hook (spec §4.6 "In interactive mode, each candidate pair is
// presented with similarity score and the user selects canonical name").
func (s *Session) PickWinner(ctx context.Context, pair canon.CandidatePair) (canon.GlobalEntity, error) {
	fmt.Fprintln(s.Out, headerStyle.Render(fmt.Sprintf("Possible duplicate (%s, score %.2f)", pair.EntityType, pair.Score)))
	fmt.Fprintf(s.Out, "  [1] %s\n", pair.A.Name)
	fmt.Fprintf(s.Out, "  [2] %s\n", pair.B.Name)

	scanner := bufio.NewScanner(s.In)
	for {
		fmt.Fprint(s.Out, promptStyle.Render("keep which? [1/2] "))
		if !scanner.Scan() {
			return pair.A, nil
		}
		switch strings.TrimSpace(scanner.Text()) {
		case "1":
			return pair.A, nil
		case "2":
			return pair.B, nil
		default:
			fmt.Fprintln(s.Out, warnStyle.Render("enter 1 or 2"))
		}
	}
}
