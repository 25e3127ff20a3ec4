// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package chunk implements the hierarchy-aware markdown chunker: it
// walks a document line by line, recognizing headers, fenced code
// blocks, list items, table rows, and blockquotes, and emits Chunks
// annotated with the header stack active at their position. Code
// blocks and tables are never split regardless of size; everything
// else below the minimum token count is merged forward into the next
// chunk. Ported from hierarchy.rs, with one deliberate behavior
// change: list continuation no longer treats every line starting with
// two spaces as part of the list (that swallowed unrelated indented
// content like nested blockquotes); a continuation line must either
// start a new list item itself, or be a non-blank indented line
// immediately following a recognized list line.
package chunk

import (
	"strings"

	"github.com/ingestlabs/extractcore/internal/xmetrics"
	"github.com/ingestlabs/extractcore/pkg/types"
)

// Config tunes the chunker.
type Config struct {
	MaxTokens        int
	MinTokens        int
	AddHeaderContext bool
}

// DefaultConfig mirrors the original chunker's tuning.
func DefaultConfig() Config {
	return Config{MaxTokens: 512, MinTokens: 50, AddHeaderContext: true}
}

// Chunker splits markdown documents into header-aware Chunks.
type Chunker struct {
	cfg Config
}

// New returns a Chunker configured by cfg.
func New(cfg Config) *Chunker {
	return &Chunker{cfg: cfg}
}

// unit is one structurally recognized span before merge-forward and
// max-token splitting are applied.
type unit struct {
	content     string
	ctype       types.ChunkType
	language    string
	neverSplit  bool
	headerStack []types.HeaderRef
}

// Chunk splits markdown into a sequence of Chunks.
func (c *Chunker) Chunk(markdown string) []types.Chunk {
	units := parseUnits(strings.Split(markdown, "\n"))
	units = c.expandOversized(units)

	var chunks []types.Chunk
	position := 0
	var pending *unit

	flush := func(u unit) {
		chunks = append(chunks, c.finalize(u, position))
		position++
	}

	for _, u := range units {
		if strings.TrimSpace(u.content) == "" {
			continue
		}

		if u.neverSplit {
			if pending != nil {
				flush(*pending)
				pending = nil
			}
			flush(u)
			continue
		}

		if pending == nil {
			if countTokens(u.content) >= c.cfg.MinTokens {
				flush(u)
			} else {
				cp := u
				pending = &cp
			}
			continue
		}

		if !sameHeaderStack(pending.headerStack, u.headerStack) {
			flush(*pending)
			pending = nil
			if countTokens(u.content) >= c.cfg.MinTokens {
				flush(u)
			} else {
				cp := u
				pending = &cp
			}
			continue
		}

		merged := unit{
			content:     pending.content + "\n\n" + u.content,
			ctype:       u.ctype,
			headerStack: u.headerStack,
		}
		if countTokens(merged.content) >= c.cfg.MinTokens {
			flush(merged)
			pending = nil
		} else {
			pending = &merged
		}
	}
	if pending != nil {
		flush(*pending)
	}

	xmetrics.RecordChunksEmitted(len(chunks))
	return chunks
}

func (c *Chunker) finalize(u unit, position int) types.Chunk {
	content := u.content
	if c.cfg.AddHeaderContext {
		if ctx := buildHeaderContext(u.headerStack); ctx != "" {
			content = ctx + "\n\n" + content
		}
	}
	return types.Chunk{
		Content:         content,
		Position:        position,
		TokenCount:      countTokens(content),
		CharCount:       len(content),
		Language:        u.language,
		ChunkType:       u.ctype,
		HeaderHierarchy: u.headerStack,
	}
}

// expandOversized splits any non-never-split unit whose token count
// exceeds MaxTokens into several same-type units of roughly MaxTokens
// words each.
func (c *Chunker) expandOversized(units []unit) []unit {
	if c.cfg.MaxTokens <= 0 {
		return units
	}
	out := make([]unit, 0, len(units))
	for _, u := range units {
		if u.neverSplit || countTokens(u.content) <= c.cfg.MaxTokens {
			out = append(out, u)
			continue
		}
		words := strings.Fields(u.content)
		for start := 0; start < len(words); start += c.cfg.MaxTokens {
			end := min(start+c.cfg.MaxTokens, len(words))
			out = append(out, unit{
				content:     strings.Join(words[start:end], " "),
				ctype:       u.ctype,
				headerStack: u.headerStack,
			})
		}
	}
	return out
}

// countTokens approximates token count as whitespace-separated words.
func countTokens(s string) int {
	return len(strings.Fields(s))
}

// sameHeaderStack reports whether a and b name the same header path,
// used to stop a pending unit from merging forward across a header
// boundary — spec.md's merge-forward rule only ever applies within a
// single header level.
func sameHeaderStack(a, b []types.HeaderRef) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func buildHeaderContext(stack []types.HeaderRef) string {
	if len(stack) == 0 {
		return ""
	}
	lines := make([]string, len(stack))
	for i, h := range stack {
		lines[i] = strings.Repeat("#", h.Level) + " " + h.Title
	}
	return strings.Join(lines, "\n")
}

func updateHeaderStack(stack []types.HeaderRef, level int, title string) []types.HeaderRef {
	out := make([]types.HeaderRef, 0, len(stack)+1)
	for _, h := range stack {
		if h.Level < level {
			out = append(out, h)
		}
	}
	out = append(out, types.HeaderRef{Level: level, Title: title})
	return out
}

// parseUnits walks lines once, recognizing headers (which only
// update the running header stack, producing no unit of their own)
// and every other structural span.
func parseUnits(lines []string) []unit {
	var stack []types.HeaderRef
	var units []unit

	i := 0
	for i < len(lines) {
		line := lines[i]
		if strings.TrimSpace(line) == "" {
			i++
			continue
		}

		if level, title, ok := parseHeader(line); ok {
			stack = updateHeaderStack(stack, level, title)
			i++
			continue
		}

		snapshot := append([]types.HeaderRef(nil), stack...)

		switch {
		case isCodeBlockStart(line):
			content, next, lang := extractCodeBlock(lines, i)
			units = append(units, unit{content: content, ctype: types.ChunkCodeBlock, language: lang, neverSplit: true, headerStack: snapshot})
			i = next
		case isTableRow(line):
			content, next := extractTable(lines, i)
			units = append(units, unit{content: content, ctype: types.ChunkTable, neverSplit: true, headerStack: snapshot})
			i = next
		case isListItem(line):
			content, next := extractList(lines, i)
			units = append(units, unit{content: content, ctype: types.ChunkList, headerStack: snapshot})
			i = next
		case isBlockquote(line):
			content, next := extractBlockquote(lines, i)
			units = append(units, unit{content: content, ctype: types.ChunkQuote, headerStack: snapshot})
			i = next
		default:
			content, next := extractParagraph(lines, i)
			units = append(units, unit{content: content, ctype: types.ChunkParagraph, headerStack: snapshot})
			i = next
		}
	}

	return units
}

// parseHeader recognizes an ATX header line: 1-6 '#' characters
// followed by a space and a non-empty title.
func parseHeader(line string) (level int, title string, ok bool) {
	i := 0
	for i < len(line) && line[i] == '#' {
		i++
	}
	if i == 0 || i > 6 || i >= len(line) || line[i] != ' ' {
		return 0, "", false
	}
	title = strings.TrimSpace(line[i+1:])
	if title == "" {
		return 0, "", false
	}
	return i, title, true
}

func isCodeBlockStart(line string) bool {
	return strings.HasPrefix(strings.TrimSpace(line), "```")
}

func extractCodeBlock(lines []string, pos int) (content string, next int, language string) {
	var b strings.Builder
	language = strings.TrimPrefix(strings.TrimSpace(lines[pos]), "```")
	b.WriteString(lines[pos])
	b.WriteString("\n")
	i := pos + 1
	for i < len(lines) {
		b.WriteString(lines[i])
		b.WriteString("\n")
		closed := isCodeBlockStart(lines[i])
		i++
		if closed {
			break
		}
	}
	return strings.TrimRight(b.String(), "\n"), i, language
}

func isTableRow(line string) bool {
	t := strings.TrimSpace(line)
	return len(t) >= 2 && strings.HasPrefix(t, "|") && strings.HasSuffix(t, "|")
}

func extractTable(lines []string, pos int) (string, int) {
	var b strings.Builder
	i := pos
	for i < len(lines) && isTableRow(lines[i]) {
		b.WriteString(lines[i])
		b.WriteString("\n")
		i++
	}
	return strings.TrimRight(b.String(), "\n"), i
}

func isBlockquote(line string) bool {
	return strings.HasPrefix(strings.TrimSpace(line), ">")
}

func extractBlockquote(lines []string, pos int) (string, int) {
	var b strings.Builder
	i := pos
	for i < len(lines) {
		if isBlockquote(lines[i]) || strings.TrimSpace(lines[i]) == "" {
			b.WriteString(lines[i])
			b.WriteString("\n")
			i++
			continue
		}
		break
	}
	return strings.TrimRight(b.String(), "\n"), i
}

func isListItem(line string) bool {
	t := strings.TrimLeft(line, " ")
	if strings.HasPrefix(t, "- ") || strings.HasPrefix(t, "* ") || strings.HasPrefix(t, "+ ") {
		return true
	}
	return isOrderedListItem(t)
}

func isOrderedListItem(t string) bool {
	i := 0
	for i < len(t) && t[i] >= '0' && t[i] <= '9' {
		i++
	}
	if i == 0 || i >= len(t) || t[i] != '.' {
		return false
	}
	rest := t[i+1:]
	return rest == "" || strings.HasPrefix(rest, " ")
}

// extractList consumes the maximal run belonging to one list: a line
// is part of it if it is itself a list item, or if it is a non-blank
// line indented by at least two spaces and at least one list item has
// already been consumed in this run (so an indented line after another
// continuation line also continues the list). A run of two consecutive
// blank lines ends the list.
func extractList(lines []string, pos int) (string, int) {
	var b strings.Builder
	i := pos
	consecutiveBlanks := 0
	lastWasListLine := false

	for i < len(lines) {
		line := lines[i]
		if strings.TrimSpace(line) == "" {
			consecutiveBlanks++
			if consecutiveBlanks >= 2 {
				break
			}
			b.WriteString(line)
			b.WriteString("\n")
			i++
			continue
		}
		consecutiveBlanks = 0

		if isListItem(line) {
			b.WriteString(line)
			b.WriteString("\n")
			lastWasListLine = true
			i++
			continue
		}
		if lastWasListLine && strings.HasPrefix(line, "  ") {
			b.WriteString(line)
			b.WriteString("\n")
			i++
			continue
		}
		break
	}
	return strings.TrimRight(b.String(), "\n"), i
}

func extractParagraph(lines []string, pos int) (string, int) {
	var b strings.Builder
	i := pos
	for i < len(lines) {
		line := lines[i]
		if strings.TrimSpace(line) == "" || isStructuralLine(line) {
			break
		}
		b.WriteString(line)
		b.WriteString("\n")
		i++
	}
	return strings.TrimRight(b.String(), "\n"), i
}

func isStructuralLine(line string) bool {
	if _, _, ok := parseHeader(line); ok {
		return true
	}
	return isCodeBlockStart(line) || isListItem(line) || isBlockquote(line) || isTableRow(line)
}
