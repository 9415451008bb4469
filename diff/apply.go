// Package diff applies human/LLM-authored V4A-style context diffs to text.
//
// The format has no line numbers. Each hunk is introduced by "@@" (optionally
// followed by free-form hint text), and its body is made of directive lines:
// ' ' for context, '-' for deletion, '+' for insertion. An optional
// "*** End of File" line anchors a hunk against the tail of the text. Hunks
// are located by fuzzy context matching that tolerates whitespace drift, and
// must apply in increasing, non-overlapping order.
package diff

import (
	"fmt"
	"strings"
	"unicode"
)

// Mode selects how Apply interprets the patch text.
type Mode string

const (
	// ModeUpdate parses hunks and applies them against the original text.
	// It is the default when the mode is left empty.
	ModeUpdate Mode = "update"
	// ModeCreate synthesizes brand-new content purely from insertion lines.
	ModeCreate Mode = "create"
)

const (
	endPatchMarker  = "*** End Patch"
	endOfFileMarker = "*** End of File"
)

// Markers that terminate the current section. The file markers belong to the
// multi-file envelope this engine is extracted from; tolerating them lets a
// per-file diff carry stray envelope lines without misparsing them as content.
var sectionTerminators = []string{
	endPatchMarker,
	"*** Update File:",
	"*** Delete File:",
	"*** Add File:",
	endOfFileMarker,
}

// FormatError reports malformed patch text: an unrecognized marker, a
// create-mode line missing its '+' prefix, or a section with nothing to read.
type FormatError struct {
	msg string
}

func (e *FormatError) Error() string { return e.msg }

func formatErrf(format string, a ...any) *FormatError {
	return &FormatError{msg: fmt.Sprintf(format, a...)}
}

// ResolutionError reports a well-formed patch that does not apply to the
// given original text: context not found, or chunks out of bounds/overlapping.
// Callers may retry with refreshed original content; Apply never retries.
type ResolutionError struct {
	msg string
}

func (e *ResolutionError) Error() string { return e.msg }

func resolutionErrf(format string, a ...any) *ResolutionError {
	return &ResolutionError{msg: fmt.Sprintf(format, a...)}
}

// Apply patches original with the given diff text and returns the new
// content. It performs pure in-memory computation, holds no state across
// calls, and either returns the fully patched text or an error - never a
// partial result. Output always ends with exactly one trailing newline.
func Apply(original, patch string, mode Mode) (string, error) {
	switch mode {
	case ModeCreate:
		lines, err := buildCreate(normalizeLines(patch))
		if err != nil {
			return "", err
		}
		return joinLines(lines), nil
	case "", ModeUpdate:
		lines, _, err := applyUpdate(normalizeLines(original), normalizeLines(patch))
		if err != nil {
			return "", err
		}
		return joinLines(lines), nil
	default:
		return "", formatErrf("unknown patch mode: %q", mode)
	}
}

// normalizeLines splits text into lines. A trailing newline becomes an
// implicit property of the sequence rather than a stored empty element, and
// CR is stripped so LF and CRLF input compare equal.
func normalizeLines(text string) []string {
	lines := strings.Split(text, "\n")
	for i := range lines {
		lines[i] = strings.TrimSuffix(lines[i], "\r")
	}
	if n := len(lines); n > 0 && lines[n-1] == "" {
		lines = lines[:n-1]
	}
	return lines
}

// joinLines reassembles the final sequence. An explicit empty terminal line
// and the default no-marker path both produce a single trailing newline.
func joinLines(lines []string) string {
	out := strings.Join(lines, "\n")
	if !strings.HasSuffix(out, "\n") {
		out += "\n"
	}
	return out
}

// ---------------------------------------------------------------------------
//  Parser state
// ---------------------------------------------------------------------------

// parserState is a cursor over the normalized diff lines. It is owned by a
// single Apply call and never shared. fuzz accumulates the match cost paid
// across all sections and anchor hits; applyUpdate returns the total.
type parserState struct {
	lines []string
	index int
	fuzz  int
}

// done reports whether input is exhausted, or the current line begins with
// one of the given terminator markers.
func (p *parserState) done(terminators []string) bool {
	if p.index >= len(p.lines) {
		return true
	}
	cur := p.lines[p.index]
	for _, t := range terminators {
		if strings.HasPrefix(cur, t) {
			return true
		}
	}
	return false
}

// readPrefix consumes the current line and returns its remainder when the
// line starts with prefix. On a miss the cursor stays put.
func (p *parserState) readPrefix(prefix string) (string, bool) {
	if p.index >= len(p.lines) {
		return "", false
	}
	cur := p.lines[p.index]
	if !strings.HasPrefix(cur, prefix) {
		return "", false
	}
	p.index++
	return cur[len(prefix):], true
}

func (p *parserState) current() string {
	if p.index >= len(p.lines) {
		return ""
	}
	return p.lines[p.index]
}

// ---------------------------------------------------------------------------
//  Directives and sections
// ---------------------------------------------------------------------------

// directive classifies one diff line by its first byte.
type directive int

const (
	directiveContext directive = iota
	directiveDelete
	directiveInsert
)

// chunk is a fully resolved edit: at origIndex in the original line
// sequence, delete delLines and substitute insLines.
type chunk struct {
	origIndex int
	delLines  []string
	insLines  []string
}

// section is one parsed editable region between hunk markers: the expected
// context (including deletion lines, which must exist in the original) and
// the chunks carved out of it, positioned relative to the section start.
type section struct {
	context  []string
	chunks   []chunk
	endIndex int
	eof      bool
}

// readSection consumes directive lines starting at start until a hunk
// marker, an envelope marker, the end-of-file marker, or exhaustion.
func readSection(lines []string, start int) (section, error) {
	var context, del, ins []string
	var chunks []chunk
	mode := directiveContext
	index := start

	for index < len(lines) {
		raw := lines[index]
		if strings.HasPrefix(raw, "@@") || hasAnyPrefix(raw, sectionTerminators) {
			break
		}
		if raw == "***" {
			break
		}
		if strings.HasPrefix(raw, "***") {
			return section{}, formatErrf("invalid line in section: %s", raw)
		}
		index++

		last := mode
		line := raw
		if line == "" {
			// An entirely blank diff line counts as empty context.
			line = " "
		}
		switch line[0] {
		case '+':
			mode = directiveInsert
		case '-':
			mode = directiveDelete
		case ' ':
			mode = directiveContext
		default:
			return section{}, formatErrf("invalid line in section: %s", raw)
		}
		text := line[1:]

		// Returning to context closes the current deletion/insertion run.
		if mode == directiveContext && last != mode && (len(del) > 0 || len(ins) > 0) {
			chunks = append(chunks, chunk{
				origIndex: len(context) - len(del),
				delLines:  del,
				insLines:  ins,
			})
			del, ins = nil, nil
		}

		switch mode {
		case directiveDelete:
			del = append(del, text)
			context = append(context, text)
		case directiveInsert:
			ins = append(ins, text)
		case directiveContext:
			context = append(context, text)
		}
	}

	if len(del) > 0 || len(ins) > 0 {
		chunks = append(chunks, chunk{
			origIndex: len(context) - len(del),
			delLines:  del,
			insLines:  ins,
		})
	}

	if index < len(lines) && lines[index] == endOfFileMarker {
		return section{context: context, chunks: chunks, endIndex: index + 1, eof: true}, nil
	}
	if index == start {
		return section{}, formatErrf("empty section: a section must contain at least one directive line")
	}
	return section{context: context, chunks: chunks, endIndex: index, eof: false}, nil
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, pre := range prefixes {
		if strings.HasPrefix(s, pre) {
			return true
		}
	}
	return false
}

// ---------------------------------------------------------------------------
//  Fuzzy context matching
// ---------------------------------------------------------------------------

const (
	noMatch = -1
	// fuzzNoMatch doubles as the "not found" sentinel cost and the penalty
	// added when an EOF-anchored hunk only matched away from the tail.
	fuzzNoMatch = 10_000
)

// contextMatch is the result of searching for an expected line sequence:
// a resolved position (noMatch when absent) and the fuzz cost paid.
type contextMatch struct {
	index int
	fuzz  int
}

// findContextCore scans forward from start for the first window matching the
// expected context, trying tiers of increasing tolerance: exact (fuzz 0),
// right-trimmed (fuzz 1), fully trimmed (fuzz 100). The first position where
// any tier matches wins; it never backtracks to a cheaper match found later.
func findContextCore(lines, context []string, start int) contextMatch {
	if len(context) == 0 {
		return contextMatch{index: start}
	}
	for i := start; i < len(lines); i++ {
		if windowEqual(lines, context, i, func(s string) string { return s }) {
			return contextMatch{index: i}
		}
	}
	for i := start; i < len(lines); i++ {
		if windowEqual(lines, context, i, rstrip) {
			return contextMatch{index: i, fuzz: 1}
		}
	}
	for i := start; i < len(lines); i++ {
		if windowEqual(lines, context, i, strings.TrimSpace) {
			return contextMatch{index: i, fuzz: 100}
		}
	}
	return contextMatch{index: noMatch, fuzz: fuzzNoMatch}
}

// findContext locates the expected context. With eof set it first anchors
// the search against the tail of the text; a forward match found anywhere
// else is still accepted but pays the fuzzNoMatch penalty so callers can see
// the anchor was not honored.
func findContext(lines, context []string, start int, eof bool) contextMatch {
	if eof {
		tail := len(lines) - len(context)
		if tail < 0 {
			tail = 0
		}
		if m := findContextCore(lines, context, tail); m.index != noMatch {
			return m
		}
		m := findContextCore(lines, context, start)
		if m.index == noMatch {
			return m
		}
		m.fuzz += fuzzNoMatch
		return m
	}
	return findContextCore(lines, context, start)
}

func windowEqual(lines, context []string, start int, canon func(string) string) bool {
	if start+len(context) > len(lines) {
		return false
	}
	for i, want := range context {
		if canon(lines[start+i]) != canon(want) {
			return false
		}
	}
	return true
}

func rstrip(s string) string {
	return strings.TrimRightFunc(s, unicode.IsSpace)
}

// ---------------------------------------------------------------------------
//  Update mode: parse -> match -> resolve -> apply
// ---------------------------------------------------------------------------

// applyUpdate resolves every section of the patch against origLines and
// splices the resulting chunks, returning the patched lines and the total
// fuzz paid to place them. The cursor only moves forward: once a hunk
// consumed a region, later hunks cannot re-match it.
func applyUpdate(origLines, patchLines []string) ([]string, int, error) {
	parser := &parserState{
		lines: append(append([]string(nil), patchLines...), endPatchMarker),
	}
	var chunks []chunk
	cursor := 0

	for !parser.done(sectionTerminators) {
		anchor, ok := parser.readPrefix("@@ ")
		bareMarker := false
		if !ok && parser.current() == "@@" {
			parser.index++
			bareMarker = true
		}

		// The marker check looks at the raw remainder: a hint of pure
		// whitespace still counts as a marker. Only a meaningful hint
		// drives the anchor search.
		if anchor == "" && !bareMarker && cursor != 0 {
			return nil, 0, formatErrf("expected @@ hunk marker, got: %s", parser.current())
		}
		if strings.TrimSpace(anchor) != "" {
			cursor = advanceToAnchor(origLines, anchor, cursor, parser)
		}

		sec, err := readSection(parser.lines, parser.index)
		if err != nil {
			return nil, 0, err
		}

		match := findContext(origLines, sec.context, cursor, sec.eof)
		if match.index == noMatch {
			kind := "context"
			if sec.eof {
				kind = "EOF context"
			}
			return nil, 0, resolutionErrf("invalid %s at line %d:\n%s",
				kind, cursor, strings.Join(sec.context, "\n"))
		}
		parser.fuzz += match.fuzz

		for _, ch := range sec.chunks {
			ch.origIndex += match.index
			chunks = append(chunks, ch)
		}
		cursor = match.index + len(sec.context)
		parser.index = sec.endIndex
	}

	out, err := spliceChunks(origLines, chunks)
	if err != nil {
		return nil, 0, err
	}
	return out, parser.fuzz, nil
}

// advanceToAnchor moves the cursor past the first line matching the "@@"
// hint text, exact first, then whitespace-trimmed at a fuzz cost. The hint
// is advisory: when it appears nowhere (e.g. a numeric range header), the
// cursor stays and context matching alone decides placement. A hint already
// inside the consumed prefix is ignored rather than re-matched.
func advanceToAnchor(lines []string, anchor string, cursor int, parser *parserState) int {
	consumed := lines[:min(cursor, len(lines))]

	if !containsLine(consumed, anchor, func(s string) string { return s }) {
		for i := cursor; i < len(lines); i++ {
			if lines[i] == anchor {
				return i + 1
			}
		}
	}
	if !containsLine(consumed, anchor, strings.TrimSpace) {
		for i := cursor; i < len(lines); i++ {
			if strings.TrimSpace(lines[i]) == strings.TrimSpace(anchor) {
				parser.fuzz++
				return i + 1
			}
		}
	}
	return cursor
}

func containsLine(lines []string, want string, canon func(string) string) bool {
	for _, line := range lines {
		if canon(line) == canon(want) {
			return true
		}
	}
	return false
}

// spliceChunks validates chunk order and bounds, then reconstructs the
// output sequence: original lines up to each chunk, that chunk's insertions
// in place of its deletions, and the remaining tail.
func spliceChunks(origLines []string, chunks []chunk) ([]string, error) {
	dest := make([]string, 0, len(origLines))
	cursor := 0

	for _, ch := range chunks {
		if ch.origIndex > len(origLines) {
			return nil, resolutionErrf("chunk position %d exceeds original length %d",
				ch.origIndex, len(origLines))
		}
		if cursor > ch.origIndex {
			return nil, resolutionErrf("overlapping chunks: position %d already consumed through %d",
				ch.origIndex, cursor)
		}
		dest = append(dest, origLines[cursor:ch.origIndex]...)
		cursor = ch.origIndex
		dest = append(dest, ch.insLines...)
		cursor += len(ch.delLines)
	}
	// Deletions running past the end consume what exists and nothing more.
	if cursor > len(origLines) {
		cursor = len(origLines)
	}
	dest = append(dest, origLines[cursor:]...)
	return dest, nil
}

// ---------------------------------------------------------------------------
//  Create mode
// ---------------------------------------------------------------------------

// buildCreate synthesizes content purely from insertion lines. Hunk markers
// and blank separator lines are tolerated; any other line must carry the
// '+' prefix. No matching is done: nothing is assumed to exist.
func buildCreate(lines []string) ([]string, error) {
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if strings.HasPrefix(line, "@@") {
			continue
		}
		if hasAnyPrefix(line, sectionTerminators) {
			break
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		if !strings.HasPrefix(line, "+") {
			return nil, formatErrf("create mode requires every content line to be an addition: %s", line)
		}
		out = append(out, line[1:])
	}
	return out, nil
}
