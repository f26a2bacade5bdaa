/*
Package gerberlexer splits a Gerber byte stream into raw command units.

A plain command is terminated by '*'. An extended command is bracketed by '%'
and may hold several '*'-terminated sub-statements (a macro body, old style
"%FSLAX24Y24*MOIN*%" headers), each of which becomes its own RawCommand.

	FS  format specification               MO  unit mode
	AD  aperture define                    AM  aperture macro
	AB  aperture block                     SR  step and repeat
	LP  LM LR LS  object transformations   TF TA TO TD  attributes
	Dnn aperture select, D01/D02/D03 operations, Gnn modes, M02 end of file
*/
package gerberlexer

import (
	"io"
	"strings"

	"github.com/wyre-innovations/gerberdump/gerbererrors"
)

type Delim byte

const (
	DataBlockTrailer Delim = '*'
	ExtCmdDelimiter  Delim = '%'
)

func (d Delim) String() string {
	switch d {
	case DataBlockTrailer:
		return "DBEND"
	case ExtCmdDelimiter:
		return "EXTDELIM"
	}
	return "UNKNOWN"
}

// RawCommand is the text of one command with its position in the source.
type RawCommand struct {
	Text   string `json:"text"`
	Offset int    `json:"offset"` // byte offset of the first character
	Line   int    `json:"line"`   // 1-based

	Extended bool `json:"extended,omitempty"`
	// Group is the ordinal of the enclosing %...% block, -1 for plain commands.
	Group int `json:"group"`
	// Index is the position of the sub-statement inside its %...% block.
	Index int `json:"index"`
	// Combined marks the second half of a G-code glued to coordinate data.
	Combined bool `json:"combined,omitempty"`
	// Unterminated is set when the text was not closed by '*'.
	Unterminated bool `json:"unterminated,omitempty"`
}

// Lexer is a lazy tokenizer over an in-memory buffer.
// The sequence can only be restarted from the beginning, see Reset.
type Lexer struct {
	buf     []byte
	pos     int
	line    int
	group   int
	pending []RawCommand
	err     error
}

func New(buf []byte) *Lexer {
	l := &Lexer{buf: buf}
	l.Reset()
	return l
}

// Reset rewinds the lexer to the start of the buffer.
func (l *Lexer) Reset() {
	l.pos = 0
	l.line = 1
	l.group = 0
	l.pending = l.pending[:0]
	l.err = nil
}

// Next returns the next raw command, io.EOF at the end of input or a fatal
// SyntaxError. After an error every later call returns the same error.
func (l *Lexer) Next() (RawCommand, error) {
	if len(l.pending) > 0 {
		rc := l.pending[0]
		l.pending = l.pending[1:]
		return rc, nil
	}
	if l.err != nil {
		return RawCommand{}, l.err
	}
	for {
		l.skipSpace()
		if l.pos >= len(l.buf) {
			l.err = io.EOF
			return RawCommand{}, l.err
		}
		switch l.buf[l.pos] {
		case byte(ExtCmdDelimiter):
			if err := l.scanExtended(); err != nil {
				l.err = err
				return RawCommand{}, err
			}
		case byte(DataBlockTrailer):
			// empty data block
			l.pos++
			continue
		default:
			l.scanPlain()
		}
		if len(l.pending) > 0 {
			rc := l.pending[0]
			l.pending = l.pending[1:]
			return rc, nil
		}
	}
}

func (l *Lexer) skipSpace() {
	for l.pos < len(l.buf) {
		c := l.buf[l.pos]
		if c != ' ' && c != '\t' && c != '\r' && c != '\n' {
			return
		}
		if c == '\n' {
			l.line++
		}
		l.pos++
	}
}

// scanExtended consumes a whole %...% block.
func (l *Lexer) scanExtended() error {
	startLine := l.line
	startOffset := l.pos
	end := -1
	for i := l.pos + 1; i < len(l.buf); i++ {
		if l.buf[i] == byte(ExtCmdDelimiter) {
			end = i
			break
		}
	}
	if end < 0 {
		return &gerbererrors.Error{
			Class:   gerbererrors.SyntaxError,
			Kind:    gerbererrors.MalformedSyntax,
			Line:    startLine,
			Offset:  startOffset,
			Code:    "%",
			Message: "unterminated '%' bracket",
			Fatal:   true,
		}
	}
	l.pos++ // opening '%'
	index := 0
	for l.pos < end {
		l.skipSpaceUntil(end)
		if l.pos >= end {
			break
		}
		stmtLine, stmtOffset := l.line, l.pos
		stop := l.pos
		for stop < end && l.buf[stop] != byte(DataBlockTrailer) {
			stop++
		}
		text := normalize(l.buf[l.pos:stop])
		l.countLines(l.pos, stop)
		terminated := stop < end
		if terminated {
			stop++
		}
		l.pos = stop
		if text == "" {
			continue
		}
		l.pending = append(l.pending, RawCommand{
			Text:         text,
			Offset:       stmtOffset,
			Line:         stmtLine,
			Extended:     true,
			Group:        l.group,
			Index:        index,
			Unterminated: !terminated,
		})
		index++
	}
	l.pos = end + 1
	l.group++
	return nil
}

func (l *Lexer) skipSpaceUntil(end int) {
	for l.pos < end {
		c := l.buf[l.pos]
		if c != ' ' && c != '\t' && c != '\r' && c != '\n' {
			return
		}
		if c == '\n' {
			l.line++
		}
		l.pos++
	}
}

// scanPlain consumes one '*' terminated data block.
func (l *Lexer) scanPlain() {
	startLine, startOffset := l.line, l.pos
	stop := l.pos
	for stop < len(l.buf) && l.buf[stop] != byte(DataBlockTrailer) && l.buf[stop] != byte(ExtCmdDelimiter) {
		stop++
	}
	text := normalize(l.buf[l.pos:stop])
	l.countLines(l.pos, stop)
	terminated := stop < len(l.buf) && l.buf[stop] == byte(DataBlockTrailer)
	if terminated {
		stop++
	}
	l.pos = stop
	if text == "" {
		return
	}
	rc := RawCommand{
		Text:         text,
		Offset:       startOffset,
		Line:         startLine,
		Group:        -1,
		Unterminated: !terminated,
	}
	if head, tail, ok := SplitGCode(text); ok {
		first := rc
		first.Text = head
		first.Unterminated = false
		second := rc
		second.Text = tail
		second.Offset = startOffset + strings.Index(text, tail)
		second.Combined = true
		l.pending = append(l.pending, first, second)
		return
	}
	l.pending = append(l.pending, rc)
}

func (l *Lexer) countLines(from, to int) {
	for i := from; i < to; i++ {
		if l.buf[i] == '\n' {
			l.line++
		}
	}
}

// normalize drops line endings and surrounding blanks.
func normalize(b []byte) string {
	s := string(b)
	if strings.ContainsAny(s, "\r\n") {
		s = strings.NewReplacer("\r", "", "\n", "").Replace(s)
	}
	return strings.TrimSpace(s)
}

// Tokenize collects the whole sequence.
func Tokenize(buf []byte) ([]RawCommand, error) {
	l := New(buf)
	out := make([]RawCommand, 0, len(buf)/16)
	for {
		rc, err := l.Next()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, rc)
	}
}

// SplitGCode separates a leading G-code glued to coordinate or D-code data,
// e.g. "G01X100Y200D01" -> "G01", "X100Y200D01". Comments are never split.
func SplitGCode(s string) (head, tail string, ok bool) {
	if len(s) < 3 || s[0] != 'G' {
		return "", "", false
	}
	i := 1
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i == 1 || i == len(s) {
		return "", "", false
	}
	if FormatGCode(s[0], s[1:i]) == "G04" {
		return "", "", false
	}
	switch s[i] {
	case 'X', 'Y', 'I', 'J', 'D':
		return s[:i], s[i:], true
	}
	return "", "", false
}

// FormatGCode normalizes a function code to two digits: G1 -> G01, D3 -> D03.
// Aperture numbers keep their digits, leading zeros removed: D010 -> D10.
func FormatGCode(sym byte, num string) string {
	num = strings.TrimLeft(num, "0")
	switch len(num) {
	case 0:
		return string(sym) + "00"
	case 1:
		return string(sym) + "0" + num
	}
	return string(sym) + num
}
