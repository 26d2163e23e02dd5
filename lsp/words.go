package lsp

import (
	"strings"
	"unicode/utf16"

	protocol "github.com/tliron/glsp/protocol_3_16"
)

// WordAt returns the identifier under the cursor and its range. A word is a
// maximal run of ASCII letters, digits and underscores; a cursor placed right
// after the last character still resolves the word. ok is false when the
// position does not touch a word or lies outside the text.
func WordAt(text string, pos protocol.Position) (word string, rng protocol.Range, ok bool) {
	lineStart, lineEnd, found := lineBounds(text, int(pos.Line))
	if !found {
		return "", protocol.Range{}, false
	}

	idx := lineStart + byteOffset(text[lineStart:lineEnd], pos.Character)

	start, end := idx, idx
	for start > lineStart && isWordByte(text[start-1]) {
		start--
	}
	for end < lineEnd && isWordByte(text[end]) {
		end++
	}
	if start == end {
		return "", protocol.Range{}, false
	}

	line := text[lineStart:lineEnd]
	rng = protocol.Range{
		Start: protocol.Position{Line: pos.Line, Character: utf16Len(line[:start-lineStart])},
		End:   protocol.Position{Line: pos.Line, Character: utf16Len(line[:end-lineStart])},
	}
	return text[start:end], rng, true
}

// lineBounds returns the byte offsets of the given zero-based line, excluding
// its line terminator
func lineBounds(text string, line int) (int, int, bool) {
	start := 0
	for i := 0; i < line; i++ {
		nl := strings.IndexByte(text[start:], '\n')
		if nl < 0 {
			return 0, 0, false
		}
		start += nl + 1
	}

	end := start + len(text[start:])
	if nl := strings.IndexByte(text[start:], '\n'); nl >= 0 {
		end = start + nl
	}
	if end > start && text[end-1] == '\r' {
		end--
	}
	return start, end, true
}

// offsetAt converts a UTF-16 position into a byte offset. Columns past the end of
// a line resolve to the line end; lines past the end of the text resolve to len(text).
func offsetAt(text string, pos protocol.Position) int {
	lineStart, lineEnd, found := lineBounds(text, int(pos.Line))
	if !found {
		return len(text)
	}
	return lineStart + byteOffset(text[lineStart:lineEnd], pos.Character)
}

// byteOffset returns the byte offset of the given UTF-16 column within line
func byteOffset(line string, column protocol.UInteger) int {
	units := protocol.UInteger(0)
	for i, r := range line {
		if units >= column {
			return i
		}
		units += protocol.UInteger(utf16.RuneLen(r))
	}
	return len(line)
}

func isWordByte(c byte) bool {
	return c == '_' ||
		(c >= 'a' && c <= 'z') ||
		(c >= 'A' && c <= 'Z') ||
		(c >= '0' && c <= '9')
}

func utf16Len(s string) protocol.UInteger {
	return protocol.UInteger(len(utf16.Encode([]rune(s))))
}
