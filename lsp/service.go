// Package lsp provides the PICO-8 language intelligence behind the LSP and MCP
// servers: completion and hover lookups against the knowledge base, gated by
// file type, plus the open-document cache used to resolve the word under the
// cursor.
package lsp

import (
	"sync/atomic"

	"github.com/teranos/p8ls/kb"
	protocol "github.com/tliron/glsp/protocol_3_16"
)

// QueryContext identifies where a lookup was requested. The position is carried
// for the caller's benefit; lookups do not filter by it.
type QueryContext struct {
	File     string
	Position protocol.Position
}

// CompletionSource answers "what can be inserted here"
type CompletionSource interface {
	ProvideCompletions(q QueryContext) []kb.CompletionEntry
}

// DocumentationSource answers "what does this word mean"
type DocumentationSource interface {
	ProvideHover(q QueryContext, word string) (string, bool)
}

// Service implements CompletionSource and DocumentationSource over a knowledge base
type Service struct {
	base *kb.Base
	gate atomic.Pointer[FileGate]
}

var (
	_ CompletionSource    = (*Service)(nil)
	_ DocumentationSource = (*Service)(nil)
)

// NewService creates a language service. A nil base uses kb.Default();
// a nil gate uses DefaultExtensions.
func NewService(base *kb.Base, gate *FileGate) *Service {
	if base == nil {
		base = kb.Default()
	}
	if gate == nil {
		gate = NewFileGate(DefaultExtensions...)
	}
	s := &Service{base: base}
	s.gate.Store(gate)
	return s
}

// SetGate replaces the file gate. Safe to call while lookups are running.
func (s *Service) SetGate(gate *FileGate) {
	if gate == nil {
		gate = NewFileGate()
	}
	s.gate.Store(gate)
}

// Gate returns the active file gate
func (s *Service) Gate() *FileGate {
	return s.gate.Load()
}

// ProvideCompletions returns every known completion entry in declaration order,
// or nil when the file is not a PICO-8 or Lua file. Prefix filtering against
// what the user has typed is left to the editor.
func (s *Service) ProvideCompletions(q QueryContext) []kb.CompletionEntry {
	if !s.Gate().Allows(q.File) {
		return nil
	}
	return s.base.Completions()
}

// ProvideHover returns the documentation for word. The second result is false
// when the file is gated out or the word is not documented.
func (s *Service) ProvideHover(q QueryContext, word string) (string, bool) {
	if !s.Gate().Allows(q.File) {
		return "", false
	}
	return s.base.Documentation(word)
}
