// Package kb holds the PICO-8 API knowledge base: the completion entries offered
// in PICO-8 and Lua files, and the hover documentation keyed by identifier.
//
// The tables are authored in pico8.toml, embedded into the binary and decoded
// once per process. Nothing mutates them afterwards; every accessor is safe for
// concurrent use.
package kb

import (
	_ "embed"
	"sort"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/teranos/p8ls/errors"
)

//go:embed pico8.toml
var embedded []byte

// CompletionEntry is a suggestion the editor can insert at the cursor
type CompletionEntry struct {
	Identifier       string `toml:"identifier" json:"identifier"`
	InsertTemplate   string `toml:"template" json:"insert_template"`
	ShortDescription string `toml:"description" json:"short_description"`
}

// document mirrors the layout of pico8.toml
type document struct {
	Completion []CompletionEntry `toml:"completion"`
	Docs       map[string]string `toml:"docs"`
}

// Base is an immutable knowledge base
type Base struct {
	completions []CompletionEntry
	docs        map[string]string
}

// Load decodes and validates a knowledge base document
func Load(data []byte) (*Base, error) {
	var doc document
	md, err := toml.Decode(string(data), &doc)
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode knowledge base")
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, errors.WithHintf(
			errors.NewInvalidRequestError("unknown knowledge base key %q", undecoded[0].String()),
			"only [[completion]] entries and a [docs] table are supported")
	}

	seen := make(map[string]bool, len(doc.Completion))
	for i, entry := range doc.Completion {
		if entry.Identifier == "" {
			return nil, errors.NewInvalidRequestError("completion entry %d has no identifier", i)
		}
		if seen[entry.Identifier] {
			return nil, errors.NewInvalidRequestError("duplicate completion identifier %q", entry.Identifier)
		}
		seen[entry.Identifier] = true

		if err := ValidateTemplate(entry.InsertTemplate); err != nil {
			return nil, errors.Wrapf(err, "completion %q", entry.Identifier)
		}
	}

	for key, text := range doc.Docs {
		if text == "" {
			return nil, errors.NewInvalidRequestError("documentation for %q is empty", key)
		}
	}

	docs := doc.Docs
	if docs == nil {
		docs = map[string]string{}
	}
	return &Base{completions: doc.Completion, docs: docs}, nil
}

var (
	defaultOnce sync.Once
	defaultBase *Base
)

// Default returns the process-wide knowledge base decoded from the embedded
// pico8.toml. The embedded data is validated by tests, so a decode failure here
// is a build defect and panics.
func Default() *Base {
	defaultOnce.Do(func() {
		base, err := Load(embedded)
		if err != nil {
			panic(errors.Wrap(err, "embedded knowledge base is invalid"))
		}
		defaultBase = base
	})
	return defaultBase
}

// Completions returns all completion entries in declaration order.
// The returned slice is a copy; callers may modify it freely.
func (b *Base) Completions() []CompletionEntry {
	out := make([]CompletionEntry, len(b.completions))
	copy(out, b.completions)
	return out
}

// Documentation returns the documentation text for identifier.
// The second result is false when the identifier is not documented.
func (b *Base) Documentation(identifier string) (string, bool) {
	text, ok := b.docs[identifier]
	return text, ok
}

// Identifiers returns the documented identifiers, sorted
func (b *Base) Identifiers() []string {
	ids := make([]string, 0, len(b.docs))
	for id := range b.docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Completions returns the default knowledge base's completion entries
func Completions() []CompletionEntry {
	return Default().Completions()
}

// Documentation looks identifier up in the default knowledge base
func Documentation(identifier string) (string, bool) {
	return Default().Documentation(identifier)
}

// Identifiers returns the default knowledge base's documented identifiers
func Identifiers() []string {
	return Default().Identifiers()
}
