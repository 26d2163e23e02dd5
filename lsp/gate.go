package lsp

import (
	"net/url"
	"strings"
)

// DefaultExtensions are the file suffixes served when no configuration overrides them:
// PICO-8 cartridges and plain Lua sources.
var DefaultExtensions = []string{".p8", ".lua"}

// FileGate restricts lookups to files whose name ends in an allowed suffix.
// Matching is case-sensitive.
type FileGate struct {
	suffixes []string
}

// NewFileGate creates a gate for the given suffixes. A missing leading dot is
// added ("p8" becomes ".p8"); blank entries are ignored.
func NewFileGate(suffixes ...string) *FileGate {
	g := &FileGate{suffixes: make([]string, 0, len(suffixes))}
	for _, s := range suffixes {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if !strings.HasPrefix(s, ".") {
			s = "." + s
		}
		g.suffixes = append(g.suffixes, s)
	}
	return g
}

// Allows reports whether file passes the gate. file may be a plain path or name,
// or a document URI such as file:///home/me/game.p8.
func (g *FileGate) Allows(file string) bool {
	if g == nil {
		return false
	}
	name := fileName(file)
	for _, s := range g.suffixes {
		if strings.HasSuffix(name, s) {
			return true
		}
	}
	return false
}

// Suffixes returns a copy of the allowed suffixes
func (g *FileGate) Suffixes() []string {
	if g == nil {
		return nil
	}
	out := make([]string, len(g.suffixes))
	copy(out, g.suffixes)
	return out
}

// fileName strips the scheme, query and fragment from document URIs
func fileName(file string) string {
	if !strings.Contains(file, ":") {
		return file
	}
	u, err := url.Parse(file)
	if err != nil || u.Scheme == "" || len(u.Scheme) == 1 {
		// Not a URI, or a Windows drive letter (C:\game.p8)
		return file
	}
	if u.Opaque != "" {
		// untitled:Untitled-1
		return u.Opaque
	}
	return u.Path
}
