package lsp

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teranos/p8ls/kb"
	protocol "github.com/tliron/glsp/protocol_3_16"
)

func setupService(t *testing.T) *Service {
	t.Helper()
	return NewService(nil, nil)
}

func TestProvideCompletions_Gate(t *testing.T) {
	svc := setupService(t)

	tests := []struct {
		name string
		file string
		want int
	}{
		{"pico8 cartridge", "game.p8", 12},
		{"lua source", "game.lua", 12},
		{"cartridge uri", "file:///carts/game.p8", 12},
		{"python", "game.py", 0},
		{"no extension", "Makefile", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items := svc.ProvideCompletions(QueryContext{File: tt.file})
			assert.Len(t, items, tt.want)
		})
	}
}

func TestProvideCompletions_IgnoresPosition(t *testing.T) {
	svc := setupService(t)

	a := svc.ProvideCompletions(QueryContext{File: "game.p8"})
	b := svc.ProvideCompletions(QueryContext{File: "other.lua", Position: protocol.Position{Line: 40, Character: 7}})
	assert.Equal(t, a, b)
	assert.Equal(t, kb.Completions(), a)
}

func TestProvideHover(t *testing.T) {
	svc := setupService(t)

	tests := []struct {
		name     string
		file     string
		word     string
		found    bool
		contains string
	}{
		{"documented completion", "game.lua", "btn", true, "Get button state"},
		{"documented helper", "game.p8", "rnd", true, "Random number 0 to x"},
		{"unknown word", "game.lua", "xyzzy", false, ""},
		{"empty word", "game.lua", "", false, ""},
		{"gated file", "game.py", "btn", false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text, ok := svc.ProvideHover(QueryContext{File: tt.file}, tt.word)
			assert.Equal(t, tt.found, ok)
			if tt.found {
				assert.Contains(t, text, tt.contains)
			} else {
				assert.Empty(t, text)
			}
		})
	}
}

func TestService_SetGate(t *testing.T) {
	svc := setupService(t)
	require.NotEmpty(t, svc.ProvideCompletions(QueryContext{File: "game.lua"}))

	svc.SetGate(NewFileGate(".p8"))
	assert.Empty(t, svc.ProvideCompletions(QueryContext{File: "game.lua"}))
	assert.NotEmpty(t, svc.ProvideCompletions(QueryContext{File: "game.p8"}))

	svc.SetGate(nil)
	assert.Empty(t, svc.ProvideCompletions(QueryContext{File: "game.p8"}))
}

func TestService_CustomBase(t *testing.T) {
	base, err := kb.Load([]byte(`
[[completion]]
identifier = "music"
template = "music($1)"
description = "Play music"

[docs]
music = "**music(n)**"
`))
	require.NoError(t, err)

	svc := NewService(base, NewFileGate(".p8"))
	items := svc.ProvideCompletions(QueryContext{File: "a.p8"})
	require.Len(t, items, 1)
	assert.Equal(t, "music", items[0].Identifier)

	text, ok := svc.ProvideHover(QueryContext{File: "a.p8"}, "music")
	assert.True(t, ok)
	assert.Equal(t, "**music(n)**", text)

	_, ok = svc.ProvideHover(QueryContext{File: "a.p8"}, "btn")
	assert.False(t, ok)
}

func TestService_ConcurrentLookupsAndGateSwaps(t *testing.T) {
	svc := setupService(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				if i == 0 && j%10 == 0 {
					svc.SetGate(NewFileGate(DefaultExtensions...))
				}
				items := svc.ProvideCompletions(QueryContext{File: "game.p8"})
				assert.Len(t, items, 12)
				_, ok := svc.ProvideHover(QueryContext{File: "game.p8"}, "spr")
				assert.True(t, ok)
			}
		}(i)
	}
	wg.Wait()
}
