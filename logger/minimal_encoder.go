package logger

import (
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"
)

var bufferPool = buffer.NewPool()

// minimalEncoder implements a calm, compact console encoder.
// Format: "13:04:35.120  WARN  lsp  Document cache limit reached  uri=file:///a.p8 count=100"
//
// No colors: editors capture stderr into plain-text output panes.
type minimalEncoder struct {
	// Context fields added via logger.With, printed sorted before entry fields
	*zapcore.MapObjectEncoder
}

func newMinimalEncoder() *minimalEncoder {
	return &minimalEncoder{MapObjectEncoder: zapcore.NewMapObjectEncoder()}
}

func (enc *minimalEncoder) Clone() zapcore.Encoder {
	clone := zapcore.NewMapObjectEncoder()
	for k, v := range enc.Fields {
		clone.Fields[k] = v
	}
	return &minimalEncoder{MapObjectEncoder: clone}
}

func (enc *minimalEncoder) EncodeEntry(ent zapcore.Entry, fields []zapcore.Field) (*buffer.Buffer, error) {
	final := bufferPool.Get()

	final.AppendString(ent.Time.Format("15:04:05.000"))

	// Level: only shown when it is not INFO
	if ent.Level != zapcore.InfoLevel {
		final.AppendString("  ")
		final.AppendString(ent.Level.CapitalString())
	}

	if ent.LoggerName != "" {
		final.AppendString("  ")
		final.AppendString(ent.LoggerName)
	}

	final.AppendString("  ")
	final.AppendString(ent.Message)

	pairs := enc.contextPairs()
	pairs = append(pairs, entryPairs(fields)...)
	if len(pairs) > 0 {
		final.AppendString("  ")
		final.AppendString(strings.Join(pairs, " "))
	}

	if ent.Stack != "" {
		final.AppendString("\n")
		final.AppendString(ent.Stack)
	}

	final.AppendString("\n")
	return final, nil
}

func (enc *minimalEncoder) contextPairs() []string {
	if len(enc.Fields) == 0 {
		return nil
	}
	keys := make([]string, 0, len(enc.Fields))
	for k := range enc.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, formatPair(k, enc.Fields[k]))
	}
	return pairs
}

// entryPairs renders every field in call order. Fields are never dropped.
func entryPairs(fields []zapcore.Field) []string {
	pairs := make([]string, 0, len(fields))
	for _, f := range fields {
		m := zapcore.NewMapObjectEncoder()
		f.AddTo(m)
		if v, ok := m.Fields[f.Key]; ok {
			pairs = append(pairs, formatPair(f.Key, v))
			continue
		}
		// Inline namespaces or objects spread several keys
		keys := make([]string, 0, len(m.Fields))
		for k := range m.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			pairs = append(pairs, formatPair(k, m.Fields[k]))
		}
	}
	return pairs
}

func formatPair(key string, value interface{}) string {
	return key + "=" + fmt.Sprint(value)
}
