package lsp

import (
	"sync"

	"github.com/teranos/p8ls/errors"
	protocol "github.com/tliron/glsp/protocol_3_16"
)

// DefaultMaxDocuments limits the document cache of a single client connection
const DefaultMaxDocuments = 100

// Document is an open text document as last synchronised by the client
type Document struct {
	URI        protocol.DocumentUri
	LanguageID string
	Version    protocol.Integer
	Text       string
}

// Documents caches the text of open documents, keyed by URI
type Documents struct {
	mu   sync.RWMutex
	docs map[protocol.DocumentUri]*Document
	max  int
}

// NewDocuments creates a document cache holding at most max documents.
// max <= 0 uses DefaultMaxDocuments.
func NewDocuments(max int) *Documents {
	if max <= 0 {
		max = DefaultMaxDocuments
	}
	return &Documents{
		docs: make(map[protocol.DocumentUri]*Document),
		max:  max,
	}
}

// Open stores a newly opened document. Re-opening a cached URI replaces it;
// a new URI beyond the cache limit is rejected with errors.ErrLimitReached.
func (d *Documents) Open(item protocol.TextDocumentItem) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.docs[item.URI]; !exists && len(d.docs) >= d.max {
		return errors.Wrapf(errors.ErrLimitReached, "document cache full (%d documents open)", d.max)
	}

	d.docs[item.URI] = &Document{
		URI:        item.URI,
		LanguageID: item.LanguageID,
		Version:    item.Version,
		Text:       item.Text,
	}
	return nil
}

// Change applies content changes in order. Whole-document changes replace the
// text; ranged changes splice it.
func (d *Documents) Change(id protocol.VersionedTextDocumentIdentifier, changes []any) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	doc, ok := d.docs[id.URI]
	if !ok {
		return errors.NewInvalidRequestError("change for document %s that is not open", id.URI)
	}

	text := doc.Text
	for _, change := range changes {
		switch c := change.(type) {
		case protocol.TextDocumentContentChangeEventWhole:
			text = c.Text
		case protocol.TextDocumentContentChangeEvent:
			if c.Range == nil {
				text = c.Text
				continue
			}
			start, end := offsetAt(text, c.Range.Start), offsetAt(text, c.Range.End)
			if end < start {
				start, end = end, start
			}
			text = text[:start] + c.Text + text[end:]
		default:
			return errors.NewInvalidRequestError("unsupported content change %T", change)
		}
	}

	doc.Text = text
	doc.Version = id.Version
	return nil
}

// Close drops a document from the cache
func (d *Documents) Close(uri protocol.DocumentUri) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.docs, uri)
}

// Get returns a copy of the cached document
func (d *Documents) Get(uri protocol.DocumentUri) (Document, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	doc, ok := d.docs[uri]
	if !ok {
		return Document{}, false
	}
	return *doc, true
}

// Len returns the number of open documents
func (d *Documents) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.docs)
}
