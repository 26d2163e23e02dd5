package server

import (
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/teranos/p8ls/internal/util"
	"github.com/teranos/p8ls/logger"
	"github.com/teranos/p8ls/lsp"
	"github.com/teranos/p8ls/version"
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
	"go.uber.org/zap"
)

// ServerName is reported to clients in InitializeResult.ServerInfo
const ServerName = "p8ls"

// Registration ids for dynamically registered providers
const (
	completionRegistrationID = "p8ls-completion"
	hoverRegistrationID      = "p8ls-hover"
)

// HandlerOptions configures a GLSPHandler
type HandlerOptions struct {
	// LanguageIDs scope dynamically registered providers (document selector)
	LanguageIDs []string

	// MaxDocuments caps the per-connection document cache
	MaxDocuments int

	// DynamicRegistration registers completion and hover via
	// client/registerCapability when the client supports it
	DynamicRegistration bool
}

// DefaultHandlerOptions returns the options used when no configuration is loaded
func DefaultHandlerOptions() HandlerOptions {
	return HandlerOptions{
		LanguageIDs:         []string{"pico8", "lua"},
		MaxDocuments:        lsp.DefaultMaxDocuments,
		DynamicRegistration: true,
	}
}

// GLSPHandler implements LSP protocol handlers for one client connection.
// It wraps the completion and documentation sources with the standard LSP protocol.
type GLSPHandler struct {
	completions   lsp.CompletionSource
	documentation lsp.DocumentationSource
	documents     *lsp.Documents
	opts          HandlerOptions
	session       string
	logger        *zap.SugaredLogger

	// set during initialize when the client accepts dynamic registration
	registerDynamically atomic.Bool
	active              atomic.Bool
}

// NewGLSPHandler creates a handler with its own document cache and session id
func NewGLSPHandler(completions lsp.CompletionSource, documentation lsp.DocumentationSource, opts HandlerOptions) *GLSPHandler {
	session := uuid.NewString()
	return &GLSPHandler{
		completions:   completions,
		documentation: documentation,
		documents:     lsp.NewDocuments(opts.MaxDocuments),
		opts:          opts,
		session:       session,
		logger:        logger.ChildLogger(logger.ComponentLogger("lsp"), logger.FieldSession, session),
	}
}

// Session returns the connection's session id
func (h *GLSPHandler) Session() string {
	return h.session
}

// Active reports whether the client has completed the initialize handshake and
// not yet shut down
func (h *GLSPHandler) Active() bool {
	return h.active.Load()
}

// Documents exposes the handler's document cache
func (h *GLSPHandler) Documents() *lsp.Documents {
	return h.documents
}

// ProtocolHandler wires the handler methods into a glsp protocol handler
func (h *GLSPHandler) ProtocolHandler() *protocol.Handler {
	return &protocol.Handler{
		Initialize:             h.Initialize,
		Initialized:            h.Initialized,
		Shutdown:               h.Shutdown,
		Exit:                   h.Exit,
		SetTrace:               h.SetTrace,
		TextDocumentDidOpen:    h.TextDocumentDidOpen,
		TextDocumentDidChange:  h.TextDocumentDidChange,
		TextDocumentDidClose:   h.TextDocumentDidClose,
		TextDocumentCompletion: h.TextDocumentCompletion,
		TextDocumentHover:      h.TextDocumentHover,
	}
}

// Initialize handles LSP initialize request
func (h *GLSPHandler) Initialize(ctx *glsp.Context, params *protocol.InitializeParams) (any, error) {
	client := "unknown"
	if params.ClientInfo != nil {
		client = params.ClientInfo.Name
	}

	dynamic := h.opts.DynamicRegistration && supportsDynamicRegistration(params.Capabilities)
	h.registerDynamically.Store(dynamic)

	h.logger.Infow("LSP client initializing",
		logger.FieldClient, client,
		"dynamic_registration", dynamic,
	)

	syncKind := protocol.TextDocumentSyncKindIncremental
	capabilities := protocol.ServerCapabilities{
		TextDocumentSync: &protocol.TextDocumentSyncOptions{
			OpenClose: util.Ptr(true),
			Change:    &syncKind,
		},
	}
	if !dynamic {
		capabilities.CompletionProvider = &protocol.CompletionOptions{}
		capabilities.HoverProvider = &protocol.HoverOptions{}
	}

	return protocol.InitializeResult{
		Capabilities: capabilities,
		ServerInfo: &protocol.InitializeResultServerInfo{
			Name:    ServerName,
			Version: util.Ptr(version.Get().Version),
		},
	}, nil
}

// Initialized activates the server. Completion and hover are registered here
// when the client negotiated dynamic registration during initialize.
func (h *GLSPHandler) Initialized(ctx *glsp.Context, params *protocol.InitializedParams) error {
	h.active.Store(true)
	h.logger.Infow("LSP client initialized successfully")

	if !h.registerDynamically.Load() {
		return nil
	}

	registration := h.registrationParams()
	h.logger.Debugw("Registering providers",
		"language_ids", h.opts.LanguageIDs,
		logger.FieldCount, len(registration.Registrations),
	)

	// The request/response loop is blocked until this handler returns, so the
	// client's reply can only be read if the call runs on its own goroutine.
	go ctx.Call(string(protocol.ServerClientRegisterCapability), registration, nil)
	return nil
}

// Shutdown deactivates the server. There is nothing to release.
func (h *GLSPHandler) Shutdown(ctx *glsp.Context) error {
	h.active.Store(false)
	h.logger.Infow("LSP client shutting down",
		"open_documents", h.documents.Len(),
	)
	return nil
}

// Exit is called before the connection is closed
func (h *GLSPHandler) Exit(ctx *glsp.Context) error {
	h.active.Store(false)
	h.logger.Infow("LSP client exited")
	return nil
}

// SetTrace handles $/setTrace
func (h *GLSPHandler) SetTrace(ctx *glsp.Context, params *protocol.SetTraceParams) error {
	protocol.SetTraceValue(params.Value)
	h.logger.Debugw("Trace level changed", "value", params.Value)
	return nil
}

// TextDocumentDidOpen handles document open notifications
func (h *GLSPHandler) TextDocumentDidOpen(ctx *glsp.Context, params *protocol.DidOpenTextDocumentParams) error {
	uri := params.TextDocument.URI

	if err := h.documents.Open(params.TextDocument); err != nil {
		h.logger.Warnw("Document cache limit reached, rejecting new document",
			logger.FieldURI, uri,
			"max_allowed", h.opts.MaxDocuments,
		)
		return err
	}

	h.logger.Debugw("Document opened",
		logger.FieldURI, uri,
		logger.FieldLength, len(params.TextDocument.Text),
		"total_documents", h.documents.Len(),
	)
	return nil
}

// TextDocumentDidChange handles document change notifications
func (h *GLSPHandler) TextDocumentDidChange(ctx *glsp.Context, params *protocol.DidChangeTextDocumentParams) error {
	if err := h.documents.Change(params.TextDocument, params.ContentChanges); err != nil {
		h.logger.Warnw("Failed to apply document change",
			logger.FieldURI, params.TextDocument.URI,
			logger.FieldError, err,
		)
		return err
	}

	h.logger.Debugw("Document changed",
		logger.FieldURI, params.TextDocument.URI,
		"changes", len(params.ContentChanges),
	)
	return nil
}

// TextDocumentDidClose handles document close notifications
func (h *GLSPHandler) TextDocumentDidClose(ctx *glsp.Context, params *protocol.DidCloseTextDocumentParams) error {
	h.documents.Close(params.TextDocument.URI)
	h.logger.Debugw("Document closed", logger.FieldURI, params.TextDocument.URI)
	return nil
}

// TextDocumentCompletion returns the full PICO-8 completion table for gated
// documents. Filtering by what the user typed happens in the client.
func (h *GLSPHandler) TextDocumentCompletion(ctx *glsp.Context, params *protocol.CompletionParams) (result any, err error) {
	// Panic recovery: if completion logic panics, return empty list instead of crashing
	defer func() {
		if r := recover(); r != nil {
			h.logger.Errorw("Panic in completion handler",
				"panic", r,
				logger.FieldURI, params.TextDocument.URI,
			)
			result = []protocol.CompletionItem{}
			err = nil
		}
	}()

	q := lsp.QueryContext{
		File:     string(params.TextDocument.URI),
		Position: params.Position,
	}

	h.logger.Debugw("LSP completion details",
		logger.FieldURI, q.File,
		logger.FieldLine, q.Position.Line,
		logger.FieldCharacter, q.Position.Character,
	)

	entries := h.completions.ProvideCompletions(q)
	items := make([]protocol.CompletionItem, len(entries))
	for i, entry := range entries {
		items[i] = completionItem(i, entry.Identifier, entry.InsertTemplate, entry.ShortDescription)
	}

	h.logger.Infow("LSP completion result", logger.FieldCount, len(items))

	return items, nil
}

// TextDocumentHover shows the documentation of the word under the cursor
func (h *GLSPHandler) TextDocumentHover(ctx *glsp.Context, params *protocol.HoverParams) (result *protocol.Hover, err error) {
	// Panic recovery: if hover logic panics, return nil instead of crashing
	defer func() {
		if r := recover(); r != nil {
			h.logger.Errorw("Panic in hover handler",
				"panic", r,
				logger.FieldURI, params.TextDocument.URI,
			)
			result = nil
			err = nil
		}
	}()

	uri := params.TextDocument.URI
	doc, ok := h.documents.Get(uri)
	if !ok {
		h.logger.Debugw("Hover for document that is not open", logger.FieldURI, uri)
		return nil, nil
	}

	word, rng, ok := lsp.WordAt(doc.Text, params.Position)
	if !ok {
		return nil, nil
	}

	h.logger.Debugw("LSP hover details",
		logger.FieldURI, uri,
		logger.FieldWord, word,
		logger.FieldLine, params.Position.Line,
		logger.FieldCharacter, params.Position.Character,
	)

	text, found := h.documentation.ProvideHover(lsp.QueryContext{File: string(uri), Position: params.Position}, word)
	if !found {
		return nil, nil
	}

	h.logger.Infow("LSP hover result", logger.FieldWord, word)

	return &protocol.Hover{
		Contents: protocol.MarkupContent{
			Kind:  protocol.MarkupKindMarkdown,
			Value: text,
		},
		Range: &rng,
	}, nil
}

func (h *GLSPHandler) registrationParams() protocol.RegistrationParams {
	selector := make(protocol.DocumentSelector, len(h.opts.LanguageIDs))
	for i, id := range h.opts.LanguageIDs {
		selector[i] = protocol.DocumentFilter{Language: util.Ptr(id)}
	}
	docs := protocol.TextDocumentRegistrationOptions{DocumentSelector: &selector}

	return protocol.RegistrationParams{
		Registrations: []protocol.Registration{
			{
				ID:     completionRegistrationID,
				Method: string(protocol.MethodTextDocumentCompletion),
				RegisterOptions: protocol.CompletionRegistrationOptions{
					TextDocumentRegistrationOptions: docs,
				},
			},
			{
				ID:     hoverRegistrationID,
				Method: string(protocol.MethodTextDocumentHover),
				RegisterOptions: protocol.HoverRegistrationOptions{
					TextDocumentRegistrationOptions: docs,
				},
			},
		},
	}
}

// Helper functions

func supportsDynamicRegistration(caps protocol.ClientCapabilities) bool {
	td := caps.TextDocument
	if td == nil || td.Completion == nil || td.Hover == nil {
		return false
	}
	return isTrue(td.Completion.DynamicRegistration) && isTrue(td.Hover.DynamicRegistration)
}

func completionItem(index int, label, template, description string) protocol.CompletionItem {
	kind := protocol.CompletionItemKindFunction
	format := protocol.InsertTextFormatSnippet

	item := protocol.CompletionItem{
		Label:            label,
		Kind:             &kind,
		InsertText:       stringPtrOrNil(template),
		InsertTextFormat: &format,
		SortText:         util.Ptr(fmt.Sprintf("%04d", index)),
	}
	if description != "" {
		item.Documentation = protocol.MarkupContent{
			Kind:  protocol.MarkupKindMarkdown,
			Value: description,
		}
	}
	return item
}

func stringPtrOrNil(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func isTrue(b *bool) bool {
	return b != nil && *b
}
