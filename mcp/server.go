// Package mcp exposes the PICO-8 completion and documentation lookups as Model
// Context Protocol tools, so assistants can query the same knowledge base the
// editor sees.
package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/teranos/p8ls/logger"
	"github.com/teranos/p8ls/lsp"
	"github.com/teranos/p8ls/version"
	"go.uber.org/zap"
)

// Tool names
const (
	ToolCompletions = "pico8_completions"
	ToolHover       = "pico8_hover"
	ToolIdentifiers = "pico8_identifiers"
)

// IdentifierLister lists the documented identifiers
type IdentifierLister interface {
	Identifiers() []string
}

// MCPServer serves the language service lookups as MCP tools
type MCPServer struct {
	completions   lsp.CompletionSource
	documentation lsp.DocumentationSource
	identifiers   IdentifierLister
	server        *server.MCPServer
	logger        *zap.SugaredLogger
}

// NewMCPServer creates an MCP server with the PICO-8 tools registered
func NewMCPServer(completions lsp.CompletionSource, documentation lsp.DocumentationSource, identifiers IdentifierLister) *MCPServer {
	s := &MCPServer{
		completions:   completions,
		documentation: documentation,
		identifiers:   identifiers,
		logger:        logger.ComponentLogger("mcp"),
	}

	s.server = server.NewMCPServer(
		"p8ls",
		version.Get().Version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions("PICO-8 API completions and documentation. Only .p8 and .lua files are recognised by default."),
	)

	s.registerTools()
	return s
}

// registerTools registers all MCP tools
func (s *MCPServer) registerTools() {
	completionsTool := mcp.NewTool(ToolCompletions,
		mcp.WithDescription("List the PICO-8 API completions (label, snippet template, description) offered for a file"),
		mcp.WithString("file",
			mcp.Required(),
			mcp.Description("File name or path; only PICO-8 (.p8) and Lua (.lua) files get completions"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
	)
	s.server.AddTool(completionsTool, s.handleCompletions)

	hoverTool := mcp.NewTool(ToolHover,
		mcp.WithDescription("Get the markdown documentation for a PICO-8 API function"),
		mcp.WithString("file",
			mcp.Required(),
			mcp.Description("File name or path the word appears in"),
		),
		mcp.WithString("word",
			mcp.Required(),
			mcp.Description("Identifier to document, e.g. btn or circfill"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
	)
	s.server.AddTool(hoverTool, s.handleHover)

	identifiersTool := mcp.NewTool(ToolIdentifiers,
		mcp.WithDescription("List every PICO-8 identifier that has documentation"),
		mcp.WithReadOnlyHintAnnotation(true),
	)
	s.server.AddTool(identifiersTool, s.handleIdentifiers)
}

// handleCompletions handles pico8_completions tool calls
func (s *MCPServer) handleCompletions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	file, err := request.RequireString("file")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	entries := s.completions.ProvideCompletions(lsp.QueryContext{File: file})
	s.logger.Debugw("MCP completions", logger.FieldFile, file, logger.FieldCount, len(entries))

	if len(entries) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("No completions: %s is not a PICO-8 or Lua file", file)), nil
	}

	result, err := mcp.NewToolResultJSON(entries)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to encode completions: %v", err)), nil
	}
	return result, nil
}

// handleHover handles pico8_hover tool calls
func (s *MCPServer) handleHover(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	file, err := request.RequireString("file")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	word, err := request.RequireString("word")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	text, ok := s.documentation.ProvideHover(lsp.QueryContext{File: file}, word)
	s.logger.Debugw("MCP hover", logger.FieldFile, file, logger.FieldWord, word, "found", ok)

	if !ok {
		return mcp.NewToolResultText(fmt.Sprintf("No documentation for %q", word)), nil
	}
	return mcp.NewToolResultText(text), nil
}

// handleIdentifiers handles pico8_identifiers tool calls
func (s *MCPServer) handleIdentifiers(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ids := s.identifiers.Identifiers()
	return mcp.NewToolResultStructured(map[string][]string{"identifiers": ids}, strings.Join(ids, "\n")), nil
}

// Serve serves the tools over stdin/stdout until stdin is closed
func (s *MCPServer) Serve() error {
	s.logger.Infow("Serving MCP over stdio", logger.FieldTransport, "stdio")
	return server.ServeStdio(s.server,
		server.WithErrorLogger(zap.NewStdLog(s.logger.Desugar())),
	)
}

// Server returns the underlying MCP server
func (s *MCPServer) Server() *server.MCPServer {
	return s.server
}
