package am

import (
	"strings"

	"github.com/teranos/p8ls/errors"
)

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if len(c.LSP.Extensions) == 0 {
		return errors.WithHint(
			errors.New("lsp.extensions cannot be empty"),
			`use extensions = [".p8", ".lua"] to serve PICO-8 and Lua files`,
		)
	}
	for _, ext := range c.LSP.Extensions {
		if strings.TrimSpace(ext) == "" {
			return errors.New("lsp.extensions cannot contain blank entries")
		}
		if strings.ContainsAny(ext, `/\`) {
			return errors.Newf("lsp.extensions entry %q must be a file suffix, not a path", ext)
		}
	}

	for _, id := range c.LSP.LanguageIDs {
		if strings.TrimSpace(id) == "" {
			return errors.New("lsp.language_ids cannot contain blank entries")
		}
	}
	if c.LSP.DynamicRegistration && len(c.LSP.LanguageIDs) == 0 {
		return errors.WithHint(
			errors.New("lsp.language_ids cannot be empty when lsp.dynamic_registration is enabled"),
			"list the editor language ids (pico8, lua) or set dynamic_registration = false",
		)
	}

	// Zero means zero: a server that caches no documents cannot hover
	if c.LSP.MaxDocuments <= 0 {
		return errors.Newf("lsp.max_documents must be > 0, got %d", c.LSP.MaxDocuments)
	}

	switch c.Server.Transport {
	case TransportStdio:
	case TransportTCP:
		if c.Server.TCPAddress == "" {
			return errors.New("server.tcp_address cannot be empty when server.transport is tcp")
		}
	case TransportWebSocket:
		if c.Server.WSAddress == "" {
			return errors.New("server.ws_address cannot be empty when server.transport is websocket")
		}
	default:
		return errors.WithHint(
			errors.Newf("server.transport %q is not supported", c.Server.Transport),
			"use stdio, tcp or websocket",
		)
	}

	if c.Log.Verbosity < 0 {
		return errors.Newf("log.verbosity must be >= 0, got %d", c.Log.Verbosity)
	}

	return nil
}
