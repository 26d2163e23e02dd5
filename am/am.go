// Package am ("ambient") loads the p8ls configuration: built-in defaults,
// layered TOML files, P8LS_* environment variables and command-line flags.
package am

// Config represents the p8ls configuration
type Config struct {
	LSP    LSPConfig    `mapstructure:"lsp" toml:"lsp" json:"lsp" yaml:"lsp"`
	Server ServerConfig `mapstructure:"server" toml:"server" json:"server" yaml:"server"`
	Log    LogConfig    `mapstructure:"log" toml:"log" json:"log" yaml:"log"`
	// Reload config files on change
	Watch  bool         `mapstructure:"watch" toml:"watch" json:"watch" yaml:"watch"`
}

// LSPConfig configures the language features
type LSPConfig struct {
	// File suffixes that get completions and hover
	Extensions          []string `mapstructure:"extensions" toml:"extensions" json:"extensions" yaml:"extensions"`
	// Document selector for dynamic registration
	LanguageIDs         []string `mapstructure:"language_ids" toml:"language_ids" json:"language_ids" yaml:"language_ids"`
	// Open documents cached per connection
	MaxDocuments        int      `mapstructure:"max_documents" toml:"max_documents" json:"max_documents" yaml:"max_documents"`
	// Use client/registerCapability when supported
	DynamicRegistration bool     `mapstructure:"dynamic_registration" toml:"dynamic_registration" json:"dynamic_registration" yaml:"dynamic_registration"`
}

// ServerConfig configures the transports
type ServerConfig struct {
	// stdio, tcp or websocket
	Transport      string   `mapstructure:"transport" toml:"transport" json:"transport" yaml:"transport"`
	TCPAddress     string   `mapstructure:"tcp_address" toml:"tcp_address" json:"tcp_address" yaml:"tcp_address"`
	WSAddress      string   `mapstructure:"ws_address" toml:"ws_address" json:"ws_address" yaml:"ws_address"`
	// Origin prefixes accepted by the WebSocket endpoint
	AllowedOrigins []string `mapstructure:"allowed_origins" toml:"allowed_origins" json:"allowed_origins" yaml:"allowed_origins"`
}

// LogConfig configures logging
type LogConfig struct {
	JSON      bool `mapstructure:"json" toml:"json" json:"json" yaml:"json"`
	Verbosity int  `mapstructure:"verbosity" toml:"verbosity" json:"verbosity" yaml:"verbosity"`
}

// Transports
const (
	TransportStdio     = "stdio"
	TransportTCP       = "tcp"
	TransportWebSocket = "websocket"
)
