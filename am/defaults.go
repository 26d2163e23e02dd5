package am

import (
	"github.com/spf13/viper"
)

// Default values
const (
	DefaultTCPAddress   = "127.0.0.1:7997"
	DefaultWSAddress    = "127.0.0.1:7998"
	DefaultMaxDocuments = 100
)

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	// Language features
	v.SetDefault("lsp.extensions", []string{".p8", ".lua"})
	v.SetDefault("lsp.language_ids", []string{"pico8", "lua"})
	v.SetDefault("lsp.max_documents", DefaultMaxDocuments)
	v.SetDefault("lsp.dynamic_registration", true)

	// Transports
	v.SetDefault("server.transport", TransportStdio)
	v.SetDefault("server.tcp_address", DefaultTCPAddress)
	v.SetDefault("server.ws_address", DefaultWSAddress)
	v.SetDefault("server.allowed_origins", []string{
		"http://localhost",
		"https://localhost",
		"http://127.0.0.1",
		"vscode-webview://",
	})

	// Logging: quiet by default, stderr is an editor output pane
	v.SetDefault("log.json", false)
	v.SetDefault("log.verbosity", 0)

	v.SetDefault("watch", true)
}

// BindEnvVars binds keys whose environment names do not follow the
// P8LS_SECTION_KEY pattern
func BindEnvVars(v *viper.Viper) {
	_ = v.BindEnv("log.verbosity", "P8LS_LOG_VERBOSITY", "P8LS_VERBOSE")
	_ = v.BindEnv("server.transport", "P8LS_SERVER_TRANSPORT", "P8LS_TRANSPORT")
}
