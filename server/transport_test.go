package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sourcegraph/jsonrpc2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teranos/p8ls/lsp"
	"go.uber.org/zap"
)

func setupServer(t *testing.T) *LSPServer {
	t.Helper()
	svc := lsp.NewService(nil, nil)
	return New(svc, svc, Options{
		Handler:    DefaultHandlerOptions(),
		TCPAddress: "127.0.0.1:0",
		WSAddress:  "127.0.0.1:0",
	})
}

func textDocument(uri string) map[string]interface{} {
	return map[string]interface{}{"uri": uri}
}

// dialClient connects a JSON-RPC client over stream. Server-to-client requests
// are delivered on the returned channel and answered with null.
func dialClient(ctx context.Context, stream net.Conn) (*jsonrpc2.Conn, <-chan *jsonrpc2.Request) {
	requests := make(chan *jsonrpc2.Request, 4)
	conn := jsonrpc2.NewConn(ctx,
		jsonrpc2.NewBufferedStream(stream, jsonrpc2.VSCodeObjectCodec{}),
		jsonrpc2.HandlerWithError(func(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) (interface{}, error) {
			requests <- req
			return nil, nil
		}),
	)
	return conn, requests
}

// TestServeStreamLifecycle drives a full session over an in-memory stream:
// initialize with dynamic registration → initialized → didOpen → completion → hover → shutdown → exit
func TestServeStreamLifecycle(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	serverSide, clientSide := net.Pipe()
	h := setupHandler(t, DefaultHandlerOptions())

	served := make(chan struct{})
	go func() {
		ServeStream(ctx, serverSide, h.ProtocolHandler(), zap.NewNop().Sugar())
		close(served)
	}()

	client, requests := dialClient(ctx, clientSide)
	defer client.Close()

	// Requests before initialize are rejected
	var early interface{}
	err := client.Call(ctx, "textDocument/completion", map[string]interface{}{
		"textDocument": textDocument("file:///game.p8"),
		"position":     map[string]interface{}{"line": 0, "character": 0},
	}, &early)
	var rpcErr *jsonrpc2.Error
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, int64(jsonrpc2.CodeInvalidRequest), rpcErr.Code)

	// 1. initialize
	var initResult map[string]interface{}
	require.NoError(t, client.Call(ctx, "initialize", map[string]interface{}{
		"processId":  nil,
		"clientInfo": map[string]interface{}{"name": "TestClient", "version": "1.0"},
		"capabilities": map[string]interface{}{
			"textDocument": map[string]interface{}{
				"completion": map[string]interface{}{"dynamicRegistration": true},
				"hover":      map[string]interface{}{"dynamicRegistration": true},
			},
		},
	}, &initResult))

	capabilities := initResult["capabilities"].(map[string]interface{})
	assert.Nil(t, capabilities["completionProvider"])
	assert.Nil(t, capabilities["hoverProvider"])
	assert.NotNil(t, capabilities["textDocumentSync"])
	assert.Equal(t, "p8ls", initResult["serverInfo"].(map[string]interface{})["name"])

	// 2. initialized triggers client/registerCapability
	require.NoError(t, client.Notify(ctx, "initialized", map[string]interface{}{}))
	select {
	case req := <-requests:
		assert.Equal(t, "client/registerCapability", req.Method)
		var params struct {
			Registrations []struct {
				Method          string `json:"method"`
				RegisterOptions struct {
					DocumentSelector []struct {
						Language string `json:"language"`
					} `json:"documentSelector"`
				} `json:"registerOptions"`
			} `json:"registrations"`
		}
		require.NoError(t, json.Unmarshal(*req.Params, &params))
		require.Len(t, params.Registrations, 2)
		assert.Equal(t, "textDocument/completion", params.Registrations[0].Method)
		assert.Equal(t, "textDocument/hover", params.Registrations[1].Method)
		assert.Equal(t, "pico8", params.Registrations[1].RegisterOptions.DocumentSelector[0].Language)
	case <-ctx.Done():
		t.Fatal("expected client/registerCapability request")
	}

	// 3. didOpen
	require.NoError(t, client.Notify(ctx, "textDocument/didOpen", map[string]interface{}{
		"textDocument": map[string]interface{}{
			"uri":        "file:///carts/game.p8",
			"languageId": "pico8",
			"version":    1,
			"text":       "function _draw()\n  circfill(64, 64, 8, 7)\nend",
		},
	}))

	// 4. completion
	var items []map[string]interface{}
	require.NoError(t, client.Call(ctx, "textDocument/completion", map[string]interface{}{
		"textDocument": textDocument("file:///carts/game.p8"),
		"position":     map[string]interface{}{"line": 1, "character": 3},
	}, &items))
	require.Len(t, items, 12)
	assert.Equal(t, "_init", items[0]["label"])
	assert.Equal(t, float64(2), items[0]["insertTextFormat"])
	assert.Equal(t, "print", items[11]["label"])

	// 5. hover
	var hover map[string]interface{}
	require.NoError(t, client.Call(ctx, "textDocument/hover", map[string]interface{}{
		"textDocument": textDocument("file:///carts/game.p8"),
		"position":     map[string]interface{}{"line": 1, "character": 4},
	}, &hover))
	contents := hover["contents"].(map[string]interface{})
	assert.Equal(t, "markdown", contents["kind"])
	assert.Contains(t, contents["value"], "Draw filled circle")

	// Unsupported methods are reported, not ignored
	var def interface{}
	err = client.Call(ctx, "textDocument/definition", map[string]interface{}{
		"textDocument": textDocument("file:///carts/game.p8"),
		"position":     map[string]interface{}{"line": 0, "character": 0},
	}, &def)
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, int64(jsonrpc2.CodeMethodNotFound), rpcErr.Code)

	// 6. shutdown and exit
	var shutdown interface{}
	require.NoError(t, client.Call(ctx, "shutdown", nil, &shutdown))
	assert.False(t, h.Active())
	require.NoError(t, client.Notify(ctx, "exit", nil))

	select {
	case <-served:
	case <-ctx.Done():
		t.Fatal("server did not close the stream after exit")
	}
}

func TestServeTCP(t *testing.T) {
	srv := setupServer(t)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() {
		served <- srv.ServeTCP(ctx, listener)
	}()

	conn, err := net.Dial("tcp", listener.Addr().String())
	require.NoError(t, err)

	client, _ := dialClient(ctx, conn)

	var initResult map[string]interface{}
	require.NoError(t, client.Call(ctx, "initialize", map[string]interface{}{
		"capabilities": map[string]interface{}{},
	}, &initResult))
	capabilities := initResult["capabilities"].(map[string]interface{})
	assert.NotNil(t, capabilities["completionProvider"])
	assert.NotNil(t, capabilities["hoverProvider"])

	assert.Eventually(t, func() bool { return srv.Connections() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, client.Close())
	assert.Eventually(t, func() bool { return srv.Connections() == 0 }, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-served:
		assert.NoError(t, err)
	case <-time.After(ShutdownTimeout + time.Second):
		t.Fatal("ServeTCP did not return after cancellation")
	}
}

// TestGLSPWebSocketLifecycle tests the LSP lifecycle over the WebSocket endpoint
func TestGLSPWebSocketLifecycle(t *testing.T) {
	srv := setupServer(t)

	testServer := httptest.NewServer(srv.Routes())
	defer testServer.Close()

	wsURL := "ws" + strings.TrimPrefix(testServer.URL, "http") + "/lsp"

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	request := func(id int, method string, params interface{}) map[string]interface{} {
		t.Helper()
		require.NoError(t, conn.WriteJSON(map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      id,
			"method":  method,
			"params":  params,
		}))
		var response map[string]interface{}
		require.NoError(t, conn.ReadJSON(&response))
		assert.Equal(t, float64(id), response["id"])
		return response
	}
	notify := func(method string, params interface{}) {
		t.Helper()
		require.NoError(t, conn.WriteJSON(map[string]interface{}{
			"jsonrpc": "2.0",
			"method":  method,
			"params":  params,
		}))
	}

	initResponse := request(1, "initialize", map[string]interface{}{
		"processId":    nil,
		"capabilities": map[string]interface{}{},
	})
	result := initResponse["result"].(map[string]interface{})
	capabilities := result["capabilities"].(map[string]interface{})
	assert.NotNil(t, capabilities["completionProvider"])
	assert.NotNil(t, capabilities["hoverProvider"])

	notify("initialized", map[string]interface{}{})
	notify("textDocument/didOpen", map[string]interface{}{
		"textDocument": map[string]interface{}{
			"uri":        "file:///carts/jump.lua",
			"languageId": "lua",
			"version":    1,
			"text":       "if btnp(4) then vy = -3 end",
		},
	})

	completion := request(2, "textDocument/completion", map[string]interface{}{
		"textDocument": textDocument("file:///carts/jump.lua"),
		"position":     map[string]interface{}{"line": 0, "character": 0},
	})
	assert.Len(t, completion["result"], 12)

	gated := request(3, "textDocument/completion", map[string]interface{}{
		"textDocument": textDocument("file:///carts/jump.py"),
		"position":     map[string]interface{}{"line": 0, "character": 0},
	})
	assert.Empty(t, gated["result"])

	hover := request(4, "textDocument/hover", map[string]interface{}{
		"textDocument": textDocument("file:///carts/jump.lua"),
		"position":     map[string]interface{}{"line": 0, "character": 5},
	})
	value := hover["result"].(map[string]interface{})["contents"].(map[string]interface{})["value"]
	assert.Contains(t, value, "**btnp(b, [pl])**")

	missing := request(5, "textDocument/hover", map[string]interface{}{
		"textDocument": textDocument("file:///carts/jump.lua"),
		"position":     map[string]interface{}{"line": 0, "character": 17},
	})
	assert.Nil(t, missing["result"])

	shutdown := request(6, "shutdown", nil)
	assert.Nil(t, shutdown["error"])
}

func TestGLSPWebSocketConcurrentClients(t *testing.T) {
	srv := setupServer(t)

	testServer := httptest.NewServer(srv.Routes())
	defer testServer.Close()

	wsURL := "ws" + strings.TrimPrefix(testServer.URL, "http") + "/lsp"

	const numClients = 3
	connections := make([]*websocket.Conn, numClients)
	for i := range connections {
		conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
		require.NoError(t, err)
		defer conn.Close()
		connections[i] = conn

		require.NoError(t, conn.WriteJSON(map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      1,
			"method":  "initialize",
			"params":  map[string]interface{}{"capabilities": map[string]interface{}{}},
		}))
		var response map[string]interface{}
		require.NoError(t, conn.ReadJSON(&response))
		require.NotNil(t, response["result"])
	}

	assert.Eventually(t, func() bool { return srv.Connections() == numClients }, time.Second, 10*time.Millisecond)

	// Each connection has its own document cache
	for i, conn := range connections {
		require.NoError(t, conn.WriteJSON(map[string]interface{}{
			"jsonrpc": "2.0",
			"method":  "textDocument/didOpen",
			"params": map[string]interface{}{
				"textDocument": map[string]interface{}{
					"uri":        "file:///shared.p8",
					"languageId": "pico8",
					"version":    1,
					"text":       []string{"cls()", "pset(1,1)", "flr(x)"}[i],
				},
			},
		}))
	}

	want := []string{"**cls([col])**", "**pset(x, y, [col])**", "**flr(x)**"}
	for i, conn := range connections {
		require.NoError(t, conn.WriteJSON(map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      2,
			"method":  "textDocument/hover",
			"params": map[string]interface{}{
				"textDocument": textDocument("file:///shared.p8"),
				"position":     map[string]interface{}{"line": 0, "character": 1},
			},
		}))
		var response map[string]interface{}
		require.NoError(t, conn.ReadJSON(&response))
		value := response["result"].(map[string]interface{})["contents"].(map[string]interface{})["value"]
		assert.Contains(t, value, want[i], "client %d", i)
	}
}

func TestGLSPWebSocketRejectsForeignOrigin(t *testing.T) {
	srv := setupServer(t)
	srv.SetAllowedOrigins([]string{"http://localhost", "vscode-webview://"})

	testServer := httptest.NewServer(srv.Routes())
	defer testServer.Close()

	wsURL := "ws" + strings.TrimPrefix(testServer.URL, "http") + "/lsp"

	header := http.Header{"Origin": []string{"https://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	header = http.Header{"Origin": []string{"vscode-webview://abc123"}}
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, header)
	require.NoError(t, err)
	conn.Close()
}

func TestCheckOrigin(t *testing.T) {
	srv := setupServer(t)

	tests := []struct {
		name    string
		allowed []string
		origin  string
		want    bool
	}{
		{"no origin header", nil, "", true},
		{"localhost default", nil, "http://localhost:5173", true},
		{"loopback default", nil, "http://127.0.0.1:8080", true},
		{"foreign default", nil, "https://example.com", false},
		{"configured prefix", []string{"https://play.example"}, "https://play.example:443", true},
		{"configured excludes localhost", []string{"https://play.example"}, "http://localhost:5173", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv.SetAllowedOrigins(tt.allowed)
			r := httptest.NewRequest(http.MethodGet, "/lsp", nil)
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			assert.Equal(t, tt.want, srv.checkOrigin(r))
		})
	}
}

func TestHandleHealth(t *testing.T) {
	srv := setupServer(t)

	rec := httptest.NewRecorder()
	srv.HandleHealth(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var health HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "ok", health.Status)
	assert.NotEmpty(t, health.Version)
	assert.Zero(t, health.Connections)

	rec = httptest.NewRecorder()
	srv.HandleHealth(rec, httptest.NewRequest(http.MethodPost, "/healthz", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
