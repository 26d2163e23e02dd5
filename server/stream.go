package server

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/sourcegraph/jsonrpc2"
	"github.com/teranos/p8ls/logger"
	"github.com/tliron/glsp"
	"go.uber.org/zap"
)

// ServeStream serves one LSP client over a byte stream using the
// Content-Length framed codec. It blocks until the stream is closed or ctx is
// cancelled.
func ServeStream(ctx context.Context, stream io.ReadWriteCloser, handler glsp.Handler, log *zap.SugaredLogger) {
	conn := jsonrpc2.NewConn(ctx,
		jsonrpc2.NewBufferedStream(stream, jsonrpc2.VSCodeObjectCodec{}),
		jsonrpc2.HandlerWithError(dispatch(handler, log)).SuppressErrClosed(),
		connOptions(log)...,
	)

	select {
	case <-conn.DisconnectNotify():
	case <-ctx.Done():
		_ = conn.Close() // Error ignored: the stream is being torn down
	}
}

func dispatch(handler glsp.Handler, log *zap.SugaredLogger) func(context.Context, *jsonrpc2.Conn, *jsonrpc2.Request) (any, error) {
	return func(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) (any, error) {
		glspContext := glsp.Context{
			Method: req.Method,
			Notify: func(method string, params any) {
				if err := conn.Notify(ctx, method, params); err != nil {
					log.Warnw("Notification failed", logger.FieldMethod, method, logger.FieldError, err)
				}
			},
			Call: func(method string, params any, result any) {
				if err := conn.Call(ctx, method, params, result); err != nil {
					log.Warnw("Client call failed", logger.FieldMethod, method, logger.FieldError, err)
				}
			},
		}
		if req.Params != nil {
			glspContext.Params = *req.Params
		}

		if req.Method == "exit" {
			// Result is irrelevant; the connection ends either way
			handler.Handle(&glspContext)
			return nil, conn.Close()
		}

		r, validMethod, validParams, err := handler.Handle(&glspContext)
		switch {
		case !validMethod:
			return nil, &jsonrpc2.Error{
				Code:    jsonrpc2.CodeMethodNotFound,
				Message: fmt.Sprintf("method not supported: %s", req.Method),
			}
		case !validParams:
			rpcErr := &jsonrpc2.Error{Code: jsonrpc2.CodeInvalidParams}
			if err != nil {
				rpcErr.Message = err.Error()
			}
			return nil, rpcErr
		case err != nil:
			return nil, &jsonrpc2.Error{
				Code:    jsonrpc2.CodeInvalidRequest,
				Message: err.Error(),
			}
		}
		return r, nil
	}
}

func connOptions(log *zap.SugaredLogger) []jsonrpc2.ConnOpt {
	opts := []jsonrpc2.ConnOpt{jsonrpc2.SetLogger(rpcLogger{log})}
	if logger.ShouldLogTrace(logger.Verbosity) {
		opts = append(opts, jsonrpc2.LogMessages(rpcLogger{log}))
	}
	return opts
}

// rpcLogger adapts zap to jsonrpc2's Printf logger
type rpcLogger struct {
	log *zap.SugaredLogger
}

func (l rpcLogger) Printf(format string, v ...any) {
	l.log.Debug(strings.TrimRight(fmt.Sprintf(format, v...), "\n"))
}
