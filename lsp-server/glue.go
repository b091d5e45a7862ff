package lspserver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"reflect"
	"strings"

	"github.com/sourcegraph/jsonrpc2"
	"go.uber.org/zap"
)

// Method handles the raw params of one JSON-RPC message. The result is
// ignored for notifications.
type Method func(ctx context.Context, conn jsonrpc2.JSONRPC2, params json.RawMessage) (interface{}, error)
type MethodMap map[string]Method

type stdrwc struct{}

func (stdrwc) Read(p []byte) (int, error) {
	return os.Stdin.Read(p)
}

func (stdrwc) Write(p []byte) (int, error) {
	return os.Stdout.Write(p)
}

func (stdrwc) Close() error {
	if err := os.Stdin.Close(); err != nil {
		return err
	}
	return os.Stdout.Close()
}

// Stdio is the process's stdin and stdout as one stream.
func Stdio() io.ReadWriteCloser {
	return stdrwc{}
}

var (
	ctxType   = reflect.TypeOf((*context.Context)(nil)).Elem()
	connType  = reflect.TypeOf((*jsonrpc2.JSONRPC2)(nil)).Elem()
	errorType = reflect.TypeOf((*error)(nil)).Elem()
)

// Zu adapts a typed handler into a Method. fn must look like one of
//
//	func(ctx context.Context, conn jsonrpc2.JSONRPC2, params T)
//	func(ctx context.Context, conn jsonrpc2.JSONRPC2, params T) error
//	func(ctx context.Context, conn jsonrpc2.JSONRPC2, params T) (R, error)
//
// Params that fail to decode are answered with InvalidParams.
func Zu(fn interface{}) Method {
	val := reflect.ValueOf(fn)
	typ := val.Type()
	if typ.Kind() != reflect.Func || typ.NumIn() != 3 || typ.In(0) != ctxType || typ.In(1) != connType {
		panic(fmt.Sprintf("lspserver: bad handler signature %s", typ))
	}
	switch typ.NumOut() {
	case 0:
	case 1, 2:
		if typ.Out(typ.NumOut()-1) != errorType {
			panic(fmt.Sprintf("lspserver: handler %s must return error last", typ))
		}
	default:
		panic("unknown arity of return")
	}

	in := typ.In(2)
	return func(ctx context.Context, conn jsonrpc2.JSONRPC2, params json.RawMessage) (interface{}, error) {
		v := reflect.New(in)
		if len(params) > 0 && string(params) != "null" {
			if err := json.Unmarshal(params, v.Interface()); err != nil {
				return nil, &jsonrpc2.Error{Code: jsonrpc2.CodeInvalidParams, Message: err.Error()}
			}
		}

		ret := val.Call([]reflect.Value{reflect.ValueOf(ctx), reflect.ValueOf(&conn).Elem(), v.Elem()})
		switch len(ret) {
		case 0: // notification
			return nil, nil
		case 1:
			err, _ := ret[0].Interface().(error)
			return nil, err
		default:
			if err, _ := ret[1].Interface().(error); err != nil {
				return nil, err
			}
			return ret[0].Interface(), nil
		}
	}
}

// Handler dispatches requests by method name. Unknown requests are answered
// with MethodNotFound, unknown notifications are dropped.
func Handler(methods MethodMap, logger *zap.Logger) jsonrpc2.Handler {
	return jsonrpc2.HandlerWithError(func(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) (interface{}, error) {
		v, ok := methods[req.Method]
		if !ok {
			if req.Notif {
				if !strings.HasPrefix(req.Method, "$/") {
					logger.Debug("dropping unhandled notification", zap.String("method", req.Method))
				}
				return nil, nil
			}
			return nil, &jsonrpc2.Error{Code: jsonrpc2.CodeMethodNotFound, Message: "method not found: " + req.Method}
		}

		var params json.RawMessage
		if req.Params != nil {
			params = *req.Params
		}

		result, err := v(ctx, conn, params)
		if err != nil {
			logger.Debug("handler failed", zap.String("method", req.Method), zap.Error(err))
		}
		return result, err
	})
}

// Serve runs methods over rwc and returns the connection. Wait on
// DisconnectNotify to block until the peer goes away.
func Serve(ctx context.Context, rwc io.ReadWriteCloser, methods MethodMap, logger *zap.Logger) *jsonrpc2.Conn {
	if logger == nil {
		logger = zap.NewNop()
	}
	return jsonrpc2.NewConn(ctx, jsonrpc2.NewBufferedStream(rwc, jsonrpc2.VSCodeObjectCodec{}), Handler(methods, logger))
}
