package svc

import (
	"context"
	"time"

	"github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/logging"
	"github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/recovery"
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

// zapLogger adapts *zap.SugaredLogger to the interceptor chain's Logger
// interface, the same bridge idiom the teacher's Temporal client wrapper
// uses for its own logger adapter.
type zapLogger struct {
	sugar *zap.SugaredLogger
}

func (l zapLogger) Log(ctx context.Context, level logging.Level, msg string, fields ...any) {
	switch level {
	case logging.LevelDebug:
		l.sugar.Debugw(msg, fields...)
	case logging.LevelWarn:
		l.sugar.Warnw(msg, fields...)
	case logging.LevelError:
		l.sugar.Errorw(msg, fields...)
	default:
		l.sugar.Infow(msg, fields...)
	}
}

// unaryInterceptorChain returns the logging + panic-recovery interceptor
// chain every unary RPC runs through.
func unaryInterceptorChain(logger *zap.SugaredLogger) grpc.ServerOption {
	zl := zapLogger{sugar: logger}
	return grpc.ChainUnaryInterceptor(
		logging.UnaryServerInterceptor(zl, logging.WithDurationField(func(d time.Duration) logging.Fields {
			return logging.Fields{"duration_ms", d.Milliseconds()}
		})),
		recovery.UnaryServerInterceptor(),
	)
}
