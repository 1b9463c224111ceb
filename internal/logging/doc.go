// Package logging provides structured logging for newsrag.
//
// The Logger wraps zap with context-aware methods that attach trace and
// request correlation fields automatically:
//
//	logger, err := logging.NewLogger(logging.NewDefaultConfig(), nil)
//	if err != nil {
//		return err
//	}
//	defer logger.Sync()
//
//	ctx = logging.WithRequestID(ctx, "req-42")
//	logger.Info(ctx, "answer served", zap.String("outcome", "answered"))
//
// Components that only need a *zap.Logger receive logger.Underlying().
// Stdout output passes through a redacting encoder so API keys never reach
// log sinks, and sub-error levels are sampled.
package logging
