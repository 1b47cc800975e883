package logging

import (
	ojs "github.com/openjobspec/ojs-jobtrace"
	"go.uber.org/zap"
)

// ErrorHandler reports errors that must not interrupt job processing,
// such as carrier codec and instrumentation failures, as warnings.
// It also satisfies otel.ErrorHandler.
func ErrorHandler(logger *zap.Logger) ojs.ErrorHandler {
	logger = logger.WithOptions(zap.AddCallerSkip(1))
	return ojs.ErrorHandlerFunc(func(err error) {
		logger.Warn("instrumentation error", zap.Error(err))
	})
}
