package observability

import (
	"net/http"
	"runtime/debug"
)

// RecoverPanic recovers from a panic and logs it with structured logging.
// Call it in a defer statement. The panic is not re-raised.
//
//	func worker() {
//	    defer observability.RecoverPanic(logger, "expiry sweep")
//	    // ...
//	}
func RecoverPanic(logger *Logger, context string) {
	if r := recover(); r != nil {
		logPanic(logger, context, r)
	}
}

func logPanic(logger *Logger, context string, r interface{}) {
	logger.WithField("panic", r).
		WithField("stack", string(debug.Stack())).
		WithField("context", context).
		Error("PANIC recovered")
}

// RecoveryMiddleware turns a handler panic into a logged 500 response
func RecoveryMiddleware(logger *Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logPanic(logger, r.Method+" "+r.URL.Path, rec)
					http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
