package querycache

// Fields carries structured key/value pairs attached to a log line.
type Fields map[string]any

// Logger is the leveled logging surface used by the cache. Adapters for zap,
// logrus and slog live under log/. A nil Options.Logger disables logging.
//
// Implementations MUST be cheap and non-blocking: most calls happen while the
// cache lock is held, so a slow sink stalls every key. Buffer or sample in the
// adapter when the backend can block.
type Logger interface {
	Debug(msg string, f Fields)
	Info(msg string, f Fields)
	Warn(msg string, f Fields)
	Error(msg string, f Fields)
}

type NopLogger struct{}

func (NopLogger) Debug(string, Fields) {}
func (NopLogger) Info(string, Fields)  {}
func (NopLogger) Warn(string, Fields)  {}
func (NopLogger) Error(string, Fields) {}
