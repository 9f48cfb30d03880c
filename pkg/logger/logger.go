package logger

// Level is the severity threshold of a Logger.
type Level int8

const (
	Disabled   Level = -1
	TraceLevel Level = iota
	DebugLevel
	InfoLevel
	WarnLevel
	ErrorLevel
	FatalLevel
)

// Logger is the logging surface every component receives through its
// constructor. Implementations are expected to be safe for concurrent use.
type Logger interface {
	WithField(key string, value any) Logger
	WithFields(fields map[string]any) Logger
	WithError(err error) Logger

	Trace(args ...any)
	Debug(args ...any)
	Info(args ...any)
	Warn(args ...any)
	Error(args ...any)
	Fatal(args ...any)

	Tracef(format string, args ...any)
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
	Fatalf(format string, args ...any)

	SetLevel(level Level)
	GetLevel() Level
}

// Nop returns a logger that discards everything. Used in tests.
func Nop() Logger { return nopLogger{} }

type nopLogger struct{}

func (nopLogger) WithField(string, any) Logger       { return nopLogger{} }
func (nopLogger) WithFields(map[string]any) Logger   { return nopLogger{} }
func (nopLogger) WithError(error) Logger             { return nopLogger{} }
func (nopLogger) Trace(...any)                       {}
func (nopLogger) Debug(...any)                       {}
func (nopLogger) Info(...any)                        {}
func (nopLogger) Warn(...any)                        {}
func (nopLogger) Error(...any)                       {}
func (nopLogger) Fatal(...any)                       {}
func (nopLogger) Tracef(string, ...any)              {}
func (nopLogger) Debugf(string, ...any)              {}
func (nopLogger) Infof(string, ...any)               {}
func (nopLogger) Warnf(string, ...any)               {}
func (nopLogger) Errorf(string, ...any)              {}
func (nopLogger) Fatalf(string, ...any)              {}
func (nopLogger) SetLevel(Level)                     {}
func (nopLogger) GetLevel() Level                    { return Disabled }
