package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path"
	"runtime"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

var (
	DurationAsString   = true
	RawFieldName       = "raw"
	DataFieldName      = "data"
	DurationFieldName  = "dur"
	DurationsFieldName = "durs"
	ErrorsFieldName    = "errors"

	EmptyMessage = ""
)

// JSON Tag a byte slice as being a JSON document
type JSON []byte

type Builder func(event *zerolog.Event)

// Options configures a Logger.
type Options struct {
	// Output defaults to os.Stderr.
	Output io.Writer
	// Level is the minimum level written; the zero value is zerolog.DebugLevel.
	Level zerolog.Level
	// JSON selects line-delimited JSON instead of the console writer.
	JSON bool
	// NoColor disables ANSI colors on the console writer.
	NoColor bool
	// Caller adds the file:line of the log call site.
	Caller bool
}

// Logger is a leveled structured logger. The zero value is not usable; build
// one with New or Nop. A Logger is safe for concurrent use.
type Logger struct {
	zl     zerolog.Logger
	caller bool
}

func init() {
	setCallerFormatter()

	// Use GCP cloud logging naming
	zerolog.LevelFieldName = "severity"
	zerolog.LevelFieldMarshalFunc = func(l zerolog.Level) string {
		switch l {
		case zerolog.TraceLevel:
			return "DEFAULT"
		case zerolog.DebugLevel:
			return "DEBUG"
		case zerolog.InfoLevel:
			return "INFO"
		case zerolog.NoLevel:
			return "NOTICE"
		case zerolog.WarnLevel:
			return "WARN"
		case zerolog.ErrorLevel:
			return "ERROR"
		case zerolog.PanicLevel:
			return "CRITICAL"
		case zerolog.FatalLevel:
			return "EMERGENCY"
		default:
			return "DEFAULT"
		}
	}
}

func setCallerFormatter() {
	_, file, _, _ := runtime.Caller(0)
	prefix := path.Dir(path.Dir(file))
	if len(prefix) > 0 && prefix[len(prefix)-1] != os.PathSeparator {
		prefix += "/"
	}

	zerolog.CallerMarshalFunc = func(file string, line int) string {
		if prefix == "" {
			return fmt.Sprintf("%s:%d", file, line)
		}
		index := strings.Index(file, prefix)
		if index > -1 {
			file = file[index+len(prefix):]
		}
		return fmt.Sprintf("%s:%d", file, line)
	}
}

// New returns a Logger writing to opts.Output.
func New(opts Options) *Logger {
	w := opts.Output
	if w == nil {
		w = os.Stderr
	}
	var zl zerolog.Logger
	if opts.JSON {
		zl = zerolog.New(w)
	} else {
		zl = zerolog.New(newConsoleWriter(w, opts.NoColor))
	}
	return &Logger{zl: zl.Level(opts.Level), caller: opts.Caller}
}

// Wrap adopts an existing zerolog.Logger.
func Wrap(zl zerolog.Logger) *Logger {
	return &Logger{zl: zl}
}

// Nop returns a Logger that discards everything.
func Nop() *Logger {
	return &Logger{zl: zerolog.Nop()}
}

// OrNop returns l, or a discarding Logger when l is nil.
func OrNop(l *Logger) *Logger {
	if l == nil {
		return Nop()
	}
	return l
}

// Zerolog exposes the underlying zerolog.Logger.
func (l *Logger) Zerolog() *zerolog.Logger {
	return &l.zl
}

// With returns a child Logger that carries the key/value pairs on every line.
func (l *Logger) With(keyvals ...interface{}) *Logger {
	ctx := l.zl.With()
	for i := 0; i+1 < len(keyvals); i += 2 {
		k, ok := keyvals[i].(string)
		if !ok {
			continue
		}
		switch v := keyvals[i+1].(type) {
		case string:
			ctx = ctx.Str(k, v)
		case int:
			ctx = ctx.Int(k, v)
		case int64:
			ctx = ctx.Int64(k, v)
		case bool:
			ctx = ctx.Bool(k, v)
		default:
			ctx = ctx.Interface(k, v)
		}
	}
	return &Logger{zl: ctx.Logger(), caller: l.caller}
}

// Enabled reports whether lines at level would be written.
func (l *Logger) Enabled(level zerolog.Level) bool {
	return l.zl.GetLevel() <= level && level != zerolog.Disabled
}

// ParseLevel accepts the level names used on the command line.
func ParseLevel(s string) (zerolog.Level, error) {
	switch strings.ToLower(s) {
	case "trace", "verbose", "verb":
		return zerolog.TraceLevel, nil
	case "debug":
		return zerolog.DebugLevel, nil
	case "info", "notice", "":
		return zerolog.InfoLevel, nil
	case "warn", "warning":
		return zerolog.WarnLevel, nil
	case "error":
		return zerolog.ErrorLevel, nil
	case "quiet", "silent":
		return zerolog.Disabled, nil
	}
	return zerolog.NoLevel, fmt.Errorf("invalid log level: '%s'", s)
}

func appendInterface(event *zerolog.Event, name string, value interface{}) {
	switch v := value.(type) {
	case time.Duration:
		if DurationAsString {
			event.Str(name, v.String())
		} else {
			event.Dur(name, v)
		}
	case JSON:
		event.RawJSON(name, v)
	case json.Marshaler:
		bytes, _ := v.MarshalJSON()
		event.RawJSON(name, bytes)
	default:
		event.Interface(name, value)
	}
}

func (l *Logger) doLog(event *zerolog.Event, args []interface{}) {
	if event == nil {
		return
	}
	event.Timestamp()
	if l.caller {
		event.Caller(3)
	}

	if len(args) == 0 {
		event.Msg(EmptyMessage)
		return
	}

	switch t := args[0].(type) {
	case error:
		event.Err(t)
		args = args[1:]
	}

	for i := 0; i < len(args); i += 2 {
		key := args[i]
		if key == nil {
			// Shift by one
			i -= 1
			continue
		}

		switch k := key.(type) {
		case string:
			// Treat it like a format template?
			if strings.Contains(k, "%") {
				event.Msgf(k, args[i+1:]...)
				return
			}

			valueIndex := i + 1
			// Treat key as message?
			if valueIndex == len(args) {
				event.Msg(k)
				return
			}

			value := args[valueIndex]
			switch v := value.(type) {
			case string:
				event.Str(k, v)
			case time.Time:
				event.Time(k, v)
			case int:
				event.Int(k, v)
			case int32:
				event.Int32(k, v)
			case int64:
				event.Int64(k, v)
			case uint:
				event.Uint(k, v)
			case uint32:
				event.Uint32(k, v)
			case uint64:
				event.Uint64(k, v)
			case float64:
				event.Float64(k, v)
			case bool:
				event.Bool(k, v)
			case error:
				event.AnErr(k, v)
			case []string:
				event.Strs(k, v)
			case time.Duration:
				if DurationAsString {
					event.Str(k, v.String())
				} else {
					event.Dur(k, v)
				}
			case JSON:
				event.RawJSON(k, v)
			case Builder:
				v(event)
			default:
				appendInterface(event, k, v)
			}
			continue

		case error:
			event.Err(k)
		case []error:
			event.Errs(ErrorsFieldName, k)
		case time.Duration:
			if DurationAsString {
				event.Str(DurationFieldName, k.String())
			} else {
				event.Dur(DurationFieldName, k)
			}
		case []byte:
			event.Bytes(RawFieldName, k)
		case JSON:
			event.RawJSON(DataFieldName, k)
		case Builder:
			k(event)
		default:
			appendInterface(event, DataFieldName, k)
		}
		i -= 1
	}

	event.Msg(EmptyMessage)
}

// Trace logs a message at level Trace.
func (l *Logger) Trace(args ...interface{}) {
	l.doLog(l.zl.Trace(), args)
}

// Debug logs a message at level Debug.
func (l *Logger) Debug(args ...interface{}) {
	l.doLog(l.zl.Debug(), args)
}

// Info logs a message at level Info.
func (l *Logger) Info(args ...interface{}) {
	l.doLog(l.zl.Info(), args)
}

// Notice logs at Info level with a NOTICE severity.
func (l *Logger) Notice(args ...interface{}) {
	if l.zl.GetLevel() > zerolog.InfoLevel {
		return
	}
	l.doLog(l.zl.Log().Str(zerolog.LevelFieldName, "NOTICE"), args)
}

// Warn logs a message at level Warn.
func (l *Logger) Warn(args ...interface{}) {
	l.doLog(l.zl.Warn(), args)
}

// WarnErr logs err at level Warn.
func (l *Logger) WarnErr(err error, args ...interface{}) {
	e := l.zl.Warn()
	if e != nil {
		e.Err(err)
	}
	l.doLog(e, args)
}

// Error logs err at level Error.
func (l *Logger) Error(err error, args ...interface{}) {
	e := l.zl.Error()
	if e != nil {
		e.Err(err)
	}
	l.doLog(e, args)
}

// Fatal logs err at level Fatal then the process will exit with status set to 1.
func (l *Logger) Fatal(err error, args ...interface{}) {
	l.doLog(l.zl.Fatal().Err(err), args)
}
