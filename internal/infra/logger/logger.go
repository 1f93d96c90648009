package logger

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"
)

// Config selects the logger's mode. Development builds a colorized
// console logger; production emits JSON.
type Config struct {
	Development bool
	Level       string
}

var (
	mu     sync.Mutex
	global *zap.Logger
)

// MustInit builds the process logger and stores it globally. Call once
// from main; a bad level string is a startup failure.
func MustInit(cfg Config) *zap.Logger {
	l, err := New(cfg)
	if err != nil {
		panic(err)
	}

	mu.Lock()
	defer mu.Unlock()
	if global != nil {
		_ = global.Sync()
	}
	global = l
	return l
}

// L returns the global logger; before MustInit it is a nop.
func L() *zap.Logger {
	mu.Lock()
	defer mu.Unlock()
	if global == nil {
		global = zap.NewNop()
	}
	return global
}

// Sync flushes buffered entries. Errors from non-file stdout (a closed
// terminal, a pipe) are not actionable and are swallowed.
func Sync() error {
	mu.Lock()
	l := global
	mu.Unlock()
	if l == nil {
		return nil
	}

	if err := l.Sync(); err != nil &&
		!errors.Is(err, syscall.ENOTTY) && !errors.Is(err, syscall.EINVAL) {
		return err
	}
	return nil
}

// New builds a logger without touching the global.
func New(cfg Config) (*zap.Logger, error) {
	var zapCfg zap.Config
	if cfg.Development {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig = consoleEncoderConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
		zapCfg.EncoderConfig.TimeKey = "time"
		zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	if cfg.Level != "" {
		var level zapcore.Level
		if err := level.UnmarshalText([]byte(strings.ToLower(cfg.Level))); err != nil {
			return nil, fmt.Errorf("logger: invalid level %q: %w", cfg.Level, err)
		}
		zapCfg.Level = zap.NewAtomicLevelAt(level)
	}

	return zapCfg.Build(zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
}

func consoleEncoderConfig() zapcore.EncoderConfig {
	cfg := zap.NewDevelopmentEncoderConfig()
	cfg.ConsoleSeparator = "  "
	cfg.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(t.Format("15:04:05.000"))
	}
	if stdoutIsTerminal() {
		cfg.EncodeLevel = colorLevelEncoder
	} else {
		cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	}
	return cfg
}

func stdoutIsTerminal() bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	return term.IsTerminal(int(os.Stdout.Fd()))
}

const ansiReset = "\x1b[0m"

var levelColors = map[zapcore.Level]string{
	zapcore.DebugLevel: "\x1b[36m", // cyan
	zapcore.InfoLevel:  "\x1b[32m", // green
	zapcore.WarnLevel:  "\x1b[33m", // yellow
	zapcore.ErrorLevel: "\x1b[31m", // red
	zapcore.FatalLevel: "\x1b[35m", // magenta
}

func colorLevelEncoder(level zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	label := fmt.Sprintf("%-5s", strings.ToUpper(level.String()))
	if color, ok := levelColors[level]; ok {
		enc.AppendString(color + label + ansiReset)
		return
	}
	enc.AppendString(label)
}
