package utilities

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config controls logger construction. Fields are populated from the
// environment by the service config loader.
type Config struct {
	Level string `env:"LOG_LEVEL" envDefault:"info"`
	Dev   bool   `env:"LOG_DEV"`
	// Dir enables rotated log files (combined + error) next to stdout output.
	Dir    string        `env:"LOG_DIR"`
	MaxAge time.Duration `env:"LOG_MAX_AGE" envDefault:"168h"`
}

func levelFromString(l string) zapcore.Level {
	switch l {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Init initializes and returns a *zap.Logger
func Init(cfg Config) (*zap.Logger, error) {
	lvl := levelFromString(cfg.Level)
	if cfg.Dev && cfg.Dir == "" {
		c := zap.NewDevelopmentConfig()
		c.Level = zap.NewAtomicLevelAt(lvl)
		return c.Build()
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), zapcore.AddSync(os.Stdout), lvl),
	}

	if cfg.Dir != "" {
		fileCores, err := rotatedCores(cfg, encoderCfg, lvl)
		if err != nil {
			return nil, err
		}
		cores = append(cores, fileCores...)
	}

	opts := []zap.Option{zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)}
	return zap.New(zapcore.NewTee(cores...), opts...), nil
}

// rotatedCores writes every entry to combined.<date>.log and error+ entries to error.<date>.log.
func rotatedCores(cfg Config, encoderCfg zapcore.EncoderConfig, lvl zapcore.Level) ([]zapcore.Core, error) {
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	maxAge := cfg.MaxAge
	if maxAge <= 0 {
		maxAge = 7 * 24 * time.Hour
	}

	combined, err := rotatelogs.New(
		filepath.Join(cfg.Dir, "combined.%Y%m%d.log"),
		rotatelogs.WithLinkName(filepath.Join(cfg.Dir, "combined.log")),
		rotatelogs.WithRotationTime(24*time.Hour),
		rotatelogs.WithMaxAge(maxAge),
	)
	if err != nil {
		return nil, fmt.Errorf("open combined log: %w", err)
	}
	errorsOnly, err := rotatelogs.New(
		filepath.Join(cfg.Dir, "error.%Y%m%d.log"),
		rotatelogs.WithLinkName(filepath.Join(cfg.Dir, "error.log")),
		rotatelogs.WithRotationTime(24*time.Hour),
		rotatelogs.WithMaxAge(maxAge),
	)
	if err != nil {
		return nil, fmt.Errorf("open error log: %w", err)
	}

	enc := zapcore.NewJSONEncoder(encoderCfg)
	errLevel := zap.LevelEnablerFunc(func(l zapcore.Level) bool { return l >= zapcore.ErrorLevel && l >= lvl })
	return []zapcore.Core{
		zapcore.NewCore(enc, zapcore.AddSync(combined), lvl),
		zapcore.NewCore(enc.Clone(), zapcore.AddSync(errorsOnly), errLevel),
	}, nil
}
