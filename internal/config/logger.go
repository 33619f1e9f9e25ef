package config

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

const defaultLogFile = "tokenwell.log"

type LogConfig struct {
	Path       string `yaml:"path"`
	MaxSize    int    `yaml:"maxSize"`
	MaxBackups int    `yaml:"maxBackups"`
	MaxAge     int    `yaml:"maxAge"`
	Compress   bool   `yaml:"compress"`
}

// CreateLogger logs to a rotating file when a log file or logger section is
// configured and to stderr otherwise.
func (c *Config) CreateLogger() (*zap.Logger, io.Closer, error) {
	if c.LogFile != "" || c.Logger != nil {
		logger, closer, err := newRotatingFileLogger(c.Debug, c.Logger, c.LogFile)
		return logger, closer, errors.Wrap(err, "create logger")
	}

	var logger *zap.Logger
	var err error
	if c.Debug {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	return logger, io.NopCloser(nil), errors.Wrap(err, "create logger")
}

func newRotatingFileLogger(debug bool, lc *LogConfig, filename string) (*zap.Logger, io.Closer, error) {
	var opts LogConfig
	if lc != nil {
		opts = *lc
	}
	if opts.Path == "" {
		opts.Path = "./logs"
	}
	if opts.MaxSize == 0 {
		opts.MaxSize = 50
	}
	if opts.MaxBackups == 0 {
		opts.MaxBackups = 5
	}
	if opts.MaxAge == 0 {
		opts.MaxAge = 14
	}
	if err := os.MkdirAll(opts.Path, 0o755); err != nil {
		return nil, nil, err
	}
	if filename == "" {
		filename = defaultLogFile
	}

	rot := &lumberjack.Logger{
		Filename:   filepath.Join(opts.Path, filename),
		MaxSize:    opts.MaxSize,
		MaxBackups: opts.MaxBackups,
		MaxAge:     opts.MaxAge,
		Compress:   opts.Compress,
	}

	encCfg := zap.NewProductionEncoderConfig()
	level := zap.InfoLevel
	if debug {
		encCfg = zap.NewDevelopmentEncoderConfig()
		level = zap.DebugLevel
	}
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.TimeEncoderOfLayout(time.RFC3339)

	core := zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(rot), level)
	return zap.New(core, zap.AddCaller()), rot, nil
}
