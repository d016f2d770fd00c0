package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	defaultMaxSizeMB  = 100
	defaultMaxBackups = 20
)

type Options struct {
	Name  string
	Dir   string
	Level string

	MaxAge     int
	MaxSizeMB  int
	MaxBackups int
}

func (o Options) validate() error {
	if o.Name == "" {
		return fmt.Errorf("logger name is required")
	}
	if o.Dir != "" {
		if info, err := os.Stat(o.Dir); err == nil && !info.IsDir() {
			return fmt.Errorf("log dir %s exists and is a file", o.Dir)
		}
	}
	if o.MaxAge < 0 || o.MaxSizeMB < 0 || o.MaxBackups < 0 {
		return fmt.Errorf("rotation limits must be >= 0")
	}
	return nil
}

// Setup configures the standard logrus logger. Output goes to stdout and, when
// Dir is set, to a rotated file as well. The returned closer flushes the file.
func Setup(opts Options) (*logrus.Logger, io.Closer, error) {
	if err := opts.validate(); err != nil {
		return nil, nil, err
	}

	l := logrus.StandardLogger()

	level := logrus.InfoLevel
	if opts.Level != "" {
		parsed, err := logrus.ParseLevel(opts.Level)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid log level %q: %w", opts.Level, err)
		}
		level = parsed
	}
	l.SetLevel(level)
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	if opts.Dir == "" {
		l.SetOutput(os.Stdout)
		return l, nopCloser{}, nil
	}

	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("create log dir: %w", err)
	}

	maxSize := opts.MaxSizeMB
	if maxSize == 0 {
		maxSize = defaultMaxSizeMB
	}
	maxBackups := opts.MaxBackups
	if maxBackups == 0 {
		maxBackups = defaultMaxBackups
	}

	file := &lumberjack.Logger{
		Filename:   filepath.Join(opts.Dir, opts.Name+".log"),
		MaxSize:    maxSize,
		MaxBackups: maxBackups,
		MaxAge:     opts.MaxAge,
		LocalTime:  true,
	}
	l.SetOutput(io.MultiWriter(os.Stdout, file))

	logrus.RegisterExitHandler(func() {
		_ = file.Close()
	})

	return l, file, nil
}

// OrDefault returns l, or the standard logger when l is nil.
func OrDefault(l logrus.FieldLogger) logrus.FieldLogger {
	if l == nil {
		return logrus.StandardLogger()
	}
	return l
}

// Discard returns a logger that drops everything, for tests.
func Discard() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
