package util

import (
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const serviceName = "whispr-service"

var (
	globalLogger *zap.Logger
	once         sync.Once
)

// Init builds the process logger once. Later calls return the first logger.
func Init(environment, level, format string) *zap.Logger {
	once.Do(func() {
		cfg := loggerConfig(environment == "production", format)
		cfg.Level = zap.NewAtomicLevelAt(parseLogLevel(level))

		logger, err := cfg.Build(
			zap.AddCaller(),
			zap.AddCallerSkip(1),
			zap.Fields(zap.String("service", serviceName)),
		)
		if err != nil {
			panic("failed to initialize logger: " + err.Error())
		}
		globalLogger = logger
		zap.ReplaceGlobals(logger)
	})
	return globalLogger
}

func loggerConfig(production bool, format string) zap.Config {
	var cfg zap.Config
	if production {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "timestamp"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		cfg.DisableStacktrace = true
		cfg.Sampling = &zap.SamplingConfig{Initial: 100, Thereafter: 100}
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	cfg.Encoding = "console"
	if format == "json" {
		cfg.Encoding = "json"
		cfg.EncoderConfig.EncodeLevel = zapcore.LowercaseLevelEncoder
	}
	cfg.OutputPaths = []string{"stdout"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	return cfg
}

// Get returns the process logger, building a production one if Init was never called.
func Get() *zap.Logger {
	return Init("production", "info", "json")
}

// Named returns a child logger for one component, e.g. "engine" or "kafka".
func Named(component string) *zap.Logger {
	return Get().Named(component)
}

func Sync() {
	if globalLogger != nil {
		_ = globalLogger.Sync()
	}
}

func parseLogLevel(level string) zapcore.Level {
	if level == "warning" {
		return zapcore.WarnLevel
	}
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return zapcore.InfoLevel
	}
	return lvl
}

func Debug(msg string, fields ...zap.Field) { Get().Debug(msg, fields...) }
func Info(msg string, fields ...zap.Field)  { Get().Info(msg, fields...) }
func Warn(msg string, fields ...zap.Field)  { Get().Warn(msg, fields...) }
func Error(msg string, fields ...zap.Field) { Get().Error(msg, fields...) }
func Fatal(msg string, fields ...zap.Field) { Get().Fatal(msg, fields...) }

func String(key, value string) zap.Field                 { return zap.String(key, value) }
func Bool(key string, value bool) zap.Field              { return zap.Bool(key, value) }
func Int(key string, value int) zap.Field                { return zap.Int(key, value) }
func Duration(key string, value time.Duration) zap.Field { return zap.Duration(key, value) }

// ErrorField is zap.Error under a name that does not clash with Error.
func ErrorField(err error) zap.Field { return zap.Error(err) }

// GetEnv returns the environment value for key or defaultValue when unset.
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
