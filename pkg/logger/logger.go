package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// 基于zap的日志封装，支持文件滚动和控制台输出
// 业务侧统一使用 logger.Info / logger.Pair，不直接依赖zap

var (
	zl    *zap.Logger
	sugar *zap.SugaredLogger
)

type Config struct {
	Level      string `yaml:"level"`
	FileName   string `yaml:"file-name"`
	TimeFormat string `yaml:"time-format"`
	MaxSize    int    `yaml:"max-size"` // 单位MB
	MaxBackups int    `yaml:"max-backups"`
	MaxAge     int    `yaml:"max-age"` // 单位天
	Compress   bool   `yaml:"compress"`
	LocalTime  bool   `yaml:"local-time"`
	Console    bool   `yaml:"console"`
}

func init() {
	// 未调用Init前兜底输出到控制台，避免空指针
	zl, _ = zap.NewDevelopment(zap.AddCallerSkip(1))
	sugar = zl.Sugar()
}

// Init 初始化全局logger
func Init(cfg Config) {
	level := zapcore.InfoLevel
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	timeFormat := cfg.TimeFormat
	if timeFormat == "" {
		timeFormat = "2006-01-02 15:04:05.000"
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.TimeEncoderOfLayout(timeFormat)
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	cores := make([]zapcore.Core, 0, 2)

	if cfg.FileName != "" {
		fileWriter := zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.FileName,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
			LocalTime:  cfg.LocalTime,
		})
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), fileWriter, level))
	}

	if cfg.Console || cfg.FileName == "" {
		consoleEnc := zap.NewDevelopmentEncoderConfig()
		consoleEnc.EncodeTime = zapcore.TimeEncoderOfLayout(timeFormat)
		cores = append(cores, zapcore.NewCore(zapcore.NewConsoleEncoder(consoleEnc), zapcore.AddSync(os.Stdout), level))
	}

	zl = zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddCallerSkip(1))
	sugar = zl.Sugar()
}

// Pair 构造一个结构化字段
func Pair(key string, value interface{}) zap.Field {
	return zap.Any(key, value)
}

func Debug(msg string, fields ...zap.Field) { zl.Debug(msg, fields...) }
func Info(msg string, fields ...zap.Field)  { zl.Info(msg, fields...) }
func Warn(msg string, fields ...zap.Field)  { zl.Warn(msg, fields...) }
func Error(msg string, fields ...zap.Field) { zl.Error(msg, fields...) }

func Debugf(format string, args ...interface{}) { sugar.Debugf(format, args...) }
func Infof(format string, args ...interface{})  { sugar.Infof(format, args...) }
func Warnf(format string, args ...interface{})  { sugar.Warnf(format, args...) }
func Errorf(format string, args ...interface{}) { sugar.Errorf(format, args...) }

func Fatal(msg string, fields ...zap.Field) { zl.Fatal(msg, fields...) }

func Fatalf(format string, args ...interface{}) { sugar.Fatalf(format, args...) }

// Sync 进程退出前刷盘
func Sync() {
	_ = zl.Sync()
}
