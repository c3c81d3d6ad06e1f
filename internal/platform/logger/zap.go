package logger

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger 初始化 Zap Logger
// debug: 控制台彩色输出；其他: JSON 输出 (ELK)
func NewLogger(mode string) (*zap.Logger, error) {
	var config zap.Config

	if mode == "debug" {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		config = zap.NewProductionConfig()
		config.EncoderConfig.TimeKey = "timestamp"
		config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	logger, err := config.Build()
	if err != nil {
		return nil, fmt.Errorf("building logger: %w", err)
	}
	return logger.Named("gl"), nil
}

// MustNewLogger 启动阶段使用，失败直接 panic
func MustNewLogger(mode string) *zap.Logger {
	l, err := NewLogger(mode)
	if err != nil {
		panic(err)
	}
	return l
}
