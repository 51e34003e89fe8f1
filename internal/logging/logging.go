package logging

import (
	"go.uber.org/zap"
)

// New собирает логгер процесса: development-формат по умолчанию,
// JSON при json=true вне отладки. paths — куда писать вместо stderr.
// Возвращает именованный SugaredLogger и функцию сброса буфера для defer.
func New(debug, json bool, role string, paths ...string) (*zap.SugaredLogger, func(), error) {
	cfg := zap.NewDevelopmentConfig()
	if json && !debug {
		cfg = zap.NewProductionConfig()
	}
	if !debug {
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	if len(paths) > 0 {
		cfg.OutputPaths = paths
		cfg.ErrorOutputPaths = paths
	}

	logger, err := cfg.Build()
	if err != nil {
		return nil, nil, err
	}
	sugar := logger.Sugar().Named(role)
	sync := func() {
		// сброс буфера логгера; stderr на терминале Sync не поддерживает
		_ = logger.Sync()
	}
	return sugar, sync, nil
}
