package analytics

import (
	"os"

	"github.com/nudgeworks/journey/model"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type LogFileDataCollector struct {
	fileName string
	logger   *zap.Logger
}

func NewLogFileDataCollector(fileName string) (*LogFileDataCollector, error) {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.StacktraceKey = ""
	fileEncoder := zapcore.NewJSONEncoder(encoderConfig)
	logFile, err := os.OpenFile(fileName, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	writer := zapcore.AddSync(logFile)
	core := zapcore.NewTee(zapcore.NewCore(fileEncoder, writer, zapcore.InfoLevel))
	logger := zap.New(core)
	return &LogFileDataCollector{
		fileName: fileName,
		logger:   logger,
	}, nil
}

func (lc *LogFileDataCollector) RecordStepSuccess(flowId string, enrollmentId string, stepId string, kind string, data map[string]any) {
	lc.logger.Info("step success", zap.String("flowId", flowId), zap.String("enrollmentId", enrollmentId), zap.String("stepId", stepId), zap.String("kind", kind), zap.Any("data", data))
}

func (lc *LogFileDataCollector) RecordStepFailure(flowId string, enrollmentId string, stepId string, kind string, reason string) {
	lc.logger.Info("step failure", zap.String("flowId", flowId), zap.String("enrollmentId", enrollmentId), zap.String("stepId", stepId), zap.String("kind", kind), zap.String("reason", reason))
}

func (lc *LogFileDataCollector) RecordFlowStats(flowId string, counts map[model.EnrollmentStatus]int) {
	fields := make([]zap.Field, 0, len(counts)+1)
	fields = append(fields, zap.String("flowId", flowId))
	for status, count := range counts {
		fields = append(fields, zap.Int(string(status), count))
	}
	lc.logger.Info("flow stats", fields...)
}
