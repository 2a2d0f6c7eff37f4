package analytics

import "github.com/nudgeworks/journey/model"

type DataCollectorConfig struct {
	FileName      string
	CollectorType DataCollectorType
}

type DataCollectorType string

const LOG_FILE_DATA_COLLECTOR DataCollectorType = "LOG_FILE_DATA_COLLECTOR"
const NOOP_DATA_COLLECTOR DataCollectorType = "NOOP_DATA_COLLECTOR"

type StepDataCollector interface {
	RecordStepSuccess(flowId string, enrollmentId string, stepId string, kind string, data map[string]any)
	RecordStepFailure(flowId string, enrollmentId string, stepId string, kind string, reason string)
	RecordFlowStats(flowId string, counts map[model.EnrollmentStatus]int)
}

var stepCollector StepDataCollector = noopCollector{}

func InitDataCollector(config DataCollectorConfig) error {
	switch config.CollectorType {
	case LOG_FILE_DATA_COLLECTOR:
		c, err := NewLogFileDataCollector(config.FileName)
		if err != nil {
			return err
		}
		stepCollector = c
	}
	return nil
}

func RecordStepSuccess(flowId string, enrollmentId string, stepId string, kind string, data map[string]any) {
	stepCollector.RecordStepSuccess(flowId, enrollmentId, stepId, kind, data)
}

func RecordStepFailure(flowId string, enrollmentId string, stepId string, kind string, reason string) {
	stepCollector.RecordStepFailure(flowId, enrollmentId, stepId, kind, reason)
}

func RecordFlowStats(flowId string, counts map[model.EnrollmentStatus]int) {
	stepCollector.RecordFlowStats(flowId, counts)
}

type noopCollector struct{}

func (noopCollector) RecordStepSuccess(flowId string, enrollmentId string, stepId string, kind string, data map[string]any) {
}
func (noopCollector) RecordStepFailure(flowId string, enrollmentId string, stepId string, kind string, reason string) {
}
func (noopCollector) RecordFlowStats(flowId string, counts map[model.EnrollmentStatus]int) {}
