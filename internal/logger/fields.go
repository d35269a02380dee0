package logger

import (
	"strings"

	"go.uber.org/zap"
)

const (
	// FieldJobID is the structured log field key for a backend job identifier.
	FieldJobID = "job_id"
	// FieldCVID is the structured log field key for a CV identifier.
	FieldCVID = "cv_id"
	// FieldBatchID is the structured log field key for one similarity batch.
	FieldBatchID = "batch_id"
	// FieldRequestID is the structured log field key sent as X-Request-ID.
	FieldRequestID = "request_id"
)

// StringField describes a string-valued structured logging field.
type StringField struct {
	Key   string
	Value string
}

// StringFields converts the provided key/value pairs into zap fields, trimming
// whitespace and omitting entries with empty keys or values.
func StringFields(fields ...StringField) []zap.Field {
	result := make([]zap.Field, 0, len(fields))
	for _, field := range fields {
		key := strings.TrimSpace(field.Key)
		if key == "" {
			continue
		}

		value := strings.TrimSpace(field.Value)
		if value == "" {
			continue
		}

		result = append(result, zap.String(key, value))
	}

	return result
}

// WithFields attaches the provided fields to the logger.
// A nil logger is replaced with a no-op logger.
func WithFields(logger *zap.Logger, fields ...zap.Field) *zap.Logger {
	if logger == nil {
		logger = zap.NewNop()
	}

	if len(fields) == 0 {
		return logger
	}

	return logger.With(fields...)
}

// BatchFields returns the fields describing a similarity batch for a job.
// Empty values are skipped.
func BatchFields(jobID, batchID string) []zap.Field {
	return StringFields(
		StringField{Key: FieldJobID, Value: jobID},
		StringField{Key: FieldBatchID, Value: batchID},
	)
}

// WithBatch attaches the batch fields to the provided logger.
func WithBatch(logger *zap.Logger, jobID, batchID string) *zap.Logger {
	return WithFields(logger, BatchFields(jobID, batchID)...)
}
