package dispatch

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/dukex/autoflow/pkg/models"
	"github.com/xeipuuv/gojsonschema"
)

// ErrInvalidJob is returned for jobs that do not match the job schema.
var ErrInvalidJob = errors.New("invalid job")

var jobSchema = gojsonschema.NewGoLoader(map[string]any{
	"type":     "object",
	"required": []string{"workflowId", "source"},
	"properties": map[string]any{
		"workflowId":  map[string]any{"type": "string", "format": "uuid"},
		"executionId": map[string]any{"type": "string", "format": "uuid"},
		"source": map[string]any{
			"type": "string",
			"enum": []string{string(models.SourceWebhook), string(models.SourceCron), string(models.SourceEmail)},
		},
		"payload": map[string]any{},
	},
})

// Validate checks a job against the job schema.
func Validate(job models.Job) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidJob, err)
	}

	return ValidateJSON(raw)
}

// ValidateJSON checks an encoded job against the job schema.
func ValidateJSON(raw []byte) error {
	result, err := gojsonschema.Validate(jobSchema, gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidJob, err)
	}

	if !result.Valid() {
		var descriptions []string
		for _, desc := range result.Errors() {
			descriptions = append(descriptions, desc.String())
		}

		return fmt.Errorf("%w: %s", ErrInvalidJob, strings.Join(descriptions, "; "))
	}

	return nil
}

// Decode validates and decodes an encoded job.
func Decode(raw []byte) (models.Job, error) {
	var job models.Job

	if err := ValidateJSON(raw); err != nil {
		return job, err
	}

	if err := json.Unmarshal(raw, &job); err != nil {
		return job, fmt.Errorf("%w: %w", ErrInvalidJob, err)
	}

	return job, nil
}
