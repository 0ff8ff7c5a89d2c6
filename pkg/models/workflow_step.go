package models

// StepType is the canonical name of an action handler.
type StepType string

const (
	StepTypeHTTPRequest    StepType = "HTTP Request"
	StepTypeEmail          StepType = "Email"
	StepTypeTelegram       StepType = "Telegram"
	StepTypeDatabase       StepType = "Database"
	StepTypeTransformation StepType = "Transformation"
)

// WorkflowStep is an executable step derived from the graph on every run. It is never
// persisted so that graph edits take effect on the next fire.
type WorkflowStep struct {
	Key       string         `json:"key"`
	Type      StepType       `json:"type"`
	Order     int            `json:"order"`
	Config    map[string]any `json:"config,omitempty"`
	TimeoutMs int64          `json:"timeoutMs,omitempty"`
}

// ConfigString returns config[key] as a string when it is one.
func (s WorkflowStep) ConfigString(key string) (string, bool) {
	v, ok := s.Config[key].(string)

	return v, ok
}
