package csvquery

import "fmt"

// DataLoadError means the uploaded stream could not be parsed as CSV.
type DataLoadError struct {
	Name string
	Err  error
}

func (e *DataLoadError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("load %s: %v", e.Name, e.Err)
	}
	return fmt.Sprintf("load csv: %v", e.Err)
}

func (e *DataLoadError) Unwrap() error { return e.Err }

// AgentExecutionError means the agent failed while answering: upstream API
// errors, auth, quota, or an agent that never settled on an answer.
type AgentExecutionError struct {
	Err error
}

func (e *AgentExecutionError) Error() string { return fmt.Sprintf("agent: %v", e.Err) }

func (e *AgentExecutionError) Unwrap() error { return e.Err }
