package domain

// Payload is a Task's opaque JSON document: an ordered Pipeline plus
// optional seed Params, per spec §3.
type Payload struct {
	Pipeline []Step         `json:"pipeline"`
	Params   *OrderedObject `json:"params,omitempty"`
}

// RetryPolicy overrides the task-level retry policy for a single step.
type RetryPolicy struct {
	MaxRetries      int     `json:"max_retries"`
	BackoffStrategy Backoff `json:"backoff_strategy"`
}

// Step is one unit of a Pipeline: {id, uses, with, save_as?, if?,
// timeout?, retries?} per the GLOSSARY and spec §4.3.
type Step struct {
	ID        string         `json:"id"`
	Uses      string         `json:"uses"`
	With      *OrderedObject `json:"with,omitempty"`
	SaveAs    string         `json:"save_as,omitempty"`
	If        *Value         `json:"if,omitempty"`
	TimeoutS  int            `json:"timeout,omitempty"`
	Retries   *RetryPolicy   `json:"retries,omitempty"`
}

// OutputKey returns the key under which this step's result is stored
// in the Pipeline Context's `steps` map: save_as if set, else id.
func (s Step) OutputKey() string {
	if s.SaveAs != "" {
		return s.SaveAs
	}
	return s.ID
}
