package bus

// Delivery describes one outbound payload handed to a channel.
type Delivery struct {
	Channel  string            `json:"channel"`
	Target   string            `json:"target"`
	Kind     string            `json:"kind"` // "text", "image", "file"
	TaskName string            `json:"task_name,omitempty"`
	RunID    string            `json:"run_id,omitempty"`
	Detail   string            `json:"detail,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}
