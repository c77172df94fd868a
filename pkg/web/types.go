package web

// CommandRequest carries one slash-command line for a project.
type CommandRequest struct {
	Input string `json:"input" validate:"required,min=1"`
	Actor string `json:"actor,omitempty"`
}

// HealthResponse reports the liveness of the service and its snapshot
// backend.
type HealthResponse struct {
	Status   string            `json:"status"`
	Message  string            `json:"message"`
	Checkers map[string]string `json:"checkers"`
}
