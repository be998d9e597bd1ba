package transport

type CredentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type CreateTaskRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// UpdateTaskRequest only carries the description; other columns are immutable.
type UpdateTaskRequest struct {
	Description *string `json:"description"`
}

type DraftRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}
