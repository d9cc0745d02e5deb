package api

type User struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
}

type Todo struct {
	ID        int    `json:"id"`
	Title     string `json:"title"`
	Completed bool   `json:"completed"`
	UserID    int    `json:"user_id"`
}

// CreateUserRequest is the body of POST /users.
type CreateUserRequest struct {
	Username string `json:"username"`
}

// CreateTodoRequest is the body of POST /todos. Pointer fields tell an
// absent key apart from its zero value.
type CreateTodoRequest struct {
	Title     string `json:"title"`
	Completed *bool  `json:"completed"`
	UserID    *int   `json:"user_id"`
}

// UpdateTodoRequest is the body of PUT /todos/{id}. Nil means "leave as is".
type UpdateTodoRequest struct {
	Title     *string `json:"title"`
	Completed *bool   `json:"completed"`
}

type MessageResponse struct {
	Message string `json:"message"`
	ID      int    `json:"id,omitempty"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
