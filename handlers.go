package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/julienschmidt/httprouter"

	"todo-api/api"
	"todo-api/store"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, api.ErrorResponse{Error: msg})
}

var errTrailingData = errors.New("unexpected data after JSON body")

// decodeJSON reads the body into v. An empty body leaves v untouched so that
// field checks report what is missing. The body must hold exactly one value.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errTrailingData
	}
	return nil
}

// todoID parses the :id segment. Anything that is not an integer cannot name a
// todo, so callers answer it like a missing row.
func todoID(p httprouter.Params) (int, bool) {
	id, err := strconv.Atoi(p.ByName("id"))
	return id, err == nil
}

func (s *Server) writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "Todo not found")
	case errors.Is(err, store.ErrMissingField):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrUserNotFound):
		writeError(w, http.StatusBadRequest, "User does not exist")
	case errors.Is(err, store.ErrDuplicateUsername):
		writeError(w, http.StatusConflict, "Username already exists")
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "Request timed out")
	default:
		s.log.WithError(err).WithField("request_id", requestIDFrom(r.Context())).Error("storage failure")
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func (s *Server) createUser(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req api.CreateUserRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Username == "" {
		writeError(w, http.StatusBadRequest, "Username is required")
		return
	}

	if _, err := s.store.CreateUser(r.Context(), req.Username); err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, api.MessageResponse{Message: "User created successfully"})
}

func (s *Server) createTodo(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req api.CreateTodoRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Title == "" {
		writeError(w, http.StatusBadRequest, "Title is required")
		return
	}
	if req.UserID == nil {
		writeError(w, http.StatusBadRequest, "User ID is required")
		return
	}
	completed := req.Completed != nil && *req.Completed

	todo, err := s.store.CreateTodo(r.Context(), req.Title, completed, *req.UserID)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, api.MessageResponse{Message: "Todo created successfully", ID: todo.ID})
}

func (s *Server) getTodo(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	id, ok := todoID(p)
	if !ok {
		writeError(w, http.StatusNotFound, "Todo not found")
		return
	}

	t, version, hit := s.cache.Get(r.Context(), id)
	if hit {
		writeJSON(w, http.StatusOK, t)
		return
	}

	t, err := s.store.GetTodo(r.Context(), id)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	s.cache.Set(r.Context(), t, version)
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) updateTodo(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	id, ok := todoID(p)
	if !ok {
		writeError(w, http.StatusNotFound, "Todo not found")
		return
	}

	var req api.UpdateTodoRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if _, err := s.store.UpdateTodo(r.Context(), id, req.Title, req.Completed); err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	s.cache.Invalidate(r.Context(), id)
	writeJSON(w, http.StatusOK, api.MessageResponse{Message: "Todo updated successfully"})
}

func (s *Server) deleteTodo(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	id, ok := todoID(p)
	if !ok {
		writeError(w, http.StatusNotFound, "Todo not found")
		return
	}

	if err := s.store.DeleteTodo(r.Context(), id); err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	s.cache.Invalidate(r.Context(), id)
	writeJSON(w, http.StatusOK, api.MessageResponse{Message: "Todo deleted successfully"})
}

// listTodos filters by ?user_id= when given. A value that is not an integer
// cannot match any owner and yields an empty list.
func (s *Server) listTodos(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var owner *int
	if raw := r.URL.Query().Get("user_id"); raw != "" {
		id, err := strconv.Atoi(raw)
		if err != nil {
			writeJSON(w, http.StatusOK, []api.Todo{})
			return
		}
		owner = &id
	}

	todos, err := s.store.ListTodos(r.Context(), owner)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, todos)
}
