package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"todo-api/api"
)

// Config configures the connection pool.
type Config struct {
	Driver          string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Store owns the database handle. It is built once at startup and shared by
// every handler; *sql.DB is safe for concurrent use.
type Store struct {
	db      *sql.DB
	dialect dialect
}

// Open validates cfg, opens the pool, pings it and creates the schema.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, errors.New("database dsn cannot be empty")
	}
	d, err := dialectFor(cfg.Driver)
	if err != nil {
		return nil, err
	}
	if cfg.MaxOpenConns < 0 || cfg.MaxIdleConns < 0 {
		return nil, errors.New("connection limits cannot be negative")
	}
	if cfg.MaxOpenConns > 0 && cfg.MaxIdleConns > cfg.MaxOpenConns {
		return nil, errors.New("max idle connections cannot exceed max open connections")
	}

	db, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// Zero values keep the database/sql defaults.
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &Store{db: db, dialect: d}
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Stats() sql.DBStats {
	return s.db.Stats()
}

// withTx runs fn inside a transaction and commits only if fn succeeds.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (s *Store) CreateUser(ctx context.Context, username string) (api.User, error) {
	if username == "" {
		return api.User{}, fmt.Errorf("%w: username", ErrMissingField)
	}

	user := api.User{Username: username}
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		return tx.QueryRowContext(ctx,
			`INSERT INTO users (username) VALUES ($1) RETURNING id`, username,
		).Scan(&user.ID)
	})
	if err != nil {
		if isUniqueViolation(err) {
			return api.User{}, ErrDuplicateUsername
		}
		return api.User{}, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

// CreateTodo inserts a todo after checking, in the same transaction, that its
// owner exists.
func (s *Store) CreateTodo(ctx context.Context, title string, completed bool, userID int) (api.Todo, error) {
	if title == "" {
		return api.Todo{}, fmt.Errorf("%w: title", ErrMissingField)
	}

	todo := api.Todo{Title: title, Completed: completed, UserID: userID}
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var one int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM users WHERE id = $1`, userID).Scan(&one)
		if err == sql.ErrNoRows {
			return ErrUserNotFound
		}
		if err != nil {
			return err
		}
		return tx.QueryRowContext(ctx,
			`INSERT INTO todos (title, completed, user_id) VALUES ($1, $2, $3) RETURNING id`,
			title, completed, userID,
		).Scan(&todo.ID)
	})
	if err != nil {
		if errors.Is(err, ErrUserNotFound) || isForeignKeyViolation(err) {
			return api.Todo{}, ErrUserNotFound
		}
		return api.Todo{}, fmt.Errorf("create todo: %w", err)
	}
	return todo, nil
}

func (s *Store) GetTodo(ctx context.Context, id int) (api.Todo, error) {
	var t api.Todo
	err := s.db.QueryRowContext(ctx,
		`SELECT id, title, completed, user_id FROM todos WHERE id = $1`, id,
	).Scan(&t.ID, &t.Title, &t.Completed, &t.UserID)
	if err == sql.ErrNoRows {
		return api.Todo{}, ErrNotFound
	}
	if err != nil {
		return api.Todo{}, fmt.Errorf("get todo: %w", err)
	}
	return t, nil
}

// UpdateTodo applies a partial update. A nil or empty title keeps the current
// title; a non-nil completed is always written, false included.
func (s *Store) UpdateTodo(ctx context.Context, id int, title *string, completed *bool) (api.Todo, error) {
	var titleArg, completedArg any
	if title != nil && *title != "" {
		titleArg = *title
	}
	if completed != nil {
		completedArg = *completed
	}

	var t api.Todo
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		return tx.QueryRowContext(ctx,
			`UPDATE todos SET title = COALESCE($1, title), completed = COALESCE($2, completed)
WHERE id = $3 RETURNING id, title, completed, user_id`,
			titleArg, completedArg, id,
		).Scan(&t.ID, &t.Title, &t.Completed, &t.UserID)
	})
	if err == sql.ErrNoRows {
		return api.Todo{}, ErrNotFound
	}
	if err != nil {
		return api.Todo{}, fmt.Errorf("update todo: %w", err)
	}
	return t, nil
}

func (s *Store) DeleteTodo(ctx context.Context, id int) error {
	var rowsAffected int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM todos WHERE id = $1`, id)
		if err != nil {
			return err
		}
		rowsAffected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return fmt.Errorf("delete todo: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListTodos returns every todo, or only those owned by *userID when userID is
// set, in insertion order. The result is never nil.
func (s *Store) ListTodos(ctx context.Context, userID *int) ([]api.Todo, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if userID == nil {
		rows, err = s.db.QueryContext(ctx,
			`SELECT id, title, completed, user_id FROM todos ORDER BY id`)
	} else {
		rows, err = s.db.QueryContext(ctx,
			`SELECT id, title, completed, user_id FROM todos WHERE user_id = $1 ORDER BY id`, *userID)
	}
	if err != nil {
		return nil, fmt.Errorf("list todos: %w", err)
	}
	defer rows.Close()

	todos := []api.Todo{}
	for rows.Next() {
		var t api.Todo
		if err := rows.Scan(&t.ID, &t.Title, &t.Completed, &t.UserID); err != nil {
			return nil, fmt.Errorf("scan todo: %w", err)
		}
		todos = append(todos, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list todos: %w", err)
	}
	return todos, nil
}
