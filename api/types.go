package api

import (
	"context"

	"studyboard/board"
	"studyboard/domain"
)

// Service is the board logic behind the handlers.
type Service interface {
	GetBoard(ctx context.Context, ownerID string) (domain.Board, error)
	CreateTask(ctx context.Context, ownerID string, in board.CreateInput) (domain.Task, error)
	UpdateTask(ctx context.Context, ownerID, taskID string, in board.UpdateInput) (domain.Task, error)
	MoveTask(ctx context.Context, ownerID string, req board.MoveRequest) (domain.Task, error)
	DeleteTask(ctx context.Context, ownerID, taskID string) error
}

// Authenticator is implemented by types able to extract user IDs from headers.
type Authenticator interface {
	UserIDFromAuthHeader(string) (string, error)
}

// Streams hands out per-owner change signals for live board streams.
type Streams interface {
	Subscribe(ownerID string) (<-chan struct{}, func())
}

// Pinger reports whether a dependency is reachable. Used by /healthz.
type Pinger interface {
	Ping(ctx context.Context) error
}

type createTaskRequest struct {
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Status      domain.Status   `json:"status"`
	Priority    domain.Priority `json:"priority"`
	DueDate     *string         `json:"dueDate"`
}

type updateTaskRequest struct {
	Title       *string          `json:"title"`
	Description *string          `json:"description"`
	Priority    *domain.Priority `json:"priority"`
	DueDate     *string          `json:"dueDate"`
}

type moveTaskRequest struct {
	ToStatus domain.Status `json:"toStatus"`
	ToIndex  *int          `json:"toIndex"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
