package server

import (
	"habitbuilder/internal/domain"
)

// Request payloads

type CreateTaskRequest struct {
	Name      string `json:"name"`
	Category  string `json:"category"`
	Status    int    `json:"status,omitempty"`
	CreatedAt string `json:"created_at,omitempty" example:"2024-06-09"`
}

type UpdateTaskRequest struct {
	Name     string `json:"name"`
	Category string `json:"category"`
	Status   int    `json:"status"`
}

// Response payloads

type TaskResponse struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Category  string `json:"category"`
	Status    int    `json:"status"`
	CreatedAt string `json:"created_at" example:"2024-06-09"`
}

type AverageResponse struct {
	Category      string  `json:"category"`
	AverageStatus float64 `json:"averageStatus"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

func taskResponse(t domain.Task) TaskResponse {
	return TaskResponse{
		ID:        t.ID,
		Name:      t.Name,
		Category:  t.Category,
		Status:    t.Status,
		CreatedAt: t.CreatedAt.String(),
	}
}

func taskResponses(tasks []domain.Task) []TaskResponse {
	res := make([]TaskResponse, 0, len(tasks))
	for _, t := range tasks {
		res = append(res, taskResponse(t))
	}
	return res
}

func averageResponses(in []domain.CategoryAverage) []AverageResponse {
	res := make([]AverageResponse, 0, len(in))
	for _, a := range in {
		res = append(res, AverageResponse{Category: a.Category, AverageStatus: a.AverageStatus})
	}
	return res
}
