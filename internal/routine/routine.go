// Package routine materializes a routine task request into independent,
// dated task create requests. There is no series entity: once created, each
// instance stands alone and editing or deleting one never touches its
// siblings.
package routine

import (
	"context"
	"errors"

	"habitbuilder/internal/calendar"
)

// ErrEndDateRequired is returned when a routine expansion is requested
// without an end date. It is raised before any request is emitted.
var ErrEndDateRequired = errors.New("end date is required for a routine task")

// Template holds the fields copied onto every materialized instance.
type Template struct {
	Name     string
	Category string
	Status   int
}

// CreateRequest is one dated task to be created. Requests are emitted in
// ascending date order and must be submitted in that order.
type CreateRequest struct {
	Name      string
	Category  string
	Status    int
	CreatedAt calendar.Date
}

// Expand turns a template into its sequence of create requests.
//
// Non-routine: a single request dated at anchor carrying the template's
// status. Routine: one request per week from anchor through until,
// inclusive on the calendar date, with status reset to 0 on every instance
// regardless of the template; the habit starts over on each materialized
// day. An anchor past the end date yields an empty, error-free sequence.
func Expand(tpl Template, anchor calendar.Date, until *calendar.Date, routine bool) ([]CreateRequest, error) {
	if !routine {
		return []CreateRequest{{
			Name:      tpl.Name,
			Category:  tpl.Category,
			Status:    tpl.Status,
			CreatedAt: anchor,
		}}, nil
	}
	if until == nil {
		return nil, ErrEndDateRequired
	}
	var reqs []CreateRequest
	for current := anchor; !current.After(*until); current = current.AddDays(7) {
		reqs = append(reqs, CreateRequest{
			Name:      tpl.Name,
			Category:  tpl.Category,
			Status:    0,
			CreatedAt: current,
		})
	}
	return reqs, nil
}

// Submit issues the requests one at a time, each awaited before the next is
// started, so created rows land in the store in ascending date order. The
// first failure aborts the remainder of the batch: already-created rows stay
// as they are (no compensating delete, no transaction around the batch) and
// no further request is attempted. The count of successful submissions is
// returned alongside the error.
func Submit(ctx context.Context, reqs []CreateRequest, create func(context.Context, CreateRequest) error) (int, error) {
	for i, req := range reqs {
		if err := create(ctx, req); err != nil {
			return i, err
		}
	}
	return len(reqs), nil
}
