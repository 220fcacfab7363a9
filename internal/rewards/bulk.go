package rewards

import (
	"context"
	"log/slog"
	"sync"
)

// UserFailure is one user that a bulk operation could not process.
type UserFailure struct {
	UserID string `json:"user_id"`
	Error  string `json:"error"`
}

// AssignmentReport summarizes a bulk assignment.
type AssignmentReport struct {
	ProgramID       string        `json:"program_id"`
	Total           int           `json:"total"`
	Assigned        int           `json:"assigned"`
	AlreadyAssigned int           `json:"already_assigned"`
	Failures        []UserFailure `json:"failures"`
}

// AssignToAll assigns the program to every member. One user's failure does not
// stop the batch; it is listed in the report. A cancelled ctx stops handing out
// work and returns the partial report with ctx.Err().
func (e *Engine) AssignToAll(ctx context.Context, programID string) (AssignmentReport, error) {
	report := AssignmentReport{ProgramID: programID, Failures: []UserFailure{}}

	program, err := e.availableProgram(ctx, programID)
	if err != nil {
		return report, err
	}

	ids, err := e.store.ListMemberIDs(ctx)
	if err != nil {
		return report, err
	}
	report.Total = len(ids)

	var mu sync.Mutex
	failures := e.forEachUser(ctx, "assign", ids, func(ctx context.Context, userID string) error {
		_, created, err := e.assign(ctx, userID, program)
		if err != nil {
			return err
		}
		mu.Lock()
		if created {
			report.Assigned++
		} else {
			report.AlreadyAssigned++
		}
		mu.Unlock()
		return nil
	})
	report.Failures = append(report.Failures, failures...)

	slog.Info("Bulk assignment finished",
		"program_id", programID,
		"total", report.Total,
		"assigned", report.Assigned,
		"already_assigned", report.AlreadyAssigned,
		"failed", len(report.Failures),
	)
	return report, ctx.Err()
}

// RefreshAll refreshes progress for every member and returns the users that failed.
func (e *Engine) RefreshAll(ctx context.Context) ([]UserFailure, error) {
	ids, err := e.store.ListMemberIDs(ctx)
	if err != nil {
		return nil, err
	}
	failures := e.forEachUser(ctx, "refresh", ids, func(ctx context.Context, userID string) error {
		_, err := e.RefreshProgress(ctx, userID)
		return err
	})
	return failures, ctx.Err()
}

// forEachUser runs fn for every id on cfg.FanOut workers and collects failures.
func (e *Engine) forEachUser(ctx context.Context, op string, ids []string, fn func(context.Context, string) error) []UserFailure {
	jobs := make(chan string)
	var (
		mu       sync.Mutex
		failures = []UserFailure{}
		wg       sync.WaitGroup
	)

	workers := e.cfg.FanOut
	if workers > len(ids) {
		workers = len(ids)
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range jobs {
				if err := fn(ctx, id); err != nil {
					e.metrics.BulkFailure(op)
					mu.Lock()
					failures = append(failures, UserFailure{UserID: id, Error: err.Error()})
					mu.Unlock()
				}
			}
		}()
	}

feed:
	for _, id := range ids {
		select {
		case jobs <- id:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	return failures
}
