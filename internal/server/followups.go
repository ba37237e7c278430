package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"processmap/internal/domain"
	"processmap/internal/engine"
)

type followUpPath struct {
	FollowUpID string `path:"follow_up_id"`
}

func registerFollowUps(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-follow-ups",
		Method:      http.MethodGet,
		Path:        "/processes/{process_id}/follow-ups",
		Summary:     "List follow-ups of a process, optionally for one sub-process",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProcessID    string `path:"process_id"`
		SubProcessID string `query:"sub_process_id"`
	}) (*struct {
		Body []domain.FollowUp `json:"body"`
	}, error) {
		items, err := e.ListFollowUps(ctx, input.ProcessID, input.SubProcessID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.FollowUp `json:"body"`
		}{Body: nonNilSlice(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "ask-follow-up",
		Method:      http.MethodPost,
		Path:        "/processes/{process_id}/follow-ups",
		Summary:     "Ask a question about an attribute",
		Description: "Replaces the question of the thread already open on the same attribute.",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *struct {
		ProcessID string             `path:"process_id"`
		Body      AskFollowUpRequest `json:"body"`
	}) (*struct {
		Body domain.FollowUp `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		f, err := e.AskFollowUp(ctx, engine.AskOptions{
			ProcessID:    input.ProcessID,
			SubProcessID: input.Body.SubProcessID,
			AttributeKey: input.Body.AttributeKey,
			Question:     input.Body.Question,
			ActorID:      actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.FollowUp `json:"body"`
		}{Body: f}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "follow-up-open-counts",
		Method:      http.MethodGet,
		Path:        "/processes/{process_id}/follow-ups/open-counts",
		Summary:     "Open follow-ups per sub-process",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *processPath) (*struct {
		Body OpenCountsResponse `json:"body"`
	}, error) {
		counts, err := e.OpenFollowUpCounts(ctx, input.ProcessID)
		if err != nil {
			return nil, handleError(err)
		}
		if counts == nil {
			counts = map[string]int{}
		}
		return &struct {
			Body OpenCountsResponse `json:"body"`
		}{Body: OpenCountsResponse{ProcessID: input.ProcessID, Counts: counts}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "resolve-follow-up",
		Method:      http.MethodPost,
		Path:        "/follow-ups/{follow_up_id}/resolve",
		Summary:     "Mark a follow-up resolved",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *followUpPath) (*struct {
		Body domain.FollowUp `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		f, err := e.ResolveFollowUp(ctx, input.FollowUpID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.FollowUp `json:"body"`
		}{Body: f}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-follow-up",
		Method:        http.MethodDelete,
		Path:          "/follow-ups/{follow_up_id}",
		Summary:       "Delete a follow-up",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound},
	}, func(ctx context.Context, input *followUpPath) (*struct{}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteFollowUp(ctx, input.FollowUpID, actorID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}
