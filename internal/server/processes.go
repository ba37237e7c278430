package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"processmap/internal/domain"
	"processmap/internal/engine"
)

type processPath struct {
	ProcessID string `path:"process_id"`
}

type subProcessPath struct {
	SubProcessID string `path:"sub_process_id"`
}

var writeErrors = []int{
	http.StatusBadRequest,
	http.StatusForbidden,
	http.StatusNotFound,
	http.StatusConflict,
	http.StatusInternalServerError,
}

func registerProcesses(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-process",
		Method:        http.MethodPost,
		Path:          "/processes",
		Summary:       "Create process title",
		DefaultStatus: http.StatusCreated,
		Errors:        writeErrors,
	}, func(ctx context.Context, input *struct {
		Body CreateProcessRequest `json:"body"`
	}) (*struct {
		Body domain.ProcessTitle `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		opts := engine.ProcessCreateOptions{
			ID:      input.Body.ID,
			Name:    input.Body.Name,
			Seq:     input.Body.Seq,
			ActorID: actorID,
		}
		if input.Body.DependsOn != nil {
			opts.DependsOn = *input.Body.DependsOn
		}
		p, err := e.CreateProcess(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.ProcessTitle `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-processes",
		Method:      http.MethodGet,
		Path:        "/processes",
		Summary:     "List process titles in display order",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.ProcessTitle `json:"body"`
	}, error) {
		items, err := e.ListProcesses(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.ProcessTitle `json:"body"`
		}{Body: nonNilSlice(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-process",
		Method:      http.MethodGet,
		Path:        "/processes/{process_id}",
		Summary:     "Get process title",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *processPath) (*struct {
		Body domain.ProcessTitle `json:"body"`
	}, error) {
		p, err := e.GetProcess(ctx, input.ProcessID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.ProcessTitle `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-process",
		Method:      http.MethodPatch,
		Path:        "/processes/{process_id}",
		Summary:     "Update process title",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *struct {
		ProcessID string               `path:"process_id"`
		Body      UpdateProcessRequest `json:"body"`
	}) (*struct {
		Body domain.ProcessTitle `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.UpdateProcess(ctx, engine.ProcessUpdateOptions{
			ID:        input.ProcessID,
			Name:      input.Body.Name,
			Seq:       input.Body.Seq,
			DependsOn: input.Body.DependsOn,
			ActorID:   actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.ProcessTitle `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-process",
		Method:        http.MethodDelete,
		Path:          "/processes/{process_id}",
		Summary:       "Delete process title with its sub-processes",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound},
	}, func(ctx context.Context, input *processPath) (*struct{}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteProcess(ctx, input.ProcessID, actorID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerSubProcesses(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-sub-process",
		Method:        http.MethodPost,
		Path:          "/processes/{process_id}/sub-processes",
		Summary:       "Create sub-process",
		DefaultStatus: http.StatusCreated,
		Errors:        writeErrors,
	}, func(ctx context.Context, input *struct {
		ProcessID string                  `path:"process_id"`
		Body      CreateSubProcessRequest `json:"body"`
	}) (*struct {
		Body SubProcessResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		opts := engine.SubProcessCreateOptions{
			ID:        input.Body.ID,
			ProcessID: input.ProcessID,
			Name:      input.Body.Name,
			Seq:       input.Body.Seq,
			ActorID:   actorID,
		}
		if input.Body.DependsOn != nil {
			opts.DependsOn = *input.Body.DependsOn
		}
		if input.Body.Attributes != nil {
			opts.Attributes = input.Body.Attributes.Map
		}
		sp, err := e.CreateSubProcess(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body SubProcessResponse `json:"body"`
		}{Body: subProcessResponse(sp)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-sub-processes",
		Method:      http.MethodGet,
		Path:        "/processes/{process_id}/sub-processes",
		Summary:     "List sub-processes ordered by sequence then name",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *processPath) (*struct {
		Body []SubProcessResponse `json:"body"`
	}, error) {
		items, err := e.ListSubProcesses(ctx, input.ProcessID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []SubProcessResponse `json:"body"`
		}{Body: mapSubProcesses(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-sub-process",
		Method:      http.MethodGet,
		Path:        "/sub-processes/{sub_process_id}",
		Summary:     "Get sub-process",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *subProcessPath) (*struct {
		Body SubProcessResponse `json:"body"`
	}, error) {
		sp, err := e.GetSubProcess(ctx, input.SubProcessID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body SubProcessResponse `json:"body"`
		}{Body: subProcessResponse(sp)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-sub-process",
		Method:      http.MethodPatch,
		Path:        "/sub-processes/{sub_process_id}",
		Summary:     "Update sub-process name, sequence or dependency",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *struct {
		SubProcessID string                  `path:"sub_process_id"`
		Body         UpdateSubProcessRequest `json:"body"`
	}) (*struct {
		Body SubProcessResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		sp, err := e.UpdateSubProcess(ctx, engine.SubProcessUpdateOptions{
			ID:        input.SubProcessID,
			Name:      input.Body.Name,
			Seq:       input.Body.Seq,
			DependsOn: input.Body.DependsOn,
			ActorID:   actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body SubProcessResponse `json:"body"`
		}{Body: subProcessResponse(sp)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-sub-process",
		Method:        http.MethodDelete,
		Path:          "/sub-processes/{sub_process_id}",
		Summary:       "Delete sub-process and its follow-ups",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound},
	}, func(ctx context.Context, input *subProcessPath) (*struct{}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteSubProcess(ctx, input.SubProcessID, actorID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

