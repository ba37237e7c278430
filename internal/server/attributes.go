package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"processmap/internal/domain"
	"processmap/internal/engine"
	"processmap/internal/render"
)

type attributePath struct {
	SubProcessID string `path:"sub_process_id"`
	Key          string `path:"key"`
}

func registerAttributes(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "get-attributes",
		Method:      http.MethodGet,
		Path:        "/sub-processes/{sub_process_id}/attributes",
		Summary:     "Attribute map with its display tree",
		Description: "format=tree (default) returns the display tree, text and html return the rendered form as well.",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		SubProcessID string `path:"sub_process_id"`
		Format       string `query:"format" enum:"tree,text,html" default:"tree"`
	}) (*struct {
		Body AttributesResponse `json:"body"`
	}, error) {
		sp, err := e.GetSubProcess(ctx, input.SubProcessID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body AttributesResponse `json:"body"`
		}{Body: attributesResponse(sp, input.Format)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "replace-attributes",
		Method:      http.MethodPut,
		Path:        "/sub-processes/{sub_process_id}/attributes",
		Summary:     "Replace the whole attribute map",
		Description: "Last writer wins. Follow-ups of attributes missing from the new map are dropped.",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *struct {
		SubProcessID string                   `path:"sub_process_id"`
		Body         ReplaceAttributesRequest `json:"body"`
	}) (*struct {
		Body AttributesResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		sp, err := e.ReplaceAttributes(ctx, input.SubProcessID, input.Body.Attributes.Map, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body AttributesResponse `json:"body"`
		}{Body: attributesResponse(sp, "tree")}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "add-attribute",
		Method:        http.MethodPost,
		Path:          "/sub-processes/{sub_process_id}/attributes",
		Summary:       "Add an attribute from an editor draft",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusBadGateway,
		},
	}, func(ctx context.Context, input *struct {
		SubProcessID string                `path:"sub_process_id"`
		Body         AttributeDraftRequest `json:"body"`
	}) (*struct {
		Body AttributeEditResponse `json:"body"`
	}, error) {
		return editAttribute(ctx, e, input.SubProcessID, "", input.Body)
	})

	huma.Register(api, huma.Operation{
		OperationID: "edit-attribute",
		Method:      http.MethodPut,
		Path:        "/sub-processes/{sub_process_id}/attributes/{key}",
		Summary:     "Edit or rename an attribute",
		Description: "A draft key different from the path key renames the attribute in place and moves its follow-ups.",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusBadGateway,
		},
	}, func(ctx context.Context, input *struct {
		SubProcessID string                `path:"sub_process_id"`
		Key          string                `path:"key"`
		Body         AttributeDraftRequest `json:"body"`
	}) (*struct {
		Body AttributeEditResponse `json:"body"`
	}, error) {
		return editAttribute(ctx, e, input.SubProcessID, input.Key, input.Body)
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-attribute",
		Method:      http.MethodDelete,
		Path:        "/sub-processes/{sub_process_id}/attributes/{key}",
		Summary:     "Delete an attribute",
		Errors:      []int{http.StatusNotFound, http.StatusBadGateway},
	}, func(ctx context.Context, input *attributePath) (*struct {
		Body SubProcessResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		sp, err := e.DeleteAttribute(ctx, input.SubProcessID, input.Key, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body SubProcessResponse `json:"body"`
		}{Body: subProcessResponse(sp)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "attribute-form",
		Method:      http.MethodGet,
		Path:        "/sub-processes/{sub_process_id}/attribute-form",
		Summary:     "Editor form for an attribute",
		Description: "Without key a blank form is returned.",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		SubProcessID string `path:"sub_process_id"`
		Key          string `query:"key"`
	}) (*struct {
		Body AttributeFormResponse `json:"body"`
	}, error) {
		d, err := e.AttributeForm(ctx, input.SubProcessID, input.Key)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body AttributeFormResponse `json:"body"`
		}{Body: AttributeFormResponse{
			SubProcessID: input.SubProcessID,
			OriginalKey:  input.Key,
			Key:          d.Key,
			Type:         d.Kind,
			Value:        d.Value,
			Rows:         d.Rows,
		}}, nil
	})
}

func editAttribute(ctx context.Context, e engine.Engine, subProcessID, originalKey string, body AttributeDraftRequest) (*struct {
	Body AttributeEditResponse `json:"body"`
}, error) {
	actorID, authErr := actorIDFromContext(ctx)
	if authErr != nil {
		return nil, authErr
	}
	sp, res, err := e.EditAttribute(ctx, engine.EditAttributeOptions{
		SubProcessID: subProcessID,
		OriginalKey:  originalKey,
		Draft:        body.draft(),
		ActorID:      actorID,
	})
	if err != nil {
		return nil, handleError(err)
	}
	return &struct {
		Body AttributeEditResponse `json:"body"`
	}{Body: AttributeEditResponse{
		SubProcess: subProcessResponse(sp),
		Key:        res.Key,
		Renamed:    res.Renamed,
		Created:    res.Created,
		Rendered:   render.Render(res.Value, 0),
	}}, nil
}

func attributesResponse(sp domain.SubProcess, format string) AttributesResponse {
	tree := render.Attributes(sp.Attributes)
	out := AttributesResponse{
		SubProcessID: sp.ID,
		Attributes:   AttributeMap{sp.Attributes},
		Rendered:     tree,
	}
	switch format {
	case "text":
		out.Text = render.Text(tree)
	case "html":
		out.HTML = render.HTML(tree)
	}
	return out
}

func registerAttributeNames(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "lookup-attribute-names",
		Method:      http.MethodGet,
		Path:        "/attribute-names",
		Summary:     "Suggest attribute names",
		Description: "Case-insensitive substring match against every registered name, excluding current.",
		Errors:      []int{http.StatusServiceUnavailable},
	}, func(ctx context.Context, input *struct {
		Query   string `query:"q"`
		Current string `query:"current"`
	}) (*struct {
		Body []domain.AttributeName `json:"body"`
	}, error) {
		items, err := e.Names.Lookup(ctx, input.Query, input.Current)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.AttributeName `json:"body"`
		}{Body: nonNilSlice(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "sweep-attribute-names",
		Method:      http.MethodPost,
		Path:        "/attribute-names/sweep",
		Summary:     "Remove catalog names no sub-process uses",
		Errors:      []int{http.StatusServiceUnavailable},
	}, func(ctx context.Context, input *struct {
		Body SweepNamesRequest `json:"body" required:"false"`
	}) (*struct {
		Body SweepNamesResponse `json:"body"`
	}, error) {
		removed, err := e.Names.Sweep(ctx, input.Body.DryRun)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body SweepNamesResponse `json:"body"`
		}{Body: SweepNamesResponse{DryRun: input.Body.DryRun, Removed: nonNilSlice(removed)}}, nil
	})
}
