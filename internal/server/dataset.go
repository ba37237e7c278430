package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"processmap/internal/dataset"
	"processmap/internal/engine"
)

func registerDataset(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "export-dataset",
		Method:      http.MethodGet,
		Path:        "/dataset",
		Summary:     "Export every process title with its sub-processes",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body dataset.Document `json:"body"`
	}, error) {
		doc, err := dataset.Export(ctx, e)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body dataset.Document `json:"body"`
		}{Body: doc}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "import-dataset",
		Method:      http.MethodPost,
		Path:        "/dataset",
		Summary:     "Import a dataset document",
		Description: "The body is validated against the dataset JSON schema. replace=true deletes every existing process title first.",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *struct {
		Replace bool   `query:"replace"`
		RawBody []byte `contentType:"application/json"`
	}) (*struct {
		Body dataset.Summary `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		doc, err := dataset.Parse(input.RawBody)
		if err != nil {
			return nil, handleError(err)
		}
		sum, err := dataset.Import(ctx, e, doc, dataset.ImportOptions{Replace: input.Replace, ActorID: actorID})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body dataset.Summary `json:"body"`
		}{Body: sum}, nil
	})
}
