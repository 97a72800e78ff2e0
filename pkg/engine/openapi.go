package engine

import (
	"context"
	"net/http"

	"loaddash/api"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/gorillamux"
	"github.com/pkg/errors"
)

// RequestValidator checks incoming requests against the runner's OpenAPI document
type RequestValidator struct {
	router routers.Router
}

// NewRequestValidator loads and validates the embedded document
func NewRequestValidator() (*RequestValidator, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(api.RunnerDocument)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load OpenAPI document")
	}
	if err := doc.Validate(context.Background()); err != nil {
		return nil, errors.Wrap(err, "invalid OpenAPI document")
	}

	router, err := gorillamux.NewRouter(doc)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build OpenAPI router")
	}

	return &RequestValidator{router: router}, nil
}

// Validate returns routers.ErrPathNotFound or routers.ErrMethodNotAllowed for
// requests outside the document, and a validation error for requests that do not
// match their operation.
func (v *RequestValidator) Validate(r *http.Request) error {
	route, pathParams, err := v.router.FindRoute(r)
	if err != nil {
		return err
	}

	input := &openapi3filter.RequestValidationInput{
		Request:    r,
		PathParams: pathParams,
		Route:      route,
		Options: &openapi3filter.Options{
			AuthenticationFunc: openapi3filter.NoopAuthenticationFunc,
		},
	}
	return openapi3filter.ValidateRequest(r.Context(), input)
}

// IsUnknownRoute reports whether err means the request is not described by the document
func IsUnknownRoute(err error) bool {
	return errors.Is(err, routers.ErrPathNotFound) || errors.Is(err, routers.ErrMethodNotAllowed)
}
