package openapi

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/gorillamux"
)

//go:embed openapi.yaml
var specYAML []byte

// Spec returns the embedded OpenAPI document
func Spec() []byte {
	return specYAML
}

// ErrRouteNotFound is returned when the request matches no documented operation
var ErrRouteNotFound = errors.New("no documented operation for request")

// Validator validates HTTP requests against an OpenAPI document
type Validator struct {
	doc    *openapi3.T
	router routers.Router
}

// NewValidator loads the embedded document
func NewValidator() (*Validator, error) {
	return NewValidatorFromBytes(specYAML)
}

// NewValidatorFromBytes creates a validator from document bytes
func NewValidatorFromBytes(specBytes []byte) (*Validator, error) {
	loader := openapi3.NewLoader()

	doc, err := loader.LoadFromData(specBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to load OpenAPI spec: %w", err)
	}
	if err := doc.Validate(context.Background()); err != nil {
		return nil, fmt.Errorf("invalid OpenAPI spec: %w", err)
	}

	router, err := gorillamux.NewRouter(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to create router: %w", err)
	}

	return &Validator{doc: doc, router: router}, nil
}

// ValidateRequest validates req and restores its body for the next handler.
// The returned map has one entry per offending field or parameter.
func (v *Validator) ValidateRequest(ctx context.Context, req *http.Request) (map[string]string, error) {
	route, pathParams, err := v.router.FindRoute(req)
	if err != nil {
		return nil, ErrRouteNotFound
	}

	var body []byte
	if req.Body != nil {
		body, err = io.ReadAll(req.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read request body: %w", err)
		}
		req.Body = io.NopCloser(bytes.NewReader(body))
	}
	defer func() {
		if body != nil {
			req.Body = io.NopCloser(bytes.NewReader(body))
		}
	}()

	input := &openapi3filter.RequestValidationInput{
		Request:    req,
		PathParams: pathParams,
		Route:      route,
		Options: &openapi3filter.Options{
			MultiError:         true,
			AuthenticationFunc: openapi3filter.NoopAuthenticationFunc,
		},
	}

	if err := openapi3filter.ValidateRequest(ctx, input); err != nil {
		return fieldErrors(err), nil
	}
	return nil, nil
}

// OperationID returns the operation ID for a given request
func (v *Validator) OperationID(req *http.Request) (string, error) {
	route, _, err := v.router.FindRoute(req)
	if err != nil {
		return "", ErrRouteNotFound
	}
	return route.Operation.OperationID, nil
}

// Document returns the parsed OpenAPI document
func (v *Validator) Document() *openapi3.T {
	return v.doc
}

func fieldErrors(err error) map[string]string {
	fields := make(map[string]string)

	var multi openapi3.MultiError
	if errors.As(err, &multi) {
		for _, e := range multi {
			addFieldError(fields, e)
		}
	} else {
		addFieldError(fields, err)
	}
	return fields
}

func addFieldError(fields map[string]string, err error) {
	var reqErr *openapi3filter.RequestError
	if !errors.As(err, &reqErr) {
		fields["request"] = err.Error()
		return
	}

	key := "body"
	if reqErr.Parameter != nil {
		key = reqErr.Parameter.Name
	}

	var schemaErr *openapi3.SchemaError
	var nested openapi3.MultiError
	switch {
	case errors.As(reqErr.Err, &nested):
		for _, e := range nested {
			addSchemaError(fields, key, e)
		}
		return
	case errors.As(reqErr.Err, &schemaErr):
		addSchemaError(fields, key, schemaErr)
		return
	}

	fields[key] = reqErr.Reason
	if fields[key] == "" && reqErr.Err != nil {
		fields[key] = reqErr.Err.Error()
	}
}

func addSchemaError(fields map[string]string, key string, err error) {
	var schemaErr *openapi3.SchemaError
	if !errors.As(err, &schemaErr) {
		fields[key] = err.Error()
		return
	}
	if ptr := schemaErr.JSONPointer(); len(ptr) > 0 && key == "body" {
		key = strings.Join(ptr, ".")
	}
	fields[key] = schemaErr.Reason
}
