package api

import (
	"encoding/json"
	"net/http"
)

// JSONResponse is the envelope of every JSON body the API writes.
type JSONResponse struct {
	Data  any            `json:"data,omitempty"`
	Meta  map[string]any `json:"meta,omitempty"`
	Error *ErrorDetail   `json:"error,omitempty"`
}

// ErrorDetail describes a failed request. Code is stable and machine readable.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
	Details any    `json:"details,omitempty"`
}

// Response renders itself to w.
type Response interface {
	Render(w http.ResponseWriter, r *http.Request) error
}

type jsonResponse struct {
	status int
	body   any
}

func (j jsonResponse) Render(w http.ResponseWriter, _ *http.Request) error {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(j.status)
	return json.NewEncoder(w).Encode(j.body)
}

// JSON wraps data in the envelope with status 200.
func JSON(data any) Response {
	return jsonResponse{status: http.StatusOK, body: JSONResponse{Data: data}}
}

// JSONWithStatus wraps data in the envelope with the given status.
func JSONWithStatus(status int, data any) Response {
	return jsonResponse{status: status, body: JSONResponse{Data: data}}
}

// JSONList wraps a collection and reports its size in meta.
func JSONList[T any](items []T) Response {
	if items == nil {
		items = []T{}
	}
	return jsonResponse{status: http.StatusOK, body: JSONResponse{
		Data: items,
		Meta: map[string]any{"count": len(items)},
	}}
}

// Raw writes body without the envelope. Payment processors expect their
// acknowledgement shape.
func Raw(status int, body any) Response {
	return jsonResponse{status: status, body: body}
}

type noContent struct{}

func (noContent) Render(w http.ResponseWriter, _ *http.Request) error {
	w.WriteHeader(http.StatusNoContent)
	return nil
}

// NoContent writes a bare 204.
func NoContent() Response { return noContent{} }
