package server

import (
	"bytes"
	"context"
	"encoding"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"

	apierrors "github.com/maruel/gallery/internal/errors"
	"github.com/maruel/gallery/internal/server/dto"
	"github.com/maruel/gallery/internal/server/ratelimit"
)

// maxJSONBody bounds JSON request bodies of routes that do not set a limit.
const maxJSONBody = 1 << 20

// Wrap wraps a handler function to work as an http.Handler.
// The function must have signature: func(context.Context, *In) (*Out, error)
// where In can be unmarshalled from JSON and Out is a struct.
// Path parameters can be extracted by tagging struct fields with `path:"name"`
// and query parameters with `query:"name"`. *In must implement
// dto.Validatable.
//
// Example:
//
//	type GetImageRequest struct {
//	    ID int64 `path:"id"`
//	}
//
//	func (h *Handler) GetImage(ctx context.Context, req *GetImageRequest) (*Response, error)
func Wrap[In any, PtrIn interface {
	*In
	dto.Validatable
}, Out any](fn func(context.Context, PtrIn) (*Out, error)) http.Handler {
	return WrapLimit(fn, maxJSONBody)
}

// WrapLimit is Wrap with a JSON body of at most maxBytes.
func WrapLimit[In any, PtrIn interface {
	*In
	dto.Validatable
}, Out any](fn func(context.Context, PtrIn) (*Out, error), maxBytes int64) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		input := new(In)
		if err := readAndDecodeBody(w, r, input, maxBytes); err != nil {
			writeError(ctx, w, err)
			return
		}
		if err := populatePathParams(r, input); err != nil {
			writeError(ctx, w, err)
			return
		}
		populateQueryParams(r, input)
		if err := PtrIn(input).Validate(); err != nil {
			writeError(ctx, w, err)
			return
		}
		output, err := fn(ctx, PtrIn(input))
		writeJSONResponse(ctx, w, output, err)
	})
}

// WrapRaw wraps a handler that reads the request itself, such as a multipart
// upload. The body is limited to maxBytes.
func WrapRaw[Out any](fn func(context.Context, *http.Request) (*Out, error), maxBytes int64) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
		output, err := fn(r.Context(), r)
		writeJSONResponse(r.Context(), w, output, err)
	})
}

// readAndDecodeBody reads the request body with a size limit and decodes
// JSON into input. An empty body leaves input untouched.
func readAndDecodeBody(w http.ResponseWriter, r *http.Request, input any, maxBytes int64) error {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBytes))
	if err2 := r.Body.Close(); err == nil {
		err = err2
	}
	if err != nil {
		if mbe := (*http.MaxBytesError)(nil); errors.As(err, &mbe) {
			return apierrors.PayloadTooLarge(mbe.Limit)
		}
		return apierrors.BadRequest("Failed to read request body").Wrap(err)
	}
	if len(body) == 0 {
		return nil
	}
	d := json.NewDecoder(bytes.NewReader(body))
	d.DisallowUnknownFields()
	if err := d.Decode(input); err != nil {
		return apierrors.InvalidFormat("request body", err)
	}
	return nil
}

// writeJSONResponse writes output, or the error response when err is set.
func writeJSONResponse[Out any](ctx context.Context, w http.ResponseWriter, output *Out, err error) {
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(output); err != nil {
		slog.ErrorContext(ctx, "Failed to encode response", "err", err)
	}
}

// writeError maps err to its status and writes the error response. Errors
// that carry no status are internal errors.
func writeError(ctx context.Context, w http.ResponseWriter, err error) {
	statusCode := http.StatusInternalServerError
	errorCode := apierrors.ErrInternal
	var details map[string]any
	var ewsErr apierrors.ErrorWithStatus
	if errors.As(err, &ewsErr) {
		statusCode = ewsErr.StatusCode()
		errorCode = ewsErr.Code()
		details = ewsErr.Details()
	}
	level := slog.LevelWarn
	if statusCode >= 500 {
		level = slog.LevelError
	}
	slog.Log(ctx, level, "Handler error", "err", err, "statusCode", statusCode, "code", errorCode)
	writeErrorResponseWithCode(w, statusCode, errorCode, err.Error(), details)
}

// writeErrorResponseWithCode writes a detailed error response as JSON with code and details.
func writeErrorResponseWithCode(w http.ResponseWriter, statusCode int, code apierrors.ErrorCode, message string, details map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	response := dto.ErrorResponse{
		Error:   dto.ErrorDetails{Code: string(code), Message: message},
		Details: details,
	}
	if err := json.NewEncoder(w).Encode(response); err != nil {
		slog.Error("Failed to encode error response", "err", err)
	}
}

// writeRateLimitError writes a 429 rate limit error response.
func writeRateLimitError(w http.ResponseWriter, r *http.Request, res ratelimit.Result) {
	apiErr := apierrors.RateLimited(int(res.RetryAfter.Seconds()))
	slog.WarnContext(r.Context(), "Rate limited", "method", r.Method, "path", r.URL.Path)
	writeErrorResponseWithCode(w, apiErr.StatusCode(), apiErr.Code(), apiErr.Error(), apiErr.Details())
}

// populatePathParams extracts path parameters from the request and populates
// struct fields tagged with `path:"paramName"`.
func populatePathParams(r *http.Request, input any) error {
	elem, ok := structElem(input)
	if !ok {
		return nil
	}
	typ := elem.Type()
	for i := range typ.NumField() {
		field := typ.Field(i)
		tag := field.Tag.Get("path")
		if tag == "" {
			continue
		}
		paramValue := r.PathValue(tag)
		if paramValue == "" {
			continue
		}
		//nolint:exhaustive // Only string and int64 path parameters exist.
		switch field.Type.Kind() {
		case reflect.String:
			elem.Field(i).SetString(paramValue)
		case reflect.Int64:
			v, err := strconv.ParseInt(paramValue, 10, 64)
			if err != nil {
				return apierrors.InvalidFormat(tag, err)
			}
			elem.Field(i).SetInt(v)
		}
	}
	return nil
}

// populateQueryParams extracts query parameters from the request and populates
// struct fields tagged with `query:"paramName"`.
func populateQueryParams(r *http.Request, input any) {
	elem, ok := structElem(input)
	if !ok {
		return
	}
	query := r.URL.Query()
	typ := elem.Type()
	for i := range typ.NumField() {
		field := typ.Field(i)
		tag := field.Tag.Get("query")
		if tag == "" {
			continue
		}
		paramValue := query.Get(tag)
		if paramValue == "" {
			continue
		}
		fieldVal := elem.Field(i)
		//nolint:exhaustive // Other kinds go through encoding.TextUnmarshaler.
		switch field.Type.Kind() {
		case reflect.String:
			fieldVal.SetString(paramValue)
		case reflect.Int:
			if intVal, err := strconv.Atoi(paramValue); err == nil {
				fieldVal.SetInt(int64(intVal))
			}
		default:
			if u, ok := fieldVal.Addr().Interface().(encoding.TextUnmarshaler); ok {
				_ = u.UnmarshalText([]byte(paramValue))
			}
		}
	}
}

func structElem(input any) (reflect.Value, bool) {
	val := reflect.ValueOf(input)
	if val.Kind() != reflect.Pointer {
		return reflect.Value{}, false
	}
	elem := val.Elem()
	return elem, elem.Kind() == reflect.Struct
}
