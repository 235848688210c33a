package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// MaxBodyBytes caps JSON request bodies.
const MaxBodyBytes = 1 << 20

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report fields by their json name.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ErrorBody is the JSON error envelope used by every endpoint.
type ErrorBody struct {
	Error       string            `json:"error"`
	Description string            `json:"error_description"`
	Fields      map[string]string `json:"fields,omitempty"`
}

// WriteJSON writes a JSON response with the given status code.
// It automatically sets the Content-Type header and Cache-Control headers.
func WriteJSON(w http.ResponseWriter, code int, v any) {
	NoCache(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError writes an ErrorBody.
func WriteError(w http.ResponseWriter, code int, errCode, desc string) {
	WriteJSON(w, code, ErrorBody{Error: errCode, Description: desc})
}

// NoCache sets the Cache-Control and Pragma headers to prevent caching.
// This is commonly required for sensitive responses like tokens.
func NoCache(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
}

// BindAndValidate decodes the JSON body into T and validates its struct
// tags. On failure it writes a 400 invalid_request response and returns
// false.
func BindAndValidate[T any](w http.ResponseWriter, r *http.Request) (T, bool) {
	var v T

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if err := dec.Decode(&v); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", decodeMessage(err))
		return v, false
	}

	if err := validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			WriteError(w, http.StatusBadRequest, "invalid_request", "request validation failed")
			return v, false
		}

		body := ErrorBody{
			Error:       "invalid_request",
			Description: "request validation failed",
			Fields:      make(map[string]string, len(verrs)),
		}
		for _, fe := range verrs {
			body.Fields[fe.Field()] = fieldMessage(fe)
		}
		WriteJSON(w, http.StatusBadRequest, body)
		return v, false
	}

	return v, true
}

func decodeMessage(err error) string {
	var typeErr *json.UnmarshalTypeError
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &typeErr):
		return fmt.Sprintf("invalid data type for field %q", typeErr.Field)
	case errors.As(err, &tooLarge):
		return "request body too large"
	default:
		return "request body must be valid JSON"
	}
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "this field is required"
	case "min":
		return fmt.Sprintf("value is too short (minimum %s)", fe.Param())
	case "max":
		return fmt.Sprintf("value is too long (maximum %s)", fe.Param())
	case "len":
		return fmt.Sprintf("value must be exactly %s characters", fe.Param())
	case "numeric":
		return "value must contain digits only"
	default:
		return "invalid value"
	}
}
