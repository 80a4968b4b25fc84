package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/trunov/mediafinalizer/internal/entities"
)

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func validationErrorsToMap(err error) map[string]string {
	errs := map[string]string{}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, e := range verrs {
			field := e.Field()
			switch e.Tag() {
			case "required":
				errs[field] = "is required"
			case "max":
				errs[field] = "exceeds maximum length"
			default:
				errs[field] = "invalid value"
			}
		}
	} else {
		errs["error"] = err.Error()
	}
	return errs
}

// bearerToken extracts the token from "Authorization: Bearer <token>".
func bearerToken(r *http.Request) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(r.Header.Get("Authorization")), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, requestID string, kind entities.ErrorKind, message string, fields map[string]string) {
	writeJSON(w, kind.HTTPStatus(), ErrorResponse{
		Error:     ErrorBody{Kind: kind, Message: message, Fields: fields},
		RequestID: requestID,
	})
}

// writeFinalizeError renders a pipeline failure. Internal details are only
// shown for kinds the caller can act on.
func writeFinalizeError(w http.ResponseWriter, requestID string, err error) {
	body := ErrorBody{Kind: entities.KindOf(err), Message: err.Error()}

	var fe *entities.FinalizeError
	if errors.As(err, &fe) {
		body.Step = fe.Step
		body.Message = fe.Err.Error()
	}

	switch body.Kind {
	case entities.KindInternal, entities.KindDatastore:
		body.Message = http.StatusText(body.Kind.HTTPStatus())
	}

	writeJSON(w, body.Kind.HTTPStatus(), ErrorResponse{Error: body, RequestID: requestID})
}
