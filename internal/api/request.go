package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/nerrad567/guard-imoto-core/internal/device"
)

var validate = newValidator()

// newValidator reports fields by their JSON names and adds the serial tag.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	//nolint:errcheck // tag name and function are static
	v.RegisterValidation("serial", func(fl validator.FieldLevel) bool {
		return device.ValidSerial(fl.Field().String())
	})
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decodeJSON decodes the request body into v and validates its struct
// tags. With strict set, unknown fields are rejected.
func decodeJSON(r *http.Request, v any, strict bool) error {
	if r.Body == nil {
		return errors.New("request body is required")
	}
	dec := json.NewDecoder(r.Body)
	if strict {
		dec.DisallowUnknownFields()
	}
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	if err := validate.Struct(v); err != nil {
		return validationError(err)
	}
	return nil
}

// validationError turns validator output into a message naming the first
// failing field.
func validationError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return fmt.Errorf("field %s failed %s validation", fe.Field(), fe.Tag())
	}
	return err
}

// queryInt reads a non-negative integer query parameter, falling back to def.
func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}
