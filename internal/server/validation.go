package server

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"gitlab.com/billit/billit-api/internal/models"
)

var registerOnce sync.Once

// registerValidators adds Billit tags to gin's validator and reports fields
// by their JSON names.
func registerValidators() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			if name == "" {
				return f.Name
			}
			return name
		})
		_ = v.RegisterValidation("integration", func(fl validator.FieldLevel) bool {
			return models.Integration(fl.Field().String()).Valid()
		})
	})
}

// bindMessage turns a binding error into a field specific message.
func bindMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return "invalid request body"
	}

	var missing, invalid []string
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			missing = append(missing, fe.Field())
		case "integration":
			invalid = append(invalid, fmt.Sprintf("%s must be one of holded, odoo, xero", fe.Field()))
		default:
			invalid = append(invalid, fmt.Sprintf("%s is invalid", fe.Field()))
		}
	}

	var parts []string
	if len(missing) > 0 {
		parts = append(parts, "missing required fields: "+strings.Join(missing, ", "))
	}
	parts = append(parts, invalid...)
	return strings.Join(parts, "; ")
}
