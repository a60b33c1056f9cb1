package types

import (
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	requestValidator     *validator.Validate
	requestValidatorOnce sync.Once
)

func getValidator() *validator.Validate {
	requestValidatorOnce.Do(func() {
		v := validator.New()
		_ = v.RegisterValidation("section", func(fl validator.FieldLevel) bool {
			return SectionID(fl.Field().String()).Valid()
		})
		requestValidator = v
	})
	return requestValidator
}

// Validate checks the request shape: a document, at least one known section, and
// either inline context or an http(s) context URL. A second round trip carries the
// model output instead, so it needs no context.
func (r *GenerationRequest) Validate() error {
	if r.IsSecondRoundTrip() {
		return getValidator().StructExcept(r, "ContextText")
	}
	return getValidator().Struct(r)
}

// Validate checks that a variant request names a document and a context.
func (r *VariantRequest) Validate() error {
	return getValidator().Struct(r)
}
