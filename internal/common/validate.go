package common

import (
	"errors"
	"strings"

	validator "github.com/go-playground/validator/v10"
)

// ValidationDetails flattens validator errors into a field -> rule map
// suitable for the JSON error envelope.
func ValidationDetails(err error) map[string]any {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	details := make(map[string]any, len(verrs))
	for _, fe := range verrs {
		details[strings.ToLower(fe.Field()[:1])+fe.Field()[1:]] = fe.Tag()
	}
	return details
}
