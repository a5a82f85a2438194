package application

import (
	"errors"
	"fmt"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/go-playground/validator/v10"

	"github.com/ahrav/go-ragqa/internal/domain"
	"github.com/ahrav/go-ragqa/internal/ports"
)

// knownUnitTypes are the keys accepted under the config's units section.
var knownUnitTypes = map[string]struct{}{
	UnitTypeRetrieval:   {},
	UnitTypeAnswer:      {},
	UnitTypeValidation:  {},
	UnitTypeAnswerScore: {},
	UnitTypeRelevance:   {},
}

// RegisterConfigValidators adds the custom tags used by Config:
// globpattern for ingest patterns and unitoverrides for the units section.
func RegisterConfigValidators(v *validator.Validate) error {
	if err := v.RegisterValidation("globpattern", validateGlobPattern); err != nil {
		return fmt.Errorf("failed to register globpattern validator: %w", err)
	}
	if err := v.RegisterValidation("unitoverrides", validateUnitOverrides); err != nil {
		return fmt.Errorf("failed to register unitoverrides validator: %w", err)
	}
	return nil
}

// validateGlobPattern accepts any pattern doublestar can compile.
func validateGlobPattern(fl validator.FieldLevel) bool {
	pattern := fl.Field().String()
	return pattern != "" && doublestar.ValidatePattern(pattern)
}

// validateUnitOverrides rejects override sections for unknown unit types.
// The parameters themselves are checked when the unit is built.
func validateUnitOverrides(fl validator.FieldLevel) bool {
	overrides, ok := fl.Field().Interface().(map[string]map[string]any)
	if !ok {
		return false
	}
	for unitType := range overrides {
		if _, known := knownUnitTypes[unitType]; !known {
			return false
		}
	}
	return true
}

// newConfigError turns validator output into a ConfigError keyed by the
// first failing field and carrying every violation.
func newConfigError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return ports.NewConfigError("config", err)
	}

	details := domain.NewValidationError("config")
	for _, fe := range verrs {
		details.AddError(describeFieldError(fe))
	}
	return ports.NewConfigError(verrs[0].Namespace(), details)
}

func describeFieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_if":
		return fmt.Sprintf("%s is required", fe.Namespace())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %v", fe.Namespace(), fe.Param(), fe.Value())
	case "min", "max", "ltfield":
		return fmt.Sprintf("%s violates %s=%s (got %v)", fe.Namespace(), fe.Tag(), fe.Param(), fe.Value())
	case "globpattern":
		return fmt.Sprintf("%s is not a valid glob pattern: %v", fe.Namespace(), fe.Value())
	case "unitoverrides":
		return fmt.Sprintf("%s names an unknown unit type", fe.Namespace())
	default:
		return fmt.Sprintf("%s failed %s validation", fe.Namespace(), fe.Tag())
	}
}
