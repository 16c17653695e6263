package conf

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/tphakala/audiodevicebuffer/internal/errors"
	"github.com/tphakala/audiodevicebuffer/internal/logger"
)

// ValidationError collects every problem found in a Settings value.
type ValidationError struct {
	Errors []string
}

func (v ValidationError) Error() string {
	return fmt.Sprintf("validation errors: %s", strings.Join(v.Errors, "; "))
}

var validate *validator.Validate

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())

	// report keys the way they appear in config.yaml
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})
}

// ValidateSettings checks struct tag rules and the rules that span fields.
func ValidateSettings(s *Settings) error {
	var problems []string

	if err := validate.Struct(s); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		for _, e := range verrs {
			problems = append(problems, fmt.Sprintf("%s %s", fieldPath(e), formatValidationMessage(e)))
		}
	}

	problems = append(problems, validateTransport(&s.Transport, &s.Device)...)
	problems = append(problems, validateLogLevels(&s.Log)...)

	if len(problems) == 0 {
		return nil
	}
	return errors.New(ValidationError{Errors: problems}).
		Component(ComponentConf).
		Category(errors.CategoryValidation).
		Build()
}

func validateTransport(t *TransportSettings, d *DeviceSettings) []string {
	var problems []string
	if t.Type == "wav" && t.WAVInput == "" && t.WAVOutput == "" {
		problems = append(problems, "transport.wavinput or transport.wavoutput is required for the wav transport")
	}
	if t.Type == "loopback" && d.Mode != "duplex" {
		problems = append(problems, "the loopback transport needs device.mode duplex")
	}
	return problems
}

func validateLogLevels(l *logger.LoggingConfig) []string {
	var problems []string
	check := func(key, level string) {
		if level != "" && !logger.ValidLevel(level) {
			problems = append(problems, fmt.Sprintf("%s has unknown level %q", key, level))
		}
	}
	check("log.default_level", l.DefaultLevel)
	if l.Console != nil {
		check("log.console.level", l.Console.Level)
	}
	if l.FileOutput != nil {
		check("log.file_output.level", l.FileOutput.Level)
		if l.FileOutput.Enabled && l.FileOutput.Path == "" {
			problems = append(problems, "log.file_output.path is required when file output is enabled")
		}
	}
	for module, level := range l.ModuleLevels {
		check("log.module_levels."+module, level)
	}
	return problems
}

// fieldPath turns "Settings.audio.samplerate" into "audio.samplerate".
func fieldPath(e validator.FieldError) string {
	ns := e.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

// formatValidationMessage creates a human-readable message from a validator error.
func formatValidationMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required", "required_if":
		return "is required"
	case "gt":
		return fmt.Sprintf("must be greater than %s", e.Param())
	case "gte":
		return fmt.Sprintf("must be greater than or equal to %s", e.Param())
	case "lte":
		return fmt.Sprintf("must be less than or equal to %s", e.Param())
	case "url":
		return "must be a valid URL"
	case "oneof":
		return fmt.Sprintf("must be one of: %s", e.Param())
	default:
		return fmt.Sprintf("failed validation '%s'", e.Tag())
	}
}
