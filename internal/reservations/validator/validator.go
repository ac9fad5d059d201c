package validator

import (
	"errors"
	"fmt"
	"loanbook/pkg/logger"
	"loanbook/pkg/model"
	"strings"

	"github.com/go-playground/validator/v10"
)

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (v ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", v.Field, v.Message)
}

type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	if len(v) == 0 {
		return ""
	}
	var messages []string
	for _, err := range v {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("validation failed: %d error(s): [%s]", len(v), strings.Join(messages, "; "))
}

// Fields returns a field -> message map suitable for error details.
func (v ValidationErrors) Fields() map[string]any {
	fields := make(map[string]any, len(v))
	for _, err := range v {
		fields[err.Field] = err.Message
	}
	return fields
}

type Validator struct {
	validate *validator.Validate
	logger   *logger.Logger
}

func New(log *logger.Logger) *Validator {
	v := validator.New()
	v.RegisterStructValidation(validateRequestShape, model.Request{})

	log.Debug("Reservation validator initialized successfully")

	return &Validator{
		validate: v,
		logger:   log,
	}
}

// validateRequestShape enforces that a request asks either for a plain device
// count or for per-model sub-requests, never both, and names each model once.
func validateRequestShape(sl validator.StructLevel) {
	req := sl.Current().Interface().(model.Request)

	hasCount := req.DeviceCount > 0
	hasSubs := len(req.SubRequests) > 0
	if hasCount == hasSubs {
		sl.ReportError(req.DeviceCount, "DeviceCount", "DeviceCount", "count_xor_subrequests", "")
		return
	}

	seen := make(map[int64]struct{}, len(req.SubRequests))
	for _, sub := range req.SubRequests {
		if _, dup := seen[sub.ModelRef]; dup {
			sl.ReportError(req.SubRequests, "SubRequests", "SubRequests", "unique_model", "")
			return
		}
		seen[sub.ModelRef] = struct{}{}
	}
}

func (v *Validator) ValidateReservation(r *model.Reservation) error {
	if err := v.check(r); err != nil {
		return err
	}
	if !r.PlannedEndDate.After(r.StartDate) {
		return ValidationErrors{{Field: "PlannedEndDate", Message: "planned_end_date must be after start_date"}}
	}
	return nil
}

func (v *Validator) ValidateRequest(r *model.Request) error {
	if err := v.check(r); err != nil {
		return err
	}
	if !r.PlannedEndDate.After(r.StartDate) {
		return ValidationErrors{{Field: "PlannedEndDate", Message: "planned_end_date must be after start_date"}}
	}
	return nil
}

func (v *Validator) ValidateItem(item *model.Item) error {
	return v.check(item)
}

func (v *Validator) check(s any) error {
	if err := v.validate.Struct(s); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			return v.translateValidationErrors(validationErrs)
		}
		return err
	}
	return nil
}

func (v *Validator) translateValidationErrors(errs validator.ValidationErrors) ValidationErrors {
	var validationErrors ValidationErrors

	for _, err := range errs {
		message := err.Error()

		switch err.Tag() {
		case "required":
			message = fmt.Sprintf("%s is required", err.Field())
		case "min":
			message = fmt.Sprintf("%s must be at least %s", err.Field(), err.Param())
		case "max":
			message = fmt.Sprintf("%s must be at most %s", err.Field(), err.Param())
		case "gt":
			message = fmt.Sprintf("%s must be greater than %s", err.Field(), err.Param())
		case "gtfield":
			message = fmt.Sprintf("%s must be after %s", err.Field(), err.Param())
		case "unique":
			message = fmt.Sprintf("%s must not contain duplicates", err.Field())
		case "count_xor_subrequests":
			message = "exactly one of device_count or sub_requests must be set"
		case "unique_model":
			message = "each device model may appear only once in sub_requests"
		}

		validationErrors = append(validationErrors, ValidationError{
			Field:   err.Field(),
			Message: message,
		})
	}

	return validationErrors
}
