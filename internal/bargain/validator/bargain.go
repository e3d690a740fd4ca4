package validator

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"bargain/pkg/logger"
	"bargain/pkg/model"

	"github.com/go-playground/validator/v10"
)

var eventNameRegex = regexp.MustCompile(`^[a-z][a-z0-9_]*(\.[a-z][a-z0-9_]*)*$`)

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

// Details renders the errors for an error response body.
func (v ValidationErrors) Details() map[string]any {
	fields := make(map[string]string, len(v))
	for _, err := range v {
		fields[err.Field] = err.Message
	}
	return map[string]any{"fields": fields}
}

type BargainValidator struct {
	validate *validator.Validate
	logger   *logger.Logger
}

func NewBargainValidator(log *logger.Logger) *BargainValidator {
	v := validator.New()

	if err := v.RegisterValidation("product_type", validateProductType); err != nil {
		log.Fatal("Failed to register 'product_type' validator", "error", err)
	}
	if err := v.RegisterValidation("inventory_state", validateInventoryState); err != nil {
		log.Fatal("Failed to register 'inventory_state' validator", "error", err)
	}
	if err := v.RegisterValidation("event_name", validateEventName); err != nil {
		log.Fatal("Failed to register 'event_name' validator", "error", err)
	}

	return &BargainValidator{
		validate: v,
		logger:   log,
	}
}

func validateProductType(fl validator.FieldLevel) bool {
	return model.ProductType(fl.Field().String()).Valid()
}

func validateInventoryState(fl validator.FieldLevel) bool {
	switch model.InventoryState(fl.Field().String()) {
	case model.InventoryAvailable, model.InventoryStale, model.InventorySoldOut:
		return true
	}
	return false
}

func validateEventName(fl validator.FieldLevel) bool {
	return eventNameRegex.MatchString(fl.Field().String())
}

func (v *BargainValidator) ValidateStart(req *model.StartSessionRequest) error {
	if err := v.check(req); err != nil {
		return err
	}
	if len(req.Product.Attrs) > 50 {
		return ValidationErrors{{Field: "Attrs", Message: "attrs must have at most 50 entries"}}
	}
	return nil
}

func (v *BargainValidator) ValidateOffer(req *model.OfferRequest) error {
	if err := v.check(req); err != nil {
		return err
	}
	if req.Signals != nil {
		return v.check(req.Signals)
	}
	return nil
}

func (v *BargainValidator) ValidateAccept(req *model.AcceptRequest) error {
	return v.check(req)
}

func (v *BargainValidator) ValidateEvent(req *model.LogEventRequest) error {
	if err := v.check(req); err != nil {
		return err
	}
	if len(req.Payload) > 50 {
		return ValidationErrors{{Field: "Payload", Message: "payload must have at most 50 entries"}}
	}
	return nil
}

func (v *BargainValidator) check(s any) error {
	if err := v.validate.Struct(s); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			return v.translateValidationErrors(validationErrs)
		}
		return err
	}
	return nil
}

func (v *BargainValidator) translateValidationErrors(errs validator.ValidationErrors) ValidationErrors {
	var validationErrors ValidationErrors

	for _, err := range errs {
		message := err.Error()

		switch err.Tag() {
		case "required":
			message = fmt.Sprintf("%s is required", err.Field())
		case "max":
			message = fmt.Sprintf("%s must be at most %s", err.Field(), err.Param())
		case "gt":
			message = fmt.Sprintf("%s must be greater than %s", err.Field(), err.Param())
		case "gte":
			message = fmt.Sprintf("%s must be at least %s", err.Field(), err.Param())
		case "lte":
			message = fmt.Sprintf("%s must be at most %s", err.Field(), err.Param())
		case "len":
			message = fmt.Sprintf("%s must be exactly %s characters", err.Field(), err.Param())
		case "uuid":
			message = fmt.Sprintf("%s must be a valid UUID", err.Field())
		case "oneof":
			message = fmt.Sprintf("%s must be one of: %s", err.Field(), err.Param())
		case "datetime":
			message = fmt.Sprintf("%s must be a date in YYYY-MM-DD format", err.Field())
		case "inventory_state":
			message = fmt.Sprintf("%s must be one of: AVAILABLE STALE SOLD_OUT", err.Field())
		case "product_type":
			message = fmt.Sprintf("%s must be one of: flight hotel sightseeing", err.Field())
		case "event_name":
			message = fmt.Sprintf("%s must be a dotted lowercase name", err.Field())
		case "alphanum", "alpha":
			message = fmt.Sprintf("%s must contain only letters or digits", err.Field())
		case "base64rawurl":
			message = fmt.Sprintf("%s must be a capsule token", err.Field())
		}

		validationErrors = append(validationErrors, ValidationError{
			Field:   err.Field(),
			Message: message,
		})
	}

	return validationErrors
}
