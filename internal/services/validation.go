package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// ErrorResponse represents error response structure
type ErrorResponse struct {
	Error   string            `json:"error"`             // Error message
	Details map[string]string `json:"details,omitempty"` // Validation details
}

// ValidationHelper provides shared validation functionality
type ValidationHelper struct {
	validator *validator.Validate
}

// NewValidationHelper creates a new validation helper. Besides the built-in
// tags it understands `minor_units`: a string holding a positive whole number.
func NewValidationHelper() *ValidationHelper {
	v := validator.New()
	v.RegisterValidation("minor_units", func(fl validator.FieldLevel) bool {
		_, err := ParseMinorUnits(fl.Field().String())
		return err == nil
	})
	return &ValidationHelper{
		validator: v,
	}
}

// ValidateStruct validates a struct and returns validation errors
func (vh *ValidationHelper) ValidateStruct(s any) error {
	return vh.validator.Struct(s)
}

var minorUnitsPattern = regexp.MustCompile(`^[1-9][0-9]*$`)

// ParseMinorUnits parses a plain positive integer string of minor units.
// Signs, leading zeros, fractions, exponents and values outside int64 are
// rejected.
func ParseMinorUnits(s string) (int64, error) {
	if !minorUnitsPattern.MatchString(s) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	d, err := decimal.NewFromString(s)
	if err != nil || !d.BigInt().IsInt64() {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return d.IntPart(), nil
}

// SendErrorResponse sends a JSON error response
func SendErrorResponse(w http.ResponseWriter, message string, statusCode int, validationErr error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	errorResp := ErrorResponse{Error: message}
	var fieldErrs validator.ValidationErrors
	if errors.As(validationErr, &fieldErrs) {
		errorResp.Details = make(map[string]string)
		for _, err := range fieldErrs {
			errorResp.Details[err.Field()] = fmt.Sprintf("Field Validation Failed on '%s' tag", err.Tag())
		}
	}

	json.NewEncoder(w).Encode(errorResp)
}
