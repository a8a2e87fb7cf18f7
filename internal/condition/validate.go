package condition

import "errors"

// Validate checks one condition. Decode performs the shape, operator and
// regex checks; Validate adds the checks that do not depend on the payload.
func Validate(c Condition) []ValidationError {
	var errs []ValidationError
	if c.ID == "" {
		errs = append(errs, ValidationError{Field: "id", Message: "id is required"})
	}
	if _, err := Decode(c); err != nil {
		var ve ValidationError
		if errors.As(err, &ve) {
			errs = append(errs, ve)
		} else {
			errs = append(errs, ValidationError{ConditionID: c.ID, Field: "value", Message: err.Error()})
		}
	}
	return errs
}
