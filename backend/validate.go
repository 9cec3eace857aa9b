package backend

import (
	"errors"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
	})
	return validate
}

// Validate runs the client-side checks on a task before it is sent.
func (t Task) Validate() error {
	err := getValidator().Struct(t)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return &ValidationError{
			Field:  "expiryDate",
			Value:  t.ExpiryDate,
			Reason: "failed " + fe.Tag() + " check",
		}
	}
	return err
}
