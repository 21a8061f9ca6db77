package auth

import (
	"chat-core/errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// ValidateUserID accepts the identifiers a token may carry.
func ValidateUserID(userID string) error {
	if err := validate.Var(userID, "required,max=128,printascii,excludesall= "); err != nil {
		return fmt.Errorf("%w: user id: %v", errors.ErrInvalidContent, err)
	}
	return nil
}
