package ledgerdelivery

import (
	"github.com/go-playground/validator/v10"

	"github.com/flexipay/flexipay/pkg/pixpkg"
)

// ValidPixKey validates whether the field holds a plausible PIX key.
var ValidPixKey validator.Func = func(fl validator.FieldLevel) bool {
	if key, ok := fl.Field().Interface().(string); ok {
		return pixpkg.IsValidKey(key)
	}
	return false
}
