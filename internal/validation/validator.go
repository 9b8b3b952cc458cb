package validation

import (
	"fmt"

	validatorv10 "github.com/go-playground/validator/v10"
)

// New returns a configured validator with custom struct-level validation registered.
func New() *validatorv10.Validate {
	v := validatorv10.New()

	// subtotal + shipping + tax must equal the total the client will be charged
	v.RegisterStructValidation(amountsStructValidation, Amounts{})

	return v
}

func amountsStructValidation(sl validatorv10.StructLevel) {
	a := sl.Current().Interface().(Amounts)

	if sum := a.Subtotal + a.Shipping + a.Tax; sum != a.Total {
		sl.ReportError(a.Total, "total", "Total", "amounts_sum", fmt.Sprintf("%d+%d+%d != %d", a.Subtotal, a.Shipping, a.Tax, a.Total))
	}
}
