// Package validator provides custom validation functions for Gin's binding engine.
package validator

import (
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// Register registers all custom validators with the Gin binding engine.
func Register() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = v.RegisterValidation("order_status", validateOrderStatus)
		_ = v.RegisterValidation("dgt0", validateDecimalPositive)
		_ = v.RegisterValidation("dge0", validateDecimalNonNegative)
	}
}

func validateOrderStatus(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "pending", "processing", "completed", "cancelled":
		return true
	}
	return false
}

func validateDecimalPositive(fl validator.FieldLevel) bool {
	d, ok := fl.Field().Interface().(decimal.Decimal)
	return ok && d.IsPositive()
}

func validateDecimalNonNegative(fl validator.FieldLevel) bool {
	d, ok := fl.Field().Interface().(decimal.Decimal)
	return ok && !d.IsNegative()
}
