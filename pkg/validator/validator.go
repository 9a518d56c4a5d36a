package validator

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var hexSignature = regexp.MustCompile(`^0x[0-9a-fA-F]{130}$`)

// Register installs the custom tags on gin's validator engine.
func Register() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return errors.New("gin validator engine is not go-playground/validator")
	}
	return RegisterOn(v)
}

// RegisterOn installs the custom tags on v.
func RegisterOn(v *validator.Validate) error {
	if err := v.RegisterValidation("eth_addr", func(fl validator.FieldLevel) bool {
		return common.IsHexAddress(fl.Field().String())
	}); err != nil {
		return err
	}
	return v.RegisterValidation("hex_signature", func(fl validator.FieldLevel) bool {
		return hexSignature.MatchString(fl.Field().String())
	})
}

// RegisterEnum installs tag on gin's engine, accepting only values.
func RegisterEnum(tag string, values ...string) error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return errors.New("gin validator engine is not go-playground/validator")
	}
	return RegisterEnumOn(v, tag, values...)
}

func RegisterEnumOn(v *validator.Validate, tag string, values ...string) error {
	allowed := make(map[string]bool, len(values))
	for _, value := range values {
		allowed[value] = true
	}
	return v.RegisterValidation(tag, func(fl validator.FieldLevel) bool {
		return allowed[fl.Field().String()]
	})
}

func FormatValidationError(err error) string {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		var messages []string
		for _, fieldError := range validationErrors {
			messages = append(messages, getFieldErrorMessage(fieldError))
		}
		return strings.Join(messages, "; ")
	}
	return err.Error()
}

func getFieldErrorMessage(fe validator.FieldError) string {
	field := getFieldName(fe.Field())

	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "email":
		return fmt.Sprintf("%s must be a valid email", field)
	case "url":
		return fmt.Sprintf("%s must be a valid URL", field)
	case "eth_addr":
		return fmt.Sprintf("%s must be a valid wallet address", field)
	case "hex_signature":
		return fmt.Sprintf("%s must be a 65-byte hex signature", field)
	case "step_key":
		return fmt.Sprintf("%s must be a valid onboarding step", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, fe.Param())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, fe.Param())
	case "min":
		if fe.Kind().String() == "string" {
			return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
		}
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max":
		if fe.Kind().String() == "string" {
			return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
		}
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}

func getFieldName(field string) string {
	fieldNames := map[string]string{
		"WalletAddress":   "Wallet address",
		"ToWallet":        "Recipient wallet",
		"StepKey":         "Step key",
		"ActivityType":    "Activity type",
		"ChainID":         "Chain ID",
		"GithubUsername":  "GitHub username",
		"DiscordUsername": "Discord username",
	}

	if name, ok := fieldNames[field]; ok {
		return name
	}
	return field
}
