package checkout

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofrs/uuid"
)

// Readiness is the outcome of a readiness-to-pay check.
type Readiness struct {
	Ready  bool     `json:"ready"`
	Issues []string `json:"issues"`
}

type Validator struct {
	validate *validator.Validate
}

func NewValidator() *Validator {
	validate := validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Validator{validate: validate}
}

// Validate collects every blocking issue; it never stops at the first one.
// termsAccepted is the caller's view of terms acceptance for this checkout.
// Consent checkboxes are only demanded while the profile itself has not
// accepted the terms.
func (v *Validator) Validate(profile Profile, shipping Address, billing BillingAddress, items []CartItem, termsAccepted bool, consent Consent) Readiness {
	var issues []string

	issues = append(issues, v.structIssues("profile", profile)...)
	issues = append(issues, v.structIssues("shipping address", shipping)...)
	issues = append(issues, v.structIssues("billing address", billing)...)

	profileAccepted := profile.TermsAccepted
	needsCheckboxAcceptance := !profileAccepted && !consent.All()
	if needsCheckboxAcceptance {
		if !consent.Terms {
			issues = append(issues, "accept the terms and conditions")
		}
		if !consent.Privacy {
			issues = append(issues, "accept the privacy policy")
		}
		if !consent.Processing {
			issues = append(issues, "consent to processing of personal data")
		}
	}
	if !termsAccepted && !(needsCheckboxAcceptance && !consent.Terms) {
		issues = append(issues, "terms and conditions have not been accepted")
	}

	if len(items) == 0 {
		issues = append(issues, "cart is empty")
	}
	for i, item := range items {
		label := fmt.Sprintf("cart item %d", i+1)
		if item.ProductName != "" {
			label = fmt.Sprintf("cart item %q", item.ProductName)
		}
		if item.ProductID == uuid.Nil {
			issues = append(issues, label+": product is missing")
		}
		if item.StoreID == uuid.Nil {
			issues = append(issues, label+": store is missing")
		}
		if item.Quantity < 1 {
			issues = append(issues, label+": quantity must be at least 1")
		}
		if item.UnitPrice.IsNegative() {
			issues = append(issues, label+": price cannot be negative")
		}
	}

	return Readiness{Ready: len(issues) == 0, Issues: issues}
}

func (v *Validator) structIssues(prefix string, s any) []string {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return []string{prefix + ": is invalid"}
	}
	return formatValidationErrors(prefix, validationErrors)
}

func formatValidationErrors(prefix string, errs validator.ValidationErrors) []string {
	out := make([]string, 0, len(errs))
	for _, fe := range errs {
		field := strings.ReplaceAll(fe.Field(), "_", " ")
		var msg string
		switch fe.Tag() {
		case "required":
			msg = field + " is required"
		case "email":
			msg = field + " must be a valid email address"
		default:
			msg = field + " is invalid"
		}
		out = append(out, prefix+": "+msg)
	}
	return out
}
