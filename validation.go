package auth

import (
	"regexp"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/nyaruka/phonenumbers"
)

// Field messages returned to the client
const (
	MsgPersonNameBlank       = "Person name can't be blank"
	MsgEmailBlank            = "Email can't be blank"
	MsgEmailFormat           = "Email should be in a proper address format"
	MsgPhoneBlank            = "Phone number can't be blank"
	MsgPhoneDigits           = "Phone number should contain digits only"
	MsgPhoneRegion           = "Phone number is not a valid number for the configured region"
	MsgPasswordBlank         = "Password can't be blank"
	MsgPasswordConfirmBlank  = "Password confirmation can't be blank"
	MsgPasswordMismatch      = "Passwords do not match"
	MsgProviderNotSupported  = "Login provider is not supported"
	maxRegistrationFieldSize = 256
)

// phoneDigits accepts ASCII digits only
var phoneDigits = regexp.MustCompile("^[0-9]+$")

// RegistrationRequest is the payload accepted by Register
type RegistrationRequest struct {
	PersonName      string `json:"person_name"`
	Email           string `json:"email"`
	PhoneNumber     string `json:"phone_number"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

// registrationFieldOrder is the order aggregated messages are joined in
var registrationFieldOrder = []string{
	"person_name",
	"email",
	"phone_number",
	"password",
	"confirm_password",
}

// Normalize trims the identity fields. Passwords are left untouched.
func (r RegistrationRequest) Normalize() RegistrationRequest {
	r.PersonName = strings.TrimSpace(r.PersonName)
	r.Email = strings.TrimSpace(r.Email)
	r.PhoneNumber = strings.TrimSpace(r.PhoneNumber)
	return r
}

// Validate checks the request shape. The error is a ValidationError whose
// message joins every failing field with "|".
func (r RegistrationRequest) Validate() error {
	return r.ValidateForRegion("")
}

// ValidateForRegion also checks the phone number against region when set.
func (r RegistrationRequest) ValidateForRegion(region string) error {
	r = r.Normalize()

	phoneRules := []validation.Rule{
		validation.Required.Error(MsgPhoneBlank),
		validation.Match(phoneDigits).Error(MsgPhoneDigits),
	}
	if region != "" {
		phoneRules = append(phoneRules, validation.By(validPhoneForRegion(region)))
	}

	err := validation.ValidateStruct(&r,
		validation.Field(&r.PersonName,
			validation.Required.Error(MsgPersonNameBlank),
			validation.Length(0, maxRegistrationFieldSize),
		),
		validation.Field(&r.Email,
			validation.Required.Error(MsgEmailBlank),
			is.Email.Error(MsgEmailFormat),
		),
		validation.Field(&r.PhoneNumber, phoneRules...),
		validation.Field(&r.Password,
			validation.Required.Error(MsgPasswordBlank),
		),
		validation.Field(&r.ConfirmPassword,
			validation.Required.Error(MsgPasswordConfirmBlank),
			validation.By(ValidateStringEquals(r.Password, MsgPasswordMismatch)),
		),
	)

	return orderedValidationError(err, registrationFieldOrder)
}

// LoginRequest is the payload accepted by Login. A non empty Provider asks
// for a federated login and makes the credentials irrelevant.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Provider string `json:"provider"`
}

var loginFieldOrder = []string{"email", "password"}

// IsFederated reports whether the request asks for an external provider
func (r LoginRequest) IsFederated() bool {
	return strings.TrimSpace(r.Provider) != ""
}

// Validate checks the credential fields of a password login
func (r LoginRequest) Validate() error {
	if r.IsFederated() {
		return nil
	}

	r.Email = strings.TrimSpace(r.Email)

	err := validation.ValidateStruct(&r,
		validation.Field(&r.Email,
			validation.Required.Error(MsgEmailBlank),
			is.Email.Error(MsgEmailFormat),
		),
		validation.Field(&r.Password,
			validation.Required.Error(MsgPasswordBlank),
		),
	)

	return orderedValidationError(err, loginFieldOrder)
}

// ValidateStringEquals will check that both values match
func ValidateStringEquals(str, message string) validation.RuleFunc {
	return func(value any) error {
		s, _ := value.(string)
		if s != str {
			return fieldError(message)
		}
		return nil
	}
}

func validPhoneForRegion(region string) validation.RuleFunc {
	return func(value any) error {
		s, _ := value.(string)
		if s == "" {
			return nil
		}
		num, err := phonenumbers.Parse(s, strings.ToUpper(region))
		if err != nil || !phonenumbers.IsValidNumberForRegion(num, strings.ToUpper(region)) {
			return fieldError(MsgPhoneRegion)
		}
		return nil
	}
}

type fieldError string

func (e fieldError) Error() string { return string(e) }

// orderedValidationError flattens ozzo errors into a ValidationError,
// following order so the joined text is deterministic.
func orderedValidationError(err error, order []string) error {
	if err == nil {
		return nil
	}

	errs, ok := err.(validation.Errors)
	if !ok {
		return NewValidationError(err.Error())
	}

	messages := make([]string, 0, len(errs))
	for _, field := range order {
		if fieldErr, ok := errs[field]; ok && fieldErr != nil {
			messages = append(messages, fieldErr.Error())
		}
	}

	if len(messages) == 0 {
		return nil
	}

	return NewValidationError(messages...)
}
