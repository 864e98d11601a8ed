package validation

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/spec-kit/ticket-intake/internal/domain"
)

// FieldError is one user-correctable problem with a submitted field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ticketForm mirrors the submitted fields in display order; validator/v10
// reports failures in struct order.
type ticketForm struct {
	FullName         string `json:"fullName" validate:"required,fullname"`
	Email            string `json:"email" validate:"omitempty,simpleemail"`
	Phone            string `json:"phone" validate:"omitempty,kephone"`
	Subject          string `json:"subject" validate:"required,subject"`
	Message          string `json:"message" validate:"required,max=250"`
	PreferredContact string `json:"preferredContact" validate:"required,contact"`
	Terms            bool   `json:"terms" validate:"required"`
}

var labels = map[string]string{
	"fullName":         "Full name",
	"email":            "Email",
	"phone":            "Phone",
	"subject":          "Subject",
	"message":          "Message",
	"preferredContact": "Preferred contact",
}

// Validator checks drafts and patches.
type Validator struct {
	validate       *validator.Validate
	maxAttachments int
}

// New builds a Validator. maxAttachments <= 0 uses DefaultMaxAttachments.
func New(maxAttachments int) *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("fullname", func(fl validator.FieldLevel) bool {
		return ValidName(fl.Field().String())
	})
	_ = v.RegisterValidation("simpleemail", func(fl validator.FieldLevel) bool {
		return ValidEmail(fl.Field().String())
	})
	_ = v.RegisterValidation("kephone", func(fl validator.FieldLevel) bool {
		return ValidPhone(fl.Field().String())
	})
	_ = v.RegisterValidation("subject", func(fl validator.FieldLevel) bool {
		return ValidSubject(domain.TicketSubject(fl.Field().String()))
	})
	_ = v.RegisterValidation("contact", func(fl validator.FieldLevel) bool {
		return ValidPreferredContact(domain.ContactMethod(fl.Field().String()))
	})
	if maxAttachments <= 0 {
		maxAttachments = DefaultMaxAttachments
	}
	return &Validator{validate: v, maxAttachments: maxAttachments}
}

// MaxAttachments is the configured attachment count limit.
func (v *Validator) MaxAttachments() int { return v.maxAttachments }

// Validate returns every problem with a draft, or nil when it may be stored.
// Whitespace around text fields is ignored.
func (v *Validator) Validate(d domain.TicketDraft) []FieldError {
	errs := v.checkForm(formFromDraft(d))
	if msg := CheckAttachments(d.Attachments, v.maxAttachments); msg != "" {
		errs = append(errs, FieldError{Field: "attachments", Message: msg})
	}
	return errs
}

// ValidatePatch validates the ticket that applying patch to current would
// produce. Attachments and terms are not re-checked.
func (v *Validator) ValidatePatch(current domain.Ticket, patch domain.TicketPatch) []FieldError {
	if (patch.Subject != nil && strings.TrimSpace(string(*patch.Subject)) == "") ||
		(patch.Message != nil && strings.TrimSpace(*patch.Message) == "") {
		return []FieldError{{Field: "subject", Message: "Subject and Message cannot be empty."}}
	}
	merged := patch.Apply(current)
	form := formFromDraft(domain.TicketDraft{
		FullName:         merged.FullName,
		Email:            merged.Email,
		Phone:            merged.Phone,
		Subject:          merged.Subject,
		Message:          merged.Message,
		PreferredContact: merged.PreferredContact,
		Terms:            true,
	})
	return v.checkForm(form)
}

func formFromDraft(d domain.TicketDraft) ticketForm {
	return ticketForm{
		FullName:         strings.TrimSpace(d.FullName),
		Email:            strings.TrimSpace(d.Email),
		Phone:            strings.TrimSpace(d.Phone),
		Subject:          strings.TrimSpace(string(d.Subject)),
		Message:          strings.TrimSpace(d.Message),
		PreferredContact: strings.TrimSpace(string(d.PreferredContact)),
		Terms:            d.Terms,
	}
}

func (v *Validator) checkForm(form ticketForm) []FieldError {
	var errs []FieldError
	if err := v.validate.Struct(form); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return []FieldError{{Field: "form", Message: err.Error()}}
		}
		for _, fe := range verrs {
			errs = append(errs, FieldError{Field: fe.Field(), Message: errorMessage(fe)})
		}
	}

	// The preferred method needs a value to contact.
	switch domain.ContactMethod(form.PreferredContact) {
	case domain.ContactPhone:
		if form.Phone == "" {
			errs = append(errs, FieldError{Field: "phone", Message: "Phone is required for the preferred contact method"})
		}
	case domain.ContactEmail:
		if form.Email == "" {
			errs = append(errs, FieldError{Field: "email", Message: "Email is required for the preferred contact method"})
		}
	}
	return errs
}

func errorMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		if fe.Field() == "terms" {
			return "You must accept the terms"
		}
		return label(fe.Field()) + " is required"
	case "fullname":
		return "Name must have at least 3 characters"
	case "kephone":
		return "Phone must start with +254, 07, or 01 and be valid length"
	case "simpleemail":
		return "Invalid email format"
	case "max":
		return "Message cannot exceed 250 characters"
	case "subject":
		return "Subject must be one of Billing, Technical, General"
	case "contact":
		return "Preferred contact must be phone or email"
	}
	return label(fe.Field()) + " is invalid"
}

func label(field string) string {
	if l, ok := labels[field]; ok {
		return l
	}
	return field
}
