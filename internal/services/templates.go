package services

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// TemplateClassification buckets templates for consent purposes.
type TemplateClassification string

const (
	ClassAuthentication TemplateClassification = "authentication"
	ClassUtility        TemplateClassification = "utility"
	ClassMarketing      TemplateClassification = "marketing"
)

// ReminderKind marks templates whose sends must also be recorded in a
// reminder log collection.
type ReminderKind string

const (
	ReminderNone    ReminderKind = ""
	ReminderRegular ReminderKind = "reminder"
	ReminderOverdue ReminderKind = "overdue"
)

// TemplateDefinition describes one outbound message template. Bodies are
// plain text with {name} placeholders; output goes to a phone, so nothing is
// escaped. Callers must not pass unredacted patient data as variables - the
// redaction boundary sits with the producing workflow, not here.
type TemplateDefinition struct {
	Body            string
	Required        []string
	Classification  TemplateClassification
	RequiresConsent bool
	Reminder        ReminderKind
}

// ErrTemplateNotFound means a caller asked for a template name that is not
// in the catalog. This is a configuration bug, not a runtime condition.
var ErrTemplateNotFound = errors.New("template not found")

// TemplateVariableMissingError reports a required variable the caller did
// not supply.
type TemplateVariableMissingError struct {
	Template string
	Variable string
}

func (e *TemplateVariableMissingError) Error() string {
	return fmt.Sprintf("template '%s': missing required variable '%s'", e.Template, e.Variable)
}

// MessageTemplates maps template names to their definitions. Static
// configuration, immutable at runtime.
var MessageTemplates = map[string]TemplateDefinition{
	// Authentication / security (never consent-gated)
	"OTP_VERIFICATION": {
		Body:           "{app_name}: your verification code is {code}. It expires in {validity} minutes. Never share this code.",
		Required:       []string{"code", "validity"},
		Classification: ClassAuthentication,
	},
	"OTP_LOGIN": {
		Body:           "{app_name}: your login code is {code}. It expires in {validity} minutes. If you did not request this, ignore this message.",
		Required:       []string{"code", "validity"},
		Classification: ClassAuthentication,
	},
	"OTP_PASSWORD_RESET": {
		Body:           "{app_name}: your password reset code is {code}. It expires in {validity} minutes.",
		Required:       []string{"code", "validity"},
		Classification: ClassAuthentication,
	},
	"SECURITY_ALERT": {
		Body:           "{app_name}: a new login to your account was detected from {device}. If this was not you, secure your account: {app_link}",
		Required:       []string{"device"},
		Classification: ClassAuthentication,
	},
	"ACCOUNT_SUSPENDED": {
		Body:           "{app_name}: your account has been suspended. Reason: {reason}. Contact support: {app_link}",
		Required:       []string{"reason"},
		Classification: ClassAuthentication,
	},
	"ACCOUNT_REACTIVATED": {
		Body:           "{app_name}: your account is active again. You can sign in at {app_link}",
		Required:       []string{},
		Classification: ClassAuthentication,
	},

	// Utility (consent-gated)
	"APPOINTMENT_REMINDER_24H": {
		Body:            "{app_name}: reminder - your appointment with {practice_name} is tomorrow at {time}. Reply to this message if you need to reschedule.",
		Required:        []string{"practice_name", "time"},
		Classification:  ClassUtility,
		RequiresConsent: true,
		Reminder:        ReminderRegular,
	},
	"APPOINTMENT_REMINDER_2H": {
		Body:            "{app_name}: your appointment with {practice_name} starts at {time} today.",
		Required:        []string{"practice_name", "time"},
		Classification:  ClassUtility,
		RequiresConsent: true,
		Reminder:        ReminderRegular,
	},
	"APPOINTMENT_CANCELLED": {
		Body:            "{app_name}: your appointment on {date} was cancelled. Book a new one at {app_link}",
		Required:        []string{"date"},
		Classification:  ClassUtility,
		RequiresConsent: true,
	},
	"SUBSCRIPTION_EXPIRING": {
		Body:            "{app_name}: your subscription expires in {days} days. Renew at {app_link} to keep your practice data available.",
		Required:        []string{"days"},
		Classification:  ClassUtility,
		RequiresConsent: true,
	},
	"QUOTA_WARNING": {
		Body:            "{app_name}: you have used {percent}% of your monthly message quota.",
		Required:        []string{"percent"},
		Classification:  ClassUtility,
		RequiresConsent: true,
	},
	"PAYMENT_FAILED": {
		Body:            "{app_name}: your last payment of {amount} failed. Update your payment details at {app_link}",
		Required:        []string{"amount"},
		Classification:  ClassUtility,
		RequiresConsent: true,
	},
	"OVERDUE_INVOICE_REMINDER": {
		Body:            "{app_name}: invoice {invoice_id} of {amount} is overdue. Settle it at {app_link}",
		Required:        []string{"invoice_id", "amount"},
		Classification:  ClassUtility,
		RequiresConsent: true,
		Reminder:        ReminderOverdue,
	},
	"WELCOME": {
		Body:            "Welcome to {app_name}! Your account is ready: {app_link}",
		Required:        []string{},
		Classification:  ClassUtility,
		RequiresConsent: true,
	},

	// Marketing (consent-gated, marketing consent checked by callers)
	"MARKETING_NEWSLETTER": {
		Body:            "{app_name}: {headline} - read more at {app_link}. Reply STOP to unsubscribe.",
		Required:        []string{"headline"},
		Classification:  ClassMarketing,
		RequiresConsent: true,
	},
}

// RenderTemplate renders a catalog template with the given variables.
// Default variables app_name and app_link are injected when the caller does
// not supply them.
func RenderTemplate(name string, vars map[string]string) (string, error) {
	tmpl, exists := MessageTemplates[name]
	if !exists {
		return "", fmt.Errorf("%w: '%s'", ErrTemplateNotFound, name)
	}

	for _, required := range tmpl.Required {
		if _, ok := vars[required]; !ok {
			return "", &TemplateVariableMissingError{Template: name, Variable: required}
		}
	}

	merged := make(map[string]string, len(vars)+2)
	merged["app_name"] = defaultVar("APP_NAME", "Sanovia")
	merged["app_link"] = defaultVar("APP_LINK", "https://app.sanovia.example")
	for k, v := range vars {
		merged[k] = v
	}

	text := tmpl.Body
	for k, v := range merged {
		text = strings.ReplaceAll(text, "{"+k+"}", v)
	}
	return text, nil
}

// TemplateRequiresConsent reports whether sends of this template are
// consent-gated. Unknown templates fail closed.
func TemplateRequiresConsent(name string) (bool, error) {
	tmpl, exists := MessageTemplates[name]
	if !exists {
		return true, fmt.Errorf("%w: '%s'", ErrTemplateNotFound, name)
	}
	return tmpl.RequiresConsent, nil
}

// TemplateClassificationOf returns the template's classification.
func TemplateClassificationOf(name string) (TemplateClassification, error) {
	tmpl, exists := MessageTemplates[name]
	if !exists {
		return "", fmt.Errorf("%w: '%s'", ErrTemplateNotFound, name)
	}
	return tmpl.Classification, nil
}

func templateReminderKind(name string) ReminderKind {
	return MessageTemplates[name].Reminder
}

func defaultVar(envKey, fallback string) string {
	if v := os.Getenv(envKey); v != "" {
		return v
	}
	return fallback
}

// OTPTemplateFor maps an OTP purpose to its template name.
func OTPTemplateFor(purpose string) string {
	switch purpose {
	case "login":
		return "OTP_LOGIN"
	case "password_reset":
		return "OTP_PASSWORD_RESET"
	default:
		return "OTP_VERIFICATION"
	}
}
