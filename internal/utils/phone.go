package utils

import (
	"strings"
)

// NormalizePhone normalizes a phone number to E.164 by prefixing '+' when
// absent and stripping spaces. It does not validate country codes.
func NormalizePhone(phone string) string {
	p := strings.TrimSpace(phone)
	p = strings.ReplaceAll(p, " ", "")
	p = strings.TrimPrefix(p, "whatsapp:")
	if p == "" {
		return p
	}
	if !strings.HasPrefix(p, "+") {
		p = "+" + p
	}
	return p
}

// MaskPhone masks a phone number for log output: first 3 chars + **** + last 4.
// Full numbers must never appear in logs.
func MaskPhone(phone string) string {
	if len(phone) <= 7 {
		return "****"
	}
	return phone[:3] + "****" + phone[len(phone)-4:]
}

// PhoneLast4 returns only the last four digits, the form stored in logs.
func PhoneLast4(phone string) string {
	if len(phone) < 4 {
		return phone
	}
	return phone[len(phone)-4:]
}

// Preview truncates message content for the message log.
func Preview(text string, max int) string {
	if len(text) <= max {
		return text
	}
	return text[:max]
}
