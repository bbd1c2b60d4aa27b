package models

// Channel identifies an outbound transport.
type Channel string

const (
	ChannelSMS      Channel = "sms"
	ChannelWhatsApp Channel = "whatsapp"
)

// Other returns the alternate channel, used for fallback sends.
func (c Channel) Other() Channel {
	if c == ChannelWhatsApp {
		return ChannelSMS
	}
	return ChannelWhatsApp
}

// ConsentType identifies one independently grantable consent flag.
type ConsentType string

const (
	ConsentSMS           ConsentType = "sms"
	ConsentWhatsApp      ConsentType = "whatsapp"
	ConsentMarketing     ConsentType = "marketing"
	ConsentTransactional ConsentType = "transactional"
)

// ForChannel maps a transport to the consent flag that gates it.
func ForChannel(c Channel) ConsentType {
	if c == ChannelWhatsApp {
		return ConsentWhatsApp
	}
	return ConsentSMS
}

// ConsentSource records where a consent change originated.
type ConsentSource string

const (
	SourceAppSettings       ConsentSource = "app_settings"
	SourceRegistration      ConsentSource = "registration"
	SourceWebSettings       ConsentSource = "web_settings"
	SourcePhoneVerification ConsentSource = "phone_verification"
	SourceReplyMessage      ConsentSource = "reply_message"
)

// MessageStatus mirrors the provider's delivery lifecycle.
type MessageStatus string

const (
	StatusQueued      MessageStatus = "queued"
	StatusSent        MessageStatus = "sent"
	StatusDelivered   MessageStatus = "delivered"
	StatusFailed      MessageStatus = "failed"
	StatusUndelivered MessageStatus = "undelivered"
)

// MessagePriority classifies how urgent an outbound message is.
type MessagePriority string

const (
	PriorityCritical MessagePriority = "critical"
	PriorityHigh     MessagePriority = "high"
	PriorityNormal   MessagePriority = "normal"
	PriorityLow      MessagePriority = "low"
)

// OTPPurpose identifies what an issued code authorizes.
type OTPPurpose string

const (
	PurposeVerification  OTPPurpose = "verification"
	PurposeLogin         OTPPurpose = "login"
	PurposePasswordReset OTPPurpose = "password_reset"
)
