package pubsub

import (
	"fmt"
	"strings"
)

// Channels follow "{domain}:{entity}:{key}". The Kafka driver maps a
// channel to topic "{domain}-{entity}" with the key as message key, so
// all events of one account land on one partition in order.
const (
	ChannelAccountNotify = "account:notify:%s"

	// TopicAccountNotify is the Kafka topic of ChannelAccountNotify.
	TopicAccountNotify = "account-notify"
)

// Event types published on account channels.
const (
	EventAccountActivation    = "account.activation"
	EventAccountPasswordReset = "account.password_reset"
)

// AccountNotifyChannel returns the notification channel of one account.
func AccountNotifyChannel(accountID string) string {
	return fmt.Sprintf(ChannelAccountNotify, accountID)
}

// ChannelToTopicAndKey converts a channel into a Kafka topic and key.
//
//	"account:notify:0b6f..." -> topic "account-notify", key "0b6f..."
func ChannelToTopicAndKey(channel string) (topic, key string, err error) {
	parts := strings.SplitN(channel, ":", 3)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return "", "", fmt.Errorf("invalid channel format: %s", channel)
	}
	return parts[0] + "-" + parts[1], parts[2], nil
}

// AccountTokenPayload is the body of activation and password reset events.
// The token is the plaintext one-time token; consumers deliver it and
// must not persist it.
type AccountTokenPayload struct {
	AccountID string `json:"account_id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Token     string `json:"token"`
	Link      string `json:"link,omitempty"`
}
