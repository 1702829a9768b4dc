// Package notify builds notification content for alert events and hands
// it to an injected dispatcher. Delivery mechanics live behind the
// Dispatcher interface and are out of this package's hands.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/farewatch/backend/internal/model"
)

// Channel identifies a contact channel on an alert.
type Channel string

const (
	ChannelEmail   Channel = "email"
	ChannelSMS     Channel = "sms"
	ChannelWebhook Channel = "webhook"
)

// Message is one outbound notification. Destination is the normalized
// contact identifier carried on the alert.
type Message struct {
	Channel     Channel `json:"channel"`
	Destination string  `json:"destination"`
	Subject     string  `json:"subject"`
	Body        string  `json:"body"`
}

// Dispatcher delivers messages. Implementations must not block a
// monitoring pass on delivery problems; errors are logged by the caller
// and dropped.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg Message) error
}

// LogDispatcher records messages in the log instead of delivering them.
// It is the default when no transport is wired in.
type LogDispatcher struct {
	logger *slog.Logger
}

// NewLogDispatcher creates a log-only dispatcher.
func NewLogDispatcher(logger *slog.Logger) *LogDispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogDispatcher{logger: logger}
}

// Dispatch logs the message and succeeds.
func (d *LogDispatcher) Dispatch(_ context.Context, msg Message) error {
	d.logger.Info("Notification",
		slog.String("channel", string(msg.Channel)),
		slog.String("destination", msg.Destination),
		slog.String("subject", msg.Subject),
		slog.String("body", msg.Body),
	)
	return nil
}

// PriceDropMessages builds one message per populated contact channel for
// a fare that dropped below the alert's threshold. baseURL anchors the
// link that lets the user lower their threshold after rebooking.
func PriceDropMessages(a model.Alert, baseURL string) []Message {
	var body string
	switch a.Kind {
	case model.KindSingle:
		body = fmt.Sprintf(
			"WN flight #%s %s to %s on %s was %s, is now %s. "+
				"\n\nOnce rebooked, tap link to lower alert threshold: %s",
			a.FlightNumbers, a.From, a.To, a.FormattedDate(),
			a.FormattedTargetPrice(), a.FormattedLatestPrice(),
			changePriceLink(a, baseURL),
		)
	case model.KindDay:
		body = fmt.Sprintf(
			"A cheaper Southwest flight on %s %s to %s was found! Was %s, is now %s. "+
				"\n\nOnce rebooked, tap link to lower alert threshold: %s",
			a.FormattedDate(), a.From, a.To,
			a.FormattedTargetPrice(), a.FormattedLatestPrice(),
			changePriceLink(a, baseURL),
		)
	default:
		return nil
	}

	subject := fmt.Sprintf("✈ Southwest Price Drop Alert: %s → %s",
		a.FormattedTargetPrice(), a.FormattedLatestPrice())

	return messagesForChannels(a, subject, body)
}

// CreatedMessages builds the confirmation sent when an alert is created.
func CreatedMessages(a model.Alert) []Message {
	var body, subject string
	switch a.Kind {
	case model.KindSingle:
		body = fmt.Sprintf(
			"Alert created for Southwest flight #%s from %s to %s on %s. "+
				"We'll alert you if the price drops below %s.",
			a.FlightNumbers, a.From, a.To, a.FormattedDate(), a.FormattedTargetPrice(),
		)
		subject = fmt.Sprintf("✈ Alert created for %s %s → %s on %s",
			a.FormattedFlightNumbers(), a.From, a.To, a.FormattedDate())
	case model.KindDay:
		body = fmt.Sprintf(
			"Alert created for any Southwest flight from %s to %s on %s. "+
				"We'll alert you if the price drops below %s.",
			a.From, a.To, a.FormattedDate(), a.FormattedTargetPrice(),
		)
		subject = fmt.Sprintf("✈ Alert created for any WN flight %s → %s on %s",
			a.From, a.To, a.FormattedDate())
	default:
		return nil
	}

	return messagesForChannels(a, subject, body)
}

func messagesForChannels(a model.Alert, subject, body string) []Message {
	var msgs []Message
	if a.Email != "" {
		msgs = append(msgs, Message{Channel: ChannelEmail, Destination: a.Email, Subject: subject, Body: body})
	}
	if a.Phone != "" {
		msgs = append(msgs, Message{Channel: ChannelSMS, Destination: a.Phone, Subject: subject, Body: body})
	}
	if a.Webhook != "" {
		msgs = append(msgs, Message{Channel: ChannelWebhook, Destination: a.Webhook, Subject: subject, Body: body})
	}
	return msgs
}

func changePriceLink(a model.Alert, baseURL string) string {
	return fmt.Sprintf("%s/%s/change-price?price=%v", baseURL, a.ID, a.LatestPrice())
}
