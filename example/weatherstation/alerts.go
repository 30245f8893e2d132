package weatherstation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/AntonStoeckl/notification-dispatch-go/notify"
)

// ErrEmptyRecipients is returned when an AlertService is created without recipients.
var ErrEmptyRecipients = errors.New("alert service needs at least one recipient")

// Channel is the way an alert reaches its recipients.
type Channel string

// Supported alert channels.
const (
	Email Channel = "email"
	SMS   Channel = "sms"
)

// Sender delivers one alert message to one recipient.
type Sender interface {
	Send(ctx context.Context, channel Channel, recipient, message string) error
}

// AlertService sends an alert to every recipient when a Measurement crosses a threshold.
// The first failing send fails the Update, so the subscription shows up in the DeliveryReport
// and can be redelivered.
type AlertService struct {
	channel    Channel
	recipients []string
	sender     Sender
	threshold  float64
}

// NewAlertService creates an AlertService alerting recipients through sender on channel
// for stormy conditions or temperatures above threshold.
func NewAlertService(channel Channel, sender Sender, threshold float64, recipients ...string) (*AlertService, error) {
	if len(recipients) == 0 {
		return nil, ErrEmptyRecipients
	}

	return &AlertService{channel: channel, recipients: recipients, sender: sender, threshold: threshold}, nil
}

// Update implements notify.Observer.
func (a *AlertService) Update(ctx context.Context, notification notify.Notification) error {
	measurement, err := MeasurementFrom(notification)
	if err != nil {
		return err
	}

	message, alert := a.alertFor(measurement)
	if !alert {
		return nil
	}

	for _, recipient := range a.recipients {
		if sendErr := a.sender.Send(ctx, a.channel, recipient, message); sendErr != nil {
			return fmt.Errorf("%s to %s: %w", a.channel, recipient, sendErr)
		}
	}

	return nil
}

func (a *AlertService) alertFor(measurement Measurement) (string, bool) {
	switch {
	case measurement.Condition == Stormy:
		return fmt.Sprintf("storm warning from %s", measurement.Station), true
	case measurement.Temperature > a.threshold:
		return fmt.Sprintf("heat warning from %s: %.1f°C", measurement.Station, measurement.Temperature), true
	default:
		return "", false
	}
}

// WriterSender is a Sender printing alerts to a writer.
type WriterSender struct {
	mu  sync.Mutex
	out io.Writer
}

// NewWriterSender creates a WriterSender printing to out.
func NewWriterSender(out io.Writer) *WriterSender {
	return &WriterSender{out: out}
}

// Send implements Sender.
func (s *WriterSender) Send(_ context.Context, channel Channel, recipient, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := fmt.Fprintf(s.out, "[%s -> %s] %s\n", channel, recipient, message)

	return err
}

var _ notify.Observer = (*AlertService)(nil)
