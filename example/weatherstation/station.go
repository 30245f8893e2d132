package weatherstation

import (
	"context"
	"errors"
	"time"

	"github.com/AntonStoeckl/notification-dispatch-go/notify"
)

// MeasurementsChangedType is the notification type published for every new Measurement.
const MeasurementsChangedType = "MeasurementsChanged"

// ErrNilNotifier is returned when NewWeatherStation is called without a Notifier.
var ErrNilNotifier = errors.New("notifier must not be nil")

// Condition is the overall weather condition of a Measurement.
type Condition string

// Conditions known to the displays and the alert service.
const (
	Sunny  Condition = "Sunny"
	Cloudy Condition = "Cloudy"
	Rainy  Condition = "Rainy"
	Stormy Condition = "Stormy"
)

// Measurement is one reading of the station's sensors, published as the notification payload.
type Measurement struct {
	Station     string    `json:"station"`
	Condition   Condition `json:"condition"`
	Temperature float64   `json:"temperature"`
	Humidity    float64   `json:"humidity"`
	Pressure    float64   `json:"pressure"`
}

// MeasurementFrom decodes the Measurement carried by notification.
func MeasurementFrom(notification notify.Notification) (Measurement, error) {
	var measurement Measurement
	if err := notification.DecodePayload(&measurement); err != nil {
		return Measurement{}, err
	}

	return measurement, nil
}

// WeatherStation is the subject: it publishes every Measurement to the observers of its Notifier.
type WeatherStation struct {
	name     string
	notifier *notify.Notifier
	clock    func() time.Time
}

// NewWeatherStation creates a WeatherStation publishing through notifier.
func NewWeatherStation(name string, notifier *notify.Notifier) (*WeatherStation, error) {
	if notifier == nil {
		return nil, ErrNilNotifier
	}

	return &WeatherStation{name: name, notifier: notifier, clock: time.Now}, nil
}

// Notifier returns the station's Notifier, for subscribing observers.
func (s *WeatherStation) Notifier() *notify.Notifier {
	return s.notifier
}

// SetMeasurements publishes measurement and returns the resulting DeliveryReport along with the Notification,
// which callers need to redeliver it.
func (s *WeatherStation) SetMeasurements(ctx context.Context, measurement Measurement) (notify.Notification, notify.DeliveryReport, error) {
	measurement.Station = s.name

	notification, err := notify.BuildNotificationFromValue(MeasurementsChangedType, s.clock(), measurement)
	if err != nil {
		return notify.Notification{}, notify.DeliveryReport{}, err
	}

	return notification, s.notifier.Publish(ctx, notification), nil
}
