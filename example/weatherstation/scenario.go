package weatherstation

import (
	"context"
	"fmt"
	"io"

	"github.com/AntonStoeckl/notification-dispatch-go/notify"
	"github.com/AntonStoeckl/notification-dispatch-go/redeliver"
)

// Installation is a WeatherStation with its displays and alert services subscribed.
type Installation struct {
	Station *WeatherStation
	Phone   *CurrentConditionsDisplay
	TV      *StatisticsDisplay
	Web     *ForecastDisplay
	Handles map[string]notify.Handle
}

// Install subscribes a phone, a TV and a web dashboard display writing to out, plus the given alert services,
// to station. Handles are keyed by "phone", "tv", "web" and the alert channel name.
func Install(station *WeatherStation, out io.Writer, alerts ...*AlertService) (*Installation, error) {
	installation := &Installation{
		Station: station,
		Phone:   NewCurrentConditionsDisplay("phone", out),
		TV:      NewStatisticsDisplay("tv", out),
		Web:     NewForecastDisplay("web", out),
		Handles: make(map[string]notify.Handle),
	}

	observers := []keyedObserver{
		{"phone", installation.Phone},
		{"tv", installation.TV},
		{"web", installation.Web},
	}

	for _, alert := range alerts {
		observers = append(observers, keyedObserver{string(alert.channel), alert})
	}

	for _, o := range observers {
		handle, err := station.Notifier().Subscribe(o.observer)
		if err != nil {
			return nil, err
		}

		installation.Handles[o.key] = handle
	}

	return installation, nil
}

type keyedObserver struct {
	key      string
	observer notify.Observer
}

// Step is one scripted action of a scenario: publish Measurement, then unsubscribe the observers named in Unsubscribe.
type Step struct {
	Measurement Measurement
	Unsubscribe []string
}

// DefaultScenario publishes sunny, rainy and stormy weather and turns the TV off after the first reading.
func DefaultScenario() []Step {
	return []Step{
		{Measurement: Measurement{Condition: Sunny, Temperature: 24.5, Humidity: 40, Pressure: 1021}, Unsubscribe: []string{"tv"}},
		{Measurement: Measurement{Condition: Rainy, Temperature: 17.0, Humidity: 85, Pressure: 1009}},
		{Measurement: Measurement{Condition: Stormy, Temperature: 15.5, Humidity: 95, Pressure: 995}},
	}
}

// Play runs steps against installation and prints a DeliveryReport per step to out.
// Failed deliveries are redelivered with redeliveryOptions.
func Play(ctx context.Context, installation *Installation, steps []Step, out io.Writer, redeliveryOptions ...redeliver.Option) ([]notify.DeliveryReport, error) {
	notifier := installation.Station.Notifier()
	reports := make([]notify.DeliveryReport, 0, len(steps))

	for _, step := range steps {
		notification, report, err := installation.Station.SetMeasurements(ctx, step.Measurement)
		if err != nil {
			return reports, err
		}

		if !report.OK() {
			PrintReport(out, report)

			report, err = redeliver.Redeliver(ctx, notifier.Dispatcher(), notifier.Registry(), notification, report, redeliveryOptions...)
			if err != nil {
				return reports, err
			}
		}

		PrintReport(out, report)
		reports = append(reports, report)

		for _, key := range step.Unsubscribe {
			notifier.Unsubscribe(installation.Handles[key])
		}
	}

	return reports, nil
}

// PrintReport prints a one line summary of report plus one line per failure.
func PrintReport(out io.Writer, report notify.DeliveryReport) {
	_, _ = fmt.Fprintf(out, "delivered %s: attempted=%d succeeded=%d failed=%d in %s\n",
		report.NotificationID, report.Attempted, report.Succeeded, report.Failed(), report.Duration)

	for _, failure := range report.Failures {
		_, _ = fmt.Fprintf(out, "  %s failed (%s): %v\n", failure.Handle, notify.FailureType(failure.Reason), failure.Reason)
	}
}
