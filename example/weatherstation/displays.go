package weatherstation

import (
	"context"
	"fmt"
	"io"
	"math"
	"sync"

	"github.com/AntonStoeckl/notification-dispatch-go/notify"
)

// CurrentConditionsDisplay shows the latest Measurement, like a phone widget.
type CurrentConditionsDisplay struct {
	device string
	out    io.Writer

	mu   sync.Mutex
	last Measurement
}

// NewCurrentConditionsDisplay creates a CurrentConditionsDisplay for device, printing to out.
func NewCurrentConditionsDisplay(device string, out io.Writer) *CurrentConditionsDisplay {
	return &CurrentConditionsDisplay{device: device, out: out}
}

// Update implements notify.Observer.
func (d *CurrentConditionsDisplay) Update(_ context.Context, notification notify.Notification) error {
	measurement, err := MeasurementFrom(notification)
	if err != nil {
		return err
	}

	d.mu.Lock()
	d.last = measurement
	d.mu.Unlock()

	_, err = fmt.Fprintf(d.out, "[%s] current conditions: %s, %.1f°C, %.0f%% humidity\n",
		d.device, measurement.Condition, measurement.Temperature, measurement.Humidity)

	return err
}

// Last returns the latest Measurement shown.
func (d *CurrentConditionsDisplay) Last() Measurement {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.last
}

// StatisticsDisplay shows min, max and average temperature, like a TV weather channel.
type StatisticsDisplay struct {
	device string
	out    io.Writer

	mu    sync.Mutex
	count int
	sum   float64
	min   float64
	max   float64
}

// NewStatisticsDisplay creates a StatisticsDisplay for device, printing to out.
func NewStatisticsDisplay(device string, out io.Writer) *StatisticsDisplay {
	return &StatisticsDisplay{device: device, out: out, min: math.Inf(1), max: math.Inf(-1)}
}

// Update implements notify.Observer.
func (d *StatisticsDisplay) Update(_ context.Context, notification notify.Notification) error {
	measurement, err := MeasurementFrom(notification)
	if err != nil {
		return err
	}

	minTemp, avgTemp, maxTemp := d.add(measurement.Temperature)

	_, err = fmt.Fprintf(d.out, "[%s] temperature min/avg/max: %.1f/%.1f/%.1f°C\n", d.device, minTemp, avgTemp, maxTemp)

	return err
}

func (d *StatisticsDisplay) add(temperature float64) (minTemp, avgTemp, maxTemp float64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.count++
	d.sum += temperature
	d.min = math.Min(d.min, temperature)
	d.max = math.Max(d.max, temperature)

	return d.min, d.sum / float64(d.count), d.max
}

// Stats returns the number of measurements seen and their min, average and max temperature.
func (d *StatisticsDisplay) Stats() (count int, minTemp, avgTemp, maxTemp float64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.count == 0 {
		return 0, 0, 0, 0
	}

	return d.count, d.min, d.sum / float64(d.count), d.max
}

// ForecastDisplay derives a simple forecast from the pressure trend, like a web dashboard.
type ForecastDisplay struct {
	device string
	out    io.Writer

	mu           sync.Mutex
	lastPressure float64
	forecast     string
}

// NewForecastDisplay creates a ForecastDisplay for device, printing to out.
func NewForecastDisplay(device string, out io.Writer) *ForecastDisplay {
	return &ForecastDisplay{device: device, out: out}
}

// Update implements notify.Observer.
func (d *ForecastDisplay) Update(_ context.Context, notification notify.Notification) error {
	measurement, err := MeasurementFrom(notification)
	if err != nil {
		return err
	}

	forecast := d.next(measurement.Pressure)

	_, err = fmt.Fprintf(d.out, "[%s] forecast: %s\n", d.device, forecast)

	return err
}

func (d *ForecastDisplay) next(pressure float64) string {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch {
	case d.lastPressure == 0 || pressure == d.lastPressure:
		d.forecast = "more of the same"
	case pressure > d.lastPressure:
		d.forecast = "improving weather on the way"
	default:
		d.forecast = "watch out for cooler, rainy weather"
	}

	d.lastPressure = pressure

	return d.forecast
}

// Forecast returns the latest forecast.
func (d *ForecastDisplay) Forecast() string {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.forecast
}

var (
	_ notify.Observer = (*CurrentConditionsDisplay)(nil)
	_ notify.Observer = (*StatisticsDisplay)(nil)
	_ notify.Observer = (*ForecastDisplay)(nil)
)
