// Package weatherstation is an example application of the notify core: a WeatherStation publishes
// measurements to displays on a phone, a TV and a web dashboard, and to an alert service sending emails and SMS.
package weatherstation
