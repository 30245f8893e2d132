package notify_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/notification-dispatch-go/notify"
)

type weatherReading struct {
	Station     string  `json:"station"`
	Temperature float64 `json:"temperature"`
}

type unmarshalable struct{}

func (unmarshalable) MarshalJSON() ([]byte, error) {
	return nil, errors.New("sensor offline")
}

func Test_BuildNotification(t *testing.T) {
	occurredAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	notification, err := notify.BuildNotification(weatherChanged, occurredAt, []byte(`{"condition":"Sunny"}`), []byte(`{"source":"station-7"}`))

	require.NoError(t, err)
	assert.NotEqual(t, notification.ID().String(), "00000000-0000-0000-0000-000000000000")
	assert.Equal(t, weatherChanged, notification.Type())
	assert.Equal(t, occurredAt, notification.OccurredAt())
	assert.JSONEq(t, `{"condition":"Sunny"}`, string(notification.PayloadJSON()))
	assert.JSONEq(t, `{"source":"station-7"}`, string(notification.MetadataJSON()))
}

func Test_BuildNotification_Assigns_Distinct_IDs(t *testing.T) {
	n1, err1 := notify.BuildNotificationWithEmptyMetadata(weatherChanged, time.Now(), []byte(`"Sunny"`))
	n2, err2 := notify.BuildNotificationWithEmptyMetadata(weatherChanged, time.Now(), []byte(`"Sunny"`))

	require.NoError(t, err1)
	require.NoError(t, err2)
	assert.NotEqual(t, n1.ID(), n2.ID())
	assert.JSONEq(t, `{}`, string(n1.MetadataJSON()))
}

func Test_BuildNotification_Rejects_Invalid_Input(t *testing.T) {
	testCases := []struct {
		description      string
		notificationType string
		payloadJSON      []byte
		metadataJSON     []byte
		expectedErr      error
	}{
		{"empty type", "", []byte(`{}`), []byte(`{}`), notify.ErrEmptyNotificationType},
		{"invalid payload", weatherChanged, []byte(`{"condition":`), []byte(`{}`), notify.ErrInvalidPayloadJSON},
		{"nil payload", weatherChanged, nil, []byte(`{}`), notify.ErrInvalidPayloadJSON},
		{"invalid metadata", weatherChanged, []byte(`{}`), []byte(`not json`), notify.ErrInvalidMetadataJSON},
	}

	for _, tc := range testCases {
		t.Run(tc.description, func(t *testing.T) {
			_, err := notify.BuildNotification(tc.notificationType, time.Now(), tc.payloadJSON, tc.metadataJSON)

			assert.ErrorIs(t, err, tc.expectedErr)
		})
	}
}

func Test_BuildNotification_Copies_Input(t *testing.T) {
	payload := []byte(`"Sunny"`)

	notification, err := notify.BuildNotificationWithEmptyMetadata(weatherChanged, time.Now(), payload)
	require.NoError(t, err)

	copy(payload, `"Rainy"`)
	returned := notification.PayloadJSON()
	returned[1] = 'X'

	assert.Equal(t, `"Sunny"`, string(notification.PayloadJSON()))
}

func Test_BuildNotificationFromValue_And_DecodePayload(t *testing.T) {
	// arrange
	reading := weatherReading{Station: "station-7", Temperature: 21.5}

	// act
	notification, err := notify.BuildNotificationFromValue("TemperatureMeasured", time.Now(), reading)
	require.NoError(t, err)

	var decoded weatherReading
	decodeErr := notification.DecodePayload(&decoded)

	// assert
	require.NoError(t, decodeErr)
	assert.Equal(t, reading, decoded)
	assert.JSONEq(t, `{"station":"station-7","temperature":21.5}`, string(notification.PayloadJSON()))
}

func Test_BuildNotificationFromValue_Marshal_Failure(t *testing.T) {
	_, err := notify.BuildNotificationFromValue(weatherChanged, time.Now(), unmarshalable{})

	assert.ErrorIs(t, err, notify.ErrMarshalingPayloadFailed)
	assert.ErrorContains(t, err, "sensor offline")
}

func Test_DecodePayload_Into_Wrong_Type(t *testing.T) {
	notification, err := notify.BuildNotificationWithEmptyMetadata(weatherChanged, time.Now(), []byte(`"Sunny"`))
	require.NoError(t, err)

	var target weatherReading

	assert.ErrorIs(t, notification.DecodePayload(&target), notify.ErrUnmarshalingPayloadFailed)
}
