package notify

import (
	"errors"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
)

var (
	// ErrEmptyNotificationType is returned when a Notification is built without a type.
	ErrEmptyNotificationType = errors.New("notification type must not be empty")

	// ErrInvalidPayloadJSON is returned when the payload is not valid JSON.
	ErrInvalidPayloadJSON = errors.New("payload json is not valid")

	// ErrInvalidMetadataJSON is returned when the metadata is not valid JSON.
	ErrInvalidMetadataJSON = errors.New("metadata json is not valid")

	// ErrMarshalingPayloadFailed is returned when a payload value cannot be marshaled to JSON.
	ErrMarshalingPayloadFailed = errors.New("marshaling payload to json failed")

	// ErrUnmarshalingPayloadFailed is returned when the payload cannot be decoded into the target value.
	ErrUnmarshalingPayloadFailed = errors.New("unmarshaling payload from json failed")
)

var emptyMetadataJSON = []byte("{}")

// Notification is the immutable payload handed to every Observer of one publish call.
//
// It is built on scalars and JSON so the core stays agnostic of the application's event types.
// All fields are unexported and the byte accessors return copies,
// so no Observer can change what another Observer sees.
//
// It should only be constructed with the supplied factory methods:
//   - BuildNotification
//   - BuildNotificationWithEmptyMetadata
//   - BuildNotificationFromValue
type Notification struct {
	id               uuid.UUID
	notificationType string
	occurredAt       time.Time
	payloadJSON      []byte
	metadataJSON     []byte
}

// BuildNotification is a factory method for Notification.
//
// It assigns a fresh random ID and copies payloadJSON and metadataJSON.
// Returns an error if the type is empty or payloadJSON or metadataJSON are not valid JSON.
func BuildNotification(
	notificationType string,
	occurredAt time.Time,
	payloadJSON []byte,
	metadataJSON []byte,
) (Notification, error) {

	if notificationType == "" {
		return Notification{}, ErrEmptyNotificationType
	}

	if !jsoniter.ConfigFastest.Valid(payloadJSON) {
		return Notification{}, ErrInvalidPayloadJSON
	}

	if !jsoniter.ConfigFastest.Valid(metadataJSON) {
		return Notification{}, ErrInvalidMetadataJSON
	}

	return Notification{
		id:               uuid.New(),
		notificationType: notificationType,
		occurredAt:       occurredAt,
		payloadJSON:      cloneBytes(payloadJSON),
		metadataJSON:     cloneBytes(metadataJSON),
	}, nil
}

// BuildNotificationWithEmptyMetadata is a factory method for Notification with valid empty JSON as metadata.
func BuildNotificationWithEmptyMetadata(notificationType string, occurredAt time.Time, payloadJSON []byte) (Notification, error) {
	return BuildNotification(notificationType, occurredAt, payloadJSON, emptyMetadataJSON)
}

// BuildNotificationFromValue marshals payload to JSON and builds a Notification with empty metadata.
func BuildNotificationFromValue(notificationType string, occurredAt time.Time, payload any) (Notification, error) {
	payloadJSON, marshalErr := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(payload)
	if marshalErr != nil {
		return Notification{}, errors.Join(ErrMarshalingPayloadFailed, marshalErr)
	}

	return BuildNotification(notificationType, occurredAt, payloadJSON, emptyMetadataJSON)
}

// ID returns the event identity of the Notification.
func (n Notification) ID() uuid.UUID {
	return n.id
}

// Type returns the notification type, for example "WeatherChanged".
func (n Notification) Type() string {
	return n.notificationType
}

// OccurredAt returns when the notified event happened.
func (n Notification) OccurredAt() time.Time {
	return n.occurredAt
}

// PayloadJSON returns a copy of the payload.
func (n Notification) PayloadJSON() []byte {
	return cloneBytes(n.payloadJSON)
}

// MetadataJSON returns a copy of the metadata.
func (n Notification) MetadataJSON() []byte {
	return cloneBytes(n.metadataJSON)
}

// DecodePayload unmarshals the payload into target.
func (n Notification) DecodePayload(target any) error {
	if err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(n.payloadJSON, target); err != nil {
		return errors.Join(ErrUnmarshalingPayloadFailed, err)
	}

	return nil
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}

	c := make([]byte, len(b))
	copy(c, b)

	return c
}
