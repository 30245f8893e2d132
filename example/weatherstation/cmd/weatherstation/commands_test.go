package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/AntonStoeckl/notification-dispatch-go/example/weatherstation"
	"github.com/AntonStoeckl/notification-dispatch-go/notify"
)

func givenConfigFile(t *testing.T) string {
	t.Helper()

	return givenConfigFileWithLogLevel(t, "warn")
}

func givenConfigFileWithLogLevel(t *testing.T, level string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "notify.yaml")
	content := "log_level: " + level + "\nredelivery:\n  max_attempts: 3\n  base_delay: 1ms\n  jitter: 0\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	out := &bytes.Buffer{}
	cmd := newRootCmd(out)
	cmd.SetArgs(args)

	err := cmd.ExecuteContext(context.Background())

	return out.String(), err
}

func Test_Run_Plays_The_Default_Scenario_And_Redelivers_Failed_Alerts(t *testing.T) {
	// act
	output, err := execute(t, "run", "--config", givenConfigFile(t), "--sms-failures", "1")

	// assert
	require.NoError(t, err)
	assert.Contains(t, output, "attempted=5 succeeded=5 failed=0")
	assert.Contains(t, output, "gateway unavailable")
	assert.Contains(t, output, "[sms -> +49 151 0000000] storm warning from station-7")
	assert.Contains(t, output, "[email -> ops@example.com] storm warning from station-7")
}

func Test_Publish_Delivers_One_Measurement(t *testing.T) {
	// act
	output, err := execute(t, "publish", "--config", givenConfigFile(t), "--station", "roof",
		"--condition", "Sunny", "--temperature", "35")

	// assert
	require.NoError(t, err)
	assert.Contains(t, output, "failed=0")
	assert.Contains(t, output, "heat warning from roof: 35.0°C")
}

func Test_Unsupported_Config_File_Is_Rejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notify.ini")
	require.NoError(t, os.WriteFile(path, []byte("x=1"), 0o600))

	_, err := execute(t, "run", "--config", path)

	assert.Error(t, err)
}

func Test_Publish_With_OpenTelemetry_Writes_Spans_Metrics_And_Correlated_Logs(t *testing.T) {
	// act
	output, err := execute(t, "publish", "--config", givenConfigFileWithLogLevel(t, "info"), "--otel")

	// assert
	require.NoError(t, err)
	assert.Contains(t, output, `"msg":"otel span"`)
	assert.Contains(t, output, `"span":"`+notify.SpanNamePublish+`"`)
	assert.Contains(t, output, `"msg":"otel metric"`)
	assert.Contains(t, output, `"metric":"`+notify.MetricPublishDuration+`"`)
	assert.Contains(t, output, `"metric":"`+notify.MetricSubscriptionsActive+`"`)
	assert.Regexp(t, `"msg":"notify operation: publish completed".*"trace_id":"[0-9a-f]{32}"`, output)
}

type countingSender struct {
	sent atomic.Int32
}

func (s *countingSender) Send(context.Context, weatherstation.Channel, string, string) error {
	s.sent.Add(1)
	return nil
}

func Test_UnreliableSender_Fails_Exactly_The_Configured_Sends_Under_Concurrency(t *testing.T) {
	// arrange
	next := &countingSender{}
	sender := newUnreliableSender(5, next)
	group, ctx := errgroup.WithContext(context.Background())

	var failed atomic.Int32

	// act
	for range 20 {
		group.Go(func() error {
			if err := sender.Send(ctx, weatherstation.SMS, "+49 151 0000000", "storm warning"); err != nil {
				if !errors.Is(err, errGatewayUnavailable) {
					return err
				}
				failed.Add(1)
			}

			return nil
		})
	}

	// assert
	require.NoError(t, group.Wait())
	assert.Equal(t, int32(5), failed.Load())
	assert.Equal(t, int32(15), next.sent.Load())
}
