package pgtest

import (
	"os"
	"testing"
)

// DSNEnvVar names the environment variable holding the test database DSN.
const DSNEnvVar = "NOTIFY_TEST_POSTGRES_DSN"

// DSN returns the test database DSN or skips tb when none is configured.
func DSN(tb testing.TB) string {
	tb.Helper()

	dsn := os.Getenv(DSNEnvVar)
	if dsn == "" {
		tb.Skipf("%s is not set", DSNEnvVar)
	}

	return dsn
}
