package config

import "os"

// TestDSNEnv names the environment variable holding the DSN of the test database.
const TestDSNEnv = "CIRCULATION_TEST_POSTGRES_DSN"

// PostgresTestDSN returns the DSN for the test database, "" if none is configured.
func PostgresTestDSN() string {
	return os.Getenv(TestDSNEnv)
}
