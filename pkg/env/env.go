package env

import "os"

// Get returns the value of the given environment variable or a fallback.
func Get(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

// InstanceID resolves the process identity used in log fields.
func InstanceID(fallback string) string {
	for _, key := range []string{"NEGOTIATOR_INSTANCE_ID", "DYNO", "HOSTNAME"} {
		if val := os.Getenv(key); val != "" {
			return val
		}
	}
	return fallback
}
