package testing

import (
	"testing"
)

// BaseURLValidator is an interface that clients can implement to expose their base URL for testing
type BaseURLValidator interface {
	BaseURL() string
}

// TestBaseURLConfiguration validates that BaseURL is properly configured in the client
func TestBaseURLConfiguration(t testing.TB, client any, expectedURL string) {
	t.Helper()

	validator, ok := client.(BaseURLValidator)
	if !ok {
		t.Fatal("Client must implement BaseURLValidator interface")
	}

	actualURL := validator.BaseURL()
	if actualURL != expectedURL {
		t.Errorf("BaseURL mismatch: expected %q, got %q", expectedURL, actualURL)
	}
}

// HeadersValidator is an interface that clients can implement to expose their custom headers for testing
type HeadersValidator interface {
	Headers() map[string]string
}

// TestHeaderConfiguration validates that custom headers are properly configured in the client
func TestHeaderConfiguration(t testing.TB, client any, expectedHeaders map[string]string) {
	t.Helper()

	validator, ok := client.(HeadersValidator)
	if !ok {
		t.Fatal("Client must implement HeadersValidator interface")
	}

	actualHeaders := validator.Headers()

	for key, expectedValue := range expectedHeaders {
		actualValue, ok := actualHeaders[key]
		if !ok {
			t.Errorf("Missing header %q", key)
			continue
		}
		if actualValue != expectedValue {
			t.Errorf("Header %q mismatch: expected %q, got %q", key, expectedValue, actualValue)
		}
	}

	for key := range actualHeaders {
		if _, expected := expectedHeaders[key]; !expected {
			t.Errorf("Unexpected header %q with value %q", key, actualHeaders[key])
		}
	}
}
