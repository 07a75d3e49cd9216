package seedr

import "fmt"

// NetworkError represents transport failures and unexpected HTTP statuses
// returned by the Seedr API.
type NetworkError struct {
	Operation  string // The operation that failed (e.g., "list_folders", "add_magnet")
	StatusCode int    // HTTP status code, if applicable (0 for non-HTTP errors)
	APIMessage string // Error message from the API or network layer
	Err        error  // Underlying error, if any
}

func (e *NetworkError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("network error during %s (HTTP %d): %s", e.Operation, e.StatusCode, e.APIMessage)
	}

	return fmt.Sprintf("network error during %s: %s", e.Operation, e.APIMessage)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// AuthenticationError represents a failed device authorization: the device
// code was rejected or no access token was issued yet.
type AuthenticationError struct {
	Operation  string
	StatusCode int
	Err        error
}

func (e *AuthenticationError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("authentication failed during %s (HTTP %d)", e.Operation, e.StatusCode)
	}

	return fmt.Sprintf("authentication failed during %s", e.Operation)
}

func (e *AuthenticationError) Unwrap() error {
	return e.Err
}

// InvalidResponseError represents a response body that could not be decoded.
type InvalidResponseError struct {
	Operation string
	Err       error
}

func (e *InvalidResponseError) Error() string {
	return fmt.Sprintf("invalid response during %s: %v", e.Operation, e.Err)
}

func (e *InvalidResponseError) Unwrap() error {
	return e.Err
}
