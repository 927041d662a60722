package ai

import "fmt"

// ProviderError reports a failed upstream AI call: network failure, non-2xx
// response, timeout, or a response whose shape does not match the backend's
// contract. Status is the upstream HTTP status when one was received, zero
// otherwise. Message is safe for logs but is never shown verbatim to end
// users by the layers above.
type ProviderError struct {
	Provider string
	Status   int
	Message  string
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s provider error (status %d): %s", e.Provider, e.Status, e.Message)
	}
	return fmt.Sprintf("%s provider error: %s", e.Provider, e.Message)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

func providerErr(provider string, status int, format string, args ...any) *ProviderError {
	return &ProviderError{Provider: provider, Status: status, Message: fmt.Sprintf(format, args...)}
}

func wrapProviderErr(provider string, err error, context string) *ProviderError {
	return &ProviderError{Provider: provider, Message: context + ": " + err.Error(), Err: err}
}
