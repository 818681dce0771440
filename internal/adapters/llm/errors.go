package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/0xcro3dile/hybridrag-go/internal/domain/ports"
)

// statusOverloaded is Anthropic's capacity signal.
const statusOverloaded = 529

// statusError classifies a non-2xx provider response.
func statusError(provider string, status int, cause error) error {
	switch status {
	case http.StatusTooManyRequests, statusOverloaded:
		return fmt.Errorf("%s: %w: %v", provider, ports.ErrRateLimited, cause)
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return fmt.Errorf("%s: %w: %v", provider, ports.ErrCompletionTimeout, cause)
	}
	return fmt.Errorf("%s returned status %d: %v", provider, status, cause)
}

// callError classifies a failed call that produced no response.
func callError(provider string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w: %v", provider, ports.ErrCompletionTimeout, err)
	}
	return fmt.Errorf("calling %s: %w", provider, err)
}
