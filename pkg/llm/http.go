package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/MarkAustinGrow/marvins-memory/pkg/clients"
)

// postJSON marshals payload, POSTs it under the retry policy and returns the
// raw 2xx body.
func postJSON(ctx context.Context, client *http.Client, policy clients.RetryPolicy, provider, url string, headers map[string]string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%s: marshal request: %w", provider, err)
	}

	return clients.Retry(ctx, policy, func(ctx context.Context) ([]byte, error) {
		req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if reqErr != nil {
			return nil, &permanentError{fmt.Errorf("%s: create request: %w", provider, reqErr)}
		}
		req.Header.Set("Content-Type", "application/json")
		for k, v := range headers {
			if v != "" {
				req.Header.Set(k, v)
			}
		}

		resp, doErr := client.Do(req)
		if doErr != nil {
			return nil, fmt.Errorf("%s: request failed: %w", provider, doErr)
		}
		defer resp.Body.Close()

		respBody, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return nil, fmt.Errorf("%s: read response: %w", provider, readErr)
		}
		if !isSuccess(resp.StatusCode) {
			return nil, &StatusError{Provider: provider, StatusCode: resp.StatusCode, Body: trimBody(respBody)}
		}
		return respBody, nil
	})
}
