package transport

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/agentstation/appgen/pkg/errors"
)

// envelope is the server's response wrapper.
type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Details   string `json:"details,omitempty"`
		RequestID string `json:"request_id,omitempty"`
	} `json:"error"`
}

// maxResponseSize bounds how much of a response body is read.
const maxResponseSize = 8 << 20

// DecodeResponse reads the response envelope and decodes its data field
// into target. A non-2xx status or an error field becomes *errors.APIError.
// target may be nil when only the status matters.
func DecodeResponse(resp *http.Response, target any) error {
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return errors.WrapIO("read", "response body", err)
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return &errors.APIError{
				StatusCode: resp.StatusCode,
				Message:    http.StatusText(resp.StatusCode),
				RequestID:  resp.Header.Get("X-Request-ID"),
			}
		}
		return errors.WrapParse("json", "response", err)
	}

	if env.Error != nil || resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &errors.APIError{
			StatusCode: resp.StatusCode,
			Message:    http.StatusText(resp.StatusCode),
			RequestID:  resp.Header.Get("X-Request-ID"),
		}
		if env.Error != nil {
			if env.Error.RequestID != "" {
				apiErr.RequestID = env.Error.RequestID
			}
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
			if env.Error.Details != "" {
				apiErr.Message = fmt.Sprintf("%s: %s", env.Error.Message, env.Error.Details)
			}
		}
		return apiErr
	}

	if target == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, target); err != nil {
		return errors.WrapParse("json", "response data", err)
	}
	return nil
}
