package serviceerr

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// FromResponse builds the error for a non-2xx upstream response. The server
// message is taken from the first non-empty of message, detail, error; a body
// without any of them yields a generic status error.
func FromResponse(status int, body []byte) *Error {
	if msg := serverMessage(body); msg != "" {
		return HTTP(status, msg)
	}

	return HTTP(status, fmt.Sprintf("request failed with status %d (%s)", status, http.StatusText(status)))
}

func serverMessage(body []byte) string {
	var errResp struct {
		Message string          `json:"message"`
		Detail  string          `json:"detail"`
		Error   json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &errResp); err != nil {
		return ""
	}

	for _, candidate := range []string{errResp.Message, errResp.Detail, rawString(errResp.Error)} {
		if s := strings.TrimSpace(candidate); s != "" {
			return s
		}
	}

	return ""
}

// rawString accepts "error": "text" but ignores structured error objects.
func rawString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}

	return s
}
