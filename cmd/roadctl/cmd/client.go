package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// apiError mirrors the server's error envelope.
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type apiEnvelope struct {
	Data  json.RawMessage `json:"data"`
	Error *apiError       `json:"error"`
}

func newClient() *resty.Client {
	return resty.New().
		SetBaseURL(serverURL+"/api/v1").
		SetTimeout(30*time.Second).
		SetHeader("Accept", "application/json")
}

// apiGet fetches path and decodes the data envelope into dst.
func apiGet(path string, dst any) error {
	return apiDo("GET", path, nil, dst)
}

// apiPost posts body to path and decodes the data envelope into dst.
// dst may be nil when the response body is not needed.
func apiPost(path string, body, dst any) error {
	return apiDo("POST", path, body, dst)
}

func apiDo(method, path string, body, dst any) error {
	req := newClient().R()
	if body != nil {
		req.SetHeader("Content-Type", "application/json")
		req.SetBody(body)
	}

	var resp *resty.Response
	var err error
	switch method {
	case "GET":
		resp, err = req.Get(path)
	case "POST":
		resp, err = req.Post(path)
	default:
		return fmt.Errorf("unsupported method %s", method)
	}
	if err != nil {
		return fmt.Errorf("request %s %s: %w", method, path, err)
	}

	var envelope apiEnvelope
	if err := json.Unmarshal(resp.Body(), &envelope); err != nil {
		return fmt.Errorf("decode response (%d): %w", resp.StatusCode(), err)
	}
	if envelope.Error != nil {
		return fmt.Errorf("%s: %s", envelope.Error.Code, envelope.Error.Message)
	}
	if resp.IsError() {
		return fmt.Errorf("server returned %d", resp.StatusCode())
	}

	if dst != nil {
		if err := json.Unmarshal(envelope.Data, dst); err != nil {
			return fmt.Errorf("decode data: %w", err)
		}
	}
	return nil
}

// printJSON renders v as indented JSON on stdout.
func printJSON(v any) {
	data, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(data))
}
