package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dougsko/antbridge/pkg/protocol"
)

// request is one API call derived from a control command.
type request struct {
	Method string
	Path   string
	Body   interface{}
}

// parseCommand turns a control command such as "SELECT:A3" into an API
// request. Command names are case-insensitive.
func parseCommand(text string) (request, error) {
	text = strings.TrimSpace(text)
	name, arg, _ := strings.Cut(text, ":")
	name = strings.ToUpper(strings.TrimSpace(name))

	switch name {
	case "STATUS":
		return request{Method: http.MethodGet, Path: "/api/v1/status"}, nil

	case "RULES":
		return request{Method: http.MethodGet, Path: "/api/v1/rules"}, nil

	case "COMMANDS":
		path := "/api/v1/commands"
		if arg != "" {
			limit, err := strconv.Atoi(strings.TrimSpace(arg))
			if err != nil || limit < 0 {
				return request{}, fmt.Errorf("invalid limit %q", arg)
			}
			path += "?limit=" + strconv.Itoa(limit)
		}
		return request{Method: http.MethodGet, Path: path}, nil

	case "SELECT":
		rig, value, err := protocol.ParseSelectCommand(strings.ToUpper(strings.TrimSpace(arg)))
		if err != nil {
			return request{}, err
		}
		return request{
			Method: http.MethodPost,
			Path:   "/api/v1/antenna",
			Body:   map[string]interface{}{"rig": rig.String(), "antenna": value},
		}, nil

	case "SEND":
		if strings.TrimSpace(arg) == "" {
			return request{}, fmt.Errorf("SEND needs text")
		}
		return request{
			Method: http.MethodPost,
			Path:   "/api/v1/send",
			Body:   map[string]interface{}{"text": arg},
		}, nil

	case "AUTO":
		rigArg, state, ok := strings.Cut(arg, ":")
		if !ok {
			return request{}, fmt.Errorf("AUTO needs <rig>:ON|OFF")
		}
		rig, err := protocol.ParseRig(rigArg)
		if err != nil {
			return request{}, err
		}
		var enabled bool
		switch strings.ToUpper(strings.TrimSpace(state)) {
		case "ON":
			enabled = true
		case "OFF":
		default:
			return request{}, fmt.Errorf("AUTO state must be ON or OFF, got %q", state)
		}
		return request{
			Method: http.MethodPut,
			Path:   "/api/v1/auto/" + rig.String(),
			Body:   map[string]interface{}{"enabled": enabled},
		}, nil
	}

	return request{}, fmt.Errorf("unknown command %q", name)
}

// apiClient talks to a running antbridged.
type apiClient struct {
	baseURL string
	http    *http.Client
}

func newAPIClient(baseURL string) *apiClient {
	return &apiClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// do performs req and wraps the reply in a protocol.Response.
func (c *apiClient) do(req request) (*protocol.Response, error) {
	var body io.Reader
	if req.Body != nil {
		data, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequest(req.Method, c.baseURL+req.Path, body)
	if err != nil {
		return nil, err
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to reach antbridged: %w", err)
	}
	defer resp.Body.Close()

	var data map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if resp.StatusCode >= 300 {
		msg, _ := data["error"].(string)
		if msg == "" {
			msg = resp.Status
		}
		return protocol.NewErrorResponse(msg), nil
	}
	return protocol.NewSuccessResponse(data), nil
}
