package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	agent "github.com/Protocol-Lattice/go-dbagent"
)

const (
	GetHoroscopeTool    = "get_horoscope"
	DefaultHoroscopeURL = "https://api.api-ninjas.com/v1/horoscope"
	maxHoroscopeBody    = 1 << 20
)

// HoroscopeTool fetches the daily horoscope for a zodiac sign. Its output is
// returned to the user as-is, ending the run.
type HoroscopeTool struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
}

// NewHoroscopeTool creates a tool using the public API endpoint.
func NewHoroscopeTool(apiKey string) *HoroscopeTool {
	return &HoroscopeTool{
		BaseURL: DefaultHoroscopeURL,
		APIKey:  apiKey,
		Client:  &http.Client{Timeout: 15 * time.Second},
	}
}

func (h *HoroscopeTool) Spec() agent.ToolSpec {
	return agent.ToolSpec{
		Name:        GetHoroscopeTool,
		Description: "Get today's horoscope for a zodiac sign.",
		InputSchema: objectSchema([]string{"sign"}, map[string]any{
			"sign": prop("string", "Zodiac sign, e.g. aries."),
		}),
		StopAfterCall: true,
	}
}

func (h *HoroscopeTool) Invoke(ctx context.Context, req agent.ToolRequest) (agent.ToolResponse, error) {
	sign, err := stringArg(req.Arguments, "sign")
	if err != nil {
		return agent.ToolResponse{}, err
	}
	text, err := h.Fetch(ctx, sign)
	if err != nil {
		return agent.ToolResponse{}, err
	}
	return agent.ToolResponse{Content: text, Metadata: map[string]string{"sign": strings.ToLower(sign)}}, nil
}

// Fetch returns the horoscope text for sign.
func (h *HoroscopeTool) Fetch(ctx context.Context, sign string) (string, error) {
	base := h.BaseURL
	if base == "" {
		base = DefaultHoroscopeURL
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("horoscope url: %w", err)
	}
	q := u.Query()
	q.Set("zodiac", strings.ToLower(strings.TrimSpace(sign)))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("X-Api-Key", h.APIKey)
	req.Header.Set("Accept", "application/json")

	client := h.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("horoscope request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxHoroscopeBody))
	if err != nil {
		return "", fmt.Errorf("read horoscope response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("horoscope api returned %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	var payload struct {
		Horoscope string `json:"horoscope"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Horoscope != "" {
		return payload.Horoscope, nil
	}
	return strings.TrimSpace(string(body)), nil
}

var _ agent.Tool = (*HoroscopeTool)(nil)
