package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
)

const defaultWeatherURL = "https://api.open-meteo.com/v1/forecast"

// NewWeatherTool 创建 getWeather 工具，查询 open-meteo 的当前天气。
func NewWeatherTool(client *http.Client, baseURL string) Tool {
	if client == nil {
		client = http.DefaultClient
	}
	if baseURL == "" {
		baseURL = defaultWeatherURL
	}
	return Tool{
		Name:        "getWeather",
		Description: "Get the current weather at a location",
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"latitude":  map[string]interface{}{"type": "number"},
				"longitude": map[string]interface{}{"type": "number"},
			},
			"required": []string{"latitude", "longitude"},
		},
		Handler: func(ctx context.Context, input map[string]interface{}) (interface{}, error) {
			lat, ok1 := input["latitude"].(float64)
			lon, ok2 := input["longitude"].(float64)
			if !ok1 || !ok2 {
				return nil, fmt.Errorf("latitude and longitude are required")
			}
			q := url.Values{}
			q.Set("latitude", strconv.FormatFloat(lat, 'f', -1, 64))
			q.Set("longitude", strconv.FormatFloat(lon, 'f', -1, 64))
			q.Set("current", "temperature_2m")
			q.Set("hourly", "temperature_2m")
			q.Set("daily", "sunrise,sunset")
			q.Set("timezone", "auto")

			req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"?"+q.Encode(), nil)
			if err != nil {
				return nil, err
			}
			resp, err := client.Do(req)
			if err != nil {
				return nil, fmt.Errorf("weather request failed: %w", err)
			}
			defer resp.Body.Close()
			body, err := io.ReadAll(resp.Body)
			if err != nil {
				return nil, err
			}
			if resp.StatusCode != http.StatusOK {
				return nil, fmt.Errorf("weather api returned %s", resp.Status)
			}
			if !json.Valid(body) {
				return nil, fmt.Errorf("weather api returned invalid json")
			}
			return json.RawMessage(body), nil
		},
	}
}
