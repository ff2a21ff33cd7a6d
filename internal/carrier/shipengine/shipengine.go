package shipengine

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

var (
	ErrConfigInvalid    = errors.New("shipengine config invalid")
	ErrRequestFailed    = errors.New("shipengine request failed")
	ErrResponseInvalid  = errors.New("shipengine response invalid")
	ErrSignatureInvalid = errors.New("shipengine signature invalid")
	ErrTrackingNotFound = errors.New("shipengine tracking not found")
)

const (
	defaultAPIBaseURL        = "https://api.shipengine.com"
	defaultTimeout           = 12 * time.Second
	defaultWebhookToleranceS = 300

	signatureHeaderKey = "X-ShipEngine-Signature"
)

// Config ShipEngine 渠道配置。
type Config struct {
	APIKey                  string `json:"api_key"`
	WebhookSecret           string `json:"webhook_secret"`
	APIBaseURL              string `json:"api_base_url"`
	TimeoutMS               int    `json:"timeout_ms"`
	WebhookToleranceSeconds int    `json:"webhook_tolerance_seconds"`
}

// TrackingEvent 单条跟踪事件。
type TrackingEvent struct {
	EventID       string
	StatusCode    string
	Description   string
	CityLocality  string
	StateProvince string
	CountryCode   string
	OccurredAt    time.Time
	Raw           map[string]interface{}
}

// TrackingResult 查询跟踪返回。
type TrackingResult struct {
	TrackingNumber string
	StatusCode     string
	CarrierCode    string
	Events         []TrackingEvent
	Raw            map[string]interface{}
}

// WebhookResult webhook 解析结果。
type WebhookResult struct {
	ResourceType   string
	TrackingNumber string
	CarrierCode    string
	StatusCode     string
	Events         []TrackingEvent
	Raw            map[string]interface{}
}

// ValidateConfig 校验配置。
func ValidateConfig(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("%w: config is nil", ErrConfigInvalid)
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return fmt.Errorf("%w: api_key is required", ErrConfigInvalid)
	}
	base := strings.TrimSpace(cfg.APIBaseURL)
	if base != "" {
		if _, err := url.ParseRequestURI(base); err != nil {
			return fmt.Errorf("%w: api_base_url is invalid", ErrConfigInvalid)
		}
	}
	return nil
}

// Normalize 填充默认值并裁剪空白。
func (c *Config) Normalize() {
	c.APIKey = strings.TrimSpace(c.APIKey)
	c.WebhookSecret = strings.TrimSpace(c.WebhookSecret)
	c.APIBaseURL = strings.TrimRight(strings.TrimSpace(c.APIBaseURL), "/")
	if c.APIBaseURL == "" {
		c.APIBaseURL = defaultAPIBaseURL
	}
	if c.WebhookToleranceSeconds <= 0 {
		c.WebhookToleranceSeconds = defaultWebhookToleranceS
	}
}

// FetchTracking 查询承运商跟踪信息。
func FetchTracking(ctx context.Context, cfg *Config, carrierCode, trackingNumber string) (*TrackingResult, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	carrierCode = strings.TrimSpace(carrierCode)
	trackingNumber = strings.TrimSpace(trackingNumber)
	if carrierCode == "" || trackingNumber == "" {
		return nil, fmt.Errorf("%w: carrier_code and tracking_number are required", ErrConfigInvalid)
	}

	query := url.Values{}
	query.Set("carrier_code", carrierCode)
	query.Set("tracking_number", trackingNumber)
	path := "/v1/tracking?" + query.Encode()

	respBody, statusCode, err := doJSONRequest(ctx, cfg, http.MethodGet, path)
	if err != nil {
		return nil, err
	}
	if statusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s/%s", ErrTrackingNotFound, carrierCode, trackingNumber)
	}
	if statusCode < 200 || statusCode >= 300 {
		return nil, fmt.Errorf("%w: tracking query status %d", ErrResponseInvalid, statusCode)
	}

	raw, err := decodeRawMap(respBody)
	if err != nil {
		return nil, err
	}
	result := &TrackingResult{
		TrackingNumber: strings.TrimSpace(readString(raw, "tracking_number")),
		StatusCode:     strings.ToUpper(strings.TrimSpace(readString(raw, "status_code"))),
		CarrierCode:    strings.TrimSpace(readString(raw, "carrier_code")),
		Raw:            raw,
	}
	if result.TrackingNumber == "" {
		result.TrackingNumber = trackingNumber
	}
	result.Events = parseEvents(raw)
	return result, nil
}

// VerifyAndParseWebhook 校验并解析 webhook。
// 签名头格式与校验方式：t=<unix>,v1=<hex(hmac-sha256(secret, "<unix>.<body>"))>。
func VerifyAndParseWebhook(cfg *Config, headers map[string]string, body []byte, now time.Time) (*WebhookResult, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: config is nil", ErrConfigInvalid)
	}
	if strings.TrimSpace(cfg.WebhookSecret) == "" {
		return nil, fmt.Errorf("%w: webhook_secret is required", ErrConfigInvalid)
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("%w: body is empty", ErrResponseInvalid)
	}
	if now.IsZero() {
		now = time.Now()
	}

	signatureHeader := getHeaderValue(headers, signatureHeaderKey)
	if strings.TrimSpace(signatureHeader) == "" {
		return nil, fmt.Errorf("%w: %s is required", ErrSignatureInvalid, signatureHeaderKey)
	}
	timestamp, signatures, err := parseSignatureHeader(signatureHeader)
	if err != nil {
		return nil, err
	}
	if cfg.WebhookToleranceSeconds > 0 {
		delta := math.Abs(float64(now.Unix() - timestamp))
		if delta > float64(cfg.WebhookToleranceSeconds) {
			return nil, fmt.Errorf("%w: timestamp outside tolerance", ErrSignatureInvalid)
		}
	}

	expected := ComputeSignature(cfg.WebhookSecret, timestamp, body)
	matched := false
	for _, sig := range signatures {
		if hmac.Equal([]byte(strings.ToLower(sig)), []byte(expected)) {
			matched = true
			break
		}
	}
	if !matched {
		return nil, fmt.Errorf("%w: verify failed", ErrSignatureInvalid)
	}

	raw, err := decodeRawMap(body)
	if err != nil {
		return nil, err
	}
	resourceType := strings.TrimSpace(readString(raw, "resource_type"))
	dataRaw := readMap(raw, "data")
	if dataRaw == nil {
		return nil, fmt.Errorf("%w: missing data object", ErrResponseInvalid)
	}

	result := &WebhookResult{
		ResourceType:   resourceType,
		TrackingNumber: strings.TrimSpace(readString(dataRaw, "tracking_number")),
		CarrierCode:    strings.TrimSpace(readString(dataRaw, "carrier_code")),
		StatusCode:     strings.ToUpper(strings.TrimSpace(readString(dataRaw, "status_code"))),
		Raw:            raw,
	}
	if result.TrackingNumber == "" {
		return nil, fmt.Errorf("%w: missing tracking_number", ErrResponseInvalid)
	}
	result.Events = parseEvents(dataRaw)
	return result, nil
}

// ComputeSignature 计算 webhook 签名（测试与本地校验共用）。
func ComputeSignature(secret string, timestamp int64, body []byte) string {
	payload := strconv.FormatInt(timestamp, 10) + "." + string(body)
	h := hmac.New(sha256.New, []byte(secret))
	_, _ = h.Write([]byte(payload))
	return strings.ToLower(hex.EncodeToString(h.Sum(nil)))
}

func parseEvents(raw map[string]interface{}) []TrackingEvent {
	value, ok := raw["events"]
	if !ok || value == nil {
		return nil
	}
	items, ok := value.([]interface{})
	if !ok {
		return nil
	}
	events := make([]TrackingEvent, 0, len(items))
	for _, item := range items {
		entry, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		event := TrackingEvent{
			EventID:       strings.TrimSpace(readString(entry, "event_id")),
			StatusCode:    strings.ToUpper(strings.TrimSpace(readString(entry, "status_code"))),
			Description:   strings.TrimSpace(readString(entry, "description")),
			CityLocality:  strings.TrimSpace(readString(entry, "city_locality")),
			StateProvince: strings.TrimSpace(readString(entry, "state_province")),
			CountryCode:   strings.TrimSpace(readString(entry, "country_code")),
			Raw:           entry,
		}
		if occurredAt := strings.TrimSpace(readString(entry, "occurred_at")); occurredAt != "" {
			if parsed, err := time.Parse(time.RFC3339Nano, occurredAt); err == nil {
				event.OccurredAt = parsed
			}
		}
		if event.OccurredAt.IsZero() {
			continue
		}
		events = append(events, event)
	}
	return events
}

// Location 拼接事件地点描述。
func (e TrackingEvent) Location() string {
	parts := make([]string, 0, 3)
	for _, part := range []string{e.CityLocality, e.StateProvince, e.CountryCode} {
		if part != "" {
			parts = append(parts, part)
		}
	}
	return strings.Join(parts, ", ")
}

func doJSONRequest(ctx context.Context, cfg *Config, method, path string) ([]byte, int, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	base := strings.TrimRight(strings.TrimSpace(cfg.APIBaseURL), "/")
	if base == "" {
		base = defaultAPIBaseURL
	}
	endpoint := base + path
	req, err := http.NewRequestWithContext(ctx, method, endpoint, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: build request failed", ErrRequestFailed)
	}
	req.Header.Set("API-Key", cfg.APIKey)
	req.Header.Set("Accept", "application/json")

	timeout := defaultTimeout
	if cfg.TimeoutMS > 0 {
		timeout = time.Duration(cfg.TimeoutMS) * time.Millisecond
	}
	resp, err := (&http.Client{Timeout: timeout}).Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("%w: read response failed", ErrResponseInvalid)
	}
	return respBody, resp.StatusCode, nil
}

func decodeRawMap(body []byte) (map[string]interface{}, error) {
	var raw map[string]interface{}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: decode response failed", ErrResponseInvalid)
	}
	return raw, nil
}

func parseSignatureHeader(signatureHeader string) (int64, []string, error) {
	timestamp := int64(0)
	signatures := make([]string, 0)
	parts := strings.Split(signatureHeader, ",")
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			continue
		}
		key := strings.TrimSpace(kv[0])
		value := strings.TrimSpace(kv[1])
		switch key {
		case "t":
			parsed, err := strconv.ParseInt(value, 10, 64)
			if err != nil || parsed <= 0 {
				return 0, nil, fmt.Errorf("%w: invalid timestamp", ErrSignatureInvalid)
			}
			timestamp = parsed
		case "v1":
			if value != "" {
				signatures = append(signatures, strings.ToLower(value))
			}
		}
	}
	if timestamp <= 0 {
		return 0, nil, fmt.Errorf("%w: timestamp is missing", ErrSignatureInvalid)
	}
	if len(signatures) == 0 {
		return 0, nil, fmt.Errorf("%w: v1 signature is missing", ErrSignatureInvalid)
	}
	return timestamp, signatures, nil
}

func getHeaderValue(headers map[string]string, key string) string {
	if len(headers) == 0 || strings.TrimSpace(key) == "" {
		return ""
	}
	for h, value := range headers {
		if strings.EqualFold(strings.TrimSpace(h), key) {
			return strings.TrimSpace(value)
		}
	}
	return ""
}

func readString(raw map[string]interface{}, key string) string {
	if raw == nil || strings.TrimSpace(key) == "" {
		return ""
	}
	value, ok := raw[key]
	if !ok || value == nil {
		return ""
	}
	switch typed := value.(type) {
	case string:
		return strings.TrimSpace(typed)
	case json.Number:
		return strings.TrimSpace(typed.String())
	case float64:
		return strings.TrimSpace(strconv.FormatInt(int64(typed), 10))
	case int64:
		return strings.TrimSpace(strconv.FormatInt(typed, 10))
	case int:
		return strings.TrimSpace(strconv.Itoa(typed))
	default:
		return ""
	}
}

func readMap(raw map[string]interface{}, key string) map[string]interface{} {
	if raw == nil || strings.TrimSpace(key) == "" {
		return nil
	}
	value, ok := raw[key]
	if !ok || value == nil {
		return nil
	}
	mapped, ok := value.(map[string]interface{})
	if !ok {
		return nil
	}
	return mapped
}
