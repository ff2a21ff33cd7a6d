package seventeentrack

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

var (
	ErrConfigInvalid    = errors.New("seventeentrack config invalid")
	ErrRequestFailed    = errors.New("seventeentrack request failed")
	ErrResponseInvalid  = errors.New("seventeentrack response invalid")
	ErrSignatureInvalid = errors.New("seventeentrack signature invalid")
	ErrTrackingNotFound = errors.New("seventeentrack tracking not found")
)

const (
	defaultBaseURL = "https://api.17track.net"
	defaultTimeout = 12 * time.Second

	signatureHeaderKey = "X-17Track-Sign"
)

// 轨迹阶段常量（track_info.stage）
const (
	StageInfoReceived    = "InfoReceived"
	StageInTransit       = "InTransit"
	StageOutForDelivery  = "OutForDelivery"
	StageDelivered       = "Delivered"
	StageDeliveryFailure = "DeliveryFailure"
	StageException       = "Exception"
	StageExpired         = "Expired"
)

// Config 17Track 接入配置
type Config struct {
	APIKey        string `json:"api_key"`
	WebhookSecret string `json:"webhook_secret"`
	BaseURL       string `json:"base_url"`
	TimeoutMS     int    `json:"timeout_ms"`
}

// TrackEvent 单条轨迹事件
type TrackEvent struct {
	TimeISO     string `json:"time_iso"`
	Description string `json:"description"`
	Location    string `json:"location"`
	Stage       string `json:"stage"`
}

// TrackInfo 单个运单的轨迹信息
type TrackInfo struct {
	Number string       `json:"number"`
	Stage  string       `json:"stage"`
	Events []TrackEvent `json:"events"`
}

// ParsedTime 解析事件时间
func (e TrackEvent) ParsedTime() (time.Time, bool) {
	value := strings.TrimSpace(e.TimeISO)
	if value == "" {
		return time.Time{}, false
	}
	if parsed, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return parsed, true
	}
	if parsed, err := time.Parse("2006-01-02 15:04:05", value); err == nil {
		return parsed.UTC(), true
	}
	return time.Time{}, false
}

// ValidateConfig 校验配置
func ValidateConfig(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("%w: config is nil", ErrConfigInvalid)
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return fmt.Errorf("%w: api_key is required", ErrConfigInvalid)
	}
	return nil
}

// Normalize 填充默认值并裁剪空白
func (c *Config) Normalize() {
	c.APIKey = strings.TrimSpace(c.APIKey)
	c.WebhookSecret = strings.TrimSpace(c.WebhookSecret)
	c.BaseURL = strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if c.BaseURL == "" {
		c.BaseURL = defaultBaseURL
	}
}

// FetchTracking 查询单个运单轨迹
func FetchTracking(ctx context.Context, cfg *Config, carrierCode, trackingNumber string) (*TrackInfo, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	trackingNumber = strings.TrimSpace(trackingNumber)
	if trackingNumber == "" {
		return nil, fmt.Errorf("%w: tracking number is required", ErrConfigInvalid)
	}

	payload := []map[string]interface{}{
		{
			"number":  trackingNumber,
			"carrier": strings.TrimSpace(carrierCode),
		},
	}
	respBytes, err := postJSON(ctx, cfg, "/track/v2.2/gettrackinfo", payload)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Code int `json:"code"`
		Data struct {
			Accepted []TrackInfo `json:"accepted"`
			Rejected []struct {
				Number string `json:"number"`
				Error  struct {
					Code    int    `json:"code"`
					Message string `json:"message"`
				} `json:"error"`
			} `json:"rejected"`
		} `json:"data"`
	}
	if err := json.Unmarshal(respBytes, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrResponseInvalid, err)
	}
	if resp.Code != 0 {
		return nil, fmt.Errorf("%w: api code %d", ErrResponseInvalid, resp.Code)
	}
	for _, item := range resp.Data.Accepted {
		if strings.EqualFold(strings.TrimSpace(item.Number), trackingNumber) {
			found := item
			return &found, nil
		}
	}
	if len(resp.Data.Rejected) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrTrackingNotFound, resp.Data.Rejected[0].Error.Message)
	}
	return nil, fmt.Errorf("%w: %s", ErrTrackingNotFound, trackingNumber)
}

// WebhookPayload webhook 通知载荷
type WebhookPayload struct {
	Event string    `json:"event"`
	Data  TrackInfo `json:"data"`
}

// VerifyWebhook 校验 webhook 签名。
// 签名方式：hex(hmac-sha256(secret, body))，置于 X-17Track-Sign 头。
func VerifyWebhook(cfg *Config, headers map[string]string, body []byte) error {
	if cfg == nil {
		return fmt.Errorf("%w: config is nil", ErrConfigInvalid)
	}
	if strings.TrimSpace(cfg.WebhookSecret) == "" {
		return fmt.Errorf("%w: webhook_secret is required", ErrConfigInvalid)
	}
	if len(body) == 0 {
		return fmt.Errorf("%w: body is empty", ErrResponseInvalid)
	}
	signature := getHeaderValue(headers, signatureHeaderKey)
	if signature == "" {
		return fmt.Errorf("%w: %s is required", ErrSignatureInvalid, signatureHeaderKey)
	}
	expected := ComputeSignature(cfg.WebhookSecret, body)
	if !hmac.Equal([]byte(strings.ToLower(signature)), []byte(expected)) {
		return fmt.Errorf("%w: verify failed", ErrSignatureInvalid)
	}
	return nil
}

// ParseWebhook 解析 webhook 载荷
func ParseWebhook(body []byte) (*WebhookPayload, error) {
	if len(body) == 0 {
		return nil, ErrResponseInvalid
	}
	var payload WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrResponseInvalid, err)
	}
	if strings.TrimSpace(payload.Data.Number) == "" {
		return nil, fmt.Errorf("%w: missing tracking number", ErrResponseInvalid)
	}
	return &payload, nil
}

// ComputeSignature 计算 webhook 签名（测试与本地校验共用）
func ComputeSignature(secret string, body []byte) string {
	h := hmac.New(sha256.New, []byte(secret))
	_, _ = h.Write(body)
	return strings.ToLower(hex.EncodeToString(h.Sum(nil)))
}

func postJSON(ctx context.Context, cfg *Config, path string, payload interface{}) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal payload failed", ErrRequestFailed)
	}

	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = defaultBaseURL
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: build request failed", ErrRequestFailed)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("17token", cfg.APIKey)

	timeout := defaultTimeout
	if cfg.TimeoutMS > 0 {
		timeout = time.Duration(cfg.TimeoutMS) * time.Millisecond
	}
	resp, err := (&http.Client{Timeout: timeout}).Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: http status %d", ErrRequestFailed, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
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
