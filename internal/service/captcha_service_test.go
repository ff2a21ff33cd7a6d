package service

import (
	"errors"
	"strings"
	"testing"

	"github.com/Juddanxavier/track-sub003/internal/config"
)

func TestCaptchaServiceDisabled(t *testing.T) {
	svc := NewCaptchaService(config.CaptchaConfig{Enabled: false})

	if svc.Enabled() {
		t.Fatal("expected captcha disabled")
	}
	if svc.RequiredAfterFailures(100) {
		t.Fatal("disabled captcha should never be required")
	}
	// 未启用时校验直接放行
	if err := svc.Verify(CaptchaVerifyPayload{}); err != nil {
		t.Fatalf("disabled verify should pass: %v", err)
	}
	if _, err := svc.GenerateImageChallenge(); !errors.Is(err, ErrCaptchaConfigInvalid) {
		t.Fatalf("expected ErrCaptchaConfigInvalid, got %v", err)
	}
}

func TestCaptchaServiceFailThresholdDefault(t *testing.T) {
	svc := NewCaptchaService(config.CaptchaConfig{Enabled: true})

	if svc.FailThreshold() != 3 {
		t.Fatalf("expected default threshold 3, got %d", svc.FailThreshold())
	}
	if svc.RequiredAfterFailures(2) {
		t.Fatal("2 failures should not require captcha")
	}
	if !svc.RequiredAfterFailures(3) {
		t.Fatal("3 failures should require captcha")
	}

	custom := NewCaptchaService(config.CaptchaConfig{Enabled: true, FailThreshold: 5})
	if custom.RequiredAfterFailures(4) {
		t.Fatal("below custom threshold should not require captcha")
	}
	if !custom.RequiredAfterFailures(5) {
		t.Fatal("custom threshold reached should require captcha")
	}
}

func TestCaptchaVerifyRequiresBothFields(t *testing.T) {
	svc := NewCaptchaService(config.CaptchaConfig{Enabled: true})

	cases := []CaptchaVerifyPayload{
		{},
		{CaptchaID: "abc"},
		{CaptchaCode: "1234"},
		{CaptchaID: "  ", CaptchaCode: "  "},
	}
	for _, payload := range cases {
		if err := svc.Verify(payload); !errors.Is(err, ErrCaptchaRequired) {
			t.Fatalf("payload %+v: expected ErrCaptchaRequired, got %v", payload, err)
		}
	}
}

func TestCaptchaVerifyWrongCode(t *testing.T) {
	svc := NewCaptchaService(config.CaptchaConfig{Enabled: true})

	challenge, err := svc.GenerateImageChallenge()
	if err != nil {
		t.Fatalf("generate challenge: %v", err)
	}
	if challenge.CaptchaID == "" {
		t.Fatal("expected captcha id")
	}
	if !strings.HasPrefix(challenge.ImageBase64, "data:image/") {
		t.Fatalf("expected base64 image payload, got %q", challenge.ImageBase64[:min(len(challenge.ImageBase64), 30)])
	}

	err = svc.Verify(CaptchaVerifyPayload{CaptchaID: challenge.CaptchaID, CaptchaCode: "definitely-wrong"})
	if !errors.Is(err, ErrCaptchaInvalid) {
		t.Fatalf("expected ErrCaptchaInvalid, got %v", err)
	}
}

func TestCaptchaVerifyOneTimeUse(t *testing.T) {
	svc := NewCaptchaService(config.CaptchaConfig{Enabled: true})

	challenge, err := svc.GenerateImageChallenge()
	if err != nil {
		t.Fatalf("generate challenge: %v", err)
	}

	// 错误答案也会销毁验证码，重放同一 ID 仍然失败
	_ = svc.Verify(CaptchaVerifyPayload{CaptchaID: challenge.CaptchaID, CaptchaCode: "wrong-1"})
	err = svc.Verify(CaptchaVerifyPayload{CaptchaID: challenge.CaptchaID, CaptchaCode: "wrong-2"})
	if !errors.Is(err, ErrCaptchaInvalid) {
		t.Fatalf("expected ErrCaptchaInvalid on replay, got %v", err)
	}
}
