package service

import (
	"strings"
	"sync"
	"time"

	"github.com/Juddanxavier/track-sub003/internal/config"

	"github.com/mojocn/base64Captcha"
)

const (
	captchaDefaultLength        = 5
	captchaDefaultWidth         = 240
	captchaDefaultHeight        = 80
	captchaDefaultExpireSeconds = 300
	captchaDefaultMaxStore      = 10240
	captchaDefaultFailThreshold = 3

	captchaCharset = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"
)

// CaptchaVerifyPayload 验证码校验请求载荷
type CaptchaVerifyPayload struct {
	CaptchaID   string `json:"captcha_id"`
	CaptchaCode string `json:"captcha_code"`
}

// CaptchaImageChallenge 图片验证码挑战
type CaptchaImageChallenge struct {
	CaptchaID   string `json:"captcha_id"`
	ImageBase64 string `json:"image_base64"`
}

// CaptchaService 登录图片验证码服务。
// 连续登录失败达到阈值后才要求验证码，阈值由配置给出。
type CaptchaService struct {
	cfg config.CaptchaConfig

	mu         sync.Mutex
	imageStore base64Captcha.Store
}

// NewCaptchaService 创建验证码服务
func NewCaptchaService(cfg config.CaptchaConfig) *CaptchaService {
	return &CaptchaService{cfg: normalizeCaptchaConfig(cfg)}
}

// Enabled 验证码功能是否开启
func (s *CaptchaService) Enabled() bool {
	return s != nil && s.cfg.Enabled
}

// FailThreshold 连续失败多少次后要求验证码
func (s *CaptchaService) FailThreshold() int {
	if s == nil {
		return captchaDefaultFailThreshold
	}
	return s.cfg.FailThreshold
}

// RequiredAfterFailures 根据近期失败次数判断本次登录是否需要验证码
func (s *CaptchaService) RequiredAfterFailures(recentFailures int64) bool {
	if !s.Enabled() {
		return false
	}
	return recentFailures >= int64(s.cfg.FailThreshold)
}

// GenerateImageChallenge 生成图片验证码
func (s *CaptchaService) GenerateImageChallenge() (*CaptchaImageChallenge, error) {
	if !s.Enabled() {
		return nil, ErrCaptchaConfigInvalid
	}

	driver := base64Captcha.NewDriverString(
		s.cfg.Image.Height,
		s.cfg.Image.Width,
		s.cfg.Image.NoiseCount,
		s.cfg.Image.ShowLine,
		s.cfg.Image.Length,
		captchaCharset,
		nil,
		base64Captcha.DefaultEmbeddedFonts,
		nil,
	)
	captcha := base64Captcha.NewCaptcha(driver, s.ensureImageStore())
	id, b64s, _, err := captcha.Generate()
	if err != nil {
		return nil, err
	}

	return &CaptchaImageChallenge{
		CaptchaID:   strings.TrimSpace(id),
		ImageBase64: strings.TrimSpace(b64s),
	}, nil
}

// Verify 校验验证码，校验成功即销毁
func (s *CaptchaService) Verify(payload CaptchaVerifyPayload) error {
	if !s.Enabled() {
		return nil
	}
	captchaID := strings.TrimSpace(payload.CaptchaID)
	captchaCode := strings.TrimSpace(payload.CaptchaCode)
	if captchaID == "" || captchaCode == "" {
		return ErrCaptchaRequired
	}
	if !s.ensureImageStore().Verify(captchaID, captchaCode, true) {
		return ErrCaptchaInvalid
	}
	return nil
}

func (s *CaptchaService) ensureImageStore() base64Captcha.Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.imageStore == nil {
		s.imageStore = base64Captcha.NewMemoryStore(
			s.cfg.Image.MaxStore,
			time.Duration(s.cfg.Image.ExpireSeconds)*time.Second,
		)
	}
	return s.imageStore
}

func normalizeCaptchaConfig(cfg config.CaptchaConfig) config.CaptchaConfig {
	if cfg.FailThreshold <= 0 {
		cfg.FailThreshold = captchaDefaultFailThreshold
	}
	if cfg.Image.Length <= 0 {
		cfg.Image.Length = captchaDefaultLength
	}
	if cfg.Image.Width <= 0 {
		cfg.Image.Width = captchaDefaultWidth
	}
	if cfg.Image.Height <= 0 {
		cfg.Image.Height = captchaDefaultHeight
	}
	if cfg.Image.ExpireSeconds <= 0 {
		cfg.Image.ExpireSeconds = captchaDefaultExpireSeconds
	}
	if cfg.Image.MaxStore <= 0 {
		cfg.Image.MaxStore = captchaDefaultMaxStore
	}
	return cfg
}
