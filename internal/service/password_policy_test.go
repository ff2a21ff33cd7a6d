package service

import (
	"errors"
	"strings"
	"testing"

	"github.com/Juddanxavier/track-sub003/internal/config"
)

func TestValidatePasswordEmptyPolicy(t *testing.T) {
	// 未配置任何规则时不做校验
	if err := validatePassword(config.PasswordPolicyConfig{}, ""); err != nil {
		t.Fatalf("empty policy should accept anything, got %v", err)
	}
}

func TestValidatePasswordRules(t *testing.T) {
	policy := config.PasswordPolicyConfig{
		MinLength:      8,
		RequireUpper:   true,
		RequireLower:   true,
		RequireNumber:  true,
		RequireSpecial: true,
	}

	cases := []struct {
		name     string
		password string
		wantMsg  string
	}{
		{"too_short", "Ab1!", "at least 8 characters"},
		{"no_upper", "abcdef1!", "uppercase letter"},
		{"no_lower", "ABCDEF1!", "lowercase letter"},
		{"no_digit", "Abcdefg!", "digit"},
		{"no_special", "Abcdefg1", "special character"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := validatePassword(policy, tc.password)
			if !errors.Is(err, ErrWeakPassword) {
				t.Fatalf("expected ErrWeakPassword, got %v", err)
			}
			if !strings.Contains(err.Error(), tc.wantMsg) {
				t.Fatalf("expected message containing %q, got %q", tc.wantMsg, err.Error())
			}
		})
	}

	if err := validatePassword(policy, "Str0ng!Pass"); err != nil {
		t.Fatalf("valid password rejected: %v", err)
	}
}

func TestValidatePasswordMinLengthCountsRunes(t *testing.T) {
	policy := config.PasswordPolicyConfig{MinLength: 6}

	// 多字节字符按字符数而不是字节数计
	if err := validatePassword(policy, "密码密码密码"); err != nil {
		t.Fatalf("6-rune password rejected: %v", err)
	}
	if err := validatePassword(policy, "短密码"); !errors.Is(err, ErrWeakPassword) {
		t.Fatalf("expected ErrWeakPassword for short password, got %v", err)
	}
}
