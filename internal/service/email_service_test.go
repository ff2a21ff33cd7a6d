package service

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestBuildSignupInviteContent(t *testing.T) {
	tests := []struct {
		name                string
		input               SignupInviteEmailInput
		wantSubjectContains []string
		wantBodyContains    []string
	}{
		{
			name: "with_name_and_tracking",
			input: SignupInviteEmailInput{
				DisplayName:  "Jane Doe",
				TrackingCode: "TS-2024-000123",
				SignupURL:    "https://portal.example.com/signup?token=tok-abc",
				ExpiresAt:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
			},
			wantSubjectContains: []string{"finish setting up your account"},
			wantBodyContains: []string{
				"Hello Jane Doe",
				"shipment TS-2024-000123",
				"https://portal.example.com/signup?token=tok-abc",
				"expires on 2026-03-01",
			},
		},
		{
			name: "anonymous_without_tracking",
			input: SignupInviteEmailInput{
				SignupURL: "https://portal.example.com/signup?token=tok-xyz",
			},
			wantBodyContains: []string{
				"Hello,",
				"follow your shipments",
				"tok-xyz",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			subject, body := buildSignupInviteContent(tt.input)
			for _, expected := range tt.wantSubjectContains {
				if !strings.Contains(subject, expected) {
					t.Fatalf("subject missing %q: %s", expected, subject)
				}
			}
			for _, expected := range tt.wantBodyContains {
				if !strings.Contains(body, expected) {
					t.Fatalf("body missing %q: %s", expected, body)
				}
			}
		})
	}
}

func TestIsEmailRecipientRejected(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "smtp_550_no_such_recipient",
			err:  errors.New("550 No such recipient here"),
			want: true,
		},
		{
			name: "smtp_user_unknown",
			err:  errors.New("SMTP 5.1.1 user unknown"),
			want: true,
		},
		{
			name: "smtp_550_mailbox_unavailable",
			err:  errors.New("550 mailbox unavailable"),
			want: true,
		},
		{
			name: "network_timeout",
			err:  errors.New("dial tcp timeout"),
			want: false,
		},
		{
			name: "nil_error",
			err:  nil,
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isEmailRecipientRejected(tt.err); got != tt.want {
				t.Fatalf("isEmailRecipientRejected() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNormalizeEmailSendError(t *testing.T) {
	rejected := errors.New("550 No such recipient here")
	if got := normalizeEmailSendError(rejected); !errors.Is(got, ErrEmailRecipientRejected) {
		t.Fatalf("normalizeEmailSendError() expected ErrEmailRecipientRejected, got %v", got)
	}

	networkErr := errors.New("dial tcp timeout")
	if got := normalizeEmailSendError(networkErr); !errors.Is(got, networkErr) {
		t.Fatalf("normalizeEmailSendError() should keep original error, got %v", got)
	}

	if got := normalizeEmailSendError(nil); got != nil {
		t.Fatalf("normalizeEmailSendError(nil) should be nil, got %v", got)
	}
}
