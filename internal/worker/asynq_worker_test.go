package worker

import "testing"

func TestBuildSignupURL(t *testing.T) {
	got := buildSignupURL("https://portal.example.com", "tok-123")
	want := "https://portal.example.com/signup?token=tok-123"
	if got != want {
		t.Fatalf("unexpected signup url, want %q, got %q", want, got)
	}
}

func TestBuildSignupURLTrimsTrailingSlash(t *testing.T) {
	got := buildSignupURL("https://portal.example.com/  ", "tok-456")
	want := "https://portal.example.com/signup?token=tok-456"
	if got != want {
		t.Fatalf("unexpected signup url, want %q, got %q", want, got)
	}
}

func TestBuildSignupURLFallbackBase(t *testing.T) {
	got := buildSignupURL("", "tok-789")
	want := "http://localhost:3000/signup?token=tok-789"
	if got != want {
		t.Fatalf("unexpected signup url, want %q, got %q", want, got)
	}
}
