package providers

import "testing"

func TestListContains(t *testing.T) {
	list := NewList(nil, nil)

	tests := []struct {
		domain string
		want   bool
	}{
		{"mailchimp.com", true},
		{"MAILCHIMP.COM", true},
		{"mail.us1.list-manage.com", true},
		{"substack.com", true},
		{"example.com", false},
		{"notmailchimp.com", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := list.Contains(tt.domain); got != tt.want {
			t.Errorf("Contains(%q) = %v, want %v", tt.domain, got, tt.want)
		}
	}
}

func TestListCustomDomains(t *testing.T) {
	list := NewList([]string{" Newsletter.Example.COM ", ""}, nil)

	if !list.Contains("newsletter.example.com") {
		t.Error("custom domain should be normalized and matched")
	}
	if list.Contains("mailchimp.com") {
		t.Error("custom list must replace the defaults")
	}
	if got := len(list.Domains()); got != 1 {
		t.Errorf("Domains() has %d entries, want 1", got)
	}
}

func TestDefaultIsCopied(t *testing.T) {
	a := Default()
	a[0] = "mutated"
	if Default()[0] == "mutated" {
		t.Error("Default must return a copy")
	}
}
