package providers

import (
	"strings"

	"go.uber.org/zap"
)

// defaultDomains are domains of well-known newsletter and campaign-mail
// platforms; mail relayed through them is almost always a newsletter
var defaultDomains = []string{
	"mailchimp.com",
	"list-manage.com",
	"substack.com",
	"substackcdn.com",
	"sendgrid.net",
	"mailgun.org",
	"mailgun.net",
	"constantcontact.com",
	"campaign-archive.com",
	"campaignmonitor.com",
	"createsend.com",
	"hubspotemail.net",
	"klaviyomail.com",
	"beehiiv.com",
	"convertkit.com",
	"buttondown.email",
	"ghost.io",
	"mailerlite.com",
	"brevo.com",
	"mailjet.com",
}

// List checks whether a domain belongs to a known newsletter platform
type List struct {
	domains map[string]bool
	logger  *zap.Logger
}

// NewList creates a provider list from the given domains; nil or empty means
// the built-in defaults
func NewList(domains []string, logger *zap.Logger) *List {
	if len(domains) == 0 {
		domains = defaultDomains
	}

	normalized := make(map[string]bool, len(domains))
	for _, domain := range domains {
		domain = strings.ToLower(strings.TrimSpace(domain))
		if domain != "" {
			normalized[domain] = true
		}
	}

	if logger != nil {
		logger.Debug("Initialized newsletter provider list", zap.Int("domains", len(normalized)))
	}

	return &List{
		domains: normalized,
		logger:  logger,
	}
}

// Default returns the built-in provider domains
func Default() []string {
	out := make([]string, len(defaultDomains))
	copy(out, defaultDomains)
	return out
}

// Contains reports whether the domain, or a parent domain, is a known
// newsletter provider
func (l *List) Contains(domain string) bool {
	domain = strings.ToLower(strings.TrimSpace(domain))
	if domain == "" {
		return false
	}
	if l.domains[domain] {
		return true
	}
	// mail.us1.list-manage.com matches list-manage.com
	for {
		dot := strings.Index(domain, ".")
		if dot < 0 {
			return false
		}
		domain = domain[dot+1:]
		if l.domains[domain] {
			return true
		}
	}
}

// Domains returns the configured provider domains
func (l *List) Domains() []string {
	out := make([]string, 0, len(l.domains))
	for domain := range l.domains {
		out = append(out, domain)
	}
	return out
}
