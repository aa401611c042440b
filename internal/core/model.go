package core

import (
	"encoding/base64"
	"net/mail"
	"strings"
	"time"
)

// DetectionMethod identifies which analyzer produced a score
type DetectionMethod string

const (
	MethodHeader           DetectionMethod = "header"
	MethodContentStructure DetectionMethod = "content_structure"
	MethodSenderReputation DetectionMethod = "sender_reputation"
	MethodUserFeedback     DetectionMethod = "user_feedback"
)

// Methods lists every analyzer method in default weight order
func Methods() []DetectionMethod {
	return []DetectionMethod{
		MethodHeader,
		MethodContentStructure,
		MethodSenderReputation,
		MethodUserFeedback,
	}
}

// Header is a single mail header name/value pair
type Header struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// EmailBody holds a base64-encoded body payload
type EmailBody struct {
	Data string `json:"data"`
}

// EmailPayload is a MIME-like message part; Parts may nest arbitrarily
type EmailPayload struct {
	Headers  []Header        `json:"headers,omitempty"`
	MimeType string          `json:"mimeType,omitempty"`
	Body     *EmailBody      `json:"body,omitempty"`
	Parts    []*EmailPayload `json:"parts,omitempty"`
}

// Email represents an email message to be analyzed
type Email struct {
	ID      string        `json:"id"`
	Payload *EmailPayload `json:"payload,omitempty"`
}

// Header returns the first header value matching name, case-insensitively
func (e *Email) Header(name string) string {
	if e == nil || e.Payload == nil {
		return ""
	}
	for _, h := range e.Payload.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

// Sender returns the lowercased sender address extracted from the From header
func (e *Email) Sender() string {
	from := e.Header("From")
	if from == "" {
		return ""
	}
	if addr, err := mail.ParseAddress(from); err == nil {
		return strings.ToLower(addr.Address)
	}
	return strings.ToLower(strings.TrimSpace(from))
}

// DomainOf extracts the domain portion of an email address
func DomainOf(address string) string {
	at := strings.LastIndex(address, "@")
	if at < 0 || at == len(address)-1 {
		return ""
	}
	return strings.ToLower(address[at+1:])
}

// FindHTMLPart searches the payload tree depth-first for the first text/html
// part that carries body data
func FindHTMLPart(p *EmailPayload) *EmailPayload {
	if p == nil {
		return nil
	}
	if strings.HasPrefix(strings.ToLower(p.MimeType), "text/html") && p.Body != nil && p.Body.Data != "" {
		return p
	}
	for _, part := range p.Parts {
		if found := FindHTMLPart(part); found != nil {
			return found
		}
	}
	return nil
}

// DecodeBody decodes a base64 body payload, accepting URL-safe and standard
// alphabets with or without padding
func DecodeBody(body *EmailBody) ([]byte, error) {
	if body == nil {
		return nil, nil
	}
	data := strings.TrimSpace(body.Data)
	if decoded, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(data, "=")); err == nil {
		return decoded, nil
	}
	return base64.StdEncoding.DecodeString(data)
}

// DetectionScore is one analyzer's probability estimate plus its self-reported
// confidence; it is never mutated after creation
type DetectionScore struct {
	Method     DetectionMethod   `json:"method"`
	Score      float64           `json:"score"`
	Confidence float64           `json:"confidence"`
	Reason     string            `json:"reason"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// DetectionResult is the fused outcome of one detection call
type DetectionResult struct {
	ID                string           `json:"id"`
	Scores            []DetectionScore `json:"scores"`
	CombinedScore     float64          `json:"combinedScore"`
	IsNewsletter      bool             `json:"isNewsletter"`
	NeedsVerification bool             `json:"needsVerification"`
	AnalyzedAt        time.Time        `json:"analyzedAt"`
}

// Reputation tracks confirmed/rejected outcomes for one sender or domain.
// Counters only ever increase and records are never deleted.
type Reputation struct {
	Identity       string    `json:"identity"`
	ConfirmedCount uint64    `json:"confirmedCount"`
	RejectedCount  uint64    `json:"rejectedCount"`
	LastUpdated    time.Time `json:"lastUpdated"`
}

// Total returns the number of recorded observations
func (r *Reputation) Total() uint64 {
	return r.ConfirmedCount + r.RejectedCount
}

// Ratio returns the confirmed/(confirmed+rejected) ratio; callers should
// check Total() first since a record with no observations yields 0
func (r *Reputation) Ratio() float64 {
	total := r.Total()
	if total == 0 {
		return 0
	}
	return float64(r.ConfirmedCount) / float64(total)
}

// UserFeedback holds one user's explicit newsletter decisions
type UserFeedback struct {
	ConfirmedSenders map[string]bool `json:"confirmedSenders"`
	RejectedSenders  map[string]bool `json:"rejectedSenders"`
	TrustedDomains   map[string]bool `json:"trustedDomains"`
	BlockedDomains   map[string]bool `json:"blockedDomains"`
}

// NewUserFeedback creates an empty feedback record
func NewUserFeedback() *UserFeedback {
	return &UserFeedback{
		ConfirmedSenders: make(map[string]bool),
		RejectedSenders:  make(map[string]bool),
		TrustedDomains:   make(map[string]bool),
		BlockedDomains:   make(map[string]bool),
	}
}

// Clone returns a deep copy, used by stores for copy-on-write updates
func (f *UserFeedback) Clone() *UserFeedback {
	clone := NewUserFeedback()
	for s := range f.ConfirmedSenders {
		clone.ConfirmedSenders[s] = true
	}
	for s := range f.RejectedSenders {
		clone.RejectedSenders[s] = true
	}
	for d := range f.TrustedDomains {
		clone.TrustedDomains[d] = true
	}
	for d := range f.BlockedDomains {
		clone.BlockedDomains[d] = true
	}
	return clone
}

// domainPromotionThreshold is the number of distinct confirmed (or rejected)
// senders from one domain before the domain itself is trusted (or blocked)
const domainPromotionThreshold = 3

// RecordSender applies one explicit decision for a sender. The sender is
// removed from the opposite set before being added, so it is never in both.
// Once the promotion threshold is crossed the owning domain is promoted.
func (f *UserFeedback) RecordSender(sender, domain string, isNewsletter bool) {
	sender = strings.ToLower(sender)
	domain = strings.ToLower(domain)

	if isNewsletter {
		delete(f.RejectedSenders, sender)
		f.ConfirmedSenders[sender] = true
	} else {
		delete(f.ConfirmedSenders, sender)
		f.RejectedSenders[sender] = true
	}

	if domain == "" {
		return
	}
	if f.countSendersInDomain(f.ConfirmedSenders, domain) >= domainPromotionThreshold {
		f.TrustedDomains[domain] = true
	}
	if f.countSendersInDomain(f.RejectedSenders, domain) >= domainPromotionThreshold {
		f.BlockedDomains[domain] = true
	}
}

func (f *UserFeedback) countSendersInDomain(set map[string]bool, domain string) int {
	count := 0
	for sender := range set {
		if DomainOf(sender) == domain {
			count++
		}
	}
	return count
}

// FeedbackEvent is one confirm/reject decision from a human
type FeedbackEvent struct {
	EmailID      string    `json:"emailId"`
	IsNewsletter bool      `json:"isNewsletter"`
	UserID       string    `json:"userId"`
	Source       string    `json:"source,omitempty"`
	Timestamp    time.Time `json:"timestamp,omitempty"`
}
