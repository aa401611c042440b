package filter

import (
	"encoding/base64"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"net/textproto"
	"strings"

	"github.com/inboxkit/newsletter-detector/internal/core"
)

// EmailFromMessage converts a parsed RFC 822 message into the nested payload
// structure the analyzers consume. Multipart bodies become nested parts;
// leaf bodies are decoded from their content transfer encoding and then
// base64-encoded into the payload.
func EmailFromMessage(id string, msg *mail.Message) (*core.Email, error) {
	headers := headersFromMap(msg.Header)
	payload, err := payloadFromBody(headers, msg.Body)
	if err != nil {
		return nil, err
	}
	return &core.Email{ID: id, Payload: payload}, nil
}

func headersFromMap(header map[string][]string) []core.Header {
	headers := make([]core.Header, 0, len(header))
	for name, values := range header {
		for _, value := range values {
			headers = append(headers, core.Header{Name: name, Value: value})
		}
	}
	return headers
}

func payloadFromBody(headers []core.Header, body io.Reader) (*core.EmailPayload, error) {
	contentType := headerValue(headers, "Content-Type")
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil || mediaType == "" {
		mediaType = "text/plain"
	}

	payload := &core.EmailPayload{
		Headers:  headers,
		MimeType: mediaType,
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		boundary, ok := params["boundary"]
		if !ok {
			// Malformed multipart; keep the raw body as a leaf
			return leafPayload(payload, headers, body)
		}

		mr := multipart.NewReader(body, boundary)
		for {
			part, err := mr.NextPart()
			if err == io.EOF {
				break
			}
			if err != nil {
				// Salvage whatever parts were already parsed
				break
			}
			child, err := payloadFromBody(headersFromMIME(part.Header), part)
			if err != nil {
				continue
			}
			payload.Parts = append(payload.Parts, child)
		}
		return payload, nil
	}

	return leafPayload(payload, headers, body)
}

func leafPayload(payload *core.EmailPayload, headers []core.Header, body io.Reader) (*core.EmailPayload, error) {
	decoded := decodeTransferEncoding(headerValue(headers, "Content-Transfer-Encoding"), body)
	data, err := io.ReadAll(decoded)
	if err != nil {
		return nil, err
	}
	if len(data) > 0 {
		payload.Body = &core.EmailBody{Data: base64.RawURLEncoding.EncodeToString(data)}
	}
	return payload, nil
}

// decodeTransferEncoding unwraps base64 and quoted-printable bodies; other
// encodings pass through unchanged
func decodeTransferEncoding(encoding string, body io.Reader) io.Reader {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "base64":
		return base64.NewDecoder(base64.StdEncoding, body)
	case "quoted-printable":
		return quotedprintable.NewReader(body)
	default:
		return body
	}
}

func headersFromMIME(header textproto.MIMEHeader) []core.Header {
	return headersFromMap(header)
}

func headerValue(headers []core.Header, name string) string {
	for _, h := range headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

// decodeEncodedHeader decodes RFC 2047 encoded-word header values
func decodeEncodedHeader(value string) (string, error) {
	decoder := &mime.WordDecoder{}
	return decoder.DecodeHeader(value)
}
