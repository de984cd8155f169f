package email

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
)

// requestIDPattern is the subject-line convention that ties a message to a
// request. The first match anywhere in the subject is authoritative.
var requestIDPattern = regexp.MustCompile(`\[REQ-(\d+)\]`)

// FormatSubject prefixes a subject line with the request id tag.
func FormatSubject(subject string, requestID int64) string {
	return fmt.Sprintf("[REQ-%d] %s", requestID, subject)
}

// ExtractRequestID pulls the request id out of a subject line. It returns
// false when the subject carries no well-formed tag.
func ExtractRequestID(subject string) (int64, bool) {
	m := requestIDPattern.FindStringSubmatch(subject)
	if m == nil {
		return 0, false
	}
	id, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// Sender sends workflow mail with the request id embedded in the subject.
type Sender struct {
	transport Transport
}

// NewSender creates a sender over the given transport.
func NewSender(transport Transport) *Sender {
	return &Sender{transport: transport}
}

// SendForRequest sends an email for a workflow request, tagging the subject
// with the request id so replies can be routed back.
func (s *Sender) SendForRequest(ctx context.Context, requestID int64, req SendRequest) (string, error) {
	req.Subject = FormatSubject(req.Subject, requestID)
	return s.transport.Send(ctx, req)
}
