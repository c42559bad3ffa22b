// Package paylink recognizes invoice references in scanned or pasted text.
package paylink

import (
	"errors"
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

// ErrUnrecognized is returned when text carries no invoice reference.
var ErrUnrecognized = errors.New("could not recognize invoice")

var (
	payToken   = regexp.MustCompile(`(?i)^PAY:(\d+)$`)
	urlInline  = regexp.MustCompile(`(?i)(?:/pay/|/invoice/|[?&]invoice=)(\d+)`)
	digitsOnly = regexp.MustCompile(`^\d+$`)
)

// ParseReference extracts an invoice id. First match wins:
// PAY:<digits>, then /pay/<d>, /invoice/<d> or invoice=<d> in a URL, then bare digits.
// ok is false when nothing matches or the id overflows int64.
func ParseReference(text string) (id int64, ok bool) {
	s := strings.TrimSpace(text)
	if s == "" {
		return 0, false
	}
	for _, re := range []*regexp.Regexp{payToken, urlInline} {
		if m := re.FindStringSubmatch(s); m != nil {
			return atoi(m[1])
		}
	}
	if digitsOnly.MatchString(s) {
		return atoi(s)
	}
	return 0, false
}

func atoi(s string) (int64, bool) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Reference is either an invoice id or a signed paylink URL.
type Reference struct {
	InvoiceID int64
	Paylink   string
}

func (r Reference) IsPaylink() bool { return r.Paylink != "" }

func (r Reference) String() string {
	if r.IsPaylink() {
		return r.Paylink
	}
	return "PAY:" + strconv.FormatInt(r.InvoiceID, 10)
}

// Resolve turns free-form text into a Reference. Invoice ids take precedence;
// otherwise an http(s) URL whose path ends in /paylink with a sig parameter is
// accepted as-is for server-side verification.
func Resolve(text string) (Reference, error) {
	if id, ok := ParseReference(text); ok {
		return Reference{InvoiceID: id}, nil
	}
	s := strings.TrimSpace(text)
	if isPaylink(s) {
		return Reference{Paylink: s}, nil
	}
	return Reference{}, ErrUnrecognized
}

func isPaylink(s string) bool {
	u, err := url.Parse(s)
	if err != nil || u.Host == "" {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	return strings.HasSuffix(u.Path, "/paylink") && u.Query().Get("sig") != ""
}
