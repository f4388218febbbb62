package invite

import (
	"fmt"
	"net/url"
	"strings"
)

// DefaultLinkBase is the origin used for shareable links.
const DefaultLinkBase = "https://securechat.app"

// Linker builds and parses shareable links of the form
// <base>/invite/<channelID>/<code>.
type Linker struct {
	Base string
}

func (l Linker) base() string {
	b := strings.TrimRight(strings.TrimSpace(l.Base), "/")
	if b == "" {
		return DefaultLinkBase
	}
	return b
}

// Build returns the link for channelID and code. The channel id is path-escaped
// so that Parse can always recover it.
func (l Linker) Build(channelID, code string) string {
	return l.base() + "/invite/" + url.PathEscape(channelID) + "/" + url.PathEscape(code)
}

// Parse extracts channelID and code from a link produced by Build with the same base.
func (l Linker) Parse(link string) (channelID, code string, err error) {
	prefix := l.base() + "/invite/"
	rest, ok := strings.CutPrefix(strings.TrimSpace(link), prefix)
	if !ok {
		return "", "", ValidationError{Field: "link", Value: link, Reason: "not an invite link"}
	}
	rawChannel, rawCode, ok := strings.Cut(rest, "/")
	if !ok || rawChannel == "" || rawCode == "" || strings.Contains(rawCode, "/") {
		return "", "", ValidationError{Field: "link", Value: link, Reason: "malformed invite link"}
	}
	if channelID, err = url.PathUnescape(rawChannel); err != nil {
		return "", "", ValidationError{Field: "link", Value: link, Reason: fmt.Sprintf("bad channel id: %v", err)}
	}
	if code, err = url.PathUnescape(rawCode); err != nil {
		return "", "", ValidationError{Field: "link", Value: link, Reason: fmt.Sprintf("bad code: %v", err)}
	}
	return channelID, code, nil
}

// BuildLink builds a link with DefaultLinkBase.
func BuildLink(channelID, code string) string {
	return Linker{}.Build(channelID, code)
}
