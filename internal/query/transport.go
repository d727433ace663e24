package query

import "strings"

// Transport is the transfer syntax and compression the viewer should
// request for every series of an archive.
type Transport struct {
	TransferSyntaxUID string
	Compression       string
}

// ParseTransport reads a "transferSyntaxUID[:compression]" value.
// Both parts are optional.
func ParseTransport(s string) Transport {
	s = strings.TrimSpace(s)
	if s == "" {
		return Transport{}
	}
	parts := strings.Split(s, ":")
	t := Transport{TransferSyntaxUID: strings.TrimSpace(parts[0])}
	if len(parts) > 1 {
		t.Compression = strings.TrimSpace(parts[1])
	}
	return t
}

// IsZero reports whether nothing is configured
func (t Transport) IsZero() bool {
	return t.TransferSyntaxUID == "" && t.Compression == ""
}
