// Package ticket implements the copy/pasted connection artifact a Sharer
// hands a Listener: a base64url-encoded JSON blob of the Sharer's
// reachable endpoint address.
package ticket

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"hearme/internal/herr"
)

// EndpointAddress is everything a Listener needs to dial the Sharer
// directly, with no signaling back-channel.
type EndpointAddress struct {
	Host        string `json:"host"`
	Port        int    `json:"port"`
	Fingerprint string `json:"fingerprint"` // hex SHA-256 of the self-signed cert
}

type Ticket struct {
	Addr EndpointAddress `json:"addr"`
}

// Encode serializes the ticket as JSON then base64url without padding.
func (t Ticket) Encode() string {
	data, err := json.Marshal(t)
	if err != nil {
		// Ticket fields are all plain strings/ints; marshal cannot fail.
		panic(fmt.Sprintf("ticket: marshal: %v", err))
	}
	return base64.RawURLEncoding.EncodeToString(data)
}

// Decode parses a ticket string produced by Encode. Leading/trailing ASCII
// whitespace is trimmed first, tolerating tickets that picked up stray
// newlines when copy/pasted.
func Decode(s string) (Ticket, error) {
	s = strings.TrimSpace(s)

	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return Ticket{}, herr.New(herr.BadTicket, "ticket decode", fmt.Errorf("bad base64: %w", err))
	}

	var t Ticket
	if err := json.Unmarshal(raw, &t); err != nil {
		return Ticket{}, herr.New(herr.BadTicket, "ticket decode", fmt.Errorf("bad payload: %w", err))
	}

	return t, nil
}
