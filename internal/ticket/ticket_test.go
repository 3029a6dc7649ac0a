package ticket

import (
	"testing"

	"github.com/stretchr/testify/require"

	"hearme/internal/herr"
)

func TestTicketRoundTrip(t *testing.T) {
	tk := Ticket{Addr: EndpointAddress{Host: "192.168.1.42", Port: 4242, Fingerprint: "deadbeef"}}
	encoded := tk.Encode()

	decoded, err := Decode(encoded)
	require.NoError(t, err)
	require.Equal(t, tk, decoded)
}

func TestTicketRoundTripWithWhitespace(t *testing.T) {
	tk := Ticket{Addr: EndpointAddress{Host: "10.0.0.1", Port: 1, Fingerprint: "ab"}}
	encoded := "  \n" + tk.Encode() + "\t\n"

	decoded, err := Decode(encoded)
	require.NoError(t, err)
	require.Equal(t, tk, decoded)
}

func TestTicketFromInvalidBase64Fails(t *testing.T) {
	_, err := Decode("not valid base64url!!!")
	require.Error(t, err)
	require.True(t, herr.Is(err, herr.BadTicket))
}

func TestTicketFromValidBase64InvalidJSONFails(t *testing.T) {
	garbage := "bm90IGpzb24" // base64url("not json")
	_, err := Decode(garbage)
	require.Error(t, err)
	require.True(t, herr.Is(err, herr.BadTicket))
}
