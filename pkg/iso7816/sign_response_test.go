package iso7816

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/gregLibert/secure-channel/pkg/tlv"
)

const (
	testHash      = "3d17e21d2dbe38dd73e6e41b816e0eed8143d0ca3b35aed3b5b631afc402d8cb"
	testSignature = "3044022003b163f70c355463a1e7befbe3cce8bfc49d4b8e45da209515ebe300472c59f9" +
		"022033ded240e05f3082db2251f4c916c261fd2d2b7d4a9568329fed0f8b7a8130ab"
)

// signVector is the answer of a card to SIGN over testHash, status word included.
func signVector() []byte {
	return tlv.Hex("A0 81 89", testSignature, "04 41", testPublicKey, "9000")
}

func TestNewSignResponse_Vector(t *testing.T) {
	resp, err := ParseResponse(signVector())
	if err != nil {
		t.Fatalf("ParseResponse failed: %v", err)
	}

	sig, err := NewSignResponse(resp)
	if err != nil {
		t.Fatalf("NewSignResponse failed: %v", err)
	}

	if !bytes.Equal(sig.Signature(), tlv.Hex(testSignature)) {
		t.Errorf("Mismatch\nExpected: %s\nGot:      %X", testSignature, sig.Signature())
	}
	if !bytes.Equal(sig.PublicKey(), tlv.Hex(testPublicKey)) {
		t.Errorf("Mismatch\nExpected: %s\nGot:      %X", testPublicKey, sig.PublicKey())
	}

	ok, err := sig.Verify(tlv.Hex(testHash))
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if !ok {
		t.Error("signature does not verify against the embedded key")
	}

	other := tlv.Hex(testHash)
	other[0] ^= 0x01
	if ok, _ := sig.Verify(other); ok {
		t.Error("signature verified against a different hash")
	}
}

func TestNewSignResponse_LengthForms(t *testing.T) {
	shortSig := "3006 020101 020101"

	tests := []struct {
		name    string
		data    []byte
		wantSig string
	}{
		{
			name:    "Direct length",
			data:    tlv.Hex("A0 4B", shortSig, "04 41", testPublicKey),
			wantSig: shortSig,
		},
		{
			name:    "Two length octets",
			data:    tlv.Hex("A0 82 0089", testSignature, "04 41", testPublicKey),
			wantSig: testSignature,
		},
		{
			name:    "Four length octets",
			data:    tlv.Hex("A0 84 00000089", testSignature, "04 41", testPublicKey),
			wantSig: testSignature,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sig, err := NewSignResponse(okResponse(tt.data))
			if err != nil {
				t.Fatalf("NewSignResponse failed: %v", err)
			}
			if !bytes.Equal(sig.Signature(), tlv.Hex(tt.wantSig)) {
				t.Errorf("Signature = %X, want %s", sig.Signature(), tt.wantSig)
			}
		})
	}
}

func TestNewSignResponse_Errors(t *testing.T) {
	tests := []struct {
		name string
		resp *Response
		want error
	}{
		{
			name: "Status not OK",
			resp: &Response{Data: tlv.Hex("A0 81 89", testSignature, "04 41", testPublicKey), Status: SW_ERR_COND_OF_USE_NOT_SAT},
			want: ErrUnexpectedStatus,
		},
		{
			name: "Wrong template tag",
			resp: okResponse(tlv.Hex("A1 81 89", testSignature, "04 41", testPublicKey)),
			want: ErrMalformedSignResponse,
		},
		{
			name: "Declared length too long",
			resp: okResponse(tlv.Hex("A0 81 8A", testSignature, "04 41", testPublicKey)),
			want: ErrMalformedSignResponse,
		},
		{
			name: "Trailing garbage",
			resp: okResponse(tlv.Hex("A0 81 89", testSignature, "04 41", testPublicKey, "00")),
			want: ErrMalformedSignResponse,
		},
		{
			name: "Indefinite length",
			resp: okResponse(tlv.Hex("A0 80", testSignature, "04 41", testPublicKey)),
			want: ErrMalformedSignResponse,
		},
		{
			name: "Bad octet string tag",
			resp: okResponse(tlv.Hex("A0 81 89", testSignature, "03 41", testPublicKey)),
			want: ErrMalformedSignResponse,
		},
		{
			name: "Bad key length byte",
			resp: okResponse(tlv.Hex("A0 81 89", testSignature, "04 40", testPublicKey)),
			want: ErrMalformedSignResponse,
		},
		{
			name: "Empty signature",
			resp: okResponse(tlv.Hex("A0 43", "04 41", testPublicKey)),
			want: ErrMalformedSignResponse,
		},
		{
			name: "Tag only",
			resp: okResponse(tlv.Hex("A0")),
			want: ErrMalformedSignResponse,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewSignResponse(tt.resp); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestSignResponse_Describe(t *testing.T) {
	resp, _ := ParseResponse(signVector())
	sig, err := NewSignResponse(resp)
	if err != nil {
		t.Fatalf("NewSignResponse failed: %v", err)
	}

	report := sig.Describe()
	for _, line := range []string{
		"=== SIGN RESPONSE REPORT ===",
		"    + Result:    [90 00] [OK] SW_NO_ERROR",
		"    + Signature: " + strings.ToUpper(testSignature) + " (70 bytes)",
		"    + PublicKey: " + strings.ToUpper(testPublicKey),
	} {
		if !strings.Contains(report, line) {
			t.Errorf("Report missing line: %q", line)
		}
	}
}
