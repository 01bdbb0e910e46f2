package tlv

import (
	"bytes"
	"errors"
	"testing"
)

func TestDecodeLength(t *testing.T) {
	tests := []struct {
		name     string
		input    []byte
		wantLen  int
		wantSize int
		wantErr  error
	}{
		{name: "Short form zero", input: Hex("00"), wantLen: 0, wantSize: 1},
		{name: "Short form max", input: Hex("7F AA"), wantLen: 127, wantSize: 1},
		{name: "Long form 1 octet", input: Hex("81 89"), wantLen: 0x89, wantSize: 2},
		{name: "Long form 2 octets", input: Hex("82 01 00"), wantLen: 256, wantSize: 3},
		{name: "Long form 3 octets", input: Hex("83 01 00 00"), wantLen: 65536, wantSize: 4},
		{name: "Long form 4 octets", input: Hex("84 00 00 01 02"), wantLen: 258, wantSize: 5},
		{name: "Empty", input: nil, wantErr: ErrTruncatedLength},
		{name: "Indefinite", input: Hex("80"), wantErr: ErrUnsupportedLength},
		{name: "Too wide", input: Hex("85 00 00 00 00 01"), wantErr: ErrUnsupportedLength},
		{name: "Truncated long form", input: Hex("82 01"), wantErr: ErrTruncatedLength},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotLen, gotSize, err := DecodeLength(tt.input)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("DecodeLength() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("DecodeLength() unexpected error: %v", err)
			}
			if gotLen != tt.wantLen || gotSize != tt.wantSize {
				t.Errorf("DecodeLength() = (%d, %d), want (%d, %d)", gotLen, gotSize, tt.wantLen, tt.wantSize)
			}
		})
	}
}

func TestEncodeLength(t *testing.T) {
	tests := []struct {
		n    int
		want []byte
	}{
		{0, Hex("00")},
		{0x7F, Hex("7F")},
		{0x80, Hex("81 80")},
		{0xFF, Hex("81 FF")},
		{0x100, Hex("82 01 00")},
		{0x01_0000, Hex("83 01 00 00")},
	}

	for _, tt := range tests {
		got := EncodeLength(tt.n)
		if !bytes.Equal(got, tt.want) {
			t.Errorf("EncodeLength(%d) = %X, want %X", tt.n, got, tt.want)
		}

		n, size, err := DecodeLength(got)
		if err != nil || n != tt.n || size != len(got) {
			t.Errorf("DecodeLength(EncodeLength(%d)) = (%d, %d, %v)", tt.n, n, size, err)
		}
	}
}
