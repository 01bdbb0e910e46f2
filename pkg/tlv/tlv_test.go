package tlv

import (
	"bytes"
	"strings"
	"testing"

	"github.com/moov-io/bertlv"
)

type version struct {
	Number []byte `tlv:"02"`
}

type appTemplate struct {
	UID       []byte       `tlv:"8F"`
	PublicKey []byte       `tlv:"80"`
	Nested    *version     `tlv:"A5"`
	Other     []bertlv.TLV `tlv:",unknown"`
}

func TestUnmarshal(t *testing.T) {
	raw := Hex(
		"8F 02 1122",
		"80 03 040102",
		"A5 05 02 03 010203",
		"DF01 01 BB",
	)

	var got appTemplate
	if err := Unmarshal(raw, &got); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	if !bytes.Equal(got.UID, Hex("1122")) {
		t.Errorf("UID = %X, want 1122", got.UID)
	}
	if !bytes.Equal(got.PublicKey, Hex("040102")) {
		t.Errorf("PublicKey = %X, want 040102", got.PublicKey)
	}
	if got.Nested == nil || !bytes.Equal(got.Nested.Number, Hex("010203")) {
		t.Errorf("Nested = %+v, want Number 010203", got.Nested)
	}
	if len(got.Other) != 1 || strings.ToUpper(got.Other[0].Tag) != "DF01" {
		t.Errorf("unknown tag DF01 not captured: %+v", got.Other)
	}
}

func TestUnmarshal_ConstructedIntoBytes(t *testing.T) {
	type outer struct {
		Template []byte `tlv:"A4"`
	}

	var got outer
	if err := Unmarshal(Hex("A4 04 8F 02 CAFE"), &got); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if !bytes.Equal(got.Template, Hex("8F02CAFE")) {
		t.Errorf("Template = %X, want re-encoded children 8F02CAFE", got.Template)
	}
}

func TestUnmarshal_Errors(t *testing.T) {
	t.Run("Non-pointer target", func(t *testing.T) {
		err := Unmarshal(Hex("8F 00"), appTemplate{})
		if err == nil || !strings.Contains(err.Error(), "pointer") {
			t.Errorf("expected pointer error, got %v", err)
		}
	})

	t.Run("Truncated TLV", func(t *testing.T) {
		var got appTemplate
		if err := Unmarshal(Hex("8F 05 11"), &got); err == nil {
			t.Error("expected decode error for truncated value")
		}
	})

	t.Run("Unsupported field", func(t *testing.T) {
		var got struct {
			N int `tlv:"02"`
		}
		if err := Unmarshal(Hex("02 01 01"), &got); err == nil {
			t.Error("expected error for int field")
		}
	})
}
