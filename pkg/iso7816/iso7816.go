/*
Package iso7816 implements the short-form ISO/IEC 7816-4 APDU codec used to talk to the
secure element, together with the response views the secure channel relies on.

# Fundamentals

The communication with a smart card is strictly synchronous:
 1. The Host sends a Command APDU (CLA INS P1 P2 Lc DATA).
 2. The Card processes it and returns a Response APDU (DATA SW1 SW2).

Only short length encoding is supported: Lc is a single byte, so a command carries at
most 255 data bytes. Extended length is never negotiated.

# Status Words

Every response ends with a 2-byte Status Word (SW). 0x9000 is the only status the secure
channel treats as success; specialized views refuse to build on anything else.

# Response Views

  - SelectResponse: the answer to SELECT on the applet AID. It carries the instance UID
    and the card's static P-256 public key, optionally followed by the applet version.
  - SignResponse: the answer to SIGN. A signature template holding a DER encoded ECDSA
    signature and the uncompressed public key of the signing slot.

# Usage Example

	raw, err := iso7816.SelectByAID(aid).Bytes()
	if err != nil {
	    log.Fatal(err)
	}

	resp, err := iso7816.ParseResponse(card.Transmit(raw))
	if err != nil {
	    log.Fatal(err)
	}

	sel, err := iso7816.NewSelectResponse(resp)
	if err != nil {
	    log.Fatal(err)
	}

	fmt.Printf("Card key: %X\n", sel.PublicKey())
	fmt.Println(sel.Describe())
*/
package iso7816
