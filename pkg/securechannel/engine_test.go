package securechannel_test

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"testing"

	"github.com/gregLibert/secure-channel/pkg/emulator"
	"github.com/gregLibert/secure-channel/pkg/iso7816"
	"github.com/gregLibert/secure-channel/pkg/securechannel"
	"github.com/gregLibert/secure-channel/pkg/securechannel/securechanneltest"
	"github.com/gregLibert/secure-channel/pkg/tlv"
	"github.com/stretchr/testify/require"
)

const (
	ephemeralKey = "1c658d8f15773331591a199bd9b83be54f07469cb987a6a486c5cd3cb7c2237c"
	cardKey      = "04e6182b2e12ac69b3d288d54f9fc07ebc305988141fc0274637ae36cf771e3057" +
		"114ae752355f2fdb1cc52883c5b17d19c8afd47806478428b6ce877eb07baa96"
	ephemeralPub = "042dcc352f6322da145b5a0922117d4b8fd2363078827ff8ecf82089a398832122" +
		"ef9e4aea245568d6cf5a0a08b870bf346ea43b9cf9f5c1fa1e6d2f5d75387cd7"

	mutualAuthCommand = "a021000040" +
		"cc90bae8e82c996ff7dbd836318ebe84" +
		"7c679bcfa2a7710af18af671934a92d72175b489c8af692fcfeaf4ace5581531" +
		"93d214881de8c87a5313e99b43743522"
	mutualAuthResponse = "d58fd885ae80c66808d8afb381f60431" +
		"edc498d35dfb889004a9d5298e5e4c9d6eb0bd510be274727d1a02e164f5016a" +
		"19e68ff582076fda4a77ca6a6c8f2878"
	finalIV = "d58fd885ae80c66808d8afb381f60431"
)

func sequence(start byte, n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = start + byte(i)
	}
	return b
}

func pairingKey() []byte { return sequence(0x01, 32) }

func openResponse() []byte {
	out := append(sequence(0x40, 32), sequence(0xA0, 16)...)
	return append(out, 0x90, 0x00)
}

func openCommand() []byte {
	return tlv.Hex("A0 20 00 00 41", ephemeralPub)
}

func newScriptedEngine(t *testing.T, steps ...securechanneltest.Exchange) (*securechannel.Engine, *securechanneltest.ScriptedReader) {
	t.Helper()

	reader := securechanneltest.NewScriptedReader(steps...)
	engine, err := securechannel.New(reader, pairingKey(),
		securechannel.WithCardPublicKey(tlv.Hex(cardKey)),
		securechannel.WithKeySource(securechanneltest.FixedKey(tlv.Hex(ephemeralKey))),
		securechannel.WithRand(bytes.NewReader(bytes.Repeat([]byte{0x5A}, 32))),
	)
	require.NoError(t, err)
	require.NoError(t, engine.Connect())
	return engine, reader
}

func TestOpen_ScriptedHandshake(t *testing.T) {
	engine, reader := newScriptedEngine(t,
		securechanneltest.Exchange{Expect: openCommand(), Respond: openResponse()},
		securechanneltest.Exchange{Expect: tlv.Hex(mutualAuthCommand), Respond: tlv.Hex(mutualAuthResponse, "9000")},
	)

	require.NoError(t, engine.Open())
	require.Equal(t, securechannel.Open, engine.State())
	require.Equal(t, 0, reader.Remaining())
	require.Equal(t, tlv.Hex(finalIV), engine.CurrentIV())
}

func TestOpen_MutualAuthStatusAltered(t *testing.T) {
	for _, sw := range []string{"6982", "6985", "9001", "6300"} {
		t.Run(sw, func(t *testing.T) {
			engine, _ := newScriptedEngine(t,
				securechanneltest.Exchange{Expect: openCommand(), Respond: openResponse()},
				securechanneltest.Exchange{Expect: tlv.Hex(mutualAuthCommand), Respond: tlv.Hex(mutualAuthResponse, sw)},
			)

			err := engine.Open()
			var hs *securechannel.HandshakeError
			require.ErrorAs(t, err, &hs)
			require.Equal(t, securechannel.StepMutualAuth, hs.Step)
			require.Equal(t, iso7816.NewStatusWord(tlv.Hex(sw)[0], tlv.Hex(sw)[1]), hs.Status)
			require.Equal(t, securechannel.Connected, engine.State())
			require.Nil(t, engine.CurrentIV())
		})
	}
}

func TestOpen_MutualAuthTampered(t *testing.T) {
	resp := tlv.Hex(mutualAuthResponse, "9000")
	resp[20] ^= 0x01

	engine, _ := newScriptedEngine(t,
		securechanneltest.Exchange{Expect: openCommand(), Respond: openResponse()},
		securechanneltest.Exchange{Respond: resp},
	)

	err := engine.Open()
	var hs *securechannel.HandshakeError
	require.ErrorAs(t, err, &hs)
	require.ErrorIs(t, err, securechannel.ErrInvalidMAC)
	require.Equal(t, securechannel.Connected, engine.State())
}

func TestOpen_OpenResponseErrors(t *testing.T) {
	tests := []struct {
		name    string
		respond []byte
		status  iso7816.StatusWord
	}{
		{
			name:    "Short open response",
			respond: append(sequence(0x40, 47), 0x90, 0x00),
		},
		{
			name:    "Long open response",
			respond: append(sequence(0x40, 49), 0x90, 0x00),
		},
		{
			name:    "Status not OK",
			respond: tlv.Hex("6985"),
			status:  iso7816.SW_ERR_COND_OF_USE_NOT_SAT,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine, reader := newScriptedEngine(t,
				securechanneltest.Exchange{Expect: openCommand(), Respond: tt.respond},
			)

			err := engine.Open()
			var hs *securechannel.HandshakeError
			require.ErrorAs(t, err, &hs)
			require.Equal(t, securechannel.StepOpen, hs.Step)
			require.Equal(t, tt.status, hs.Status)
			require.Equal(t, securechannel.Connected, engine.State())
			require.Len(t, reader.Sent, 1, "no mutual authentication after a failed open")
		})
	}
}

func TestOpen_TransportFailure(t *testing.T) {
	boom := errors.New("card removed")
	engine, _ := newScriptedEngine(t, securechanneltest.Exchange{Err: boom})

	err := engine.Open()
	var te *securechannel.TransportError
	require.ErrorAs(t, err, &te)
	require.ErrorIs(t, err, boom)
	require.Equal(t, securechannel.Connected, engine.State())
}

func TestOpen_Preconditions(t *testing.T) {
	t.Run("Not connected", func(t *testing.T) {
		engine, err := securechannel.New(securechanneltest.NewScriptedReader(), pairingKey(),
			securechannel.WithCardPublicKey(tlv.Hex(cardKey)))
		require.NoError(t, err)
		require.ErrorIs(t, engine.Open(), securechannel.ErrNotConnected)
	})

	t.Run("No card key", func(t *testing.T) {
		reader := securechanneltest.NewScriptedReader()
		engine, err := securechannel.New(reader, pairingKey())
		require.NoError(t, err)
		require.NoError(t, engine.Connect())
		require.ErrorIs(t, engine.Open(), securechannel.ErrNoCardKey)
		require.Empty(t, reader.Sent)
	})

	t.Run("Empty pairing key", func(t *testing.T) {
		_, err := securechannel.New(securechanneltest.NewScriptedReader(), nil)
		require.ErrorIs(t, err, securechannel.ErrNoPairingKey)
	})

	t.Run("Invalid card key", func(t *testing.T) {
		_, err := securechannel.New(securechanneltest.NewScriptedReader(), pairingKey(),
			securechannel.WithCardPublicKey(tlv.Hex("04 0102")))
		require.Error(t, err)
	})

	t.Run("Connect failure", func(t *testing.T) {
		reader := securechanneltest.NewScriptedReader()
		reader.ConnectErr = errors.New("no reader")
		engine, err := securechannel.New(reader, pairingKey())
		require.NoError(t, err)

		var te *securechannel.TransportError
		require.ErrorAs(t, engine.Connect(), &te)
		require.Equal(t, securechannel.Closed, engine.State())
	})
}

func TestTransmit_PassthroughWhenConnected(t *testing.T) {
	engine, reader := newScriptedEngine(t,
		securechanneltest.Exchange{Expect: tlv.Hex("80 CA 9F 7F 00"), Respond: tlv.Hex("CAFE 9000")},
	)

	resp, err := engine.Transmit(iso7816.NewCommand(0x80, 0xCA, 0x9F, 0x7F, nil))
	require.NoError(t, err)
	require.Equal(t, tlv.Hex("CAFE"), resp.Data)
	require.True(t, resp.IsOK())
	require.Len(t, reader.Sent, 1)
}

func TestTransmit_NotConnected(t *testing.T) {
	engine, err := securechannel.New(securechanneltest.NewScriptedReader(), pairingKey())
	require.NoError(t, err)

	_, err = engine.Transmit(iso7816.NewCommand(0x80, 0xCA, 0x00, 0x00, nil))
	require.ErrorIs(t, err, securechannel.ErrNotConnected)
}

// emulated wires an engine to an in-process card and opens a session.
func emulated(t *testing.T, opts ...emulator.Option) (*securechannel.Engine, *emulator.Card) {
	t.Helper()

	card, err := emulator.New(pairingKey(), opts...)
	require.NoError(t, err)

	engine, err := securechannel.New(card, pairingKey(), securechannel.WithTrace())
	require.NoError(t, err)
	require.NoError(t, engine.Connect())

	sel, err := engine.Select(emulator.DefaultAID)
	require.NoError(t, err)
	require.Equal(t, card.PublicKey(), sel.PublicKey())

	require.NoError(t, engine.Open())
	return engine, card
}

func TestEngine_EmulatorRoundTrip(t *testing.T) {
	engine, _ := emulated(t, emulator.WithVersion(1, 2, 3))

	for _, n := range []int{0, 1, 15, 16, 17, 100, securechannel.MaxPayloadSize} {
		payload := sequence(byte(n), n)
		before := engine.CurrentIV()

		got, err := engine.Echo(payload)
		require.NoError(t, err, "payload of %d bytes", n)
		require.Equal(t, len(payload), len(got))
		if n > 0 {
			require.Equal(t, payload, got)
		}
		require.NotEqual(t, before, engine.CurrentIV(), "IV must advance")
	}

	for _, tx := range engine.Trace()[2:] {
		require.False(t, bytes.Contains(tx.Command.Data, sequence(100, 16)), "plaintext on the wire")
	}
}

func TestEngine_Sign(t *testing.T) {
	engine, card := emulated(t)

	hash := sha256.Sum256([]byte("transfer 10 tokens"))
	sig, err := engine.Sign(0x01, hash[:])
	require.NoError(t, err)

	slotKey, err := card.SlotPublicKey(0x01)
	require.NoError(t, err)
	require.Equal(t, slotKey, sig.PublicKey())

	ok, err := sig.Verify(hash[:])
	require.NoError(t, err)
	require.True(t, ok)

	_, err = engine.Sign(0x01, hash[:31])
	require.Error(t, err)
	require.Equal(t, securechannel.Open, engine.State())
}

func TestEngine_ByteFlipAbortsSession(t *testing.T) {
	engine, card := emulated(t)

	// tag(16) | ct(16) | SW: every byte but the status word is authenticated.
	for i := 0; i < 32; i++ {
		require.NoError(t, engine.Open())

		pos := i
		card.Tamper = func(resp []byte) []byte {
			out := append([]byte(nil), resp...)
			out[pos] ^= 0x01
			return out
		}

		_, err := engine.Echo([]byte("ping"))
		card.Tamper = nil

		require.ErrorIs(t, err, securechannel.ErrInvalidMAC, "flip at byte %d", pos)
		require.Equal(t, securechannel.Aborted, engine.State())

		_, err = engine.Echo([]byte("ping"))
		require.ErrorIs(t, err, securechannel.ErrSessionAborted)
	}

	require.NoError(t, engine.Open())
	got, err := engine.Echo([]byte("ping"))
	require.NoError(t, err)
	require.Equal(t, []byte("ping"), got)
}

func TestEngine_StatusWordIsNotAuthenticated(t *testing.T) {
	engine, card := emulated(t)

	card.Tamper = func(resp []byte) []byte {
		out := append([]byte(nil), resp...)
		out[len(out)-1] = 0x01
		return out
	}
	resp, err := engine.Transmit(iso7816.NewCommand(securechannel.CLA, securechannel.INS_ECHO, 0, 0, []byte("ping")))
	require.NoError(t, err)
	require.Equal(t, iso7816.NewStatusWord(0x90, 0x01), resp.Status)
	require.Equal(t, []byte("ping"), resp.Data)
}

func TestEngine_PayloadTooLarge(t *testing.T) {
	engine, _ := emulated(t)
	sent := len(engine.Trace())

	_, err := engine.Echo(make([]byte, securechannel.MaxPayloadSize+1))
	require.ErrorIs(t, err, securechannel.ErrPayloadTooLarge)
	require.Equal(t, securechannel.Open, engine.State())
	require.Len(t, engine.Trace(), sent, "nothing may be sent")

	_, err = engine.Echo([]byte("still open"))
	require.NoError(t, err)
}

func TestEngine_SelectRequiresPlainChannel(t *testing.T) {
	engine, _ := emulated(t)

	_, err := engine.Select(emulator.DefaultAID)
	require.ErrorIs(t, err, securechannel.ErrSessionOpen)
}

func TestEngine_ReopenReplacesSession(t *testing.T) {
	engine, _ := emulated(t)
	first := engine.CurrentIV()

	require.NoError(t, engine.Open())
	require.NotEqual(t, first, engine.CurrentIV())

	got, err := engine.Echo([]byte("after reopen"))
	require.NoError(t, err)
	require.Equal(t, []byte("after reopen"), got)
}

func TestEngine_Disconnect(t *testing.T) {
	engine, _ := emulated(t)

	require.NoError(t, engine.Disconnect())
	require.Equal(t, securechannel.Closed, engine.State())
	require.Nil(t, engine.CurrentIV())

	_, err := engine.Echo([]byte("ping"))
	require.ErrorIs(t, err, securechannel.ErrNotConnected)

	require.NoError(t, engine.Connect())
	require.ErrorIs(t, engine.Open(), securechannel.ErrNoPairingKey)
}
