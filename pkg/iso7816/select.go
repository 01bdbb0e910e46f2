package iso7816

// SELECT (INS 0xA4) by DF name: the only selection the secure element needs,
// sent in plaintext before any session exists.
const (
	CLA_ISO          byte = 0x00
	INS_SELECT       byte = 0xA4
	P1_SELECT_BY_AID byte = 0x04
	P2_FIRST_OR_ONLY byte = 0x00
)

// SelectByAID builds the SELECT command for an applet instance.
func SelectByAID(aid []byte) *Command {
	return NewCommand(CLA_ISO, INS_SELECT, P1_SELECT_BY_AID, P2_FIRST_OR_ONLY, aid)
}
