/*
Package iso7816 implements the APDU layer used to talk to contactless cards through a
PC/SC reader, following ISO/IEC 7816-4 and the pseudo-APDU command set of PC/SC Part 3.

This package provides Command and Response structures, Status Word (SW) analysis, the
reader commands needed to read memory cards, and a Trace of every exchange.

# Fundamentals

The communication is strictly synchronous:
 1. The Host sends a Command APDU (Header + Optional Body).
 2. The Reader (for class 0xFF) or the Card processes it and returns a Response APDU
    (Optional Body + Trailer SW1/SW2).

A response shorter than two bytes is a protocol violation (ErrMalformedResponse): it is
reported before any status word inspection.

# Reader Commands

Memory cards (MIFARE Classic and similar) do not understand APDUs. The reader exposes
pseudo-APDUs under CLA 0xFF and translates them into the card protocol:

  - LOAD KEYS             FF 82 00 <slot> 06 <key>
  - GENERAL AUTHENTICATE  FF 86 00 00 05 01 <blockHi> <blockLo> <keyType> <slot>
  - READ BINARY           FF B0 <blockHi> <blockLo> <Le>

Each block must be authenticated before it is read.

# Usage Example: Reading one block

	client := iso7816.NewClient(card)
	cla := iso7816.NewClass(iso7816.ReaderClass)

	resp, err := client.Send(iso7816.GeneralAuthenticate(cla, 4, iso7816.KeyTypeB, 0x00))
	if err != nil || !resp.Status.IsSuccess() {
	    log.Fatal("authentication refused")
	}

	resp, err = client.Send(iso7816.ReadBinary(cla, 4, 16))
	if err != nil {
	    log.Fatal(err)
	}

	result, _ := iso7816.NewReadBinaryResult(client.Trace())
	fmt.Println(result.Describe())
*/
package iso7816
