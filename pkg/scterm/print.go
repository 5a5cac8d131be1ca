// Package scterm prints APDUs, FCP TLV lists, and status words to a
// terminal in colour, the way test.py's print_colored_text/print_apdu/
// print_fcp diagnostic helpers do. scsh's repl uses these to show the
// operator what just went over the wire.
package scterm

import (
	"fmt"
	"strings"

	"github.com/fatih/color"

	"github.com/vorteil/scardfs/pkg/sccard"
)

// PrintColoredText prints text in c, matching test.py:print_colored_text.
func PrintColoredText(text string, c *color.Color) {
	c.Println(text)
}

// PrintInfof prints a cyan informational line, matching test.py:print_infof.
func PrintInfof(format string, args ...interface{}) {
	color.New(color.FgCyan).Printf(format+"\n", args...)
}

// PrintAPDU prints a parsed command APDU's header and data in hex, matching
// test.py:print_apdu.
func PrintAPDU(apdu sccard.APDU) {
	header := color.New(color.FgYellow, color.Bold)
	header.Printf("--> CLA=%02X INS=%02X P1=%02X P2=%02X", apdu.CLA, apdu.INS, apdu.P1, apdu.P2)
	if len(apdu.Data) > 0 {
		fmt.Printf(" Lc=%02X Data=%s", len(apdu.Data), strings.ToUpper(hexString(apdu.Data)))
	}
	if apdu.Le != 0 {
		fmt.Printf(" Le=%02X", apdu.Le)
	}
	fmt.Println()
}

// PrintResponse prints a response's data (if any) and its status word, with
// the word coloured green on success and red otherwise.
func PrintResponse(data []byte, sw sccard.StatusWord) {
	if len(data) > 0 {
		fmt.Printf("<-- Data=%s ", strings.ToUpper(hexString(data)))
	} else {
		fmt.Print("<-- ")
	}

	c := color.New(color.FgGreen)
	if sw != sccard.SWSuccess {
		c = color.New(color.FgRed)
	}
	c.Printf("SW=%04X (%s)\n", uint16(sw), sw.Description())
}

// PrintFCP prints a decoded FCP TLV list one tag per line, matching
// test.py:print_fcp.
func PrintFCP(tlvs []sccard.TLV) {
	for _, tlv := range tlvs {
		color.New(color.FgBlue).Printf("  %02X", tlv.Tag)
		fmt.Printf(" len=%d value=%s\n", tlv.Len, strings.ToUpper(hexString(tlv.Value)))
	}
}

func hexString(b []byte) string {
	var sb strings.Builder
	for _, c := range b {
		fmt.Fprintf(&sb, "%02x", c)
	}
	return sb.String()
}
