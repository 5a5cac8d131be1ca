package main

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vorteil/scardfs/pkg/sccard"
	"github.com/vorteil/scardfs/pkg/scimage"
	"github.com/vorteil/scardfs/pkg/scterm"
)

var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Send hand-written APDUs to a smartcard image interactively",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runREPL(defaultImagePath())
	},
}

// runREPL opens path (creating it if necessary), powers the engine up, and
// reads one hex-encoded APDU per line from stdin until EOF or "quit",
// echoing each command and its response the way test.py's interactive
// driver does.
func runREPL(path string) error {
	img, err := scimage.OpenFile(path)
	if err != nil {
		return fmt.Errorf("opening image: %w", err)
	}
	defer img.Close()

	engine := sccard.NewEngine(img)

	scterm.PrintInfof("scsh ready; image=%s available=%d bytes; selection=%04X", path, engine.AvailableMemory(), engine.CurrentSelection())
	scterm.PrintInfof(`type a hex APDU per line, "reset" to power-cycle, or "quit" to exit`)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("scsh> ")
		if !scanner.Scan() {
			return scanner.Err()
		}

		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == "quit" || line == "exit":
			return nil
		case line == "reset":
			engine.PowerUp()
			scterm.PrintInfof("power-up complete; selection=%04X", engine.CurrentSelection())
			continue
		}

		raw, err := hex.DecodeString(strings.ReplaceAll(line, " ", ""))
		if err != nil {
			log.Errorf("invalid hex APDU: %v", err)
			continue
		}

		apdu, err := sccard.ParseAPDU(raw)
		if err != nil {
			log.Errorf("malformed APDU: %v", err)
			continue
		}
		scterm.PrintAPDU(apdu)

		resp, sw := engine.ProcessAPDU(raw)
		scterm.PrintResponse(resp, sw)
	}
}
