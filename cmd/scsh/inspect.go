package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/vorteil/scardfs/pkg/sccard"
	"github.com/vorteil/scardfs/pkg/scimage"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Walk a smartcard image's MF/DF/ADF/EF tree and print its structure",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInspect(defaultImagePath())
	},
}

func runInspect(path string) error {
	img, err := scimage.OpenFile(path)
	if err != nil {
		return fmt.Errorf("opening image: %w", err)
	}
	defer img.Close()

	root := img.RootOffset()
	if root == sccard.CNull {
		fmt.Println("(empty image: no MF)")
		return nil
	}

	fmt.Printf("write cursor: %d/%d bytes used\n\n", img.WriteCursor(), scimage.WriteCursorEnd)
	printNode(img, root, sccard.IsMF, 0)
	return nil
}

func printNode(img *scimage.Image, offset uint16, typ uint8, depth int) {
	indent := func() {
		for i := 0; i < depth; i++ {
			fmt.Print("  ")
		}
	}

	switch typ {
	case sccard.IsMF:
		mf := sccard.ReadMFNode(img, offset)
		indent()
		color.New(color.FgGreen, color.Bold).Printf("MF %04X", mf.FID)
		fmt.Printf(" (offset=%04X)\n", offset)
		walkChildren(img, offset, typ, depth+1)

	case sccard.IsDF, sccard.IsADF:
		df := sccard.ReadDFADFNode(img, offset)
		indent()
		label := "DF"
		if typ == sccard.IsADF {
			label = "ADF"
		}
		color.New(color.FgYellow, color.Bold).Printf("%s %04X", label, df.FID)
		fmt.Printf(" (offset=%04X)\n", offset)
		walkChildren(img, offset, typ, depth+1)

	default:
		ef := sccard.ReadEFNode(img, offset)
		indent()
		color.New(color.FgCyan).Printf("EF %04X", ef.FID)
		fmt.Printf(" type=%02X (offset=%04X, data=%04X)\n", ef.Type, offset, ef.DataOffset)
	}
}

// walkChildren prints dirOffset's embedded first child and its Second-node
// sibling chain, matching the layout pkg/sccard's duplicate-FID walks and
// CreateFile's chain-splicing share.
func walkChildren(img *scimage.Image, dirOffset uint16, dirType uint8, depth int) {
	var firstChildFID, firstChildOffset, nextOffset uint16
	if dirType == sccard.IsMF {
		mf := sccard.ReadMFNode(img, dirOffset)
		firstChildFID, firstChildOffset, nextOffset = mf.ChildFID, mf.ChildOffset, mf.NextOffset
	} else {
		df := sccard.ReadDFADFNode(img, dirOffset)
		firstChildFID, firstChildOffset, nextOffset = df.ChildFID, df.ChildOffset, df.NextOffset
	}

	if firstChildOffset != sccard.CNull && firstChildOffset < scimage.Size && firstChildFID != 0 {
		printNode(img, firstChildOffset, img.ReadU8(firstChildOffset+6), depth)
	}

	next := nextOffset
	for next != sccard.Zero && next != sccard.CNull && next < scimage.Size {
		node := sccard.ReadSecondNode(img, next)
		if node.ChildOffset != sccard.CNull && node.ChildOffset < scimage.Size {
			printNode(img, node.ChildOffset, img.ReadU8(node.ChildOffset+6), depth)
		}
		next = node.NextOffset
	}
}
