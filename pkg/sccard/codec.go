// Package sccard implements the ISO/IEC 7816-4-style smartcard file-system
// engine: the node codec, TLV/FCP validator, duplicate-identifier checks,
// the CREATE/SELECT/READ/UPDATE file tree operations, and the APDU
// dispatcher that ties them together.
package sccard

import (
	"encoding/binary"

	"github.com/vorteil/scardfs/pkg/scimage"
)

// Directory node type tags.
const (
	IsMF  = 0xA0
	IsDF  = 0xB0
	IsADF = 0xC0
)

// MFFID is the mandatory FID of the Master File.
const MFFID = 0x3F00

// EF flavour tags: high nibble encodes structure, low nibble shareability.
const (
	EFTransparentUnshareable = 0x01
	EFLinearUnshareable      = 0x02
	EFCyclicUnshareable      = 0x06
	EFTransparentShareable   = 0x41
	EFLinearShareable        = 0x42
	EFCyclicShareable        = 0x46
)

// CNull and Zero are the two node-field sentinels: "no offset/FID" and
// "empty slot", respectively.
const (
	CNull = 0xFFFF
	Zero  = 0x0000
)

// On-disk sizes of each node shape: the unpadded sum of the field widths
// each struct below lists (two bytes per uint16, one per uint8), laid out
// big-endian per §3.
const (
	mfNodeSize     = 13
	dfAdfNodeSize  = 16
	efNodeSize     = 12
	secondNodeSize = 8
)

// MFNode is the Master File header, the tree's single root.
type MFNode struct {
	FID          uint16
	ChildFID     uint16
	ChildOffset  uint16
	Status       uint8
	Type         uint8
	FCPOffset    uint16
	FCPTotalSize uint8
	NextOffset   uint16
}

// Encode serialises n into its fixed 13-byte big-endian layout.
func (n MFNode) Encode() []byte {
	b := make([]byte, mfNodeSize)
	binary.BigEndian.PutUint16(b[0:2], n.FID)
	binary.BigEndian.PutUint16(b[2:4], n.ChildFID)
	binary.BigEndian.PutUint16(b[4:6], n.ChildOffset)
	b[6] = n.Status
	b[7] = n.Type
	binary.BigEndian.PutUint16(b[8:10], n.FCPOffset)
	b[10] = n.FCPTotalSize
	binary.BigEndian.PutUint16(b[11:13], n.NextOffset)
	return b
}

// DecodeMFNode parses a 13-byte MF header.
func DecodeMFNode(b []byte) MFNode {
	return MFNode{
		FID:          binary.BigEndian.Uint16(b[0:2]),
		ChildFID:     binary.BigEndian.Uint16(b[2:4]),
		ChildOffset:  binary.BigEndian.Uint16(b[4:6]),
		Status:       b[6],
		Type:         b[7],
		FCPOffset:    binary.BigEndian.Uint16(b[8:10]),
		FCPTotalSize: b[10],
		NextOffset:   binary.BigEndian.Uint16(b[11:13]),
	}
}

// DFADFNode is the header shared by DF and ADF directory nodes.
type DFADFNode struct {
	FID          uint16
	ParentFID    uint16
	ParentOffset uint16
	Type         uint8
	ChildFID     uint16
	ChildOffset  uint16
	FCPOffset    uint16
	FCPTotalSize uint8
	NextOffset   uint16
}

// Encode serialises n into its fixed 16-byte big-endian layout.
func (n DFADFNode) Encode() []byte {
	b := make([]byte, dfAdfNodeSize)
	binary.BigEndian.PutUint16(b[0:2], n.FID)
	binary.BigEndian.PutUint16(b[2:4], n.ParentFID)
	binary.BigEndian.PutUint16(b[4:6], n.ParentOffset)
	b[6] = n.Type
	binary.BigEndian.PutUint16(b[7:9], n.ChildFID)
	binary.BigEndian.PutUint16(b[9:11], n.ChildOffset)
	binary.BigEndian.PutUint16(b[11:13], n.FCPOffset)
	b[13] = n.FCPTotalSize
	binary.BigEndian.PutUint16(b[14:16], n.NextOffset)
	return b
}

// DecodeDFADFNode parses a 16-byte DF/ADF header.
func DecodeDFADFNode(b []byte) DFADFNode {
	return DFADFNode{
		FID:          binary.BigEndian.Uint16(b[0:2]),
		ParentFID:    binary.BigEndian.Uint16(b[2:4]),
		ParentOffset: binary.BigEndian.Uint16(b[4:6]),
		Type:         b[6],
		ChildFID:     binary.BigEndian.Uint16(b[7:9]),
		ChildOffset:  binary.BigEndian.Uint16(b[9:11]),
		FCPOffset:    binary.BigEndian.Uint16(b[11:13]),
		FCPTotalSize: b[13],
		NextOffset:   binary.BigEndian.Uint16(b[14:16]),
	}
}

// EFNode is an Elementary File header. EFs never have children.
type EFNode struct {
	FID          uint16
	ParentOffset uint16
	ParentFID    uint16
	Type         uint8
	FCPOffset    uint16
	FCPTotalSize uint8
	DataOffset   uint16
}

// Encode serialises n into its fixed 12-byte big-endian layout.
func (n EFNode) Encode() []byte {
	b := make([]byte, efNodeSize)
	binary.BigEndian.PutUint16(b[0:2], n.FID)
	binary.BigEndian.PutUint16(b[2:4], n.ParentOffset)
	binary.BigEndian.PutUint16(b[4:6], n.ParentFID)
	b[6] = n.Type
	binary.BigEndian.PutUint16(b[7:9], n.FCPOffset)
	b[9] = n.FCPTotalSize
	binary.BigEndian.PutUint16(b[10:12], n.DataOffset)
	return b
}

// DecodeEFNode parses a 12-byte EF header.
func DecodeEFNode(b []byte) EFNode {
	return EFNode{
		FID:          binary.BigEndian.Uint16(b[0:2]),
		ParentOffset: binary.BigEndian.Uint16(b[2:4]),
		ParentFID:    binary.BigEndian.Uint16(b[4:6]),
		Type:         b[6],
		FCPOffset:    binary.BigEndian.Uint16(b[7:9]),
		FCPTotalSize: b[9],
		DataOffset:   binary.BigEndian.Uint16(b[10:12]),
	}
}

// SecondNode extends a directory's sibling chain past its embedded first
// child. NextOffset chains to the next SecondNode, or Zero at the tail.
type SecondNode struct {
	ParentOffset uint16
	ChildFID     uint16
	ChildOffset  uint16
	NextOffset   uint16
}

// Encode serialises n into its fixed 8-byte big-endian layout.
func (n SecondNode) Encode() []byte {
	b := make([]byte, secondNodeSize)
	binary.BigEndian.PutUint16(b[0:2], n.ParentOffset)
	binary.BigEndian.PutUint16(b[2:4], n.ChildFID)
	binary.BigEndian.PutUint16(b[4:6], n.ChildOffset)
	binary.BigEndian.PutUint16(b[6:8], n.NextOffset)
	return b
}

// DecodeSecondNode parses an 8-byte sibling-chain extension node.
func DecodeSecondNode(b []byte) SecondNode {
	return SecondNode{
		ParentOffset: binary.BigEndian.Uint16(b[0:2]),
		ChildFID:     binary.BigEndian.Uint16(b[2:4]),
		ChildOffset:  binary.BigEndian.Uint16(b[4:6]),
		NextOffset:   binary.BigEndian.Uint16(b[6:8]),
	}
}

// ReadMFNode reads and decodes the MF header at off.
func ReadMFNode(img *scimage.Image, off uint16) MFNode {
	return DecodeMFNode(img.ReadBytes(off, mfNodeSize))
}

// WriteMFNode serialises and writes n at off.
func WriteMFNode(img *scimage.Image, off uint16, n MFNode) {
	img.WriteBytes(off, n.Encode())
}

// ReadDFADFNode reads and decodes the DF/ADF header at off.
func ReadDFADFNode(img *scimage.Image, off uint16) DFADFNode {
	return DecodeDFADFNode(img.ReadBytes(off, dfAdfNodeSize))
}

// WriteDFADFNode serialises and writes n at off.
func WriteDFADFNode(img *scimage.Image, off uint16, n DFADFNode) {
	img.WriteBytes(off, n.Encode())
}

// ReadEFNode reads and decodes the EF header at off.
func ReadEFNode(img *scimage.Image, off uint16) EFNode {
	return DecodeEFNode(img.ReadBytes(off, efNodeSize))
}

// WriteEFNode serialises and writes n at off.
func WriteEFNode(img *scimage.Image, off uint16, n EFNode) {
	img.WriteBytes(off, n.Encode())
}

// ReadSecondNode reads and decodes the sibling-extension node at off.
func ReadSecondNode(img *scimage.Image, off uint16) SecondNode {
	return DecodeSecondNode(img.ReadBytes(off, secondNodeSize))
}

// WriteSecondNode serialises and writes n at off.
func WriteSecondNode(img *scimage.Image, off uint16, n SecondNode) {
	img.WriteBytes(off, n.Encode())
}

// NodeSize returns the on-disk header size for a node of the given file
// type: EF flavours are 12 bytes, everything else (DF/ADF; MF is handled
// separately by its caller) is 16, matching test.py:get_node_size.
func NodeSize(fileType uint8) uint16 {
	if IsValidEFType(fileType) {
		return efNodeSize
	}
	return dfAdfNodeSize
}

// HeaderAt performs the same discrimination test.py's check_duplicate_sfi
// uses to tell an MF node from a DF/ADF node occupying the same starting
// offset: it speculatively decodes an MF header and inspects the byte where
// MF keeps its Type field; if that byte isn't IsMF the offset must hold a
// DF/ADF header instead, whose Type field sits one byte earlier.
func HeaderAt(img *scimage.Image, offset uint16) (fid uint16, typ uint8) {
	b := img.ReadBytes(offset, mfNodeSize)
	if b[7] == IsMF {
		return binary.BigEndian.Uint16(b[0:2]), b[7]
	}
	b = img.ReadBytes(offset, dfAdfNodeSize)
	return binary.BigEndian.Uint16(b[0:2]), b[6]
}

// IsRecordEF reports whether typ is one of the two record-oriented EF
// flavours (Linear or Cyclic, either shareability).
func IsRecordEF(typ uint8) bool {
	switch typ {
	case EFLinearUnshareable, EFLinearShareable, EFCyclicUnshareable, EFCyclicShareable:
		return true
	}
	return false
}

// IsValidEFType reports whether typ is any recognised EF flavour.
func IsValidEFType(typ uint8) bool {
	switch typ {
	case EFTransparentShareable, EFTransparentUnshareable:
		return true
	}
	return IsRecordEF(typ)
}

// IsValidDF reports whether typ is a directory type that may hold children.
func IsValidDF(typ uint8) bool {
	return typ == IsDF || typ == IsADF
}

// IsValidFileType reports whether typ is a DF/ADF/EF type. MF is checked
// separately by its caller, matching test.py:is_valid_file_type.
func IsValidFileType(typ uint8) bool {
	return IsValidDF(typ) || IsValidEFType(typ)
}
