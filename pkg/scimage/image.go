// Package scimage implements the smartcard engine's backing store: a single
// fixed-size 32 KiB byte array persisted to a file, addressed by u16 offsets,
// with a cursor-based bump allocator living in its last four bytes.
//
// The abstraction mirrors github.com/vorteil/vorteil/pkg/vdecompiler's IO
// type: a small struct wrapping an *os.File that lets the rest of the engine
// navigate a fixed binary layout by offset instead of streaming it.
package scimage

import (
	"fmt"
	"io"
	"os"
)

// Size is the fixed size of a smartcard image, in bytes.
const Size = 32768

// Layout constants, all offsets into the 32 KiB image.
const (
	// RootOffsetPtr holds the big-endian offset of the MF node, or NullOffset
	// if no MF has been created yet.
	RootOffsetPtr = 0x0000

	// MFStartPtr is where the MF node is written the first (and only) time
	// CREATE FILE is asked to create one.
	MFStartPtr = 0x0002

	// WriteCursorEnd and ReadCursorEnd are the two reserved u16 slots at the
	// tail of the image holding the bump allocator's persisted cursors.
	WriteCursorEnd = Size - 2*2
	ReadCursorEnd  = Size - 2
)

// NullOffset is the sentinel meaning "no offset / no FID" (0xFFFF).
const NullOffset = 0xFFFF

// ErrNotEnoughMemory is returned by Allocate when the requested size would
// push the write cursor past WriteCursorEnd.
var ErrNotEnoughMemory = fmt.Errorf("not enough memory available for write operation")

// Image is the in-memory mirror of the 32 KiB smartcard backing file. All
// reads and writes against the file system go through Image so that node
// traversal code never has to seek a real file directly.
type Image struct {
	buf  [Size]byte
	file *os.File
}

// OpenFile opens (creating if necessary) the smartcard image at path. A
// freshly created file is filled with 0xFF, the root pointer is set to
// NullOffset, and both cursors are zeroed, matching
// test.py:create_empty_file/init_cursors. An existing file is loaded
// verbatim and its cursors are validated.
func OpenFile(path string) (*Image, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening smartcard image %s: %w", path, err)
	}

	img := &Image{file: f}

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat smartcard image %s: %w", path, err)
	}

	if fi.Size() == 0 {
		img.initFresh()
		if err := img.Flush(); err != nil {
			f.Close()
			return nil, err
		}
		return img, nil
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		f.Close()
		return nil, fmt.Errorf("seeking smartcard image %s: %w", path, err)
	}
	if _, err := io.ReadFull(f, img.buf[:]); err != nil {
		f.Close()
		return nil, fmt.Errorf("reading smartcard image %s: %w", path, err)
	}

	img.validateCursors()

	return img, nil
}

// NewInMemory returns an Image with no backing file, for use in tests. Flush
// is a no-op.
func NewInMemory() *Image {
	img := &Image{}
	img.initFresh()
	return img
}

// Close releases the backing file, if any.
func (img *Image) Close() error {
	if img.file == nil {
		return nil
	}
	return img.file.Close()
}

func (img *Image) initFresh() {
	for i := range img.buf {
		img.buf[i] = 0xFF
	}
	img.WriteU16(RootOffsetPtr, NullOffset)
	img.setCursors(0, 0)
}

// validateCursors mirrors test.py:init_cursors: a write cursor that has
// wandered past the image or still reads as the fill byte's pattern is
// treated as corrupt and reset to zero, without touching any node data
// already present.
func (img *Image) validateCursors() {
	wc := img.WriteCursor()
	if wc >= Size || wc == NullOffset {
		img.setCursors(0, 0)
	}
}

// Flush writes the full in-memory image back to the backing file. The image
// is small enough that a whole-buffer rewrite after every structural
// mutation is simpler than tracking dirty ranges, matching test.py's
// unconditional fp.flush() after each write.
func (img *Image) Flush() error {
	if img.file == nil {
		return nil
	}
	if _, err := img.file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("flushing smartcard image: %w", err)
	}
	if _, err := img.file.Write(img.buf[:]); err != nil {
		return fmt.Errorf("flushing smartcard image: %w", err)
	}
	return nil
}

// ReadU8 returns the byte at off.
func (img *Image) ReadU8(off uint16) uint8 {
	return img.buf[off]
}

// ReadU16 returns the big-endian u16 at off.
func (img *Image) ReadU16(off uint16) uint16 {
	return uint16(img.buf[off])<<8 | uint16(img.buf[off+1])
}

// ReadBytes returns a copy of n bytes starting at off.
func (img *Image) ReadBytes(off uint16, n int) []byte {
	out := make([]byte, n)
	copy(out, img.buf[int(off):int(off)+n])
	return out
}

// WriteU8 writes v at off.
func (img *Image) WriteU8(off uint16, v uint8) {
	img.buf[off] = v
}

// WriteU16 writes the big-endian u16 v at off.
func (img *Image) WriteU16(off uint16, v uint16) {
	img.buf[off] = byte(v >> 8)
	img.buf[off+1] = byte(v)
}

// WriteBytes copies data into the image starting at off.
func (img *Image) WriteBytes(off uint16, data []byte) {
	copy(img.buf[int(off):int(off)+len(data)], data)
}

// WriteCursor returns the current bump allocator write cursor.
func (img *Image) WriteCursor() uint16 {
	return img.ReadU16(WriteCursorEnd)
}

// ReadCursor returns the current bump allocator read cursor.
func (img *Image) ReadCursor() uint16 {
	return img.ReadU16(ReadCursorEnd)
}

func (img *Image) setCursors(write, read uint16) {
	img.WriteU16(WriteCursorEnd, write)
	img.WriteU16(ReadCursorEnd, read)
}

// Available returns the number of bytes left below the write cursor.
func (img *Image) Available() uint16 {
	wc := img.WriteCursor()
	if wc > WriteCursorEnd {
		return 0
	}
	return WriteCursorEnd - wc
}

// Allocate reserves n contiguous bytes below the write cursor and returns
// the offset at which they start, advancing and persisting the cursor. It
// returns ErrNotEnoughMemory if the allocation would run past
// WriteCursorEnd, matching test.py:get_next_write_position.
func (img *Image) Allocate(n uint16) (uint16, error) {
	current := uint32(img.WriteCursor())
	next := current + uint32(n)
	if next > uint32(WriteCursorEnd) {
		return 0, ErrNotEnoughMemory
	}
	img.WriteU16(WriteCursorEnd, uint16(next))
	return uint16(current), nil
}

// RootOffset returns the offset of the MF node, or NullOffset if none exists.
func (img *Image) RootOffset() uint16 {
	return img.ReadU16(RootOffsetPtr)
}

// SetRootOffset records off as the offset of the MF node.
func (img *Image) SetRootOffset(off uint16) {
	img.WriteU16(RootOffsetPtr, off)
}
