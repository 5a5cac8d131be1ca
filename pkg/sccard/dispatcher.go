package sccard

import "github.com/vorteil/scardfs/pkg/scimage"

// Engine ties a backing Image and the current Session together behind a
// single ProcessAPDU entry point, matching spec.md §4.6's Dispatcher/
// Session State component. Unlike test.py, which kept the equivalent of
// Session in module globals, Engine carries its state explicitly so two
// Engines over two Images never interfere — the REDESIGN FLAG spec.md §9
// calls for.
type Engine struct {
	Image   *scimage.Image
	Session *Session
}

// NewEngine wires an Engine over img and powers it up, matching
// test.py:handle_power_up_selection.
func NewEngine(img *scimage.Image) *Engine {
	e := &Engine{Image: img}
	e.PowerUp()
	return e
}

// PowerUp resets the session to its post-ATR state: the MF selected if the
// image already has one, nothing selected otherwise (the image is empty and
// the first command must be CREATE FILE for the MF).
func (e *Engine) PowerUp() {
	root := e.Image.RootOffset()
	if root == CNull {
		e.Session = &Session{
			CurrentFID:      CNull,
			CurrentOffset:   CNull,
			ParentFID:       CNull,
			ParentOffset:    CNull,
			CurrentEFFID:    CNull,
			CurrentEFOffset: CNull,
		}
		return
	}
	e.Session = NewSession(root)
}

// AvailableMemory reports the bytes left in the bump allocator, matching
// the interactive collaborator's available_memory() hook in spec.md §6.
func (e *Engine) AvailableMemory() uint16 {
	return e.Image.Available()
}

// CurrentSelection reports the FID of whatever is presently selected: the
// current EF if one is selected, otherwise the current MF/DF/ADF. Matches
// the interactive collaborator's current_selection() hook in spec.md §6.
func (e *Engine) CurrentSelection() uint16 {
	if e.Session.HasCurrentEF() {
		return e.Session.CurrentEFFID
	}
	return e.Session.CurrentFID
}

// ProcessAPDU parses raw and routes it to the matching file-tree operation,
// flushing the image afterward and returning the response data (if any)
// alongside a status word. This is test.py's top-level APDU loop, reshaped
// into a single routing switch per spec.md §4.6.
func (e *Engine) ProcessAPDU(raw []byte) ([]byte, StatusWord) {
	resp, sw := e.dispatch(raw)
	if err := e.Image.Flush(); err != nil {
		return resp, SWTechnicalProblem
	}
	return resp, sw
}

func (e *Engine) dispatch(raw []byte) ([]byte, StatusWord) {
	apdu, err := ParseAPDU(raw)
	if err != nil {
		return nil, SWDataInvalid
	}

	if apdu.CLA != 0x00 {
		return nil, SWClaNotSupported
	}

	switch apdu.INS {
	case InsCreateFile:
		return nil, CreateFile(e.Image, e.Session, apdu.Data)

	case InsSelectFile:
		if len(apdu.Data) != 2 {
			return nil, SWDataInvalid
		}
		fid := uint16(apdu.Data[0])<<8 | uint16(apdu.Data[1])
		return nil, SelectFile(e.Image, e.Session, fid)

	case InsReadBinary:
		offset := uint16(apdu.P1)<<8 | uint16(apdu.P2)
		return ReadBinary(e.Image, e.Session, offset, apdu.Le)

	case InsUpdateBinary:
		offset := uint16(apdu.P1)<<8 | uint16(apdu.P2)
		return nil, UpdateBinary(e.Image, e.Session, offset, apdu.Data)

	case InsReadRecord:
		return ReadRecord(e.Image, e.Session, apdu.P1, apdu.P2&0x07)

	case InsUpdateRecord:
		return nil, UpdateRecord(e.Image, e.Session, apdu.P1, apdu.P2&0x07, apdu.Data)

	default:
		return nil, SWInsNotSupported
	}
}
