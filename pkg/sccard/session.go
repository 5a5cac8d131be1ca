package sccard

// Session holds everything test.py kept in module-level globals between one
// APDU and the next: the current DF/ADF/MF selection, its parent, and (if a
// SELECT or CREATE last touched an EF) the current EF and its record
// pointer. Carrying this in a struct instead of package state is the one
// REDESIGN FLAG spec.md calls out explicitly: it lets two Engines run
// independently in the same process, and makes every operation's dependency
// on "where we are" visible in its signature instead of hidden in globals.
type Session struct {
	// CurrentFID/CurrentOffset/CurrentType identify the presently selected
	// MF/DF/ADF. Immediately after power-up this is the MF if the image has
	// one, and CNull otherwise.
	CurrentFID    uint16
	CurrentOffset uint16
	CurrentType   uint8

	// ParentFID/ParentOffset identify the parent of the current selection,
	// used by SELECT FILE's parent-directory shortcut. For the MF itself
	// both are CNull.
	ParentFID    uint16
	ParentOffset uint16

	// CurrentEFFID/CurrentEFOffset/CurrentEFType describe the last EF
	// selected or created under CurrentOffset, if any. CurrentEFOffset is
	// CNull when no EF is currently selected, matching test.py's use of
	// C_NULL to mean "no current EF" for READ/UPDATE BINARY and RECORD.
	CurrentEFFID    uint16
	CurrentEFOffset uint16
	CurrentEFType   uint8

	// RecordPointer is the cursor READ/UPDATE RECORD's "next"/"previous"
	// addressing modes advance, one-based per spec.md §4.5's resolution of
	// the record-pointer Open Question: the first NEXT after a fresh SELECT
	// addresses record 1, not record 0.
	RecordPointer uint8
}

// NewSession returns a Session with the MF selected and no current EF,
// matching the state test.py's globals are in immediately after
// handle_power_up_selection runs.
func NewSession(mfOffset uint16) *Session {
	return &Session{
		CurrentFID:      MFFID,
		CurrentOffset:   mfOffset,
		CurrentType:     IsMF,
		ParentFID:       CNull,
		ParentOffset:    CNull,
		CurrentEFFID:    CNull,
		CurrentEFOffset: CNull,
		CurrentEFType:   0,
		RecordPointer:   0,
	}
}

// SelectDF updates the session to point at a newly selected or created
// DF/ADF, clearing any current EF: selecting a directory always deselects
// whatever EF was active, matching test.py:update_current_selection.
func (s *Session) SelectDF(fid, offset uint16, typ uint8, parentFID, parentOffset uint16) {
	s.CurrentFID = fid
	s.CurrentOffset = offset
	s.CurrentType = typ
	s.ParentFID = parentFID
	s.ParentOffset = parentOffset
	s.clearCurrentEF()
}

// SelectEF records ef as the current EF under the session's current
// directory, resetting the record pointer to its initial (pre-first-NEXT)
// position.
func (s *Session) SelectEF(fid, offset uint16, typ uint8) {
	s.CurrentEFFID = fid
	s.CurrentEFOffset = offset
	s.CurrentEFType = typ
	s.RecordPointer = 0
}

func (s *Session) clearCurrentEF() {
	s.CurrentEFFID = CNull
	s.CurrentEFOffset = CNull
	s.CurrentEFType = 0
	s.RecordPointer = 0
}

// HasCurrentEF reports whether an EF is currently selected.
func (s *Session) HasCurrentEF() bool {
	return s.CurrentEFOffset != CNull
}
