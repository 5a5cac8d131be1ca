package sccard

import (
	"testing"

	"github.com/vorteil/scardfs/pkg/scimage"
)

// TestEFFIDUniquenessIsParentLocal exercises the asymmetry spec.md §9's
// Open Question resolves explicitly: a DF/ADF FID must be unique across the
// whole tree, but an EF FID only needs to be unique among its own parent's
// direct children.
func TestEFFIDUniquenessIsParentLocal(t *testing.T) {
	img := scimage.NewInMemory()
	e := NewEngine(img)

	mustCreate(t, e, mfFCP())
	mustCreate(t, e, dfFCP(0x3F, 0x10))
	mustCreate(t, e, efTransparentFCP(0x6F, 0x01, 16))

	if sw := e.ProcessAPDUStatus(selectFileAPDU(MFFID)); sw != SWSuccess {
		t.Fatalf("select MF status = %04X, want success", uint16(sw))
	}
	mustCreate(t, e, dfFCP(0x3F, 0x20))

	// The same EF FID under a different DF is allowed: EF uniqueness is
	// parent-local, not global.
	if sw := e.ProcessAPDUStatus(createFileAPDU(efTransparentFCP(0x6F, 0x01, 16))); sw != SWSuccess {
		t.Errorf("creating EF 6F01 under a second DF status = %04X, want success", uint16(sw))
	}
}

func TestDFFIDUniquenessIsGlobal(t *testing.T) {
	img := scimage.NewInMemory()
	e := NewEngine(img)

	mustCreate(t, e, mfFCP())
	mustCreate(t, e, dfFCP(0x3F, 0x10))

	if sw := e.ProcessAPDUStatus(selectFileAPDU(MFFID)); sw != SWSuccess {
		t.Fatalf("select MF status = %04X, want success", uint16(sw))
	}

	// Creating a second DF under the MF with the same FID as the first must
	// be rejected by the MF-rooted scan.
	if sw := e.ProcessAPDUStatus(createFileAPDU(dfFCP(0x3F, 0x10))); sw != SWFileAlreadyExist {
		t.Errorf("re-creating DF 3F10 status = %04X, want SWFileAlreadyExist", uint16(sw))
	}

	// A DF under a different DF must also be rejected when it reuses 3F10,
	// which is not among its new parent's children: DF/ADF FIDs are unique
	// across the whole reachable tree, matching
	// test.py:check_fid_in_parent_and_siblings's walk back up to the MF.
	mustCreate(t, e, dfFCP(0x3F, 0x20))
	if sw := e.ProcessAPDUStatus(createFileAPDU(dfFCP(0x3F, 0x10))); sw != SWFileAlreadyExist {
		t.Errorf("creating DF 3F10 under DF 3F20 status = %04X, want SWFileAlreadyExist", uint16(sw))
	}
}

// TestDuplicateSFIRejectedWithExplicitTag exercises the explicit-0x88-tag
// path of CheckDuplicateSFI specifically: the two EFs' FIDs are chosen so
// their FID-derived SFI fallback values don't collide (0x01 vs 0x02),
// while their explicit 0x88 tags both declare SFI 0x08. Only a scan that
// actually reaches the stored 0x88 tag (rather than misreading the FCP
// bytes at the wrong offset and falling through to the FID-derived
// fallback) catches this collision.
func TestDuplicateSFIRejectedWithExplicitTag(t *testing.T) {
	img := scimage.NewInMemory()
	e := NewEngine(img)

	mustCreate(t, e, mfFCP())
	mustCreate(t, e, efWithExplicitSFIFCP(0x6F, 0x01, 16, 0x08))

	if sw := e.ProcessAPDUStatus(createFileAPDU(efWithExplicitSFIFCP(0x6F, 0x02, 16, 0x08))); sw != SWFileAlreadyExist {
		t.Errorf("second EF with colliding explicit 0x88 SFI status = %04X, want SWFileAlreadyExist", uint16(sw))
	}
}

func TestCheckDuplicateFIDRejectsSelfReference(t *testing.T) {
	img := scimage.NewInMemory()
	sw := CheckDuplicateFID(img, 0x0002, MFFID, MFFID, IsDF)
	if sw != SWFileAlreadyExist {
		t.Errorf("CheckDuplicateFID(new==parent) = %04X, want SWFileAlreadyExist", uint16(sw))
	}
}

func TestCheckDuplicateSFIRejectsUnknownParentType(t *testing.T) {
	img := scimage.NewInMemory()
	// An all-0xFF region (the image's fill byte) decodes as neither an MF
	// nor a valid DF/ADF type byte.
	sw := CheckDuplicateSFI(img, 0x1000, 0x01, 0x6F01)
	if sw != SWFileInvalid {
		t.Errorf("CheckDuplicateSFI(garbage parent) = %04X, want SWFileInvalid", uint16(sw))
	}
}
