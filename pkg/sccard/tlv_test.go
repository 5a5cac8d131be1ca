package sccard

import "testing"

// tlv builds one (tag, length, value) triplet.
func tlv(tag uint8, value ...uint8) []byte {
	return append([]byte{tag, uint8(len(value))}, value...)
}

func concatTLVs(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func mfFCP() []byte {
	return concatTLVs(
		tlv(0x82, 0x78, 0x21),
		tlv(0x83, 0x3F, 0x00),
		tlv(0x8A, 0x05),
		tlv(0x8B, 0x00, 0x00, 0x00),
		tlv(0x81, 0x00, 0x00),
		tlv(0xC6, 0xAA),
	)
}

func dfFCP(fidHi, fidLo uint8) []byte {
	return concatTLVs(
		tlv(0x82, 0x78, 0x21),
		tlv(0x83, fidHi, fidLo),
		tlv(0x8A, 0x05),
		tlv(0x8B, 0x00, 0x00, 0x00),
		tlv(0x81, 0x00, 0x00),
		tlv(0xC6, 0xAA),
	)
}

func efTransparentFCP(fidHi, fidLo uint8, size uint16) []byte {
	return concatTLVs(
		tlv(0x82, EFTransparentUnshareable, 0x21),
		tlv(0x83, fidHi, fidLo),
		tlv(0x8A, 0x05),
		tlv(0x8B, 0x00, 0x00, 0x00),
		tlv(0x80, uint8(size>>8), uint8(size)),
	)
}

func efWithExplicitSFIFCP(fidHi, fidLo uint8, size uint16, sfi uint8) []byte {
	return concatTLVs(
		tlv(0x82, EFTransparentUnshareable, 0x21),
		tlv(0x83, fidHi, fidLo),
		tlv(0x8A, 0x05),
		tlv(0x8B, 0x00, 0x00, 0x00),
		tlv(0x80, uint8(size>>8), uint8(size)),
		tlv(0x88, sfi),
	)
}

func efLinearFCP(fidHi, fidLo uint8, recordSize uint8, numRecords uint8) []byte {
	size := uint16(recordSize) * uint16(numRecords)
	return concatTLVs(
		tlv(0x82, EFLinearUnshareable, 0x21, 0x00, recordSize),
		tlv(0x83, fidHi, fidLo),
		tlv(0x8A, 0x05),
		tlv(0x8B, 0x00, 0x00, 0x00),
		tlv(0x80, uint8(size>>8), uint8(size)),
	)
}

func TestValidateFCPMF(t *testing.T) {
	res, sw := ValidateFCP(mfFCP())
	if sw != SWSuccess {
		t.Fatalf("ValidateFCP(MF) status = %04X, want success", uint16(sw))
	}
	if res.FileType != IsMF {
		t.Errorf("ValidateFCP(MF) FileType = %02X, want IsMF", res.FileType)
	}
	if res.FID != MFFID {
		t.Errorf("ValidateFCP(MF) FID = %04X, want %04X", res.FID, MFFID)
	}
}

func TestValidateFCPDF(t *testing.T) {
	res, sw := ValidateFCP(dfFCP(0x3F, 0x10))
	if sw != SWSuccess {
		t.Fatalf("ValidateFCP(DF) status = %04X, want success", uint16(sw))
	}
	if res.FileType != IsDF {
		t.Errorf("ValidateFCP(DF) FileType = %02X, want IsDF", res.FileType)
	}
	if res.FID != 0x3F10 {
		t.Errorf("ValidateFCP(DF) FID = %04X, want 3F10", res.FID)
	}
}

func TestValidateFCPEFTransparentDerivesSFIFromFID(t *testing.T) {
	res, sw := ValidateFCP(efTransparentFCP(0x6F, 0x01, 16))
	if sw != SWSuccess {
		t.Fatalf("ValidateFCP(EF) status = %04X, want success", uint16(sw))
	}
	if res.FileType != EFTransparentUnshareable {
		t.Errorf("ValidateFCP(EF) FileType = %02X, want EFTransparentUnshareable", res.FileType)
	}
	if res.FileSize != 16 {
		t.Errorf("ValidateFCP(EF) FileSize = %d, want 16", res.FileSize)
	}
	wantSFI := uint8(0x6F01 & 0x1F)
	if res.SFI != wantSFI {
		t.Errorf("ValidateFCP(EF) SFI = %02X, want %02X (no 0x88 tag present)", res.SFI, wantSFI)
	}
}

func TestValidateFCPEFLinearComputesRecordCount(t *testing.T) {
	res, sw := ValidateFCP(efLinearFCP(0x6F, 0x02, 8, 3))
	if sw != SWSuccess {
		t.Fatalf("ValidateFCP(linear EF) status = %04X, want success", uint16(sw))
	}
	if res.FileType != EFLinearUnshareable {
		t.Errorf("FileType = %02X, want EFLinearUnshareable", res.FileType)
	}
	if res.RecordSize != 8 {
		t.Errorf("RecordSize = %d, want 8", res.RecordSize)
	}
	if res.NumRecords != 3 {
		t.Errorf("NumRecords = %d, want 3", res.NumRecords)
	}
}

func TestValidateFCPRejectsFileSizeNotDivisibleByRecordSize(t *testing.T) {
	data := concatTLVs(
		tlv(0x82, EFLinearUnshareable, 0x21, 0x00, 0x08),
		tlv(0x83, 0x6F, 0x03),
		tlv(0x8A, 0x05),
		tlv(0x8B, 0x00, 0x00, 0x00),
		tlv(0x80, 0x00, 0x0A), // 10 is not divisible by record size 8
	)
	if _, sw := ValidateFCP(data); sw != SWDataInvalid {
		t.Errorf("ValidateFCP(indivisible) status = %04X, want SWDataInvalid", uint16(sw))
	}
}

func TestValidateFCPRejectsMissingRequiredTag(t *testing.T) {
	data := concatTLVs(
		tlv(0x82, 0x78, 0x21),
		tlv(0x83, 0x3F, 0x00),
		tlv(0x8A, 0x05),
		// 0x8B omitted
		tlv(0x81, 0x00, 0x00),
		tlv(0xC6, 0xAA),
	)
	if _, sw := ValidateFCP(data); sw != SWDataInvalid {
		t.Errorf("ValidateFCP(missing tag) status = %04X, want SWDataInvalid", uint16(sw))
	}
}

func TestValidateFCPRejectsUnknownTagForType(t *testing.T) {
	data := concatTLVs(mfFCP(), tlv(0x80, 0x00, 0x10))
	if _, sw := ValidateFCP(data); sw != SWDataInvalid {
		t.Errorf("ValidateFCP(stray 0x80 on MF) status = %04X, want SWDataInvalid", uint16(sw))
	}
}

func TestValidateFCPExplicitSFIOverridesFIDDerived(t *testing.T) {
	data := concatTLVs(
		tlv(0x82, EFTransparentUnshareable, 0x21),
		tlv(0x83, 0x6F, 0x01),
		tlv(0x8A, 0x05),
		tlv(0x8B, 0x00, 0x00, 0x00),
		tlv(0x80, 0x00, 0x10),
		tlv(0x88, 0x08),
	)
	res, sw := ValidateFCP(data)
	if sw != SWSuccess {
		t.Fatalf("ValidateFCP status = %04X, want success", uint16(sw))
	}
	if res.SFI != 0x08 {
		t.Errorf("SFI = %02X, want 08 (explicit tag should win over FID-derived default)", res.SFI)
	}
}

func TestValidateFCPRejectsSFIWithLowBitsSet(t *testing.T) {
	data := concatTLVs(
		tlv(0x82, EFTransparentUnshareable, 0x21),
		tlv(0x83, 0x6F, 0x01),
		tlv(0x8A, 0x05),
		tlv(0x8B, 0x00, 0x00, 0x00),
		tlv(0x80, 0x00, 0x10),
		tlv(0x88, 0x03), // low three bits must be zero
	)
	if _, sw := ValidateFCP(data); sw != SWDataInvalid {
		t.Errorf("ValidateFCP(bad SFI) status = %04X, want SWDataInvalid", uint16(sw))
	}
}
