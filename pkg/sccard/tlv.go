package sccard

// MaxTLVs and MaxTLVLen bound the FCP TLV list accepted by CREATE FILE,
// matching test.py's MAX_TLVS/MAX_TLV_LEN.
const (
	MaxTLVs   = 10
	MaxTLVLen = 256
)

// TLV is one decoded (tag, length, value) triplet from an FCP payload.
type TLV struct {
	Tag   uint8
	Len   uint8
	Value []byte
}

// fcpTemplateTag is the outer FCP template tag (0x62) that wraps the inner
// TLV triplets in every CREATE FILE command's data field, per spec.md §4.3
// ("one or more (tag, length, value) triplets laid out after an outer
// two-byte envelope") and every §8 end-to-end scenario APDU (e.g.
// `62 18 82 02 38 21 ...`).
const fcpTemplateTag = 0x62

// stripFCPEnvelope removes the outer two-byte `62 LEN` template envelope
// from a CREATE FILE data field, if present, returning the inner TLV
// triplets it wraps. Data that already lacks the envelope (as when
// re-validating FCP bytes already stored node-local, which are kept
// envelope-free) is returned unchanged.
func stripFCPEnvelope(data []byte) ([]byte, StatusWord) {
	if len(data) < 2 || data[0] != fcpTemplateTag {
		return data, SWSuccess
	}
	length := int(data[1])
	if 2+length != len(data) {
		return nil, SWDataInvalid
	}
	return data[2:], SWSuccess
}

// ParseTLVs decodes up to MaxTLVs TLV triplets from buf, returning them in
// order. It returns ok == false if buf is malformed (truncated tag/length
// pair, a length that overruns buf, or a value longer than MaxTLVLen),
// matching test.py:parse_tlv_list. declaredFID receives the FID carried by
// tag 0x83, if any was seen, so the caller doesn't need a side channel
// (test.py threads this through the global gFID instead).
func ParseTLVs(buf []byte) (tlvs []TLV, declaredFID uint16, ok bool) {
	total := len(buf)
	if total <= 0 {
		return nil, 0, false
	}

	pos := 0
	for pos < total && len(tlvs) < MaxTLVs {
		if pos+2 > total {
			return nil, 0, false
		}
		tag := buf[pos]
		pos++
		length := buf[pos]
		pos++

		if pos+int(length) > total || int(length) > MaxTLVLen {
			return nil, 0, false
		}

		value := make([]byte, length)
		copy(value, buf[pos:pos+int(length)])

		if tag == 0x83 && length == 2 {
			declaredFID = uint16(value[0])<<8 | uint16(value[1])
		}

		tlvs = append(tlvs, TLV{Tag: tag, Len: length, Value: value})
		pos += int(length)
	}

	return tlvs, declaredFID, true
}

// fcpResult carries everything ValidateFCP derives from an FCP TLV list that
// the caller (CreateFile) needs to proceed: the concrete file type, the
// record layout for record-oriented EFs, and the effective SFI.
type fcpResult struct {
	FileType    uint8
	FID         uint16
	FileSize    uint16
	RecordSize  uint16
	NumRecords  uint8
	SFI         uint8
}

// requiredTag pairs a presence flag with the diagnostic this FCP check
// fails with, mirroring test.py's TagCheck/check_required_tags.
type requiredTag struct {
	present bool
	tag     uint8
}

func checkRequiredTags(tags []requiredTag) bool {
	allPresent := true
	for _, t := range tags {
		if !t.present {
			allPresent = false
		}
	}
	return allPresent
}

// ValidateFCP decodes and validates the FCP TLV payload of a CREATE FILE
// command. It implements test.py:process_mf_df_ef: the 0x82 shape dispatch
// that derives MF/DF/ADF/EF-Transparent/EF-Linear/EF-Cyclic, the per-type
// tag whitelist and mandatory set, the 0x85/0xA5 mutual exclusion, the 0x88
// SFI rule (low three bits must be zero) with its FID-derived fallback, and
// the record-size/file-size divisibility check.
func ValidateFCP(data []byte) (fcpResult, StatusWord) {
	tlvs, declaredFID, ok := ParseTLVs(data)
	if !ok {
		return fcpResult{}, SWDataInvalid
	}

	var (
		isMF, isDF, isADF, isEF                   bool
		efTransparent, efLinear, efCyclic         bool
		has82, has83, has8A, has8B                bool
		has80, has81, hasC6, has84, has85, hasA5, has88 bool
		recordSize, fileSize                      uint16
		fid                                       uint16
		sfi                                       uint8
	)

	for _, tlv := range tlvs {
		switch tlv.Tag {
		case 0x82:
			has82 = true
			switch tlv.Len {
			case 2:
				switch tlv.Value[0] {
				case 0x78, 0x38:
					if declaredFID != MFFID {
						isDF, isMF = true, false
					} else {
						isMF, isDF = true, false
					}
				case 0x41, 0x01:
					efTransparent, isEF = true, true
					isDF, isMF = false, false
				default:
					return fcpResult{}, SWDataInvalid
				}
			case 4:
				switch tlv.Value[0] {
				case 0x42, 0x46, 0x02, 0x06:
					efLinear = tlv.Value[0] == 0x42 || tlv.Value[0] == 0x02
					efCyclic = tlv.Value[0] == 0x46 || tlv.Value[0] == 0x06
					isEF = true
					isDF, isMF = false, false
					if efLinear || efCyclic {
						recordSize = uint16(tlv.Value[2])<<8 | uint16(tlv.Value[3])
					}
				default:
					return fcpResult{}, SWDataInvalid
				}
			default:
				return fcpResult{}, SWDataInvalid
			}
			if tlv.Value[1] != 0x21 {
				return fcpResult{}, SWDataInvalid
			}

		case 0x83:
			if tlv.Len != 2 {
				return fcpResult{}, SWDataInvalid
			}
			has83 = true
			fid = declaredFID

		case 0x84:
			has84 = true
			if tlv.Len < 5 || tlv.Len > 16 {
				return fcpResult{}, SWDataInvalid
			}
			if isEF || isMF {
				return fcpResult{}, SWDataInvalid
			}
			isADF, isDF = true, false

		case 0x8A:
			has8A = true
			if tlv.Len != 1 || tlv.Value[0] != 0x05 {
				return fcpResult{}, SWDataInvalid
			}

		case 0x8B:
			has8B = true
			if tlv.Len != 3 {
				return fcpResult{}, SWDataInvalid
			}

		case 0x80:
			if tlv.Len != 2 || !isEF {
				return fcpResult{}, SWDataInvalid
			}
			sz := uint16(tlv.Value[0])<<8 | uint16(tlv.Value[1])
			if sz == 0 {
				return fcpResult{}, SWDataInvalid
			}
			fileSize = sz
			has80 = true
			if (efLinear || efCyclic) && recordSize > 0 {
				if fileSize%recordSize != 0 {
					return fcpResult{}, SWDataInvalid
				}
			}

		case 0x81:
			if tlv.Len != 2 || isEF || efTransparent || efLinear || efCyclic {
				return fcpResult{}, SWDataInvalid
			}
			if tlv.Value[0] != 0x00 || tlv.Value[1] != 0x00 {
				return fcpResult{}, SWDataInvalid
			}
			has81 = true

		case 0xC6:
			hasC6 = true
			if isEF || efTransparent || efLinear || efCyclic || tlv.Len > 9 {
				return fcpResult{}, SWDataInvalid
			}

		case 0x85:
			if hasA5 {
				return fcpResult{}, SWDataInvalid
			}
			has85 = true

		case 0xA5:
			if has85 {
				return fcpResult{}, SWDataInvalid
			}
			hasA5 = true

		case 0x88:
			if !isEF {
				return fcpResult{}, SWDataInvalid
			}
			switch tlv.Len {
			case 0:
				// SFI present but unsupported at this length; accepted and
				// ignored, matching test.py's "continue".
				continue
			case 1:
				raw := tlv.Value[0]
				if raw&0x07 != 0x00 {
					return fcpResult{}, SWDataInvalid
				}
				sfi = raw
			default:
				return fcpResult{}, SWDataInvalid
			}
			has88 = true
		}
	}

	if isEF && !has88 {
		sfi = uint8(fid & 0x1F)
	}

	allowed := func(tag uint8, set ...uint8) bool {
		for _, s := range set {
			if tag == s {
				return true
			}
		}
		return false
	}

	switch {
	case isMF:
		for _, tlv := range tlvs {
			if !allowed(tlv.Tag, 0x82, 0x83, 0x8A, 0x8B, 0x81, 0xC6, 0x85, 0xA5) {
				return fcpResult{}, SWDataInvalid
			}
		}
		if !checkRequiredTags([]requiredTag{{has82, 0x82}, {has83, 0x83}, {has8A, 0x8A}, {has8B, 0x8B}, {has81, 0x81}, {hasC6, 0xC6}}) {
			return fcpResult{}, SWDataInvalid
		}
		if hasA5 && has85 {
			return fcpResult{}, SWDataInvalid
		}
	case isDF:
		for _, tlv := range tlvs {
			if !allowed(tlv.Tag, 0x82, 0x83, 0x8A, 0x8B, 0x81, 0xC6, 0x85, 0xA5) {
				return fcpResult{}, SWDataInvalid
			}
		}
		if !checkRequiredTags([]requiredTag{{has82, 0x82}, {has83, 0x83}, {has8A, 0x8A}, {has8B, 0x8B}, {has81, 0x81}, {hasC6, 0xC6}}) {
			return fcpResult{}, SWDataInvalid
		}
		if hasA5 && has85 {
			return fcpResult{}, SWDataInvalid
		}
	case isADF:
		for _, tlv := range tlvs {
			if !allowed(tlv.Tag, 0x82, 0x83, 0x84, 0x8A, 0x8B, 0x81, 0xC6, 0x85, 0xA5) {
				return fcpResult{}, SWDataInvalid
			}
		}
		if !checkRequiredTags([]requiredTag{{has82, 0x82}, {has83, 0x83}, {has84, 0x84}, {has8A, 0x8A}, {has8B, 0x8B}, {has81, 0x81}, {hasC6, 0xC6}}) {
			return fcpResult{}, SWDataInvalid
		}
		if hasA5 && has85 {
			return fcpResult{}, SWDataInvalid
		}
	case isEF:
		for _, tlv := range tlvs {
			if !allowed(tlv.Tag, 0x82, 0x83, 0x8A, 0x8B, 0x80, 0x85, 0xA5, 0x88) {
				return fcpResult{}, SWDataInvalid
			}
		}
		if !checkRequiredTags([]requiredTag{{has82, 0x82}, {has83, 0x83}, {has8A, 0x8A}, {has8B, 0x8B}, {has80, 0x80}}) {
			return fcpResult{}, SWDataInvalid
		}
		if hasA5 && has85 {
			return fcpResult{}, SWDataInvalid
		}
	default:
		return fcpResult{}, SWDataInvalid
	}

	res := fcpResult{FID: fid, FileSize: fileSize, RecordSize: recordSize, SFI: sfi}
	switch {
	case isMF:
		res.FileType = IsMF
	case isDF:
		res.FileType = IsDF
	case isADF:
		res.FileType = IsADF
	case isEF:
		switch {
		case efTransparent:
			if tagValueIsShareable(tlvs) {
				res.FileType = EFTransparentShareable
			} else {
				res.FileType = EFTransparentUnshareable
			}
		case efLinear:
			if tagValueIsShareable(tlvs) {
				res.FileType = EFLinearShareable
			} else {
				res.FileType = EFLinearUnshareable
			}
		case efCyclic:
			if tagValueIsShareable(tlvs) {
				res.FileType = EFCyclicShareable
			} else {
				res.FileType = EFCyclicUnshareable
			}
		}
		if (efLinear || efCyclic) && res.RecordSize > 0 && res.FileSize > 0 {
			res.NumRecords = uint8(res.FileSize / res.RecordSize)
		}
	}

	return res, SWSuccess
}

// tagValueIsShareable re-reads the 0x82 tag's structure byte to recover the
// shareability bit that ValidateFCP's main loop already consumed; kept as a
// small second pass rather than threading another bool through the switch
// above, since the value only matters once, at the very end.
func tagValueIsShareable(tlvs []TLV) bool {
	for _, tlv := range tlvs {
		if tlv.Tag != 0x82 {
			continue
		}
		switch tlv.Len {
		case 2:
			return tlv.Value[0] == 0x41
		case 4:
			return tlv.Value[0] == 0x42 || tlv.Value[0] == 0x46
		}
	}
	return false
}
