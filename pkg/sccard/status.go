package sccard

import "fmt"

// StatusWord is an ISO 7816-4 two-byte result code (SW1 SW2 packed into one
// uint16). Every internal operation in this package returns one instead of
// a Go error: see SPEC_FULL.md §7 for the propagation policy.
type StatusWord uint16

// Bytes splits sw into its SW1, SW2 pair for wire encoding.
func (sw StatusWord) Bytes() [2]byte {
	return [2]byte{byte(sw >> 8), byte(sw)}
}

// Status words, grouped the way spec.md §7 groups them.
const (
	SWSuccess StatusWord = 0x9000

	// Format errors.
	SWDataInvalid           StatusWord = 0x6A80
	SWWrongLength           StatusWord = 0x6700
	SWNcInconsistentWithTLV StatusWord = 0x6A85
	SWNcInconsistentWithP1P2 StatusWord = 0x6A87

	// Structural errors.
	SWFileAlreadyExist StatusWord = 0x6A89
	SWFileNotFound     StatusWord = 0x6A82
	SWRecordNotFound   StatusWord = 0x6A83
	SWFileInvalid      StatusWord = 0x6983

	// Resource errors.
	SWNotEnoughMemory StatusWord = 0x6A84
	SWMemoryFailure   StatusWord = 0x6581
	SWTechnicalProblem StatusWord = 0x6F00

	// State errors.
	SWCommandNotAllowed      StatusWord = 0x6986
	SWConditionsNotSatisfied StatusWord = 0x6985

	// Dispatch errors.
	SWClaNotSupported StatusWord = 0x6E00
	SWInsNotSupported StatusWord = 0x6D00
	SWIncorrectP1P2   StatusWord = 0x6A86
	SWFuncNotSupported StatusWord = 0x6A81

	// Miscellaneous codes present in the original taxonomy.
	SWWarningNVUnchanged           StatusWord = 0x6200
	SWPartCorrupted                StatusWord = 0x6281
	SWSecurityStatusNotSatisfied   StatusWord = 0x6982
	SWExpectedSMDataObjectsMissing StatusWord = 0x6987
	SWSMDataObjectsIncorrect       StatusWord = 0x6988
	SWCommandIncompatible          StatusWord = 0x6981
	SWReferencedDataNotFound       StatusWord = 0x6A88

	// swZero is the "no status" value; get_status_description's "custom"
	// entry for it is retained for the diagnostic printer but it is never
	// returned by a dispatcher call.
	swZero StatusWord = 0x0000
)

// wrongLength builds the 0x6Cxx family: "wrong Le; reissue with Le=SW2"
// ISO 7816-4 convention, used by READ BINARY when the caller's Le asks for
// more bytes than remain after the offset.
func wrongLength(correctLe uint8) StatusWord {
	return StatusWord(0x6C00 | uint16(correctLe))
}

// Description returns a human-readable description of sw, matching
// test.py:get_status_description.
func (sw StatusWord) Description() string {
	if sw&0xFF00 == 0x6C00 {
		return "bad length"
	}
	switch sw {
	case SWSuccess:
		return "Success"
	case SWWrongLength:
		return "Wrong length"
	case SWFileInvalid:
		return "File invalid"
	case SWCommandNotAllowed:
		return "Command not allowed - no current EF"
	case SWFileNotFound:
		return "File not found"
	case SWRecordNotFound:
		return "Record not found"
	case SWNotEnoughMemory:
		return "Not enough memory"
	case SWIncorrectP1P2:
		return "Incorrect P1-P2"
	case SWNcInconsistentWithP1P2:
		return "Nc inconsistent with P1-P2"
	case SWInsNotSupported:
		return "Instruction not supported"
	case SWClaNotSupported:
		return "Class not supported"
	case SWFuncNotSupported:
		return "Function not supported"
	case SWDataInvalid:
		return "Incorrect parameters in the data field"
	case SWFileAlreadyExist:
		return "File Already Exists"
	case SWCommandIncompatible:
		return "Command incompatible with file structure"
	case swZero:
		return "Invalid Input Command (custom)"
	default:
		return fmt.Sprintf("Unknown status: %04X", uint16(sw))
	}
}
