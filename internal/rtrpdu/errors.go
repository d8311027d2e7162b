package rtrpdu

import "fmt"

// ErrorCode is the RTR protocol error-code space, carried in the
// header-short field of an Error PDU.
type ErrorCode uint16

const (
	CorruptData                   ErrorCode = 0
	InternalError                 ErrorCode = 1
	NoDataAvailable               ErrorCode = 2
	InvalidRequest                ErrorCode = 3
	UnsupportedProtocolVersion    ErrorCode = 4
	UnsupportedPduType            ErrorCode = 5
	WithdrawalOfUnknownRecord     ErrorCode = 6
	DuplicateAnnouncementReceived ErrorCode = 7
)

// IsFatal reports whether a session must be closed after this error
// code. Every code is fatal except NoDataAvailable.
func (e ErrorCode) IsFatal() bool {
	return e != NoDataAvailable
}

func (e ErrorCode) String() string {
	switch e {
	case CorruptData:
		return "CorruptData"
	case InternalError:
		return "InternalError"
	case NoDataAvailable:
		return "NoDataAvailable"
	case InvalidRequest:
		return "InvalidRequest"
	case UnsupportedProtocolVersion:
		return "UnsupportedProtocolVersion"
	case UnsupportedPduType:
		return "UnsupportedPduType"
	case WithdrawalOfUnknownRecord:
		return "WithdrawalOfUnknownRecord"
	case DuplicateAnnouncementReceived:
		return "DuplicateAnnouncementReceived"
	default:
		return fmt.Sprintf("ErrorCode(%d)", uint16(e))
	}
}

// BadData is returned by Decode when a buffer cannot be parsed into a
// PDU. RawBytes is the input buffer (cut to the PDU's declared length
// once the header has been read), for inclusion as the CausingPDU of an
// outbound Error PDU.
type BadData struct {
	Code     ErrorCode
	RawBytes []byte
}

func (b *BadData) Error() string {
	return fmt.Sprintf("rtrpdu: %s", b.Code)
}

// ToErrorPDU builds the outbound Error PDU a caller should send back to
// the peer in response to this decode failure.
func (b *BadData) ToErrorPDU(text string) Error {
	return Error{Code: b.Code, CausingPDU: b.RawBytes, ErrorText: text}
}
