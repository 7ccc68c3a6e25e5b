package pyrowave

import "errors"

var (
	ErrParam                = errors.New("pyrowave: invalid parameter")
	ErrTruncatedPacket      = errors.New("pyrowave: truncated packet")
	ErrOutOfRangeBlockIndex = errors.New("pyrowave: block index out of range")
	ErrDimensionMismatch    = errors.New("pyrowave: frame dimensions do not match configuration")
	ErrChromaMismatch       = errors.New("pyrowave: chroma subsampling does not match configuration")
	ErrFrameNotReady        = errors.New("pyrowave: frame is not ready to decode")
	ErrInvalidContainer     = errors.New("pyrowave: invalid container")
	ErrInvalidTrace         = errors.New("pyrowave: invalid trace stream")
)
