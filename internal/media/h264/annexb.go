package h264

import (
	"bufio"
	"bytes"
	"io"
)

const (
	naluBufferInitialSize = 16 * 1024
	naluBufferMaximumSize = 1024 * 1024
)

var (
	startCode     = []byte{0, 0, 1}
	longStartCode = []byte{0, 0, 0, 1}
)

// Splits NAL units on H.264 Annex B start codes.
func splitNALU(data []byte, atEOF bool) (advance int, nalu []byte, err error) {
	i := bytes.Index(data, startCode)

	switch {
	case i == -1 && atEOF && len(data) > 0:
		// Trailing unit with no start code after it.
		advance = len(data)
		nalu = data
	case i == -1:
		// No start code found. Wait for more data.
		advance = 0
	case i == 0:
		// 3-byte start code (0x000001) found at data[0]. Skip these 3 bytes.
		advance = 3
	case i == 1 && data[0] == 0x00:
		// 4-byte start code (0x00000001) found at data[0]. Skip these 4 bytes.
		advance = 4
	default:
		// Next start code found at index i.
		advance = i + 3
		if data[i-1] == 0x00 {
			// 4-byte start code
			nalu = data[0 : i-1]
		} else {
			// 3-byte start code
			nalu = data[0:i]
		}
	}
	return
}

// SplitNALUs returns the NAL units of an Annex B byte stream. The units alias
// data.
func SplitNALUs(data []byte) (nalus []NALU) {
	for len(data) > 0 {
		advance, token, _ := splitNALU(data, true)
		if advance == 0 {
			break
		}
		if len(token) > 0 {
			nalus = append(nalus, NALU(token))
		}
		data = data[advance:]
	}
	return
}

// AppendAnnexB appends each unit to dst, prefixed with a 4-byte start code.
func AppendAnnexB(dst []byte, nalus ...NALU) []byte {
	for _, nalu := range nalus {
		dst = append(dst, longStartCode...)
		dst = append(dst, nalu...)
	}
	return dst
}

// Reader reads an H.264 Annex B byte stream one NAL unit or one access unit at
// a time.
type Reader struct {
	scanner *bufio.Scanner

	// Unit read ahead while looking for the end of an access unit.
	pending NALU
}

func NewReader(in io.Reader) *Reader {
	buffer := make([]byte, naluBufferInitialSize)
	scanner := bufio.NewScanner(in)
	scanner.Buffer(buffer, naluBufferMaximumSize)
	scanner.Split(splitNALU)
	return &Reader{scanner: scanner}
}

// ReadNALU returns the next non-empty NAL unit, or io.EOF.
func (r *Reader) ReadNALU() (NALU, error) {
	if r.pending != nil {
		nalu := r.pending
		r.pending = nil
		return nalu, nil
	}
	for r.scanner.Scan() {
		if token := r.scanner.Bytes(); len(token) > 0 {
			// The scanner reuses its buffer.
			return append(NALU(nil), token...), nil
		}
	}
	if err := r.scanner.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}

// ReadAccessUnit returns the units of the next access unit as one Annex B
// buffer. It returns io.EOF once the stream is exhausted.
func (r *Reader) ReadAccessUnit() ([]byte, error) {
	var (
		au      []byte
		haveVCL bool
	)
	for {
		nalu, err := r.ReadNALU()
		if err == io.EOF && len(au) > 0 {
			return au, nil
		}
		if err != nil {
			return nil, err
		}

		if nalu.startsAccessUnit(haveVCL) {
			r.pending = nalu
			return au, nil
		}
		if nalu.IsVCL() {
			haveVCL = true
		}
		au = AppendAnnexB(au, nalu)
	}
}
