package h264

// NAL unit types, ITU-T H.264 table 7-1.
const (
	TypeSlice = 1
	TypeIDR   = 5
	TypeSEI   = 6
	TypeSPS   = 7
	TypePPS   = 8
	TypeAUD   = 9
)

type NALU []byte

func (nalu NALU) ForbiddenBit() byte {
	return nalu[0] & 0x80 >> 7
}

func (nalu NALU) NRI() byte {
	return nalu[0] & 0x60 >> 5
}

func (nalu NALU) Type() byte {
	return nalu[0] & 0x1f
}

// IsVCL reports whether the unit carries coded slice data.
func (nalu NALU) IsVCL() bool {
	t := nalu.Type()
	return t >= TypeSlice && t <= TypeIDR
}

// firstSlice reports whether a VCL unit starts a new picture, i.e. its
// first_mb_in_slice is zero. ue(v) encodes zero as a single 1 bit.
func (nalu NALU) firstSlice() bool {
	return len(nalu) > 1 && nalu[1]&0x80 != 0
}

// startsAccessUnit reports whether nalu cannot belong to the access unit
// currently being assembled (7.4.1.2.3).
func (nalu NALU) startsAccessUnit(haveVCL bool) bool {
	switch t := nalu.Type(); {
	case t == TypeAUD || t == TypeSPS || t == TypePPS || t == TypeSEI:
		return haveVCL
	case nalu.IsVCL():
		return haveVCL && nalu.firstSlice()
	}
	return false
}

// Info summarizes the units of one access unit.
type Info struct {
	Keyframe bool

	// Set when the access unit carries a parseable SPS.
	HasSPS bool
	Width  int
	Height int
}

// Inspect scans an Annex B access unit for IDR slices and sequence parameter
// sets. Units that fail to parse are ignored.
func Inspect(data []byte) (info Info) {
	for _, nalu := range SplitNALUs(data) {
		switch nalu.Type() {
		case TypeIDR:
			info.Keyframe = true
		case TypeSPS:
			if sps, err := ParseSPS(nalu); err == nil {
				info.HasSPS = true
				info.Width, info.Height = sps.Width, sps.Height
			}
		}
	}
	return
}
