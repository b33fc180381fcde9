// Package annexb splits H.264 and H.265 Annex B byte streams into NAL
// units and groups them into access units for frame-at-a-time feeding.
// Both 3-byte (0x000001) and 4-byte (0x00000001) start codes are
// recognized.
package annexb

// H.264 NAL unit types as defined in ITU-T H.264 Table 7-1.
const (
	H264NALSliceNonIDR = 1
	H264NALSliceIDR    = 5
	H264NALSEI         = 6
	H264NALSPS         = 7
	H264NALPPS         = 8
	H264NALAUD         = 9
)

// H.265 NAL unit types as defined in ITU-T H.265 Table 7-1.
const (
	HEVCNALBlaWLP    = 16
	HEVCNALIDRWRadl  = 19
	HEVCNALIDRNlp    = 20
	HEVCNALCraNut    = 21
	HEVCNALVPS       = 32
	HEVCNALSPS       = 33
	HEVCNALPPS       = 34
	HEVCNALAUD       = 35
	HEVCNALSEIPrefix = 39
)

// H264NALType extracts the 5-bit NAL type from an H.264 NAL header byte.
func H264NALType(b byte) byte {
	return b & 0x1F
}

// HEVCNALType extracts the 6-bit NAL type from the first byte of an H.265
// NAL header.
func HEVCNALType(b byte) byte {
	return (b >> 1) & 0x3F
}

// IsH264Keyframe reports whether the NAL type is an IDR slice.
func IsH264Keyframe(nalType byte) bool {
	return nalType == H264NALSliceIDR
}

// IsHEVCKeyframe reports whether the NAL type is an IRAP picture
// (BLA, IDR, or CRA).
func IsHEVCKeyframe(nalType byte) bool {
	return nalType >= HEVCNALBlaWLP && nalType <= HEVCNALCraNut
}

func isH264VCL(nalType byte) bool {
	return nalType >= H264NALSliceNonIDR && nalType <= H264NALSliceIDR
}

func isHEVCVCL(nalType byte) bool {
	return nalType <= 31
}

// NALUnit is one parsed H.264 or H.265 NAL unit.
type NALUnit struct {
	Type byte   // codec-specific NAL type (5-bit for H.264, 6-bit for H.265)
	Data []byte // raw NAL data including the NAL header byte(s), without start code
}

type unitPos struct {
	scStart   int
	dataStart int
	end       int
}

// scan locates every start code in data and returns the extent of each
// NAL unit, start code included in [scStart, end).
func scan(data []byte) []unitPos {
	n := len(data)
	if n < 4 {
		return nil
	}

	var positions []unitPos
	i := 0
	for i < n-2 {
		if data[i] == 0 && data[i+1] == 0 {
			if i < n-3 && data[i+2] == 0 && data[i+3] == 1 {
				positions = append(positions, unitPos{scStart: i, dataStart: i + 4})
				i += 4
				continue
			}
			if data[i+2] == 1 {
				positions = append(positions, unitPos{scStart: i, dataStart: i + 3})
				i += 3
				continue
			}
		}
		i++
	}

	for idx := range positions {
		if idx+1 < len(positions) {
			positions[idx].end = positions[idx+1].scStart
		} else {
			positions[idx].end = n
		}
	}
	return positions
}

func parse(data []byte, minNALBytes int, nalType func([]byte) byte) []NALUnit {
	var units []NALUnit
	for _, pos := range scan(data) {
		if pos.end-pos.dataStart < minNALBytes {
			continue
		}
		nalData := data[pos.dataStart:pos.end]
		units = append(units, NALUnit{Type: nalType(nalData), Data: nalData})
	}
	return units
}

// ParseH264 splits an H.264 Annex B byte stream into NAL units.
func ParseH264(data []byte) []NALUnit {
	return parse(data, 1, func(d []byte) byte { return H264NALType(d[0]) })
}

// ParseHEVC splits an H.265 Annex B byte stream into NAL units. HEVC NAL
// headers are two bytes, so shorter fragments are skipped.
func ParseHEVC(data []byte) []NALUnit {
	return parse(data, 2, func(d []byte) byte { return HEVCNALType(d[0]) })
}

// AccessUnit is one picture's worth of Annex B bytes, start codes
// included, ready to hand to a decoder as a single packet.
type AccessUnit struct {
	Data     []byte
	Keyframe bool
}

// splitAccessUnits groups NAL units into access units: the first NAL
// after a slice opens a new unit, so delimiters, parameter sets, and SEI
// travel with the picture they precede. Streams with one slice per
// picture are assumed; extra slices of the same picture open units of
// their own.
func splitAccessUnits(data []byte, minNALBytes int, nalType func([]byte) byte, isVCL func(byte) bool, isKey func(byte) bool) []AccessUnit {
	positions := scan(data)

	var units []AccessUnit
	var cur *AccessUnit
	start := -1
	sawVCL := false

	flush := func(end int) {
		if cur == nil || start < 0 {
			return
		}
		cur.Data = data[start:end]
		units = append(units, *cur)
		cur = nil
		start = -1
		sawVCL = false
	}

	for _, pos := range positions {
		if pos.end-pos.dataStart < minNALBytes {
			continue
		}
		t := nalType(data[pos.dataStart:pos.end])
		if sawVCL {
			flush(pos.scStart)
		}
		if cur == nil {
			cur = &AccessUnit{}
			start = pos.scStart
		}
		if isVCL(t) {
			sawVCL = true
			if isKey(t) {
				cur.Keyframe = true
			}
		}
	}
	flush(len(data))
	return units
}

// AccessUnitsH264 groups an H.264 Annex B stream into access units,
// carrying leading parameter sets and SEI into the picture they precede.
func AccessUnitsH264(data []byte) []AccessUnit {
	return splitAccessUnits(data, 1,
		func(d []byte) byte { return H264NALType(d[0]) },
		isH264VCL, IsH264Keyframe)
}

// AccessUnitsHEVC groups an H.265 Annex B stream into access units.
func AccessUnitsHEVC(data []byte) []AccessUnit {
	return splitAccessUnits(data, 2,
		func(d []byte) byte { return HEVCNALType(d[0]) },
		isHEVCVCL, IsHEVCKeyframe)
}
