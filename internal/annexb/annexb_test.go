package annexb

import (
	"bytes"
	"testing"
)

var (
	sc4 = []byte{0x00, 0x00, 0x00, 0x01}
	sc3 = []byte{0x00, 0x00, 0x01}
)

func TestH264NALType(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		firstByte byte
		want      byte
	}{
		{"non-IDR slice", 0x41, H264NALSliceNonIDR},
		{"IDR slice", 0x65, H264NALSliceIDR},
		{"SEI", 0x06, H264NALSEI},
		{"SPS", 0x67, H264NALSPS},
		{"PPS", 0x68, H264NALPPS},
		{"AUD", 0x09, H264NALAUD},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := H264NALType(tt.firstByte); got != tt.want {
				t.Errorf("H264NALType(0x%02X) = %d, want %d", tt.firstByte, got, tt.want)
			}
		})
	}
}

func TestHEVCNALType(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		firstByte byte
		want      byte
	}{
		{"VPS (32)", 0x40, HEVCNALVPS},
		{"SPS (33)", 0x42, HEVCNALSPS},
		{"PPS (34)", 0x44, HEVCNALPPS},
		{"IDR_W_RADL (19)", 0x26, HEVCNALIDRWRadl},
		{"IDR_N_LP (20)", 0x28, HEVCNALIDRNlp},
		{"CRA (21)", 0x2A, HEVCNALCraNut},
		{"BLA_W_LP (16)", 0x20, HEVCNALBlaWLP},
		{"SEI_PREFIX (39)", 0x4E, HEVCNALSEIPrefix},
		{"AUD (35)", 0x46, HEVCNALAUD},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HEVCNALType(tt.firstByte); got != tt.want {
				t.Errorf("HEVCNALType(0x%02X) = %d, want %d", tt.firstByte, got, tt.want)
			}
		})
	}
}

func TestIsH264Keyframe(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		nalType byte
		want    bool
	}{
		{"IDR", H264NALSliceIDR, true},
		{"non-IDR slice", H264NALSliceNonIDR, false},
		{"SPS", H264NALSPS, false},
		{"PPS", H264NALPPS, false},
		{"SEI", H264NALSEI, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsH264Keyframe(tt.nalType); got != tt.want {
				t.Errorf("IsH264Keyframe(%d) = %v, want %v", tt.nalType, got, tt.want)
			}
		})
	}
}

func TestIsHEVCKeyframe(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		nalType byte
		want    bool
	}{
		{"BLA_W_LP", HEVCNALBlaWLP, true},
		{"IDR_W_RADL", HEVCNALIDRWRadl, true},
		{"IDR_N_LP", HEVCNALIDRNlp, true},
		{"CRA", HEVCNALCraNut, true},
		{"TRAIL_R (1)", 1, false},
		{"VPS", HEVCNALVPS, false},
		{"SPS", HEVCNALSPS, false},
		{"PPS", HEVCNALPPS, false},
		{"SEI", HEVCNALSEIPrefix, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsHEVCKeyframe(tt.nalType); got != tt.want {
				t.Errorf("IsHEVCKeyframe(%d) = %v, want %v", tt.nalType, got, tt.want)
			}
		})
	}
}

func TestParseH264(t *testing.T) {
	t.Parallel()

	// SPS with a 4-byte start code, PPS with a 3-byte one, then an IDR.
	var data []byte
	data = append(data, sc4...)
	data = append(data, 0x67, 0xAA, 0xBB)
	data = append(data, sc3...)
	data = append(data, 0x68, 0xCC)
	data = append(data, sc4...)
	data = append(data, 0x65, 0x01, 0x02, 0x03)

	units := ParseH264(data)
	if len(units) != 3 {
		t.Fatalf("expected 3 NAL units, got %d", len(units))
	}
	wantTypes := []byte{H264NALSPS, H264NALPPS, H264NALSliceIDR}
	wantLens := []int{3, 2, 4}
	for i, u := range units {
		if u.Type != wantTypes[i] {
			t.Errorf("unit %d type: got %d, want %d", i, u.Type, wantTypes[i])
		}
		if len(u.Data) != wantLens[i] {
			t.Errorf("unit %d length: got %d, want %d", i, len(u.Data), wantLens[i])
		}
	}
}

func TestParseHEVC(t *testing.T) {
	t.Parallel()

	// VPS + SPS + PPS + IDR. HEVC NAL headers are 2 bytes.
	var data []byte
	data = append(data, sc4...)
	data = append(data, 0x40, 0x01, 0x0C)
	data = append(data, sc4...)
	data = append(data, 0x42, 0x01, 0x01)
	data = append(data, sc4...)
	data = append(data, 0x44, 0x01, 0xC0)
	data = append(data, sc4...)
	data = append(data, 0x26, 0x01, 0xAF)

	units := ParseHEVC(data)
	if len(units) != 4 {
		t.Fatalf("expected 4 NAL units, got %d", len(units))
	}
	wantTypes := []byte{HEVCNALVPS, HEVCNALSPS, HEVCNALPPS, HEVCNALIDRWRadl}
	for i, u := range units {
		if u.Type != wantTypes[i] {
			t.Errorf("unit %d type: got %d, want %d", i, u.Type, wantTypes[i])
		}
	}
}

func TestParseShortInput(t *testing.T) {
	t.Parallel()
	if units := ParseH264([]byte{0x00, 0x00, 0x01}); units != nil {
		t.Errorf("expected nil for short input, got %d units", len(units))
	}
	if units := ParseHEVC(nil); units != nil {
		t.Errorf("expected nil for empty input, got %d units", len(units))
	}
}

func TestAccessUnitsH264(t *testing.T) {
	t.Parallel()

	// SPS + PPS + IDR form the first access unit; two non-IDR slices
	// each form their own.
	var data []byte
	data = append(data, sc4...)
	data = append(data, 0x67, 0xAA)
	data = append(data, sc4...)
	data = append(data, 0x68, 0xBB)
	data = append(data, sc4...)
	data = append(data, 0x65, 0x01, 0x02)
	firstLen := len(data)
	data = append(data, sc4...)
	data = append(data, 0x41, 0x03)
	data = append(data, sc4...)
	data = append(data, 0x41, 0x04)

	aus := AccessUnitsH264(data)
	if len(aus) != 3 {
		t.Fatalf("expected 3 access units, got %d", len(aus))
	}
	if !aus[0].Keyframe {
		t.Error("first access unit should be a keyframe")
	}
	if len(aus[0].Data) != firstLen {
		t.Errorf("first unit length: got %d, want %d", len(aus[0].Data), firstLen)
	}
	if !bytes.HasPrefix(aus[0].Data, sc4) {
		t.Error("access unit data should keep its start code")
	}
	for i := 1; i < 3; i++ {
		if aus[i].Keyframe {
			t.Errorf("access unit %d should not be a keyframe", i)
		}
	}
}

func TestAccessUnitsHEVC(t *testing.T) {
	t.Parallel()

	// VPS + SPS + PPS + IDR, then a trailing picture.
	var data []byte
	data = append(data, sc4...)
	data = append(data, 0x40, 0x01)
	data = append(data, sc4...)
	data = append(data, 0x42, 0x01)
	data = append(data, sc4...)
	data = append(data, 0x44, 0x01)
	data = append(data, sc4...)
	data = append(data, 0x26, 0x01, 0xAF)
	data = append(data, sc4...)
	data = append(data, 0x02, 0x01, 0xD0)

	aus := AccessUnitsHEVC(data)
	if len(aus) != 2 {
		t.Fatalf("expected 2 access units, got %d", len(aus))
	}
	if !aus[0].Keyframe {
		t.Error("first access unit should be a keyframe")
	}
	if aus[1].Keyframe {
		t.Error("second access unit should not be a keyframe")
	}
}

func TestAccessUnitsWithDelimiters(t *testing.T) {
	t.Parallel()

	// AUD-delimited stream: each delimiter binds to the picture after it.
	var data []byte
	data = append(data, sc4...)
	data = append(data, 0x09, 0xF0)
	data = append(data, sc4...)
	data = append(data, 0x67, 0xAA)
	data = append(data, sc4...)
	data = append(data, 0x68, 0xBB)
	data = append(data, sc4...)
	data = append(data, 0x65, 0x01)
	data = append(data, sc4...)
	data = append(data, 0x09, 0xF0)
	data = append(data, sc4...)
	data = append(data, 0x41, 0x02)

	aus := AccessUnitsH264(data)
	if len(aus) != 2 {
		t.Fatalf("expected 2 access units, got %d", len(aus))
	}
	if !aus[0].Keyframe || aus[1].Keyframe {
		t.Errorf("keyframe flags: got %v/%v, want true/false", aus[0].Keyframe, aus[1].Keyframe)
	}
	au2 := aus[1].Data
	units := ParseH264(au2)
	if len(units) != 2 || units[0].Type != H264NALAUD || units[1].Type != H264NALSliceNonIDR {
		t.Errorf("second unit should be AUD + slice, got %d units", len(units))
	}
}
