package xy

import (
	"strconv"
	"testing"
)

var fstr = []string{
	"FSLAX14Y14",
	"FSLAX15Y15",
	"FSLAX24Y24",
	"FSLAX26Y26",
	"FSLAX36Y36",
	"FSLAX46Y46",
	"FSLAX66Y66",
	"FSLAX67Y67",
}

func TestParseFormatSpec(t *testing.T) {
	for _, s := range fstr {
		fs, err := ParseFormatSpec(s)
		if err != nil {
			t.Fatal(s + ": unexpected error " + err.Error())
		}
		wantI := int(s[5] - '0')
		wantD := int(s[6] - '0')
		if fs.IntDigits != wantI || fs.DecDigits != wantD {
			t.Fatal(s + ": got " + fs.String())
		}
		if fs.OmitTrailing || fs.Incremental {
			t.Fatal(s + ": unexpected legacy flags")
		}
	}
}

func TestParseFormatSpecLegacy(t *testing.T) {
	fs, err := ParseFormatSpec("FSTIX23Y23")
	if err != nil {
		t.Fatal(err)
	}
	if !fs.OmitTrailing || !fs.Incremental {
		t.Fatal("expected trailing zero omission and incremental notation")
	}
}

func TestParseFormatSpecErrors(t *testing.T) {
	bad := map[string]error{
		"FSLAX24Y25": ErrAxisMismatch,
		"FSLAX2":     ErrBadFormat,
		"FSQAX24Y24": ErrBadFormat,
		"FSLAXabYab": ErrBadFormat,
		"MOMM":       ErrBadFormat,
		"FSLAX00Y00": ErrDigitsRange,
	}
	for s, want := range bad {
		if _, err := ParseFormatSpec(s); err != want {
			t.Errorf("%s: got %v, want %v", s, err, want)
		}
	}
}

type decodeCase struct {
	fs   string
	in   string
	want float64
}

var decodeCases = []decodeCase{
	{"FSLAX24Y24", "1000000", 100.0},
	{"FSLAX24Y24", "0", 0},
	{"FSLAX24Y24", "-15000", -1.5},
	{"FSLAX24Y24", "+15000", 1.5},
	{"FSLAX26Y26", "123456", 0.123456},
	{"FSLAX36Y36", "12345678", 12.345678},
	{"FSTAX24Y24", "15", 15.0},
	{"FSTAX24Y24", "-0015", -0.15},
}

func TestFormatSpec_Decode(t *testing.T) {
	for _, c := range decodeCases {
		fs, err := ParseFormatSpec(c.fs)
		if err != nil {
			t.Fatal(err)
		}
		got, err := fs.Decode(c.in)
		if err != nil {
			t.Fatal(c.fs + " " + c.in + ": " + err.Error())
		}
		if got != c.want {
			t.Fatal(c.fs + " " + c.in + ": got " + strconv.FormatFloat(got, 'f', 10, 64))
		}
	}
}

func TestFormatSpec_DecodeErrors(t *testing.T) {
	fs, _ := ParseFormatSpec("FSTAX24Y24")
	for _, in := range []string{"", "-", "12a", "1.5", "1234567"} {
		if _, err := fs.Decode(in); err == nil {
			t.Errorf("%q: expected an error", in)
		}
	}
}

func TestPoint_Equals(t *testing.T) {
	a := Point{1, 1}
	if !a.Equals(Point{1.0005, 1}, 0.001) {
		t.Error("points within tolerance must be equal")
	}
	if a.Equals(Point{1.01, 1}, 0.001) {
		t.Error("points outside tolerance must differ")
	}
	if a.Add(Point{2, -1}) != (Point{3, 0}) {
		t.Error("Add")
	}
}
