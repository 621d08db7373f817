package classify

import (
	"piigate/internal/core"
)

// Verhoeff dihedral group tables.
var (
	verhoeffD = [10][10]uint8{
		{0, 1, 2, 3, 4, 5, 6, 7, 8, 9},
		{1, 2, 3, 4, 0, 6, 7, 8, 9, 5},
		{2, 3, 4, 0, 1, 7, 8, 9, 5, 6},
		{3, 4, 0, 1, 2, 8, 9, 5, 6, 7},
		{4, 0, 1, 2, 3, 9, 5, 6, 7, 8},
		{5, 9, 8, 7, 6, 0, 4, 3, 2, 1},
		{6, 5, 9, 8, 7, 1, 0, 4, 3, 2},
		{7, 6, 5, 9, 8, 2, 1, 0, 4, 3},
		{8, 7, 6, 5, 9, 3, 2, 1, 0, 4},
		{9, 8, 7, 6, 5, 4, 3, 2, 1, 0},
	}
	verhoeffP = [8][10]uint8{
		{0, 1, 2, 3, 4, 5, 6, 7, 8, 9},
		{1, 5, 7, 6, 2, 8, 3, 0, 9, 4},
		{5, 8, 0, 3, 7, 9, 6, 1, 4, 2},
		{8, 9, 1, 6, 0, 4, 3, 5, 2, 7},
		{9, 4, 5, 3, 1, 2, 6, 8, 7, 0},
		{4, 1, 7, 5, 8, 0, 3, 2, 6, 9},
		{2, 7, 5, 8, 9, 3, 1, 4, 0, 6},
		{7, 0, 4, 6, 9, 1, 3, 2, 5, 8},
	}
	verhoeffInv = [10]uint8{0, 4, 3, 2, 1, 5, 6, 7, 8, 9}
)

// verhoeffValid reports whether digits, check digit last, pass the Verhoeff check.
func verhoeffValid(digits string) bool {
	var c uint8
	for i := 0; i < len(digits); i++ {
		d := digits[len(digits)-1-i] - '0'
		c = verhoeffD[c][verhoeffP[i%8][d]]
	}
	return c == 0
}

// verhoeffCheckDigit returns the check digit to append to payload.
func verhoeffCheckDigit(payload string) byte {
	var c uint8
	for i := 0; i < len(payload); i++ {
		d := payload[len(payload)-1-i] - '0'
		c = verhoeffD[c][verhoeffP[(i+1)%8][d]]
	}
	return '0' + verhoeffInv[c]
}

type aadhaarClassifier struct{}

func (aadhaarClassifier) Category() core.Category { return core.CategoryAadhaar }

// Classify accepts twelve digits, optionally grouped 4-4-4 by a single space
// or dash used consistently.
func (aadhaarClassifier) Classify(_ core.Path, value string) (core.Confidence, string, bool) {
	digits, ok := aadhaarDigits(value)
	if !ok {
		return 0, "", false
	}
	if digits[0] == '0' || digits[0] == '1' {
		return 0, "", false
	}
	if !verhoeffValid(digits) {
		return 0, "", false
	}
	return core.Confirmed, "checksum:verhoeff", true
}

func aadhaarDigits(value string) (string, bool) {
	switch len(value) {
	case 12:
		for i := 0; i < 12; i++ {
			if !isDigit(value[i]) {
				return "", false
			}
		}
		return value, true
	case 14:
		sep := value[4]
		if (sep != ' ' && sep != '-') || value[9] != sep {
			return "", false
		}
		buf := make([]byte, 0, 12)
		for i := 0; i < 14; i++ {
			if i == 4 || i == 9 {
				continue
			}
			if !isDigit(value[i]) {
				return "", false
			}
			buf = append(buf, value[i])
		}
		return string(buf), true
	default:
		return "", false
	}
}
