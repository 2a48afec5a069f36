package elm

import (
	"strconv"
	"strings"
)

// errorKeywords are the adapter's failure vocabulary. Matched
// case-insensitively anywhere in the response.
var errorKeywords = []string{"NO DATA", "ERROR", "UNABLE", "BUS INIT", "?"}

// IsErrorResponse reports whether the adapter answered with an explicit
// error keyword. An error response means the query failed, not that the
// link is down — the adapter was alive enough to complain.
func IsErrorResponse(text string) bool {
	up := strings.ToUpper(text)
	for _, kw := range errorKeywords {
		if strings.Contains(up, kw) {
			return true
		}
	}
	return false
}

// IsNoData reports whether the adapter answered NO DATA specifically.
// For a Mode-03 read this is a valid "no stored codes" result.
func IsNoData(text string) bool {
	return strings.Contains(strings.ToUpper(text), "NO DATA")
}

// IsClearAck reports whether a Mode-04 clear was acknowledged ("44").
func IsClearAck(text string) bool {
	return strings.Contains(normalize(text), "44")
}

// normalize strips spacing, line breaks and the prompt, and upcases,
// leaving a bare hex string for positional parsing.
func normalize(text string) string {
	r := strings.NewReplacer(" ", "", "\r", "", "\n", "", ">", "")
	return strings.ToUpper(r.Replace(text))
}

// DecodePID extracts the data bytes of a Mode-01 response and applies
// the descriptor's linear formula. Returns false when the response does
// not acknowledge the requested PID or carries too few data bytes.
func DecodePID(text string, d Descriptor) (float64, bool) {
	data := normalize(text)
	idx := strings.Index(data, "41"+d.Code)
	if idx < 0 {
		return 0, false
	}
	hexData := data[idx+4:]
	need := d.Bytes * 2
	if len(hexData) < need {
		return 0, false
	}
	raw, err := strconv.ParseUint(hexData[:need], 16, 32)
	if err != nil {
		return 0, false
	}
	return float64(raw)*d.Scale + d.Offset, true
}

// DecodeDTCs walks the 2-byte groups of a Mode-03 response into code
// strings. The first byte pair after the "43" acknowledgement is the
// count header; an all-zero pair terminates the list early.
func DecodeDTCs(text string) []string {
	data := normalize(text)
	idx := strings.Index(data, "43")
	if idx < 0 {
		return nil
	}
	var codes []string
	for i := idx + 4; i+4 <= len(data); i += 4 {
		a, errA := strconv.ParseUint(data[i:i+2], 16, 8)
		b, errB := strconv.ParseUint(data[i+2:i+4], 16, 8)
		if errA != nil || errB != nil {
			break
		}
		if a == 0 && b == 0 {
			break
		}
		codes = append(codes, DecodeDTC(byte(a), byte(b)))
	}
	return codes
}
