package elm

import "sort"

// DTC severity levels, critical first when sorted.
const (
	SeverityInfo = iota
	SeverityWarning
	SeverityCritical
)

// DTC is one decoded trouble code with presentation metadata.
type DTC struct {
	Code        string `json:"code"`        // e.g. "P0133"
	Description string `json:"description"` // human readable
	Severity    int    `json:"severity"`    // 0=info 1=warning 2=critical
}

// DecodeDTC turns the two raw status bytes into the 5-character code:
// top two bits of A select the category letter, the rest are four hex
// digits. Recomputed on every read, never cached.
func DecodeDTC(a, b byte) string {
	const hexDigits = "0123456789ABCDEF"
	category := [4]byte{'P', 'C', 'B', 'U'}

	code := [5]byte{
		category[(a>>6)&0x03],
		'0' + (a>>4)&0x03,
		hexDigits[a&0x0F],
		hexDigits[(b>>4)&0x0F],
		hexDigits[b&0x0F],
	}
	return string(code[:])
}

// dtcCatalog holds descriptions and severities for codes common on the
// target platform. Anything else falls back to a category-level entry.
var dtcCatalog = map[string]DTC{
	"P0100": {Description: "Mass Air Flow Circuit Malfunction", Severity: SeverityWarning},
	"P0128": {Description: "Coolant Thermostat Below Regulating Temperature", Severity: SeverityInfo},
	"P0133": {Description: "O2 Sensor Circuit Slow Response (Bank 1 Sensor 1)", Severity: SeverityWarning},
	"P0171": {Description: "System Too Lean (Bank 1)", Severity: SeverityWarning},
	"P0172": {Description: "System Too Rich (Bank 1)", Severity: SeverityWarning},
	"P0217": {Description: "Engine Coolant Over Temperature", Severity: SeverityCritical},
	"P0300": {Description: "Random/Multiple Cylinder Misfire Detected", Severity: SeverityCritical},
	"P0301": {Description: "Cylinder 1 Misfire Detected", Severity: SeverityCritical},
	"P0302": {Description: "Cylinder 2 Misfire Detected", Severity: SeverityCritical},
	"P0303": {Description: "Cylinder 3 Misfire Detected", Severity: SeverityCritical},
	"P0304": {Description: "Cylinder 4 Misfire Detected", Severity: SeverityCritical},
	"P0420": {Description: "Catalyst System Efficiency Below Threshold (Bank 1)", Severity: SeverityWarning},
	"P0562": {Description: "System Voltage Low", Severity: SeverityWarning},
	"P0700": {Description: "Transmission Control System Malfunction", Severity: SeverityWarning},
	"U0100": {Description: "Lost Communication With ECM/PCM", Severity: SeverityCritical},
}

var categoryNames = map[byte]string{
	'P': "Powertrain",
	'C': "Chassis",
	'B': "Body",
	'U': "Network",
}

// Describe returns the catalogued DTC entry for a code, or a generic
// category-level entry for codes outside the catalog.
func Describe(code string) DTC {
	if d, ok := dtcCatalog[code]; ok {
		d.Code = code
		return d
	}
	name := "Unknown"
	if len(code) > 0 {
		if n, ok := categoryNames[code[0]]; ok {
			name = n
		}
	}
	return DTC{Code: code, Description: name + " fault " + code, Severity: SeverityInfo}
}

// SortBySeverity orders codes critical-first, stable within a level so
// the adapter's reporting order is preserved.
func SortBySeverity(codes []DTC) {
	sort.SliceStable(codes, func(i, j int) bool {
		return codes[i].Severity > codes[j].Severity
	})
}
