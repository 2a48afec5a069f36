package elm

// Descriptor maps one Mode-01 parameter to its query code and linear
// decode. All documented formulas are linear in the raw data word, so a
// scale and offset cover the whole table.
type Descriptor struct {
	Code   string // two-hex-digit PID, e.g. "0C"
	Name   string
	Bytes  int // data bytes in the response, 1 or 2
	Scale  float64
	Offset float64
	Unit   string
}

// Command returns the Mode-01 query for a descriptor.
func Command(d Descriptor) string { return "01" + d.Code }

// Descriptors is the fixed PID table, loaded once and never mutated.
// Formulas per SAE J1979.
var Descriptors = map[string]Descriptor{
	"04": {Code: "04", Name: "engine_load", Bytes: 1, Scale: 100.0 / 255.0, Unit: "%"},
	"05": {Code: "05", Name: "coolant_temp", Bytes: 1, Scale: 1, Offset: -40, Unit: "degC"},
	"0A": {Code: "0A", Name: "fuel_pressure", Bytes: 1, Scale: 3, Unit: "kPa"},
	"0C": {Code: "0C", Name: "rpm", Bytes: 2, Scale: 0.25, Unit: "rpm"},
	"0D": {Code: "0D", Name: "speed", Bytes: 1, Scale: 1, Unit: "km/h"},
	"0F": {Code: "0F", Name: "intake_temp", Bytes: 1, Scale: 1, Offset: -40, Unit: "degC"},
	"10": {Code: "10", Name: "maf", Bytes: 2, Scale: 0.01, Unit: "g/s"},
	"11": {Code: "11", Name: "throttle", Bytes: 1, Scale: 100.0 / 255.0, Unit: "%"},
	"1F": {Code: "1F", Name: "runtime", Bytes: 2, Scale: 1, Unit: "s"},
	"42": {Code: "42", Name: "battery_voltage", Bytes: 2, Scale: 0.001, Unit: "V"},
}

// PollRotation is the default round-robin order for steady-state polling.
// Restricted to the PIDs the target vehicle is known to answer; 0x42 is
// last because some ECUs are slow to report module voltage.
var PollRotation = []string{"05", "0C", "0D", "0F", "11", "42"}
