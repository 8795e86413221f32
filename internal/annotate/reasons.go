package annotate

// QualifiedCode is reserved for qualified PODs and is never offered as a
// failure reason.
const QualifiedCode = "00"

// reasonCodes is the fixed judgment vocabulary, in code order. Codes and
// labels are shared with the downstream report consumers and must not change.
var reasonCodes = []struct {
	Code  string
	Label string
}{
	{"00", "Qualified"},
	{"01", "No Address Info"},
	{"02", "Location Not Clear"},
	{"03", "No Clear Shipping Label"},
	{"04", "Public or Unsafe Area"},
	{"05", "Invalid Mailbox Delivery"},
	{"06", "Leave Outside of Building"},
	{"07", "Wrong Address"},
	{"08", "Wrong Parcel Photo"},
	{"09", "No POD"},
	{"10", "Inappropriate Delivery"},
}

// ReasonLabel resolves a reason code to its human-readable label.
func ReasonLabel(code string) (string, bool) {
	for _, r := range reasonCodes {
		if r.Code == code {
			return r.Label, true
		}
	}
	return "", false
}

// FailureReasons returns the codes a reviewer may pick for an unqualified POD,
// i.e. everything except the reserved qualified code.
func FailureReasons() []struct{ Code, Label string } {
	out := make([]struct{ Code, Label string }, 0, len(reasonCodes)-1)
	for _, r := range reasonCodes {
		if r.Code == QualifiedCode {
			continue
		}
		out = append(out, struct{ Code, Label string }{r.Code, r.Label})
	}
	return out
}
