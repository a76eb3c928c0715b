package trial

import "testing"

func TestParseStatus(t *testing.T) {
	tests := []struct {
		raw  string
		want Status
	}{
		{"RECRUITING", StatusRecruiting},
		{"recruiting", StatusRecruiting},
		{"Active, not recruiting", StatusOther},
		{"ACTIVE_NOT_RECRUITING", StatusActiveNotRecruiting},
		{"not yet recruiting", StatusNotYetRecruiting},
		{"", StatusUnknown},
		{"  ", StatusUnknown},
		{"PAUSED_FOR_LUNCH", StatusOther},
	}
	for _, tc := range tests {
		if got := ParseStatus(tc.raw); got != tc.want {
			t.Errorf("ParseStatus(%q) = %q, want %q", tc.raw, got, tc.want)
		}
	}
}

func TestParsePhase(t *testing.T) {
	tests := []struct {
		raw  []string
		want Phase
	}{
		{nil, PhaseUnknown},
		{[]string{"PHASE2"}, Phase2},
		{[]string{"EARLY_PHASE1"}, PhaseEarly1},
		{[]string{"NA"}, PhaseNA},
		{[]string{"PHASE2", "PHASE1"}, Phase1Phase2},
		{[]string{"PHASE2", "PHASE3"}, Phase2Phase3},
		{[]string{"PHASE1", "PHASE3"}, PhaseOther},
		{[]string{"PHASE9"}, PhaseOther},
		{[]string{"", " "}, PhaseUnknown},
	}
	for _, tc := range tests {
		if got := ParsePhase(tc.raw...); got != tc.want {
			t.Errorf("ParsePhase(%v) = %q, want %q", tc.raw, got, tc.want)
		}
	}
}

func TestParseSponsorClass(t *testing.T) {
	if got := ParseSponsorClass("industry"); got != SponsorIndustry {
		t.Errorf("got %q", got)
	}
	if got := ParseSponsorClass("OTHER_GOV"); got != SponsorOtherGov {
		t.Errorf("got %q", got)
	}
	if got := ParseSponsorClass("PHARMA"); got != SponsorOther {
		t.Errorf("unrecognized class should map to OTHER, got %q", got)
	}
	if got := ParseSponsorClass(""); got != SponsorUnknown {
		t.Errorf("missing class should map to UNKNOWN, got %q", got)
	}
}

func TestParseStudyType(t *testing.T) {
	if got := ParseStudyType("Expanded Access"); got != StudyTypeExpandedAccess {
		t.Errorf("got %q", got)
	}
	if got := ParseStudyType("REGISTRY"); got != StudyTypeOther {
		t.Errorf("got %q", got)
	}
}

func TestLabels_OnlyValidCodes(t *testing.T) {
	tables := map[Field][]string{}
	for c := range statusLabels {
		tables[FieldStatus] = append(tables[FieldStatus], string(c))
	}
	for c := range phaseLabels {
		tables[FieldPhase] = append(tables[FieldPhase], string(c))
	}
	for c := range studyTypeLabels {
		tables[FieldStudyType] = append(tables[FieldStudyType], string(c))
	}
	for c := range sponsorLabels {
		tables[FieldSponsorClass] = append(tables[FieldSponsorClass], string(c))
	}
	for field, codes := range tables {
		for _, code := range codes {
			if !IsCode(field, code) {
				t.Errorf("%s: labelled code %q is not valid", field, code)
			}
			if Label(field, code) == "" {
				t.Errorf("%s: %q has an empty display label", field, code)
			}
		}
	}
}

func TestLabel_PassesThroughUnknownCodes(t *testing.T) {
	if got := Label(FieldPhase, "PHASE7"); got != "PHASE7" {
		t.Errorf("Label() = %q", got)
	}
	if got := Label("colour", "RED"); got != "RED" {
		t.Errorf("Label() = %q", got)
	}
	if got := Phase1Phase2.Label(); got != "Phase 1/2" {
		t.Errorf("Phase1Phase2.Label() = %q", got)
	}
}
