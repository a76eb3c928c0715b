package trial

// Field names an enumerated trial attribute that carries display labels.
type Field string

// Labeled fields.
const (
	FieldStatus       Field = "status"
	FieldPhase        Field = "phase"
	FieldStudyType    Field = "study_type"
	FieldSponsorClass Field = "sponsor_class"
)

// The display tables below are the only place enum codes turn into UI labels.
// Search results and facet buckets both read them, so labels cannot drift apart.
var (
	statusLabels = map[Status]string{
		StatusNotYetRecruiting:       "Not yet recruiting",
		StatusRecruiting:             "Recruiting",
		StatusEnrollingByInvitation:  "Enrolling by invitation",
		StatusActiveNotRecruiting:    "Active, not recruiting",
		StatusSuspended:              "Suspended",
		StatusTerminated:             "Terminated",
		StatusCompleted:              "Completed",
		StatusWithdrawn:              "Withdrawn",
		StatusAvailable:              "Available",
		StatusNoLongerAvailable:      "No longer available",
		StatusTemporarilyUnavailable: "Temporarily not available",
		StatusApprovedForMarketing:   "Approved for marketing",
		StatusWithheld:               "Withheld",
		StatusUnknown:                "Unknown",
		StatusOther:                  "Other",
	}

	phaseLabels = map[Phase]string{
		PhaseEarly1:  "Early Phase 1",
		Phase1:       "Phase 1",
		Phase1Phase2: "Phase 1/2",
		Phase2:       "Phase 2",
		Phase2Phase3: "Phase 2/3",
		Phase3:       "Phase 3",
		Phase4:       "Phase 4",
		PhaseNA:      "Not applicable",
		PhaseUnknown: "Unknown",
		PhaseOther:   "Other",
	}

	studyTypeLabels = map[StudyType]string{
		StudyTypeInterventional: "Interventional",
		StudyTypeObservational:  "Observational",
		StudyTypeExpandedAccess: "Expanded access",
		StudyTypeUnknown:        "Unknown",
		StudyTypeOther:          "Other",
	}

	sponsorLabels = map[SponsorClass]string{
		SponsorNIH:      "NIH",
		SponsorFed:      "U.S. federal",
		SponsorOtherGov: "Other government",
		SponsorIndiv:    "Individual",
		SponsorIndustry: "Industry",
		SponsorNetwork:  "Network",
		SponsorAmbig:    "Ambiguous",
		SponsorOther:    "Other",
		SponsorUnknown:  "Unknown",
	}
)

// Label returns the display label of s.
func (s Status) Label() string { return labelOr(statusLabels[s], string(s)) }

// Label returns the display label of p.
func (p Phase) Label() string { return labelOr(phaseLabels[p], string(p)) }

// Label returns the display label of t.
func (t StudyType) Label() string { return labelOr(studyTypeLabels[t], string(t)) }

// Label returns the display label of c.
func (c SponsorClass) Label() string { return labelOr(sponsorLabels[c], string(c)) }

// Label resolves the display label of a code stored under field.
// Codes outside the closed set are returned unchanged.
func Label(field Field, code string) string {
	switch field {
	case FieldStatus:
		return Status(code).Label()
	case FieldPhase:
		return Phase(code).Label()
	case FieldStudyType:
		return StudyType(code).Label()
	case FieldSponsorClass:
		return SponsorClass(code).Label()
	default:
		return code
	}
}

// IsCode reports whether code belongs to the closed set behind field.
func IsCode(field Field, code string) bool {
	switch field {
	case FieldStatus:
		return Status(code).IsValid()
	case FieldPhase:
		return Phase(code).IsValid()
	case FieldStudyType:
		return StudyType(code).IsValid()
	case FieldSponsorClass:
		return SponsorClass(code).IsValid()
	default:
		return false
	}
}

func labelOr(label, fallback string) string {
	if label == "" {
		return fallback
	}
	return label
}
