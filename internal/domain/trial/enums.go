package trial

import (
	"sort"
	"strings"
)

// Status is the overall recruitment status of a trial.
type Status string

// Status values. Unknown covers a missing source value, Other an unrecognized one.
const (
	StatusNotYetRecruiting       Status = "NOT_YET_RECRUITING"
	StatusRecruiting             Status = "RECRUITING"
	StatusEnrollingByInvitation  Status = "ENROLLING_BY_INVITATION"
	StatusActiveNotRecruiting    Status = "ACTIVE_NOT_RECRUITING"
	StatusSuspended              Status = "SUSPENDED"
	StatusTerminated             Status = "TERMINATED"
	StatusCompleted              Status = "COMPLETED"
	StatusWithdrawn              Status = "WITHDRAWN"
	StatusAvailable              Status = "AVAILABLE"
	StatusNoLongerAvailable      Status = "NO_LONGER_AVAILABLE"
	StatusTemporarilyUnavailable Status = "TEMPORARILY_NOT_AVAILABLE"
	StatusApprovedForMarketing   Status = "APPROVED_FOR_MARKETING"
	StatusWithheld               Status = "WITHHELD"
	StatusUnknown                Status = "UNKNOWN"
	StatusOther                  Status = "OTHER"
)

// Phase is the normalized trial phase, with combined phases collapsed into one code.
type Phase string

// Phase values.
const (
	PhaseEarly1  Phase = "EARLY_PHASE1"
	Phase1       Phase = "PHASE1"
	Phase1Phase2 Phase = "PHASE1_PHASE2"
	Phase2       Phase = "PHASE2"
	Phase2Phase3 Phase = "PHASE2_PHASE3"
	Phase3       Phase = "PHASE3"
	Phase4       Phase = "PHASE4"
	PhaseNA      Phase = "NA"
	PhaseUnknown Phase = "UNKNOWN"
	PhaseOther   Phase = "OTHER"
)

// StudyType is the design category of a trial.
type StudyType string

// StudyType values.
const (
	StudyTypeInterventional StudyType = "INTERVENTIONAL"
	StudyTypeObservational  StudyType = "OBSERVATIONAL"
	StudyTypeExpandedAccess StudyType = "EXPANDED_ACCESS"
	StudyTypeUnknown        StudyType = "UNKNOWN"
	StudyTypeOther          StudyType = "OTHER"
)

// SponsorClass is the organization class of the lead sponsor.
type SponsorClass string

// SponsorClass values. OTHER is both a registry class and the fallback for unrecognized input.
const (
	SponsorNIH      SponsorClass = "NIH"
	SponsorFed      SponsorClass = "FED"
	SponsorOtherGov SponsorClass = "OTHER_GOV"
	SponsorIndiv    SponsorClass = "INDIV"
	SponsorIndustry SponsorClass = "INDUSTRY"
	SponsorNetwork  SponsorClass = "NETWORK"
	SponsorAmbig    SponsorClass = "AMBIG"
	SponsorOther    SponsorClass = "OTHER"
	SponsorUnknown  SponsorClass = "UNKNOWN"
)

// enumCode upper-cases a source value and turns separators into underscores.
func enumCode(raw string) string {
	s := strings.ToUpper(strings.TrimSpace(raw))
	return strings.NewReplacer(" ", "_", "-", "_").Replace(s)
}

// ParseStatus maps a source value into the closed Status set.
func ParseStatus(raw string) Status {
	code := enumCode(raw)
	if code == "" {
		return StatusUnknown
	}
	if _, ok := statusLabels[Status(code)]; ok {
		return Status(code)
	}
	return StatusOther
}

// ParsePhase maps one or more source phase values into the closed Phase set.
func ParsePhase(raw ...string) Phase {
	codes := make([]string, 0, len(raw))
	for _, r := range raw {
		if c := enumCode(r); c != "" {
			codes = append(codes, c)
		}
	}
	switch len(codes) {
	case 0:
		return PhaseUnknown
	case 1:
		if _, ok := phaseLabels[Phase(codes[0])]; ok {
			return Phase(codes[0])
		}
		return PhaseOther
	}
	sort.Strings(codes)
	combined := Phase(strings.Join(codes, "_"))
	if combined == Phase1Phase2 || combined == Phase2Phase3 {
		return combined
	}
	return PhaseOther
}

// ParseStudyType maps a source value into the closed StudyType set.
func ParseStudyType(raw string) StudyType {
	code := enumCode(raw)
	if code == "" {
		return StudyTypeUnknown
	}
	if _, ok := studyTypeLabels[StudyType(code)]; ok {
		return StudyType(code)
	}
	return StudyTypeOther
}

// ParseSponsorClass maps a source value into the closed SponsorClass set.
func ParseSponsorClass(raw string) SponsorClass {
	code := enumCode(raw)
	if code == "" {
		return SponsorUnknown
	}
	if _, ok := sponsorLabels[SponsorClass(code)]; ok {
		return SponsorClass(code)
	}
	return SponsorOther
}

// IsValid reports whether s is a member of the closed set.
func (s Status) IsValid() bool {
	_, ok := statusLabels[s]
	return ok
}

// IsValid reports whether p is a member of the closed set.
func (p Phase) IsValid() bool {
	_, ok := phaseLabels[p]
	return ok
}

// IsValid reports whether t is a member of the closed set.
func (t StudyType) IsValid() bool {
	_, ok := studyTypeLabels[t]
	return ok
}

// IsValid reports whether c is a member of the closed set.
func (c SponsorClass) IsValid() bool {
	_, ok := sponsorLabels[c]
	return ok
}
