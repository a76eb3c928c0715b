package ctgov

// Study is one v2 API study restricted to its protocol section.
type Study struct {
	ProtocolSection ProtocolSection `json:"protocolSection"`
}

// ProtocolSection holds the protocol modules the indexer reads.
type ProtocolSection struct {
	Identification    IdentificationModule    `json:"identificationModule"`
	Status            StatusModule            `json:"statusModule"`
	SponsorCollabs    SponsorCollabsModule    `json:"sponsorCollaboratorsModule"`
	Description       DescriptionModule       `json:"descriptionModule"`
	Conditions        ConditionsModule        `json:"conditionsModule"`
	Design            DesignModule            `json:"designModule"`
	ArmsInterventions ArmsInterventionsModule `json:"armsInterventionsModule"`
	Eligibility       EligibilityModule       `json:"eligibilityModule"`
	ContactsLocations ContactsLocationsModule `json:"contactsLocationsModule"`
}

type IdentificationModule struct {
	NCTID         string `json:"nctId"`
	BriefTitle    string `json:"briefTitle"`
	OfficialTitle string `json:"officialTitle"`
	Acronym       string `json:"acronym"`
}

// DateStruct is a partial date, "YYYY-MM" or "YYYY-MM-DD".
type DateStruct struct {
	Date string `json:"date"`
}

type StatusModule struct {
	OverallStatus            string     `json:"overallStatus"`
	StartDateStruct          DateStruct `json:"startDateStruct"`
	CompletionDateStruct     DateStruct `json:"completionDateStruct"`
	LastUpdatePostDateStruct DateStruct `json:"lastUpdatePostDateStruct"`
}

type Sponsor struct {
	Name  string `json:"name"`
	Class string `json:"class"`
}

type SponsorCollabsModule struct {
	LeadSponsor Sponsor `json:"leadSponsor"`
}

type DescriptionModule struct {
	BriefSummary        string `json:"briefSummary"`
	DetailedDescription string `json:"detailedDescription"`
}

type ConditionsModule struct {
	Conditions []string `json:"conditions"`
}

type EnrollmentInfo struct {
	Count *int   `json:"count"`
	Type  string `json:"type"`
}

type DesignModule struct {
	StudyType      string         `json:"studyType"`
	Phases         []string       `json:"phases"`
	EnrollmentInfo EnrollmentInfo `json:"enrollmentInfo"`
}

type Intervention struct {
	Type string `json:"type"`
	Name string `json:"name"`
}

type ArmsInterventionsModule struct {
	Interventions []Intervention `json:"interventions"`
}

type EligibilityModule struct {
	EligibilityCriteria string `json:"eligibilityCriteria"`
	HealthyVolunteers   *bool  `json:"healthyVolunteers"`
	Sex                 string `json:"sex"`
	MinimumAge          string `json:"minimumAge"`
	MaximumAge          string `json:"maximumAge"`
}

type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

type Location struct {
	Facility string    `json:"facility"`
	City     string    `json:"city"`
	State    string    `json:"state"`
	Country  string    `json:"country"`
	GeoPoint *GeoPoint `json:"geoPoint"`
}

type ContactsLocationsModule struct {
	Locations []Location `json:"locations"`
}

// Page is one page of the studies feed.
type Page struct {
	Studies       []Study `json:"studies"`
	NextPageToken string  `json:"nextPageToken"`
}
