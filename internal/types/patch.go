package types

// CvPatch is the partial document returned by a model. Only the sections the model was
// asked to touch are expected, and within an entity only the fields it chose to return.
// Pointer fields distinguish "absent" (nil) from "set to empty".
type CvPatch struct {
	Profile             *ProfilePatch             `json:"profile,omitempty"`
	ProfessionalSummary *ProfessionalSummaryPatch `json:"professionalSummary,omitempty"`
	WorkExperience      []WorkExperiencePatch     `json:"workExperience,omitempty"`
	Education           []EducationPatch          `json:"education,omitempty"`
	Skills              []SkillPatch              `json:"skills,omitempty"`
	Projects            []ProjectPatch            `json:"projects,omitempty"`
	Certifications      []CertificationPatch      `json:"certifications,omitempty"`
	Memberships         []MembershipPatch         `json:"memberships,omitempty"`
	Interests           []InterestPatch           `json:"interests,omitempty"`
}

// Sections returns the sections the patch carries data for.
func (p *CvPatch) Sections() SectionSet {
	set := SectionSet{}
	if p == nil {
		return set
	}
	if p.Profile != nil {
		set[SectionProfile] = struct{}{}
	}
	if p.ProfessionalSummary != nil {
		set[SectionProfessionalSummary] = struct{}{}
	}
	if p.WorkExperience != nil {
		set[SectionWorkExperience] = struct{}{}
	}
	if p.Education != nil {
		set[SectionEducation] = struct{}{}
	}
	if p.Skills != nil {
		set[SectionSkills] = struct{}{}
	}
	if p.Projects != nil {
		set[SectionProjects] = struct{}{}
	}
	if p.Certifications != nil {
		set[SectionCertifications] = struct{}{}
	}
	if p.Memberships != nil {
		set[SectionMemberships] = struct{}{}
	}
	if p.Interests != nil {
		set[SectionInterests] = struct{}{}
	}
	return set
}

// EntityRef carries the identity fields every list patch may include.
type EntityRef struct {
	EntityID       string `json:"entityId,omitempty"`
	SourceEntityID string `json:"sourceEntityId,omitempty"`
}

// ProfilePatch overwrites present profile fields.
type ProfilePatch struct {
	FirstName *string `json:"firstName,omitempty"`
	LastName  *string `json:"lastName,omitempty"`
	Headline  *string `json:"headline,omitempty"`
	Email     *string `json:"email,omitempty"`
	Phone     *string `json:"phone,omitempty"`
	Location  *string `json:"location,omitempty"`
	Website   *string `json:"website,omitempty"`
	LinkedIn  *string `json:"linkedIn,omitempty"`
}

// ProfessionalSummaryPatch overwrites the summary and reconciles strengths.
type ProfessionalSummaryPatch struct {
	Summary   *string         `json:"summary,omitempty"`
	Strengths []StrengthPatch `json:"strengths,omitempty"`
}

// StrengthPatch updates one strength.
type StrengthPatch struct {
	EntityRef
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
}

// WorkExperiencePatch updates one work entry.
type WorkExperiencePatch struct {
	EntityRef
	Position                 *string                       `json:"position,omitempty"`
	CompanyName              *string                       `json:"companyName,omitempty"`
	Location                 *string                       `json:"location,omitempty"`
	StartDate                *string                       `json:"startDate,omitempty"`
	EndDate                  *string                       `json:"endDate,omitempty"`
	Description              *string                       `json:"description,omitempty"`
	ResponsibilityCategories []ResponsibilityCategoryPatch `json:"responsibilityCategories,omitempty"`
}

// ResponsibilityCategoryPatch updates one responsibility category.
type ResponsibilityCategoryPatch struct {
	EntityRef
	Name  *string                   `json:"name,omitempty"`
	Items []ResponsibilityItemPatch `json:"items,omitempty"`
}

// ResponsibilityItemPatch updates one responsibility item.
type ResponsibilityItemPatch struct {
	EntityRef
	Content *string `json:"content,omitempty"`
}

// EducationPatch updates one education entry.
type EducationPatch struct {
	EntityRef
	Institution  *string `json:"institution,omitempty"`
	Degree       *string `json:"degree,omitempty"`
	FieldOfStudy *string `json:"fieldOfStudy,omitempty"`
	StartDate    *string `json:"startDate,omitempty"`
	EndDate      *string `json:"endDate,omitempty"`
	Description  *string `json:"description,omitempty"`
}

// SkillPatch updates or adds one skill.
type SkillPatch struct {
	EntityRef
	Name     *string `json:"name,omitempty"`
	Category *string `json:"category,omitempty"`
	Level    *string `json:"level,omitempty"`
}

// ProjectPatch updates one project.
type ProjectPatch struct {
	EntityRef
	Title       *string `json:"title,omitempty"`
	Role        *string `json:"role,omitempty"`
	URL         *string `json:"url,omitempty"`
	StartDate   *string `json:"startDate,omitempty"`
	EndDate     *string `json:"endDate,omitempty"`
	Description *string `json:"description,omitempty"`
}

// CertificationPatch updates one certification.
type CertificationPatch struct {
	EntityRef
	Name        *string `json:"name,omitempty"`
	Issuer      *string `json:"issuer,omitempty"`
	IssueDate   *string `json:"issueDate,omitempty"`
	Description *string `json:"description,omitempty"`
}

// MembershipPatch updates one membership.
type MembershipPatch struct {
	EntityRef
	Organization *string `json:"organization,omitempty"`
	Role         *string `json:"role,omitempty"`
	Description  *string `json:"description,omitempty"`
}

// InterestPatch updates one interest.
type InterestPatch struct {
	EntityRef
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}
