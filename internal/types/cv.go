// Package types provides type definitions for the CV documents, model patches and
// generation requests shared across the pipeline.
//
//nolint:revive // types is a standard Go package name pattern
package types

import "slices"

// CvDocument is the canonical structured CV record.
// A document with a non-empty SourceDocumentID is a variant derived from that document.
type CvDocument struct {
	ID                  string              `json:"id"`
	SourceDocumentID    string              `json:"sourceDocumentId,omitempty"`
	Title               string              `json:"title,omitempty"`
	Profile             Profile             `json:"profile"`
	ProfessionalSummary ProfessionalSummary `json:"professionalSummary"`
	WorkExperience      []WorkExperience    `json:"workExperience"`
	Education           []Education         `json:"education"`
	Skills              []Skill             `json:"skills"`
	Projects            []Project           `json:"projects"`
	Certifications      []Certification     `json:"certifications"`
	Memberships         []Membership        `json:"memberships"`
	Interests           []Interest          `json:"interests"`
}

// Profile holds the personal details of the CV owner.
type Profile struct {
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	Headline  string `json:"headline,omitempty"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
	Location  string `json:"location,omitempty"`
	Website   string `json:"website,omitempty"`
	LinkedIn  string `json:"linkedIn,omitempty"`
}

// ProfessionalSummary is the free-text summary plus an ordered list of strengths.
type ProfessionalSummary struct {
	Summary   string     `json:"summary,omitempty"`
	Strengths []Strength `json:"strengths"`
}

// Strength is one highlighted strength in the professional summary.
type Strength struct {
	EntityID       string `json:"entityId"`
	SourceEntityID string `json:"sourceEntityId,omitempty"`
	Title          string `json:"title"`
	Description    string `json:"description,omitempty"`
}

// WorkExperience is one employment entry. Position and CompanyName form its natural key.
type WorkExperience struct {
	EntityID                 string                   `json:"entityId"`
	SourceEntityID           string                   `json:"sourceEntityId,omitempty"`
	Position                 string                   `json:"position"`
	CompanyName              string                   `json:"companyName"`
	Location                 string                   `json:"location,omitempty"`
	StartDate                string                   `json:"startDate,omitempty"` // YYYY-MM
	EndDate                  string                   `json:"endDate,omitempty"`   // YYYY-MM, empty when current
	Description              string                   `json:"description,omitempty"`
	ResponsibilityCategories []ResponsibilityCategory `json:"responsibilityCategories"`
}

// ResponsibilityCategory groups responsibility items under a heading.
type ResponsibilityCategory struct {
	EntityID       string               `json:"entityId"`
	SourceEntityID string               `json:"sourceEntityId,omitempty"`
	Name           string               `json:"name"`
	Items          []ResponsibilityItem `json:"items"`
}

// ResponsibilityItem is a single responsibility bullet.
type ResponsibilityItem struct {
	EntityID       string `json:"entityId"`
	SourceEntityID string `json:"sourceEntityId,omitempty"`
	Content        string `json:"content"`
}

// Education is one education entry. Institution and Degree form its natural key.
type Education struct {
	EntityID       string `json:"entityId"`
	SourceEntityID string `json:"sourceEntityId,omitempty"`
	Institution    string `json:"institution"`
	Degree         string `json:"degree"`
	FieldOfStudy   string `json:"fieldOfStudy,omitempty"`
	StartDate      string `json:"startDate,omitempty"`
	EndDate        string `json:"endDate,omitempty"`
	Description    string `json:"description,omitempty"`
}

// Skill is one skill. Name is its natural key.
type Skill struct {
	EntityID       string `json:"entityId"`
	SourceEntityID string `json:"sourceEntityId,omitempty"`
	Name           string `json:"name"`
	Category       string `json:"category,omitempty"`
	Level          string `json:"level,omitempty"`
}

// Project is one project entry. Title is its natural key.
type Project struct {
	EntityID       string `json:"entityId"`
	SourceEntityID string `json:"sourceEntityId,omitempty"`
	Title          string `json:"title"`
	Role           string `json:"role,omitempty"`
	URL            string `json:"url,omitempty"`
	StartDate      string `json:"startDate,omitempty"`
	EndDate        string `json:"endDate,omitempty"`
	Description    string `json:"description,omitempty"`
}

// Certification is one certification. Name is its natural key.
type Certification struct {
	EntityID       string `json:"entityId"`
	SourceEntityID string `json:"sourceEntityId,omitempty"`
	Name           string `json:"name"`
	Issuer         string `json:"issuer,omitempty"`
	IssueDate      string `json:"issueDate,omitempty"`
	Description    string `json:"description,omitempty"`
}

// Membership is one professional membership. Organization is its natural key.
type Membership struct {
	EntityID       string `json:"entityId"`
	SourceEntityID string `json:"sourceEntityId,omitempty"`
	Organization   string `json:"organization"`
	Role           string `json:"role,omitempty"`
	Description    string `json:"description,omitempty"`
}

// Interest is one personal interest. Name is its natural key.
type Interest struct {
	EntityID       string `json:"entityId"`
	SourceEntityID string `json:"sourceEntityId,omitempty"`
	Name           string `json:"name"`
	Description    string `json:"description,omitempty"`
}

// Clone returns a deep copy of the document. Nil slices stay nil.
func (d *CvDocument) Clone() *CvDocument {
	if d == nil {
		return nil
	}
	out := *d
	out.ProfessionalSummary.Strengths = slices.Clone(d.ProfessionalSummary.Strengths)
	out.WorkExperience = cloneWork(d.WorkExperience)
	out.Education = slices.Clone(d.Education)
	out.Skills = slices.Clone(d.Skills)
	out.Projects = slices.Clone(d.Projects)
	out.Certifications = slices.Clone(d.Certifications)
	out.Memberships = slices.Clone(d.Memberships)
	out.Interests = slices.Clone(d.Interests)
	return &out
}

func cloneWork(in []WorkExperience) []WorkExperience {
	if in == nil {
		return nil
	}
	out := make([]WorkExperience, len(in))
	for i, w := range in {
		out[i] = w
		if w.ResponsibilityCategories == nil {
			continue
		}
		cats := make([]ResponsibilityCategory, len(w.ResponsibilityCategories))
		for j, c := range w.ResponsibilityCategories {
			cats[j] = c
			cats[j].Items = slices.Clone(c.Items)
		}
		out[i].ResponsibilityCategories = cats
	}
	return out
}

// EntityCount returns the number of list entities in a section.
// Singleton sections report 1.
func (d *CvDocument) EntityCount(section SectionID) int {
	switch section {
	case SectionProfile:
		return 1
	case SectionProfessionalSummary:
		return len(d.ProfessionalSummary.Strengths)
	case SectionWorkExperience:
		return len(d.WorkExperience)
	case SectionEducation:
		return len(d.Education)
	case SectionSkills:
		return len(d.Skills)
	case SectionProjects:
		return len(d.Projects)
	case SectionCertifications:
		return len(d.Certifications)
	case SectionMemberships:
		return len(d.Memberships)
	case SectionInterests:
		return len(d.Interests)
	default:
		return 0
	}
}
