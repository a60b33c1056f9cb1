package types

import (
	"fmt"
	"strings"
)

// SectionID names a top-level section of a CvDocument.
type SectionID string

// Section identifiers, matching the JSON field names of CvDocument.
const (
	SectionProfile             SectionID = "profile"
	SectionProfessionalSummary SectionID = "professionalSummary"
	SectionWorkExperience      SectionID = "workExperience"
	SectionEducation           SectionID = "education"
	SectionSkills              SectionID = "skills"
	SectionProjects            SectionID = "projects"
	SectionCertifications      SectionID = "certifications"
	SectionMemberships         SectionID = "memberships"
	SectionInterests           SectionID = "interests"
)

// AllSections lists every section in document order.
var AllSections = []SectionID{
	SectionProfile,
	SectionProfessionalSummary,
	SectionWorkExperience,
	SectionEducation,
	SectionSkills,
	SectionProjects,
	SectionCertifications,
	SectionMemberships,
	SectionInterests,
}

// Valid reports whether s is a known section.
func (s SectionID) Valid() bool {
	for _, known := range AllSections {
		if s == known {
			return true
		}
	}
	return false
}

// ParseSection parses a section id case-insensitively.
func ParseSection(raw string) (SectionID, error) {
	trimmed := strings.TrimSpace(raw)
	for _, known := range AllSections {
		if strings.EqualFold(trimmed, string(known)) {
			return known, nil
		}
	}
	return "", fmt.Errorf("unknown section %q", raw)
}

// SectionSet is an unordered set of sections.
type SectionSet map[SectionID]struct{}

// NewSectionSet builds a set from a list, ignoring duplicates.
func NewSectionSet(sections ...SectionID) SectionSet {
	set := make(SectionSet, len(sections))
	for _, s := range sections {
		set[s] = struct{}{}
	}
	return set
}

// Has reports whether the set contains s.
func (s SectionSet) Has(section SectionID) bool {
	_, ok := s[section]
	return ok
}

// Ordered returns the members of the set in document order.
func (s SectionSet) Ordered() []SectionID {
	out := make([]SectionID, 0, len(s))
	for _, known := range AllSections {
		if s.Has(known) {
			out = append(out, known)
		}
	}
	return out
}
