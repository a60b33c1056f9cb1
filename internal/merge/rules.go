package merge

import "github.com/jonathan/cv-tailor/internal/types"

var strengthRule = listRule[types.Strength, types.StrengthPatch]{
	section:  types.SectionProfessionalSummary,
	ids:      func(e *types.Strength) (string, string) { return e.EntityID, e.SourceEntityID },
	ref:      func(p *types.StrengthPatch) types.EntityRef { return p.EntityRef },
	key:      func(e *types.Strength) []string { return []string{e.Title} },
	patchKey: func(p *types.StrengthPatch) ([]string, bool) { return keyOf(p.Title) },
	apply: func(e *types.Strength, p *types.StrengthPatch) {
		set(&e.Title, p.Title)
		set(&e.Description, p.Description)
	},
	describe: func(p *types.StrengthPatch) string { return describeRef(p.EntityRef, p.Title) },
}

var educationRule = listRule[types.Education, types.EducationPatch]{
	section: types.SectionEducation,
	ids:     func(e *types.Education) (string, string) { return e.EntityID, e.SourceEntityID },
	ref:     func(p *types.EducationPatch) types.EntityRef { return p.EntityRef },
	key:     func(e *types.Education) []string { return []string{e.Institution, e.Degree} },
	patchKey: func(p *types.EducationPatch) ([]string, bool) {
		return keyOf(p.Institution, p.Degree)
	},
	apply: func(e *types.Education, p *types.EducationPatch) {
		set(&e.Institution, p.Institution)
		set(&e.Degree, p.Degree)
		set(&e.FieldOfStudy, p.FieldOfStudy)
		set(&e.StartDate, p.StartDate)
		set(&e.EndDate, p.EndDate)
		set(&e.Description, p.Description)
	},
	describe: func(p *types.EducationPatch) string { return describeRef(p.EntityRef, p.Institution) },
}

var skillRule = listRule[types.Skill, types.SkillPatch]{
	section:  types.SectionSkills,
	ids:      func(e *types.Skill) (string, string) { return e.EntityID, e.SourceEntityID },
	ref:      func(p *types.SkillPatch) types.EntityRef { return p.EntityRef },
	key:      func(e *types.Skill) []string { return []string{e.Name} },
	patchKey: func(p *types.SkillPatch) ([]string, bool) { return keyOf(p.Name) },
	apply: func(e *types.Skill, p *types.SkillPatch) {
		set(&e.Name, p.Name)
		set(&e.Category, p.Category)
		set(&e.Level, p.Level)
	},
	describe: func(p *types.SkillPatch) string { return describeRef(p.EntityRef, p.Name) },
}

var projectRule = listRule[types.Project, types.ProjectPatch]{
	section:  types.SectionProjects,
	ids:      func(e *types.Project) (string, string) { return e.EntityID, e.SourceEntityID },
	ref:      func(p *types.ProjectPatch) types.EntityRef { return p.EntityRef },
	key:      func(e *types.Project) []string { return []string{e.Title} },
	patchKey: func(p *types.ProjectPatch) ([]string, bool) { return keyOf(p.Title) },
	apply: func(e *types.Project, p *types.ProjectPatch) {
		set(&e.Title, p.Title)
		set(&e.Role, p.Role)
		set(&e.URL, p.URL)
		set(&e.StartDate, p.StartDate)
		set(&e.EndDate, p.EndDate)
		set(&e.Description, p.Description)
	},
	describe: func(p *types.ProjectPatch) string { return describeRef(p.EntityRef, p.Title) },
}

var certificationRule = listRule[types.Certification, types.CertificationPatch]{
	section:  types.SectionCertifications,
	ids:      func(e *types.Certification) (string, string) { return e.EntityID, e.SourceEntityID },
	ref:      func(p *types.CertificationPatch) types.EntityRef { return p.EntityRef },
	key:      func(e *types.Certification) []string { return []string{e.Name} },
	patchKey: func(p *types.CertificationPatch) ([]string, bool) { return keyOf(p.Name) },
	apply: func(e *types.Certification, p *types.CertificationPatch) {
		set(&e.Name, p.Name)
		set(&e.Issuer, p.Issuer)
		set(&e.IssueDate, p.IssueDate)
		set(&e.Description, p.Description)
	},
	describe: func(p *types.CertificationPatch) string { return describeRef(p.EntityRef, p.Name) },
}

var membershipRule = listRule[types.Membership, types.MembershipPatch]{
	section:  types.SectionMemberships,
	ids:      func(e *types.Membership) (string, string) { return e.EntityID, e.SourceEntityID },
	ref:      func(p *types.MembershipPatch) types.EntityRef { return p.EntityRef },
	key:      func(e *types.Membership) []string { return []string{e.Organization} },
	patchKey: func(p *types.MembershipPatch) ([]string, bool) { return keyOf(p.Organization) },
	apply: func(e *types.Membership, p *types.MembershipPatch) {
		set(&e.Organization, p.Organization)
		set(&e.Role, p.Role)
		set(&e.Description, p.Description)
	},
	describe: func(p *types.MembershipPatch) string { return describeRef(p.EntityRef, p.Organization) },
}

var interestRule = listRule[types.Interest, types.InterestPatch]{
	section:  types.SectionInterests,
	ids:      func(e *types.Interest) (string, string) { return e.EntityID, e.SourceEntityID },
	ref:      func(p *types.InterestPatch) types.EntityRef { return p.EntityRef },
	key:      func(e *types.Interest) []string { return []string{e.Name} },
	patchKey: func(p *types.InterestPatch) ([]string, bool) { return keyOf(p.Name) },
	apply: func(e *types.Interest, p *types.InterestPatch) {
		set(&e.Name, p.Name)
		set(&e.Description, p.Description)
	},
	describe: func(p *types.InterestPatch) string { return describeRef(p.EntityRef, p.Name) },
}

var itemRule = listRule[types.ResponsibilityItem, types.ResponsibilityItemPatch]{
	section:  types.SectionWorkExperience,
	ids:      func(e *types.ResponsibilityItem) (string, string) { return e.EntityID, e.SourceEntityID },
	ref:      func(p *types.ResponsibilityItemPatch) types.EntityRef { return p.EntityRef },
	key:      func(e *types.ResponsibilityItem) []string { return []string{e.Content} },
	patchKey: func(p *types.ResponsibilityItemPatch) ([]string, bool) { return keyOf(p.Content) },
	apply: func(e *types.ResponsibilityItem, p *types.ResponsibilityItemPatch) {
		set(&e.Content, p.Content)
	},
	describe: func(p *types.ResponsibilityItemPatch) string { return "item " + describeRef(p.EntityRef, p.Content) },
}

// workRule binds nested category and item reconciliation to the run so nested
// discards reach the report.
func (r *mergeRun) workRule() listRule[types.WorkExperience, types.WorkExperiencePatch] {
	categories := listRule[types.ResponsibilityCategory, types.ResponsibilityCategoryPatch]{
		section:  types.SectionWorkExperience,
		ids:      func(e *types.ResponsibilityCategory) (string, string) { return e.EntityID, e.SourceEntityID },
		ref:      func(p *types.ResponsibilityCategoryPatch) types.EntityRef { return p.EntityRef },
		key:      func(e *types.ResponsibilityCategory) []string { return []string{e.Name} },
		patchKey: func(p *types.ResponsibilityCategoryPatch) ([]string, bool) { return keyOf(p.Name) },
		apply: func(e *types.ResponsibilityCategory, p *types.ResponsibilityCategoryPatch) {
			set(&e.Name, p.Name)
			e.Items = mergeList(r, e.Items, p.Items, itemRule)
		},
		describe: func(p *types.ResponsibilityCategoryPatch) string {
			return "category " + describeRef(p.EntityRef, p.Name)
		},
	}

	return listRule[types.WorkExperience, types.WorkExperiencePatch]{
		section: types.SectionWorkExperience,
		ids:     func(e *types.WorkExperience) (string, string) { return e.EntityID, e.SourceEntityID },
		ref:     func(p *types.WorkExperiencePatch) types.EntityRef { return p.EntityRef },
		key:     func(e *types.WorkExperience) []string { return []string{e.Position, e.CompanyName} },
		patchKey: func(p *types.WorkExperiencePatch) ([]string, bool) {
			return keyOf(p.Position, p.CompanyName)
		},
		apply: func(e *types.WorkExperience, p *types.WorkExperiencePatch) {
			set(&e.Position, p.Position)
			set(&e.CompanyName, p.CompanyName)
			set(&e.Location, p.Location)
			set(&e.StartDate, p.StartDate)
			set(&e.EndDate, p.EndDate)
			set(&e.Description, p.Description)
			e.ResponsibilityCategories = mergeList(r, e.ResponsibilityCategories, p.ResponsibilityCategories, categories)
		},
		describe: func(p *types.WorkExperiencePatch) string {
			return describeRef(p.EntityRef, p.Position)
		},
	}
}
