package merge

import (
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/jonathan/cv-tailor/internal/types"
)

func ptr(s string) *string { return &s }

func sampleDocument() *types.CvDocument {
	return &types.CvDocument{
		ID:    "doc-1",
		Title: "Master CV",
		Profile: types.Profile{
			FirstName: "Ada",
			LastName:  "Lovelace",
			Headline:  "Engineer",
		},
		ProfessionalSummary: types.ProfessionalSummary{
			Summary: "Builds systems.",
			Strengths: []types.Strength{
				{EntityID: "s1", Title: "Leadership", Description: "Leads teams"},
			},
		},
		WorkExperience: []types.WorkExperience{
			{
				EntityID:    "w1",
				Position:    "Staff Engineer",
				CompanyName: "Analytical Engines",
				StartDate:   "2020-01",
				Description: "Platform work",
				ResponsibilityCategories: []types.ResponsibilityCategory{
					{
						EntityID: "c1",
						Name:     "Delivery",
						Items: []types.ResponsibilityItem{
							{EntityID: "i1", Content: "Shipped the compiler"},
							{EntityID: "i2", Content: "Ran the roadmap"},
						},
					},
				},
			},
			{
				EntityID:    "w2",
				Position:    "Engineer",
				CompanyName: "Difference Ltd",
				StartDate:   "2016-03",
				EndDate:     "2019-12",
				Description: "Product work",
			},
		},
		Education: []types.Education{
			{EntityID: "e1", Institution: "University of London", Degree: "BSc", FieldOfStudy: "Mathematics"},
		},
		Skills: []types.Skill{
			{EntityID: "k1", Name: "Go", Category: "Languages"},
			{EntityID: "k2", Name: "SQL", Category: "Languages"},
		},
		Projects: []types.Project{
			{EntityID: "p1", Title: "Engine", Description: "A machine"},
		},
		Certifications: []types.Certification{
			{EntityID: "x1", Name: "CKA", Issuer: "CNCF"},
		},
		Memberships: []types.Membership{
			{EntityID: "m1", Organization: "ACM", Role: "Member"},
		},
		Interests: []types.Interest{
			{EntityID: "n1", Name: "Chess"},
		},
	}
}

func newTestEngine() *Engine {
	n := 0
	return NewEngine(nil, WithIDGenerator(func() string {
		n++
		return fmt.Sprintf("new-%d", n)
	}))
}

func TestApply_SingleFieldChange(t *testing.T) {
	doc := sampleDocument()
	patch := &types.CvPatch{
		WorkExperience: []types.WorkExperiencePatch{
			{EntityRef: types.EntityRef{EntityID: "w1"}, Description: ptr("Led platform migration")},
		},
	}

	out, report := newTestEngine().Apply(doc, patch, types.NewSectionSet(types.SectionWorkExperience))

	want := sampleDocument()
	want.WorkExperience[0].Description = "Led platform migration"
	if diff := cmp.Diff(want, out); diff != "" {
		t.Errorf("Apply() mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, []types.MergeMatch{
		{Section: types.SectionWorkExperience, EntityID: "w1", Strategy: types.MatchEntityID},
	}, report.Matched)
	assert.Empty(t, report.Discarded)
	assert.False(t, report.NoOp())
}

func TestApply_DoesNotMutateInputs(t *testing.T) {
	doc := sampleDocument()
	patch := &types.CvPatch{
		WorkExperience: []types.WorkExperiencePatch{
			{
				EntityRef: types.EntityRef{EntityID: "w1"},
				ResponsibilityCategories: []types.ResponsibilityCategoryPatch{
					{
						EntityRef: types.EntityRef{EntityID: "c1"},
						Items: []types.ResponsibilityItemPatch{
							{EntityRef: types.EntityRef{EntityID: "i1"}, Content: ptr("Shipped two compilers")},
						},
					},
				},
			},
		},
		Skills: []types.SkillPatch{{Name: ptr("Rust")}},
	}

	_, _ = newTestEngine().Apply(doc, patch, types.NewSectionSet(types.SectionWorkExperience, types.SectionSkills))

	if diff := cmp.Diff(sampleDocument(), doc); diff != "" {
		t.Errorf("input document was mutated (-want +got):\n%s", diff)
	}
}

func TestApply_MatchPriority(t *testing.T) {
	doc := sampleDocument()
	// The entity id points at w2 while the natural key names w1; the id wins.
	patch := &types.CvPatch{
		WorkExperience: []types.WorkExperiencePatch{
			{
				EntityRef:   types.EntityRef{EntityID: "w2"},
				Position:    ptr("Staff Engineer"),
				CompanyName: ptr("Analytical Engines"),
				Description: ptr("updated"),
			},
		},
	}

	out, report := newTestEngine().Apply(doc, patch, types.NewSectionSet(types.SectionWorkExperience))

	require.Len(t, report.Matched, 1)
	assert.Equal(t, "w2", report.Matched[0].EntityID)
	assert.Equal(t, types.MatchEntityID, report.Matched[0].Strategy)
	assert.Equal(t, "updated", out.WorkExperience[1].Description)
	assert.Equal(t, "Platform work", out.WorkExperience[0].Description)
}

func TestApply_NaturalKeyIsCaseInsensitive(t *testing.T) {
	doc := sampleDocument()
	patch := &types.CvPatch{
		Education: []types.EducationPatch{
			{Institution: ptr("  university of LONDON "), Degree: ptr("bsc"), FieldOfStudy: ptr("Computing")},
		},
	}

	out, report := newTestEngine().Apply(doc, patch, types.NewSectionSet(types.SectionEducation))

	require.Len(t, report.Matched, 1)
	assert.Equal(t, types.MatchNaturalKey, report.Matched[0].Strategy)
	assert.Equal(t, "Computing", out.Education[0].FieldOfStudy)
	// Present key fields are written back as returned.
	assert.Equal(t, "bsc", out.Education[0].Degree)
}

func TestApply_PartialNaturalKeyDoesNotMatch(t *testing.T) {
	doc := sampleDocument()
	patch := &types.CvPatch{
		WorkExperience: []types.WorkExperiencePatch{
			{Position: ptr("Staff Engineer"), Description: ptr("no company given")},
		},
	}

	out, report := newTestEngine().Apply(doc, patch, types.NewSectionSet(types.SectionWorkExperience))

	assert.Empty(t, report.Matched)
	require.Len(t, report.Discarded, 1)
	assert.Equal(t, "Staff Engineer", report.Discarded[0].Hint)
	assert.Equal(t, "Platform work", out.WorkExperience[0].Description)
	assert.True(t, report.NoOp())
}

func TestApply_UnmatchedEntitiesDoNotGrowLists(t *testing.T) {
	doc := sampleDocument()
	patch := &types.CvPatch{
		WorkExperience: []types.WorkExperiencePatch{
			{EntityRef: types.EntityRef{EntityID: "missing"}, Description: ptr("x")},
			{Position: ptr("Invented"), CompanyName: ptr("Nowhere"), Description: ptr("x")},
		},
		Projects:       []types.ProjectPatch{{Title: ptr("New Project")}},
		Certifications: []types.CertificationPatch{{Name: ptr("New Cert")}},
		Memberships:    []types.MembershipPatch{{Organization: ptr("IEEE")}},
		Interests:      []types.InterestPatch{{Name: ptr("Sailing")}},
		Education:      []types.EducationPatch{{Institution: ptr("MIT"), Degree: ptr("PhD")}},
	}
	targets := types.NewSectionSet(types.AllSections...)

	out, report := newTestEngine().Apply(doc, patch, targets)

	for _, section := range types.AllSections {
		if section == types.SectionSkills {
			continue
		}
		assert.Equal(t, doc.EntityCount(section), out.EntityCount(section), section)
	}
	assert.Len(t, report.Discarded, 7)
	assert.Empty(t, report.Matched)
}

func TestApply_SkillsAppend(t *testing.T) {
	doc := sampleDocument()
	patch := &types.CvPatch{
		Skills: []types.SkillPatch{
			{Name: ptr("go"), Level: ptr("Expert")},
			{Name: ptr("Kubernetes"), Category: ptr("Platforms")},
			{Name: ptr("kubernetes"), Level: ptr("Advanced")},
			{Category: ptr("nameless")},
		},
	}

	out, report := newTestEngine().Apply(doc, patch, types.NewSectionSet(types.SectionSkills))

	want := []types.Skill{
		{EntityID: "k1", Name: "go", Category: "Languages", Level: "Expert"},
		{EntityID: "k2", Name: "SQL", Category: "Languages"},
		{EntityID: "new-1", Name: "kubernetes", Category: "Platforms", Level: "Advanced"},
	}
	if diff := cmp.Diff(want, out.Skills); diff != "" {
		t.Errorf("skills mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, []types.MergeMatch{
		{Section: types.SectionSkills, EntityID: "k1", Strategy: types.MatchNaturalKey},
		{Section: types.SectionSkills, EntityID: "new-1", Strategy: types.MatchAppended},
		{Section: types.SectionSkills, EntityID: "new-1", Strategy: types.MatchNaturalKey},
	}, report.Matched)
	require.Len(t, report.Discarded, 1)
	assert.Equal(t, "(unidentified)", report.Discarded[0].Hint)
}

func TestApply_SkillRenameNeverDuplicatesAName(t *testing.T) {
	tests := []struct {
		name        string
		patch       types.SkillPatch
		want        types.Skill
		wantMatched int
	}{
		{
			name:  "rename only is dropped",
			patch: types.SkillPatch{EntityRef: types.EntityRef{EntityID: "k2"}, Name: ptr(" go ")},
			want:  types.Skill{EntityID: "k2", Name: "SQL", Category: "Languages"},
		},
		{
			name:        "other fields still apply",
			patch:       types.SkillPatch{EntityRef: types.EntityRef{EntityID: "k2"}, Name: ptr("GO"), Level: ptr("Expert")},
			want:        types.Skill{EntityID: "k2", Name: "SQL", Category: "Languages", Level: "Expert"},
			wantMatched: 1,
		},
		{
			name:        "rename to a free name",
			patch:       types.SkillPatch{EntityRef: types.EntityRef{EntityID: "k2"}, Name: ptr("PostgreSQL")},
			want:        types.Skill{EntityID: "k2", Name: "PostgreSQL", Category: "Languages"},
			wantMatched: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			patch := &types.CvPatch{Skills: []types.SkillPatch{tt.patch}}
			out, report := newTestEngine().Apply(sampleDocument(), patch, types.NewSectionSet(types.SectionSkills))

			require.Len(t, out.Skills, 2)
			assert.Equal(t, "Go", out.Skills[0].Name)
			if diff := cmp.Diff(tt.want, out.Skills[1]); diff != "" {
				t.Errorf("skill mismatch (-want +got):\n%s", diff)
			}
			assert.Len(t, report.Matched, tt.wantMatched)
			assert.Equal(t, tt.wantMatched == 0, report.NoOp())
			if tt.want.Name == "SQL" {
				require.Len(t, report.Discarded, 1)
				assert.Contains(t, report.Discarded[0].Hint, "rename of SQL")
			}
		})
	}
}

func TestApply_UntargetedSectionsIgnored(t *testing.T) {
	doc := sampleDocument()
	patch := &types.CvPatch{
		Profile: &types.ProfilePatch{Headline: ptr("Principal Engineer")},
		Skills:  []types.SkillPatch{{EntityRef: types.EntityRef{EntityID: "k1"}, Level: ptr("Expert")}},
		Projects: []types.ProjectPatch{
			{EntityRef: types.EntityRef{EntityID: "p1"}, Description: ptr("A better machine")},
		},
	}

	out, report := newTestEngine().Apply(doc, patch, types.NewSectionSet(types.SectionProjects))

	assert.Equal(t, "Engineer", out.Profile.Headline)
	assert.Empty(t, out.Skills[0].Level)
	assert.Equal(t, "A better machine", out.Projects[0].Description)
	assert.Equal(t, []types.SectionID{types.SectionProfile, types.SectionSkills}, report.Ignored)
}

func TestApply_VariantMatchesBySourceEntityID(t *testing.T) {
	variant := sampleDocument()
	variant.ID = "variant-1"
	variant.SourceDocumentID = "doc-1"
	variant.Projects[0].EntityID = "vp1"
	variant.Projects[0].SourceEntityID = "p1"

	tests := []struct {
		name string
		ref  types.EntityRef
	}{
		{name: "model echoes master id as entityId", ref: types.EntityRef{EntityID: "p1"}},
		{name: "model returns sourceEntityId", ref: types.EntityRef{SourceEntityID: "p1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			patch := &types.CvPatch{
				Projects: []types.ProjectPatch{{EntityRef: tt.ref, Role: ptr("Lead")}},
			}
			out, report := newTestEngine().Apply(variant, patch, types.NewSectionSet(types.SectionProjects))

			require.Len(t, report.Matched, 1)
			assert.Equal(t, "vp1", report.Matched[0].EntityID)
			assert.Equal(t, types.MatchSourceEntityID, report.Matched[0].Strategy)
			assert.Equal(t, "Lead", out.Projects[0].Role)
		})
	}
}

func TestApply_NestedResponsibilities(t *testing.T) {
	doc := sampleDocument()
	patch := &types.CvPatch{
		WorkExperience: []types.WorkExperiencePatch{
			{
				Position:    ptr("staff engineer"),
				CompanyName: ptr("analytical engines"),
				ResponsibilityCategories: []types.ResponsibilityCategoryPatch{
					{
						Name: ptr("delivery"),
						Items: []types.ResponsibilityItemPatch{
							{EntityRef: types.EntityRef{EntityID: "i2"}, Content: ptr("Owned the roadmap")},
							{Content: ptr("Brand new bullet")},
						},
					},
					{Name: ptr("Hiring")},
				},
			},
		},
	}

	out, report := newTestEngine().Apply(doc, patch, types.NewSectionSet(types.SectionWorkExperience))

	cat := out.WorkExperience[0].ResponsibilityCategories
	require.Len(t, cat, 1)
	require.Len(t, cat[0].Items, 2)
	assert.Equal(t, "Shipped the compiler", cat[0].Items[0].Content)
	assert.Equal(t, "Owned the roadmap", cat[0].Items[1].Content)

	hints := make([]string, 0, len(report.Discarded))
	for _, d := range report.Discarded {
		hints = append(hints, d.Hint)
	}
	assert.ElementsMatch(t, []string{"item Brand new bullet", "category Hiring"}, hints)
}

func TestApply_SingletonSections(t *testing.T) {
	doc := sampleDocument()
	patch := &types.CvPatch{
		Profile: &types.ProfilePatch{Headline: ptr("Principal Engineer")},
		ProfessionalSummary: &types.ProfessionalSummaryPatch{
			Summary: ptr("Builds reliable systems."),
			Strengths: []types.StrengthPatch{
				{Title: ptr("leadership"), Description: ptr("Grows teams")},
			},
		},
	}
	targets := types.NewSectionSet(types.SectionProfile, types.SectionProfessionalSummary)

	out, report := newTestEngine().Apply(doc, patch, targets)

	assert.Equal(t, "Principal Engineer", out.Profile.Headline)
	assert.Equal(t, "Ada", out.Profile.FirstName)
	assert.Equal(t, "Builds reliable systems.", out.ProfessionalSummary.Summary)
	assert.Equal(t, "Grows teams", out.ProfessionalSummary.Strengths[0].Description)
	assert.Len(t, report.Matched, 3)
}

func TestApply_EmptyProfilePatchIsNoOp(t *testing.T) {
	doc := sampleDocument()
	out, report := newTestEngine().Apply(doc, &types.CvPatch{Profile: &types.ProfilePatch{}},
		types.NewSectionSet(types.SectionProfile))

	assert.True(t, report.NoOp())
	if diff := cmp.Diff(doc, out); diff != "" {
		t.Errorf("unexpected change (-want +got):\n%s", diff)
	}
}

func TestApply_LogsDiscards(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	engine := NewEngine(zap.New(core))

	patch := &types.CvPatch{Interests: []types.InterestPatch{{Name: ptr("Sailing")}}}
	_, _ = engine.Apply(sampleDocument(), patch, types.NewSectionSet(types.SectionInterests))

	entries := logs.FilterMessage("discarding unmatched patch entity").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "interests", fields["section"])
	assert.Equal(t, "Sailing", fields["entity"])
}

func TestApply_NilPatch(t *testing.T) {
	doc := sampleDocument()
	out, report := newTestEngine().Apply(doc, nil, types.NewSectionSet(types.SectionSkills))
	assert.True(t, report.NoOp())
	assert.NotSame(t, doc, out)
	if diff := cmp.Diff(doc, out); diff != "" {
		t.Errorf("unexpected change (-want +got):\n%s", diff)
	}
}
