// Package merge reconciles a partial, model-produced CvPatch against a full CvDocument.
//
// The merge is conservative: only fields present in a matched patch entity are
// overwritten, unmatched patch entities are discarded, and sections outside the
// requested target set are never touched. Skills are the one section that can grow.
package merge

import (
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jonathan/cv-tailor/internal/types"
)

// Engine applies patches. It holds no per-merge state and is safe for concurrent use.
type Engine struct {
	logger *zap.Logger
	newID  func() string
}

// Option configures an Engine.
type Option func(*Engine)

// WithIDGenerator overrides how ids for appended skills are minted.
func WithIDGenerator(fn func() string) Option {
	return func(e *Engine) { e.newID = fn }
}

// NewEngine creates a merge engine. A nil logger disables logging.
func NewEngine(logger *zap.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		logger: logger.Named("merge"),
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Apply returns a new document equal to doc except for the fields the patch updates
// within the target sections. doc and patch are not modified.
func (e *Engine) Apply(doc *types.CvDocument, patch *types.CvPatch, targets types.SectionSet) (*types.CvDocument, *types.MergeReport) {
	if doc == nil {
		doc = &types.CvDocument{}
	}
	out := doc.Clone()
	run := &mergeRun{engine: e, report: &types.MergeReport{
		Matched:   []types.MergeMatch{},
		Discarded: []types.MergeDiscard{},
	}}
	if patch == nil {
		return out, run.report
	}

	for _, section := range patch.Sections().Ordered() {
		if !targets.Has(section) {
			run.report.Ignored = append(run.report.Ignored, section)
		}
	}

	if targets.Has(types.SectionProfile) && patch.Profile != nil {
		run.applyProfile(&out.Profile, patch.Profile)
	}
	if targets.Has(types.SectionProfessionalSummary) && patch.ProfessionalSummary != nil {
		run.applySummary(&out.ProfessionalSummary, patch.ProfessionalSummary)
	}
	if targets.Has(types.SectionWorkExperience) {
		out.WorkExperience = mergeList(run, out.WorkExperience, patch.WorkExperience, run.workRule())
	}
	if targets.Has(types.SectionEducation) {
		out.Education = mergeList(run, out.Education, patch.Education, educationRule)
	}
	if targets.Has(types.SectionSkills) {
		out.Skills = run.mergeSkills(out.Skills, patch.Skills)
	}
	if targets.Has(types.SectionProjects) {
		out.Projects = mergeList(run, out.Projects, patch.Projects, projectRule)
	}
	if targets.Has(types.SectionCertifications) {
		out.Certifications = mergeList(run, out.Certifications, patch.Certifications, certificationRule)
	}
	if targets.Has(types.SectionMemberships) {
		out.Memberships = mergeList(run, out.Memberships, patch.Memberships, membershipRule)
	}
	if targets.Has(types.SectionInterests) {
		out.Interests = mergeList(run, out.Interests, patch.Interests, interestRule)
	}

	e.logger.Debug("merge applied",
		zap.String("document_id", doc.ID),
		zap.Int("matched", len(run.report.Matched)),
		zap.Int("discarded", len(run.report.Discarded)),
		zap.Int("ignored_sections", len(run.report.Ignored)),
	)
	return out, run.report
}

// mergeRun carries the report for a single Apply call.
type mergeRun struct {
	engine *Engine
	report *types.MergeReport
}

func (r *mergeRun) matched(section types.SectionID, entityID string, strategy types.MergeStrategy) {
	r.report.Matched = append(r.report.Matched, types.MergeMatch{
		Section:  section,
		EntityID: entityID,
		Strategy: strategy,
	})
}

func (r *mergeRun) discarded(section types.SectionID, hint string) {
	r.report.Discarded = append(r.report.Discarded, types.MergeDiscard{Section: section, Hint: hint})
	r.engine.logger.Info("discarding unmatched patch entity",
		zap.String("section", string(section)),
		zap.String("entity", hint),
	)
}

// mergeList reconciles patches into entities in place and returns the slice.
// It never appends.
func mergeList[E any, P any](r *mergeRun, entities []E, patches []P, rule listRule[E, P]) []E {
	for i := range patches {
		p := &patches[i]
		idx, strategy := findMatch(entities, p, rule)
		if idx < 0 {
			r.discarded(rule.section, rule.describe(p))
			continue
		}
		rule.apply(&entities[idx], p)
		id, _ := rule.ids(&entities[idx])
		r.matched(rule.section, id, strategy)
	}
	return entities
}

func (r *mergeRun) applyProfile(dst *types.Profile, p *types.ProfilePatch) {
	set(&dst.FirstName, p.FirstName)
	set(&dst.LastName, p.LastName)
	set(&dst.Headline, p.Headline)
	set(&dst.Email, p.Email)
	set(&dst.Phone, p.Phone)
	set(&dst.Location, p.Location)
	set(&dst.Website, p.Website)
	set(&dst.LinkedIn, p.LinkedIn)
	if *p != (types.ProfilePatch{}) {
		r.matched(types.SectionProfile, "", types.MatchSingleton)
	}
}

func (r *mergeRun) applySummary(dst *types.ProfessionalSummary, p *types.ProfessionalSummaryPatch) {
	if p.Summary != nil {
		dst.Summary = *p.Summary
		r.matched(types.SectionProfessionalSummary, "", types.MatchSingleton)
	}
	dst.Strengths = mergeList(r, dst.Strengths, p.Strengths, strengthRule)
}

// mergeSkills follows the list rules, except that an unmatched skill whose name is
// not already present is appended with a fresh id instead of being discarded.
func (r *mergeRun) mergeSkills(skills []types.Skill, patches []types.SkillPatch) []types.Skill {
	for i := range patches {
		p := &patches[i]
		idx, strategy := findMatch(skills, p, skillRule)
		if idx >= 0 {
			patch := *p
			if nameTakenByOther(skills, idx, patch.Name) {
				r.discarded(types.SectionSkills, "rename of "+skills[idx].Name+" to "+*patch.Name)
				patch.Name = nil
				if patch.Category == nil && patch.Level == nil {
					continue
				}
			}
			skillRule.apply(&skills[idx], &patch)
			r.matched(types.SectionSkills, skills[idx].EntityID, strategy)
			continue
		}

		if _, ok := keyOf(p.Name); !ok {
			r.discarded(types.SectionSkills, skillRule.describe(p))
			continue
		}

		added := types.Skill{EntityID: r.engine.newID()}
		skillRule.apply(&added, p)
		skills = append(skills, added)
		r.matched(types.SectionSkills, added.EntityID, types.MatchAppended)
	}
	return skills
}

// nameTakenByOther reports whether name already belongs to a skill other than
// skills[self].
func nameTakenByOther(skills []types.Skill, self int, name *string) bool {
	key, ok := keyOf(name)
	if !ok {
		return false
	}
	for i := range skills {
		if i != self && sameKey([]string{skills[i].Name}, key) {
			return true
		}
	}
	return false
}
