package generation

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/jonathan/cv-tailor/internal/prompts"
	"github.com/jonathan/cv-tailor/internal/types"
)

const promptFile = "generation.json"

// ContextTruncatedMarker is appended to context text cut to the prompt limit.
const ContextTruncatedMarker = "\n[context truncated]"

// Limits caps the size of a prompt. Zero list caps mean unlimited.
type Limits struct {
	Context          int
	Field            int
	Instructions     int
	WorkEntries      int
	ItemsPerCategory int
	Skills           int
}

// FullLimits suits models with a large context window.
var FullLimits = Limits{
	Context:      20000,
	Field:        4000,
	Instructions: 4000,
}

// ConstrainedLimits bound the prompt for small and on-device models, whatever the
// size of the source document.
var ConstrainedLimits = Limits{
	Context:          2000,
	Field:            500,
	Instructions:     500,
	WorkEntries:      3,
	ItemsPerCategory: 3,
	Skills:           20,
}

// LimitsFor returns the limits for a context class.
func LimitsFor(class types.ContextClass) Limits {
	if class == types.ContextConstrained {
		return ConstrainedLimits
	}
	return FullLimits
}

// PromptInput is everything a prompt is built from.
type PromptInput struct {
	Document     *types.CvDocument
	Sections     types.SectionSet
	Context      string
	Instructions string
	Class        types.ContextClass
	HasImage     bool
}

// BuildPrompt renders the generation prompt. Output depends only on the input.
func BuildPrompt(in PromptInput) (string, error) {
	limits := LimitsFor(in.Class)
	key := "tailor-full"
	if in.Class == types.ContextConstrained {
		key = "tailor-constrained"
	}

	ordered := in.Sections.Ordered()
	names := make([]string, len(ordered))
	shapes := make([]string, len(ordered))
	for i, s := range ordered {
		names[i] = string(s)
		shape, err := prompts.Get(promptFile, "shape-"+string(s))
		if err != nil {
			return "", err
		}
		shapes[i] = "  " + shape
	}

	context := truncateWithMarker(strings.TrimSpace(in.Context), limits.Context, ContextTruncatedMarker)
	if in.HasImage {
		context += "\n\n" + prompts.MustGet(promptFile, "image-context")
	}

	instructions := ""
	if trimmed := strings.TrimSpace(in.Instructions); trimmed != "" {
		block, err := prompts.Render(promptFile, "instructions", map[string]string{
			"Instructions": truncate(trimmed, limits.Instructions),
		})
		if err != nil {
			return "", err
		}
		instructions = block
	}

	return prompts.Render(promptFile, key, map[string]string{
		"Sections":     strings.Join(names, ", "),
		"Shape":        "{\n" + strings.Join(shapes, ",\n") + "\n}",
		"Context":      context,
		"Document":     renderDocument(in.Document, ordered, limits),
		"Instructions": instructions,
	})
}

// renderDocument writes the targeted sections as an indented outline carrying
// every entity id the model needs to echo back.
func renderDocument(doc *types.CvDocument, sections []types.SectionID, l Limits) string {
	w := &outline{limits: l}
	for _, s := range sections {
		w.heading(s)
		switch s {
		case types.SectionProfile:
			p := doc.Profile
			w.field(1, "Name", strings.TrimSpace(p.FirstName+" "+p.LastName))
			w.field(1, "Headline", p.Headline)
			w.field(1, "Location", p.Location)
			w.field(1, "Email", p.Email)
			w.field(1, "Phone", p.Phone)
			w.field(1, "Website", p.Website)
			w.field(1, "LinkedIn", p.LinkedIn)
		case types.SectionProfessionalSummary:
			w.field(1, "Summary", doc.ProfessionalSummary.Summary)
			for _, st := range doc.ProfessionalSummary.Strengths {
				w.entity(1, st.EntityID, st.Title)
				w.field(2, "Description", st.Description)
			}
		case types.SectionWorkExperience:
			w.work(doc.WorkExperience)
		case types.SectionEducation:
			for _, e := range doc.Education {
				w.entity(1, e.EntityID, joinNonEmpty(", ", e.Degree, e.FieldOfStudy)+" at "+e.Institution+dateRange(e.StartDate, e.EndDate))
				w.field(2, "Description", e.Description)
			}
		case types.SectionSkills:
			w.skills(doc.Skills)
		case types.SectionProjects:
			for _, p := range doc.Projects {
				w.entity(1, p.EntityID, p.Title+dateRange(p.StartDate, p.EndDate))
				w.field(2, "Role", p.Role)
				w.field(2, "URL", p.URL)
				w.field(2, "Description", p.Description)
			}
		case types.SectionCertifications:
			for _, c := range doc.Certifications {
				w.entity(1, c.EntityID, joinNonEmpty(", ", c.Name, c.Issuer, c.IssueDate))
				w.field(2, "Description", c.Description)
			}
		case types.SectionMemberships:
			for _, m := range doc.Memberships {
				w.entity(1, m.EntityID, joinNonEmpty(", ", m.Organization, m.Role))
				w.field(2, "Description", m.Description)
			}
		case types.SectionInterests:
			for _, in := range doc.Interests {
				w.entity(1, in.EntityID, in.Name)
				w.field(2, "Description", in.Description)
			}
		}
	}
	return strings.TrimRight(w.sb.String(), "\n")
}

type outline struct {
	sb     strings.Builder
	limits Limits
}

func (w *outline) line(depth int, text string) {
	w.sb.WriteString(strings.Repeat("  ", depth))
	w.sb.WriteString(text)
	w.sb.WriteByte('\n')
}

func (w *outline) heading(s types.SectionID) {
	if w.sb.Len() > 0 {
		w.sb.WriteByte('\n')
	}
	w.line(0, "## "+string(s))
}

func (w *outline) entity(depth int, id, label string) {
	w.line(depth, fmt.Sprintf("- [entityId: %s] %s", id, strings.TrimSpace(label)))
}

func (w *outline) field(depth int, name, value string) {
	value = strings.TrimSpace(value)
	if value == "" {
		return
	}
	w.line(depth, name+": "+truncate(value, w.limits.Field))
}

func (w *outline) more(depth int, hidden int, noun string) {
	if hidden > 0 {
		w.line(depth, fmt.Sprintf("(%d more %s)", hidden, noun))
	}
}

func (w *outline) work(entries []types.WorkExperience) {
	shown := mostRecent(entries, w.limits.WorkEntries)
	for _, e := range shown {
		w.entity(1, e.EntityID, e.Position+" at "+e.CompanyName+dateRange(e.StartDate, e.EndDate))
		w.field(2, "Location", e.Location)
		w.field(2, "Description", e.Description)
		for _, c := range e.ResponsibilityCategories {
			w.entity(2, c.EntityID, c.Name)
			items := c.Items
			if n := w.limits.ItemsPerCategory; n > 0 && len(items) > n {
				items = items[:n]
			}
			for _, it := range items {
				w.entity(3, it.EntityID, truncate(it.Content, w.limits.Field))
			}
			w.more(3, len(c.Items)-len(items), "items")
		}
	}
	w.more(1, len(entries)-len(shown), "positions not shown")
}

func (w *outline) skills(skills []types.Skill) {
	shown := skills
	if n := w.limits.Skills; n > 0 && len(shown) > n {
		shown = shown[:n]
	}
	for _, s := range shown {
		label := s.Name
		if extra := joinNonEmpty(", ", s.Category, s.Level); extra != "" {
			label += " (" + extra + ")"
		}
		w.entity(1, s.EntityID, label)
	}
	w.more(1, len(skills)-len(shown), "skills")
}

// mostRecent returns up to n entries ordered by start date, newest first. Entries
// without a start date sort last; ties keep document order.
func mostRecent(entries []types.WorkExperience, n int) []types.WorkExperience {
	if n <= 0 || len(entries) <= n {
		return entries
	}
	sorted := make([]types.WorkExperience, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i].StartDate, sorted[j].StartDate
		if a == "" || b == "" {
			return a != "" && b == ""
		}
		return a > b
	})
	return sorted[:n]
}

func dateRange(start, end string) string {
	if start == "" && end == "" {
		return ""
	}
	if end == "" {
		end = "present"
	}
	return fmt.Sprintf(" (%s to %s)", start, end)
}

func joinNonEmpty(sep string, parts ...string) string {
	out := parts[:0:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, sep)
}

// truncate cuts s to at most limit runes, ending with an ellipsis when cut.
func truncate(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit-1]) + "…"
}

// truncateWithMarker cuts s to limit runes and appends marker when cut.
func truncateWithMarker(s string, limit int, marker string) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit]) + marker
}
