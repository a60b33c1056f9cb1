package generation

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/jonathan/cv-tailor/internal/types"
)

// VariantStore persists variants under the one-variant-per-context rule.
// CreateVariant returns the existing variant for (user, source, contextKey) when
// there is one, otherwise it inserts variant. The check and the insert are not
// atomic; concurrent duplicates from different processes can both insert.
type VariantStore interface {
	LoadDocument(ctx context.Context, userID, documentID string) (*types.CvDocument, error)
	CreateVariant(ctx context.Context, userID, contextKey string, variant *types.CvDocument) (*types.CvDocument, bool, error)
}

// VariantResult is the variant for a context and whether the store created it.
type VariantResult struct {
	Document *types.CvDocument `json:"document"`
	Created  bool              `json:"created"`
}

// VariantService creates derived documents.
type VariantService struct {
	store  VariantStore
	group  singleflight.Group
	newID  func() string
	logger *zap.Logger
}

// NewVariantService creates a variant service. A nil logger disables logging.
func NewVariantService(store VariantStore, logger *zap.Logger) *VariantService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &VariantService{store: store, newID: uuid.NewString, logger: logger.Named("variants")}
}

// Create returns the variant of the requested document for the request's context,
// creating it on first use. Duplicate concurrent calls in this process share one
// store round trip and its result, including Created.
func (s *VariantService) Create(ctx context.Context, userID string, req types.VariantRequest) (*VariantResult, error) {
	if err := req.Validate(); err != nil {
		return nil, &RequestError{Message: "variant request is incomplete", Cause: err}
	}
	contextKey := req.ContextKey()
	key := userID + "\x00" + req.DocumentRef + "\x00" + contextKey

	v, err, shared := s.group.Do(key, func() (any, error) {
		source, err := s.store.LoadDocument(ctx, userID, req.DocumentRef)
		if err != nil {
			return nil, &StoreError{Op: "load", Cause: err}
		}
		if source == nil {
			return nil, fmt.Errorf("%w: %s", ErrDocumentNotFound, req.DocumentRef)
		}

		doc, created, err := s.store.CreateVariant(ctx, userID, contextKey, DeriveVariant(source, req.Title, s.newID))
		if err != nil {
			return nil, &StoreError{Op: "create variant", Cause: err}
		}
		return &VariantResult{Document: doc, Created: created}, nil
	})
	if err != nil {
		return nil, err
	}

	result := v.(*VariantResult)
	s.logger.Info("variant ready",
		zap.String("user_id", userID),
		zap.String("source_id", req.DocumentRef),
		zap.String("variant_id", result.Document.ID),
		zap.Bool("created", result.Created),
		zap.Bool("shared", shared),
	)
	return result, nil
}

// DeriveVariant copies source into a new document. Every entity gets a fresh id
// and points back at the entity it was copied from.
func DeriveVariant(source *types.CvDocument, title string, newID func() string) *types.CvDocument {
	out := source.Clone()
	out.ID = newID()
	out.SourceDocumentID = source.ID
	out.Title = title
	if out.Title == "" {
		out.Title = source.Title
	}

	relink := func(id, src *string) {
		*src = *id
		*id = newID()
	}
	for i := range out.ProfessionalSummary.Strengths {
		e := &out.ProfessionalSummary.Strengths[i]
		relink(&e.EntityID, &e.SourceEntityID)
	}
	for i := range out.WorkExperience {
		w := &out.WorkExperience[i]
		relink(&w.EntityID, &w.SourceEntityID)
		for j := range w.ResponsibilityCategories {
			c := &w.ResponsibilityCategories[j]
			relink(&c.EntityID, &c.SourceEntityID)
			for k := range c.Items {
				relink(&c.Items[k].EntityID, &c.Items[k].SourceEntityID)
			}
		}
	}
	for i := range out.Education {
		relink(&out.Education[i].EntityID, &out.Education[i].SourceEntityID)
	}
	for i := range out.Skills {
		relink(&out.Skills[i].EntityID, &out.Skills[i].SourceEntityID)
	}
	for i := range out.Projects {
		relink(&out.Projects[i].EntityID, &out.Projects[i].SourceEntityID)
	}
	for i := range out.Certifications {
		relink(&out.Certifications[i].EntityID, &out.Certifications[i].SourceEntityID)
	}
	for i := range out.Memberships {
		relink(&out.Memberships[i].EntityID, &out.Memberships[i].SourceEntityID)
	}
	for i := range out.Interests {
		relink(&out.Interests[i].EntityID, &out.Interests[i].SourceEntityID)
	}
	return out
}
