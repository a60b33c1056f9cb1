package generation

import (
	"encoding/json"
	"errors"

	"go.uber.org/zap"

	"github.com/jonathan/cv-tailor/internal/merge"
	"github.com/jonathan/cv-tailor/internal/normalize"
	"github.com/jonathan/cv-tailor/internal/schemas"
	"github.com/jonathan/cv-tailor/internal/types"
)

// Reconcile normalizes raw model output, validates it and merges it into doc. It
// never persists anything. A successful result carries the merged document, or doc
// itself when the merge changed nothing. Parse and validation problems come back as
// failed results; only unexpected faults are returned as errors.
func Reconcile(engine *merge.Engine, logger *zap.Logger, doc *types.CvDocument, raw string, targets types.SectionSet) (*types.GenerationResult, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	payload, err := normalize.Parse(raw)
	if err != nil {
		var parseErr *normalize.ParseError
		if errors.As(err, &parseErr) {
			logger.Info("model output could not be parsed", zap.String("reason", parseErr.Message))
			result := types.Failed(types.ErrParse, parseErr.Error())
			result.RawText = parseErr.Excerpt
			return result, nil
		}
		return nil, err
	}

	payload, err = normalize.DropNulls(payload)
	if err != nil {
		return nil, err
	}
	if string(payload) == "{}" {
		return types.Failed(types.ErrParse, "model output holds only null fields"), nil
	}

	if err := schemas.ValidatePatch(payload); err != nil {
		var verr *schemas.ValidationError
		if !errors.As(err, &verr) {
			return nil, err
		}
		logger.Info("model output failed validation", zap.Int("errors", len(verr.Errors)))
		return invalid(verr.Error(), raw), nil
	}

	var patch types.CvPatch
	if err := json.Unmarshal(payload, &patch); err != nil {
		return invalid("model output does not match the document shape: "+err.Error(), raw), nil
	}

	overlap := false
	for s := range patch.Sections() {
		if targets.Has(s) {
			overlap = true
			break
		}
	}
	if !overlap {
		return invalid("model output contains none of the requested sections", raw), nil
	}

	merged, report := engine.Apply(doc, &patch, targets)
	result := &types.GenerationResult{
		Status:   types.StatusSuccess,
		RawText:  raw,
		Payload:  payload,
		Document: merged,
		Merge:    report,
	}
	if report.NoOp() {
		logger.Info("merge changed nothing", zap.Int("discarded", len(report.Discarded)))
		result.Document = doc
		result.Outcome = types.OutcomeMergeNoOp
	}
	return result, nil
}

func invalid(message, raw string) *types.GenerationResult {
	result := types.Failed(types.ErrValidation, message)
	result.RawText = normalize.Excerpt(raw, normalize.ExcerptLength)
	return result
}
