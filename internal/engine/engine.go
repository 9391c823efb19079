// Package engine runs one reconciliation invocation end to end: alignment,
// severity, classification, exposure, rollup, and the ledger writes that
// persist the outcome. Everything before the ledger is pure; the writes
// happen inside a single transaction so an invocation either fully commits
// or leaves no trace. Because every persisted id derives from content,
// re-running identical inputs is a no-op against the ledger.
package engine

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/complykit/reconcore/internal/classify"
	"github.com/complykit/reconcore/internal/compare"
	"github.com/complykit/reconcore/internal/exposure"
	"github.com/complykit/reconcore/internal/identity"
	"github.com/complykit/reconcore/internal/ledger"
	"github.com/complykit/reconcore/internal/model"
	"github.com/complykit/reconcore/internal/rollup"
	"github.com/complykit/reconcore/internal/severity"
)

// ErrMissingModuleID is raised when the invoking analytic module does not
// identify itself; ledger rows are scoped by module id.
var ErrMissingModuleID = eris.New("engine: module id is required")

// Input describes one invocation.
type Input struct {
	ScopeID             string
	ModuleID            string
	Left                []model.Record
	Right               []model.Record
	Compare             compare.Config
	Thresholds          severity.Thresholds
	TimingThresholdDays *float64
	RoundingQuantum     decimal.Decimal
}

// ClassifiedFinding pairs one persisted finding with its evidence and the
// pure computation that produced it.
type ClassifiedFinding struct {
	Key            string                    `json:"key"`
	Finding        model.Finding             `json:"finding"`
	Evidence       model.Evidence            `json:"evidence"`
	Link           model.FindingEvidenceLink `json:"link"`
	Classification classify.Result           `json:"classification"`
	Exposure       model.ExposureResult      `json:"exposure"`
}

// Result is the full, immutable outcome of one invocation.
type Result struct {
	InvocationID string                  `json:"invocation_id"`
	Comparison   *model.ComparisonResult `json:"comparison"`
	Variance     *severity.Report        `json:"variance"`
	Findings     []ClassifiedFinding     `json:"findings"`
	Rollups      model.Rollups           `json:"rollups"`
}

// evidencePayload is the canonical content persisted per discrepancy. All
// monetary fields serialize as strings, which keeps the content hash
// stable across numeric representations. SignedDifference follows the
// classifier convention (estimate minus actual): negative when the actual
// side exceeds the estimate side.
type evidencePayload struct {
	Key              string           `json:"key"`
	LeftTotal        decimal.Decimal  `json:"left_total"`
	RightTotal       decimal.Decimal  `json:"right_total"`
	SignedDifference decimal.Decimal  `json:"signed_difference"`
	Residual         *decimal.Decimal `json:"residual,omitempty"`
	LeftDate         *time.Time       `json:"left_date,omitempty"`
	RightDates       []time.Time      `json:"right_dates,omitempty"`
}

type findingPayload struct {
	Key       string               `json:"key"`
	Typology  model.Typology       `json:"typology"`
	Rationale string               `json:"rationale"`
	Exposure  model.ExposureResult `json:"exposure"`
}

// discrepancy is one classifiable unit derived from the comparison. delta
// keeps the comparison convention (actual minus estimate) and is what
// exposure binds to for non-partial findings.
type discrepancy struct {
	key            string
	kind           string
	sourceRecordID string
	payload        evidencePayload
	delta          decimal.Decimal
	residual       *decimal.Decimal
}

// Run executes one invocation against the given ledger.
func Run(ctx context.Context, store ledger.Store, in Input) (*Result, error) {
	if in.ModuleID == "" {
		return nil, ErrMissingModuleID
	}
	quantum := in.RoundingQuantum
	if quantum.IsZero() {
		quantum = decimal.New(1, -2)
	}

	comparison, err := compare.Compare(in.ScopeID, in.Left, in.Right, in.Compare)
	if err != nil {
		return nil, err
	}
	variance, err := severity.BuildReport(comparison, in.Thresholds, in.Compare.CostBasis)
	if err != nil {
		return nil, err
	}

	findings, err := classifyDiscrepancies(comparison, in, quantum)
	if err != nil {
		return nil, err
	}

	items := make([]rollup.Item, 0, len(findings))
	for _, f := range findings {
		items = append(items, rollup.Item{Typology: f.Classification.Typology, Exposure: f.Exposure})
	}

	res := &Result{
		InvocationID: uuid.New().String(),
		Comparison:   comparison,
		Variance:     variance,
		Findings:     findings,
		Rollups:      rollup.RollUp(items),
	}

	if err := persist(ctx, store, res); err != nil {
		return nil, err
	}

	zap.L().Info("engine: invocation complete",
		zap.String("invocation_id", res.InvocationID),
		zap.String("scope_id", in.ScopeID),
		zap.String("module_id", in.ModuleID),
		zap.Int("matches", len(comparison.Matches)),
		zap.Int("unmatched_left", len(comparison.UnmatchedLeft)),
		zap.Int("unmatched_right", len(comparison.UnmatchedRight)),
		zap.Int("findings", len(res.Findings)),
		zap.String("total_exposure_abs", res.Rollups.TotalExposureAbs.String()),
	)
	return res, nil
}

func classifyDiscrepancies(comparison *model.ComparisonResult, in Input, quantum decimal.Decimal) ([]ClassifiedFinding, error) {
	discrepancies := buildDiscrepancies(comparison, in.Compare.CostBasis)

	var findings []ClassifiedFinding
	for _, d := range discrepancies {
		result, err := classify.Classify(classify.Input{
			Kind: d.kind,
			Evidence: classify.Evidence{
				LeftAmount:       &d.payload.LeftTotal,
				RightAmount:      &d.payload.RightTotal,
				SignedDifference: &d.payload.SignedDifference,
				LeftDate:         d.payload.LeftDate,
				RightDates:       d.payload.RightDates,
			},
		}, in.TimingThresholdDays)
		if err != nil {
			return nil, err
		}

		// A zero-delta match that produced no timing signal is not a
		// discrepancy; nothing is persisted for it.
		if d.kind == classify.KindExact &&
			d.payload.SignedDifference.IsZero() &&
			result.Typology != model.TypologyTimingMismatch {
			continue
		}

		// Partial findings bind exposure to the residual, not the delta.
		exposureBase := d.delta
		if d.kind == classify.KindPartial && d.residual != nil {
			exposureBase = *d.residual
		}
		exp, err := exposure.Compute(exposureBase, exposure.ModeHalfUp, quantum)
		if err != nil {
			return nil, err
		}

		cf, err := assemble(in, d, result, exp)
		if err != nil {
			return nil, err
		}
		findings = append(findings, cf)
	}
	return findings, nil
}

func buildDiscrepancies(comparison *model.ComparisonResult, basis compare.CostBasis) []discrepancy {
	var out []discrepancy

	for _, m := range comparison.Matches {
		d := discrepancy{
			key:            m.Key,
			kind:           matchKind(m),
			sourceRecordID: firstRecordID(m.Right, m.Left),
			delta:          m.Delta,
			payload: evidencePayload{
				Key:              m.Key,
				LeftTotal:        m.LeftTotal,
				RightTotal:       m.RightTotal,
				SignedDifference: m.LeftTotal.Sub(m.RightTotal),
				LeftDate:         firstDate(m.Left),
				RightDates:       allDates(m.Right),
			},
		}
		if d.kind == classify.KindPartial {
			residual := m.LeftTotal.Sub(m.RightTotal)
			d.residual = &residual
			d.payload.Residual = &residual
		}
		out = append(out, d)
	}

	out = append(out, unmatchedDiscrepancies(comparison.UnmatchedLeft, comparison.IdentityFields, basis, true)...)
	out = append(out, unmatchedDiscrepancies(comparison.UnmatchedRight, comparison.IdentityFields, basis, false)...)
	return out
}

// matchKind derives the finding kind for an aligned key: partial when the
// actual side is flagged as a partial settlement, exact on a zero delta,
// amount_mismatch otherwise.
func matchKind(m model.ComparisonMatch) string {
	for _, r := range m.Right {
		if r.Attributes["settlement"] == "partial" {
			return classify.KindPartial
		}
	}
	if m.Delta.IsZero() {
		return classify.KindExact
	}
	return "amount_mismatch"
}

func unmatchedDiscrepancies(records []model.Record, identityFields []string, basis compare.CostBasis, isLeft bool) []discrepancy {
	grouped := map[string][]model.Record{}
	var keys []string
	for _, r := range records {
		key, _ := compare.MatchKey(r, identityFields)
		if _, ok := grouped[key]; !ok {
			keys = append(keys, key)
		}
		grouped[key] = append(grouped[key], r)
	}

	var out []discrepancy
	for _, key := range keys {
		group := grouped[key]
		total := decimal.Zero
		for _, r := range group {
			if cost, ok := compare.EffectiveCost(r, basis); ok {
				total = total.Add(cost)
			}
		}

		p := evidencePayload{Key: key}
		delta := total
		if isLeft {
			p.LeftTotal = total
			p.RightTotal = decimal.Zero
			p.SignedDifference = total
			p.LeftDate = firstDate(group)
			delta = total.Neg()
		} else {
			p.LeftTotal = decimal.Zero
			p.RightTotal = total
			p.SignedDifference = total.Neg()
			p.RightDates = allDates(group)
		}
		out = append(out, discrepancy{
			key:            key,
			kind:           "amount_mismatch",
			sourceRecordID: group[0].RecordID,
			delta:          delta,
			payload:        p,
		})
	}
	return out
}

func assemble(in Input, d discrepancy, result classify.Result, exp model.ExposureResult) (ClassifiedFinding, error) {
	evidenceJSON, err := json.Marshal(d.payload)
	if err != nil {
		return ClassifiedFinding{}, eris.Wrap(err, "engine: marshal evidence payload")
	}
	evidenceKey, err := identity.StableKey(d.payload)
	if err != nil {
		return ClassifiedFinding{}, err
	}
	ev := model.Evidence{
		ID:       identity.EvidenceID(in.ScopeID, in.ModuleID, "comparison_delta", evidenceKey),
		ScopeID:  in.ScopeID,
		ModuleID: in.ModuleID,
		Kind:     "comparison_delta",
		Payload:  evidenceJSON,
	}

	fp := findingPayload{
		Key:       d.key,
		Typology:  result.Typology,
		Rationale: result.Rationale,
		Exposure:  exp,
	}
	findingJSON, err := json.Marshal(fp)
	if err != nil {
		return ClassifiedFinding{}, eris.Wrap(err, "engine: marshal finding payload")
	}
	findingKey, err := identity.StableKey(fp)
	if err != nil {
		return ClassifiedFinding{}, err
	}
	f := model.Finding{
		ID:             identity.FindingID(in.ScopeID, in.ModuleID, string(result.Typology), findingKey),
		ScopeID:        in.ScopeID,
		ModuleID:       in.ModuleID,
		SourceRecordID: d.sourceRecordID,
		Kind:           string(result.Typology),
		Payload:        findingJSON,
	}

	return ClassifiedFinding{
		Key:            d.key,
		Finding:        f,
		Evidence:       ev,
		Link:           model.FindingEvidenceLink{ID: identity.LinkID(f.ID, ev.ID), FindingID: f.ID, EvidenceID: ev.ID},
		Classification: result,
		Exposure:       exp,
	}, nil
}

func persist(ctx context.Context, store ledger.Store, res *Result) error {
	return store.InTx(ctx, func(w ledger.Writer) error {
		for i := range res.Findings {
			cf := &res.Findings[i]
			ev, err := w.CreateEvidence(ctx, cf.Evidence)
			if err != nil {
				return err
			}
			cf.Evidence = *ev
			f, err := w.CreateFinding(ctx, cf.Finding)
			if err != nil {
				return err
			}
			cf.Finding = *f
			link, err := w.LinkFindingToEvidence(ctx, f.ID, ev.ID)
			if err != nil {
				return err
			}
			cf.Link = *link
		}
		return nil
	})
}

func firstRecordID(primary, fallback []model.Record) string {
	if len(primary) > 0 {
		return primary[0].RecordID
	}
	if len(fallback) > 0 {
		return fallback[0].RecordID
	}
	return ""
}

// recordDate parses the optional "date" attribute; both RFC 3339 and plain
// dates are accepted.
func recordDate(r model.Record) *time.Time {
	raw, ok := r.Attributes["date"]
	if !ok || raw == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339, time.DateOnly} {
		if t, err := time.Parse(layout, raw); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

func firstDate(records []model.Record) *time.Time {
	for _, r := range records {
		if d := recordDate(r); d != nil {
			return d
		}
	}
	return nil
}

func allDates(records []model.Record) []time.Time {
	var out []time.Time
	for _, r := range records {
		if d := recordDate(r); d != nil {
			out = append(out, *d)
		}
	}
	return out
}
