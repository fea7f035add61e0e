// Package compliance annotates canonical records with a compliance status.
//
// The Validator adapter delegates to a batch Checker; RuleChecker is the
// default Checker, evaluating CEL rules against each record.
package compliance

import (
	"context"
	"fmt"

	"github.com/timmy/harvester/internal/domain"
	"github.com/timmy/harvester/internal/logger"
)

// Verdict is the checker's decision for one record.
type Verdict struct {
	ID     string
	Status domain.ComplianceStatus
	Notes  []string
}

// Checker is the shared compliance collaborator.
type Checker interface {
	CheckBatch(ctx context.Context, records []domain.CanonicalRecord) ([]Verdict, error)
}

// Validator is the pipeline-local adapter over a Checker.
type Validator struct {
	checker Checker
	logger  *logger.Logger
}

// NewValidator creates a Validator.
func NewValidator(checker Checker, log *logger.Logger) *Validator {
	return &Validator{checker: checker, logger: log}
}

func (v *Validator) log(ctx context.Context) *logger.Logger {
	return logger.FromContextOr(ctx, v.logger)
}

// Validate sets the compliance status of every record.
// When the checker fails wholesale every record is marked WARNING.
// A record without a usable verdict is logged and skipped.
// Returns:
//   - []domain.CanonicalRecord: annotated copies of the input records.
//   - int: number of records skipped.
func (v *Validator) Validate(ctx context.Context, records []domain.CanonicalRecord) ([]domain.CanonicalRecord, int) {
	if len(records) == 0 {
		return []domain.CanonicalRecord{}, 0
	}

	verdicts, err := v.checker.CheckBatch(ctx, records)
	if err != nil {
		v.log(ctx).WithError(err).WithField(logger.FieldCount, len(records)).
			Error("Compliance check failed, marking batch as WARNING")
		note := fmt.Sprintf("compliance check unavailable: %v", err)
		out := make([]domain.CanonicalRecord, len(records))
		for i, r := range records {
			out[i] = r.WithCompliance(domain.ComplianceWarning, []string{note})
		}
		return out, 0
	}

	byID := make(map[string]Verdict, len(verdicts))
	for _, vd := range verdicts {
		byID[vd.ID] = vd
	}

	out := make([]domain.CanonicalRecord, 0, len(records))
	skipped := 0
	for _, r := range records {
		vd, ok := byID[r.ID]
		if !ok || !validStatus(vd.Status) {
			skipped++
			v.log(ctx).WithFields(logger.Fields{
				logger.FieldItemID: r.ExternalID,
				"status":           string(vd.Status),
			}).Warn("No usable compliance verdict, skipping record")
			continue
		}
		out = append(out, r.WithCompliance(vd.Status, vd.Notes))
	}
	return out, skipped
}

func validStatus(s domain.ComplianceStatus) bool {
	switch s {
	case domain.ComplianceCompliant, domain.ComplianceWarning, domain.ComplianceRejected:
		return true
	}
	return false
}
