package orders

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/pawpass-backend/pkg/db/models"
	"github.com/angelmondragon/pawpass-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/pawpass-backend/pkg/errors"
	"github.com/angelmondragon/pawpass-backend/pkg/logger"
)

const reasonMaterializationFailed = "materialization_failed"

type lineApplier interface {
	Materialize(ctx context.Context, in Input) (*Result, error)
	AppendLines(ctx context.Context, orderID uuid.UUID, lines []Line) (*Result, error)
}

// DeadLetters records confirmed payments that were not fully materialized and
// replays the retryable ones.
type DeadLetters struct {
	repo     FailureRepository
	applier  lineApplier
	currency string
	logg     *logger.Logger
}

func NewDeadLetters(repo FailureRepository, applier lineApplier, currency string, logg *logger.Logger) (*DeadLetters, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "failure repository required")
	}
	if applier == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "materializer required")
	}
	return &DeadLetters{repo: repo, applier: applier, currency: currency, logg: logg}, nil
}

// RecordOrderFailure stores a stage=order entry for a materialization that
// failed before any order committed.
func (d *DeadLetters) RecordOrderFailure(ctx context.Context, in Input, cause error) error {
	raw, err := json.Marshal(in.Lines)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode failed lines")
	}
	row := &models.MaterializationFailure{
		PaymentSessionID: in.PaymentSessionID,
		UserID:           in.UserID,
		Stage:            enums.FailureStageOrder,
		Lines:            raw,
		CartSession:      optionalString(in.CartSession),
		Reason:           reasonMaterializationFailed,
		Retryable:        cause == nil || pkgerrors.IsRetryable(cause),
	}
	if cause != nil {
		msg := truncate(cause.Error(), maxErrorLength)
		row.ErrorMessage = &msg
	}
	return d.repo.Insert(ctx, row)
}

// RecordLineFailures stores stage=lines entries for the failed lines of a
// committed order. Retryable and permanent failures land in separate rows so
// the retry job only ever sees lines it can apply.
func (d *DeadLetters) RecordLineFailures(ctx context.Context, in Input, res *Result) error {
	if res == nil || res.Order == nil {
		return nil
	}
	var retryable, permanent []LineResult
	for _, lr := range res.FailedLines() {
		if lr.Retryable {
			retryable = append(retryable, lr)
		} else {
			permanent = append(permanent, lr)
		}
	}
	var errs error
	for _, group := range []struct {
		lines     []LineResult
		retryable bool
	}{{retryable, true}, {permanent, false}} {
		if len(group.lines) == 0 {
			continue
		}
		errs = multierr.Append(errs, d.insertLines(ctx, in, res.Order.ID, group.lines, group.retryable))
	}
	return errs
}

func (d *DeadLetters) insertLines(ctx context.Context, in Input, orderID uuid.UUID, failed []LineResult, retryable bool) error {
	lines := make([]Line, 0, len(failed))
	reasons := map[string]struct{}{}
	var messages []string
	for _, lr := range failed {
		lines = append(lines, lr.Line)
		reasons[string(lr.Reason)] = struct{}{}
		if lr.Err != nil {
			messages = append(messages, fmt.Sprintf("%s: %s", lr.Line.ServiceID, lr.Err.Error()))
		}
	}
	raw, err := json.Marshal(lines)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode failed lines")
	}
	row := &models.MaterializationFailure{
		PaymentSessionID: in.PaymentSessionID,
		UserID:           in.UserID,
		OrderID:          &orderID,
		Stage:            enums.FailureStageLines,
		Lines:            raw,
		CartSession:      optionalString(in.CartSession),
		Reason:           joinReasons(reasons),
		Retryable:        retryable,
	}
	if len(messages) > 0 {
		msg := truncate(strings.Join(messages, "; "), maxErrorLength)
		row.ErrorMessage = &msg
	}
	return d.repo.Insert(ctx, row)
}

// RetryStats summarizes one replay pass.
type RetryStats struct {
	Attempted int
	Resolved  int
	Failed    int
}

// Retry replays unresolved retryable entries below maxAttempts. Errors of
// individual entries are combined; the pass always covers the whole batch.
func (d *DeadLetters) Retry(ctx context.Context, maxAttempts, limit int) (RetryStats, error) {
	var stats RetryStats
	rows, err := d.repo.ListRetryable(ctx, maxAttempts, limit)
	if err != nil {
		return stats, err
	}
	var errs error
	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return stats, multierr.Append(errs, err)
		}
		stats.Attempted++
		resolved, orderID, stillRetryable, replayErr := d.replay(ctx, row)
		if resolved {
			if err := d.repo.MarkResolved(ctx, row.ID, orderID); err != nil {
				errs = multierr.Append(errs, err)
				continue
			}
			stats.Resolved++
			d.logInfo(ctx, "deadletter.resolved", row)
			continue
		}
		stats.Failed++
		msg := ""
		if replayErr != nil {
			msg = replayErr.Error()
			errs = multierr.Append(errs, fmt.Errorf("failure %s: %w", row.ID, replayErr))
		}
		if err := d.repo.MarkAttempt(ctx, row.ID, msg, stillRetryable); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	return stats, errs
}

func (d *DeadLetters) replay(ctx context.Context, row models.MaterializationFailure) (bool, *uuid.UUID, bool, error) {
	var lines []Line
	if err := json.Unmarshal(row.Lines, &lines); err != nil {
		return false, nil, false, fmt.Errorf("decode lines: %w", err)
	}

	var (
		res *Result
		err error
	)
	switch row.Stage {
	case enums.FailureStageOrder:
		in := Input{
			UserID:           row.UserID,
			PaymentSessionID: row.PaymentSessionID,
			Currency:         d.currency,
			Lines:            lines,
		}
		if row.CartSession != nil {
			in.CartSession = *row.CartSession
		}
		res, err = d.applier.Materialize(ctx, in)
		if err == nil && res.Created {
			if recErr := d.RecordLineFailures(ctx, in, res); recErr != nil {
				return false, nil, true, recErr
			}
		}
	case enums.FailureStageLines:
		if row.OrderID == nil {
			return false, nil, false, fmt.Errorf("lines failure without order id")
		}
		res, err = d.applier.AppendLines(ctx, *row.OrderID, lines)
		if err == nil && len(res.RetryableLines()) > 0 {
			return false, nil, true, fmt.Errorf("%d lines still failing", len(res.RetryableLines()))
		}
	default:
		return false, nil, false, fmt.Errorf("unknown failure stage %q", row.Stage)
	}
	if err != nil {
		return false, nil, pkgerrors.IsRetryable(err), err
	}
	var orderID *uuid.UUID
	if res.Order != nil {
		id := res.Order.ID
		orderID = &id
	}
	return true, orderID, false, nil
}

func (d *DeadLetters) logInfo(ctx context.Context, msg string, row models.MaterializationFailure) {
	if d.logg == nil {
		return
	}
	d.logg.Info(d.logg.WithFields(ctx, map[string]any{
		"failure_id":         row.ID.String(),
		"payment_session_id": row.PaymentSessionID,
		"stage":              string(row.Stage),
	}), msg)
}

func joinReasons(reasons map[string]struct{}) string {
	out := make([]string, 0, len(reasons))
	for r := range reasons {
		out = append(out, r)
	}
	sort.Strings(out)
	return strings.Join(out, ",")
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
