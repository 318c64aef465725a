package orders

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/pawpass-backend/pkg/db"
	"github.com/angelmondragon/pawpass-backend/pkg/db/models"
	"github.com/angelmondragon/pawpass-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/pawpass-backend/pkg/errors"
	"github.com/angelmondragon/pawpass-backend/pkg/logger"
	"github.com/angelmondragon/pawpass-backend/pkg/outbox"
	"github.com/angelmondragon/pawpass-backend/pkg/outbox/payloads"
)

const defaultCurrency = "eur"

var errSessionTaken = errors.New("payment session already materialized")

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type serviceResolver interface {
	FindService(ctx context.Context, id uuid.UUID) (*models.Service, error)
}

type voucherIssuer interface {
	Issue(ctx context.Context, tx *gorm.DB, item models.OrderItem, userID uuid.UUID, issuedAt time.Time) ([]models.Voucher, error)
}

type artifactBuilder interface {
	BuildAll(ctx context.Context, codes []string) int
}

type cartClearer interface {
	Clear(ctx context.Context, sessionID string) error
}

type materializationRecorder interface {
	OrderMaterialized(created bool)
	FailedLine(reason string)
	VouchersIssued(n int)
}

type MaterializerParams struct {
	Repo      Repository
	Tx        txRunner
	Catalogue serviceResolver
	Issuer    voucherIssuer
	Outbox    outbox.Emitter
	Artifacts artifactBuilder
	Carts     cartClearer
	Metrics   materializationRecorder
	Logger    *logger.Logger
	Currency  string
}

// Materializer turns a confirmed payment into exactly one order with vouchers.
type Materializer struct {
	repo      Repository
	tx        txRunner
	catalogue serviceResolver
	issuer    voucherIssuer
	outbox    outbox.Emitter
	artifacts artifactBuilder
	carts     cartClearer
	metrics   materializationRecorder
	logg      *logger.Logger
	currency  string
	now       func() time.Time
}

func NewMaterializer(params MaterializerParams) (*Materializer, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "orders repository required")
	}
	if params.Tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	if params.Catalogue == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "catalogue required")
	}
	if params.Issuer == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "voucher issuer required")
	}
	if params.Outbox == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "outbox emitter required")
	}
	currency := strings.ToLower(strings.TrimSpace(params.Currency))
	if currency == "" {
		currency = defaultCurrency
	}
	return &Materializer{
		repo:      params.Repo,
		tx:        params.Tx,
		catalogue: params.Catalogue,
		issuer:    params.Issuer,
		outbox:    params.Outbox,
		artifacts: params.Artifacts,
		carts:     params.Carts,
		metrics:   params.Metrics,
		logg:      params.Logger,
		currency:  currency,
		now:       time.Now,
	}, nil
}

// resolvedLine pairs a line with the outcome of its catalogue lookup.
type resolvedLine struct {
	line    Line
	service *models.Service
	failure *LineResult
}

// Materialize creates the order for in.PaymentSessionID once. Repeated calls for
// the same session return the existing order with Created=false. Lines that
// cannot be applied are reported and never abort the order.
func (m *Materializer) Materialize(ctx context.Context, in Input) (*Result, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}

	existing, err := m.repo.FindBySession(ctx, in.PaymentSessionID)
	if err == nil {
		m.recordOrder(false)
		return &Result{Order: existing}, nil
	}
	if !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		return nil, err
	}

	lines := m.resolve(ctx, mergeLines(in.Lines))
	currency := strings.ToLower(strings.TrimSpace(in.Currency))
	if currency == "" {
		currency = m.currency
	}
	now := m.now().UTC()

	var (
		order  *models.Order
		report []LineResult
	)
	err = m.tx.WithTx(ctx, func(tx *gorm.DB) error {
		sessionID := in.PaymentSessionID
		order = &models.Order{
			UserID:           in.UserID,
			PaymentSessionID: &sessionID,
			IsPaid:           true,
			TotalAmount:      paidTotal(lines),
			Currency:         currency,
		}
		// orders carries a single unique key besides the primary key.
		if err := m.repo.WithTx(tx).CreateOrder(ctx, order); err != nil {
			if db.IsUniqueViolation(err, "") {
				return errSessionTaken
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
		}

		report = m.applyLines(ctx, tx, order, in.UserID, lines, now)

		return m.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderPaid,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         &outbox.ActorRef{UserID: in.UserID, Role: string(enums.RoleCustomer)},
			OccurredAt:    now,
			Data: payloads.OrderPaidEvent{
				OrderID:          order.ID,
				UserID:           in.UserID,
				PaymentSessionID: in.PaymentSessionID,
				TotalAmount:      order.TotalAmount.StringFixed(2),
				Currency:         currency,
				VoucherCount:     countVouchers(report),
				FailedLines:      countFailed(report),
			},
		})
	})
	if errors.Is(err, errSessionTaken) {
		winner, findErr := m.repo.FindBySession(ctx, in.PaymentSessionID)
		if findErr != nil {
			return nil, findErr
		}
		m.logInfo(ctx, "materializer.concurrent_duplicate", map[string]any{
			"payment_session_id": in.PaymentSessionID,
			"order_id":           winner.ID.String(),
		})
		m.recordOrder(false)
		return &Result{Order: winner}, nil
	}
	if err != nil {
		return nil, err
	}

	stored, err := m.repo.FindByID(ctx, order.ID)
	if err == nil {
		order = stored
	}
	res := &Result{Order: order, Created: true, Report: report}
	m.afterCommit(ctx, res)
	if in.CartSession != "" && m.carts != nil {
		if err := m.carts.Clear(ctx, in.CartSession); err != nil {
			m.logWarn(ctx, "materializer.cart_clear_failed", map[string]any{
				"cart_session": in.CartSession,
				"error":        err.Error(),
			})
		}
	}
	m.recordOrder(true)
	m.logInfo(ctx, "materializer.order_created", map[string]any{
		"order_id":           order.ID.String(),
		"payment_session_id": in.PaymentSessionID,
		"vouchers":           countVouchers(report),
		"failed_lines":       countFailed(report),
	})
	return res, nil
}

// AppendLines applies lines to an existing order. Lines whose item already
// exists are reported as existing, which keeps dead-letter retries idempotent.
func (m *Materializer) AppendLines(ctx context.Context, orderID uuid.UUID, lines []Line) (*Result, error) {
	if len(lines) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "no lines to apply")
	}
	order, err := m.repo.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	resolved := m.resolve(ctx, mergeLines(lines))
	now := m.now().UTC()

	var report []LineResult
	err = m.tx.WithTx(ctx, func(tx *gorm.DB) error {
		report = m.applyLines(ctx, tx, order, order.UserID, resolved, now)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if stored, err := m.repo.FindByID(ctx, orderID); err == nil {
		order = stored
	}
	res := &Result{Order: order, Report: report}
	m.afterCommit(ctx, res)
	return res, nil
}

func (m *Materializer) resolve(ctx context.Context, lines []Line) []resolvedLine {
	out := make([]resolvedLine, 0, len(lines))
	for _, line := range lines {
		rl := resolvedLine{line: line}
		if reason := invalidLine(line); reason != "" {
			rl.failure = failed(line, enums.LineReasonInvalidLine, pkgerrors.New(pkgerrors.CodeValidation, reason))
			out = append(out, rl)
			continue
		}
		svc, err := m.catalogue.FindService(ctx, line.ServiceID)
		switch {
		case err == nil:
			rl.service = svc
		case pkgerrors.IsCode(err, pkgerrors.CodeNotFound):
			rl.failure = failed(line, enums.LineReasonServiceNotFound, err)
		default:
			rl.failure = failed(line, enums.LineReasonCatalogueUnavailable, err)
		}
		out = append(out, rl)
	}
	return out
}

// applyLines runs every line in its own savepoint so one failure leaves the
// rest of the order intact.
func (m *Materializer) applyLines(ctx context.Context, tx *gorm.DB, order *models.Order, userID uuid.UUID, lines []resolvedLine, now time.Time) []LineResult {
	report := make([]LineResult, 0, len(lines))
	for _, rl := range lines {
		if rl.failure != nil {
			m.logLineSkipped(ctx, order, *rl.failure)
			report = append(report, *rl.failure)
			continue
		}

		var result LineResult
		err := tx.Transaction(func(sp *gorm.DB) error {
			repo := m.repo.WithTx(sp)
			_, err := repo.FindItem(ctx, order.ID, rl.line.ServiceID)
			if err == nil {
				result = LineResult{Line: rl.line, Status: LineExisting}
				return nil
			}
			if !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
				return err
			}

			item := &models.OrderItem{
				OrderID:     order.ID,
				ServiceID:   rl.service.ID,
				ServiceName: snapshotName(rl.line, rl.service),
				Quantity:    rl.line.Quantity,
				UnitPrice:   rl.line.UnitPrice,
			}
			if err := repo.CreateItem(ctx, item); err != nil {
				if db.IsUniqueViolation(err, "") {
					result = LineResult{Line: rl.line, Status: LineExisting}
					return errLineExists
				}
				return err
			}
			issued, err := m.issuer.Issue(ctx, sp, *item, userID, now)
			if err != nil {
				return err
			}
			codes := make([]string, 0, len(issued))
			for _, v := range issued {
				codes = append(codes, v.Code)
			}
			result = LineResult{Line: rl.line, Status: LineCreated, VoucherCodes: codes}
			return nil
		})
		if errors.Is(err, errLineExists) {
			err = nil
		}
		if err != nil {
			result = *failed(rl.line, enums.LineReasonPersistFailed, err)
			m.logLineSkipped(ctx, order, result)
		}
		report = append(report, result)
	}
	return report
}

var errLineExists = errors.New("order line already applied")

func (m *Materializer) afterCommit(ctx context.Context, res *Result) {
	codes := res.VoucherCodes()
	if m.artifacts != nil && len(codes) > 0 {
		m.artifacts.BuildAll(ctx, codes)
	}
	if m.metrics == nil {
		return
	}
	m.metrics.VouchersIssued(len(codes))
	for _, lr := range res.FailedLines() {
		m.metrics.FailedLine(string(lr.Reason))
	}
}

func (m *Materializer) recordOrder(created bool) {
	if m.metrics != nil {
		m.metrics.OrderMaterialized(created)
	}
}

func (m *Materializer) logLineSkipped(ctx context.Context, order *models.Order, lr LineResult) {
	fields := map[string]any{
		"order_id":   order.ID.String(),
		"service_id": lr.Line.ServiceID.String(),
		"reason":     string(lr.Reason),
		"retryable":  lr.Retryable,
	}
	if lr.Err != nil {
		fields["error"] = lr.Err.Error()
	}
	m.logWarn(ctx, "materializer.line_skipped", fields)
}

func (m *Materializer) logInfo(ctx context.Context, msg string, fields map[string]any) {
	if m.logg != nil {
		m.logg.Info(m.logg.WithFields(ctx, fields), msg)
	}
}

func (m *Materializer) logWarn(ctx context.Context, msg string, fields map[string]any) {
	if m.logg != nil {
		m.logg.Warn(m.logg.WithFields(ctx, fields), msg)
	}
}

func validateInput(in Input) error {
	if in.UserID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	if strings.TrimSpace(in.PaymentSessionID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment session id required")
	}
	return nil
}

func invalidLine(l Line) string {
	switch {
	case l.ServiceID == uuid.Nil:
		return "service id required"
	case l.Quantity < 1:
		return "quantity must be at least 1"
	case l.UnitPrice.IsNegative():
		return "unit price must not be negative"
	}
	return ""
}

// mergeLines folds duplicate service ids into one line, keeping first-seen order.
func mergeLines(lines []Line) []Line {
	out := make([]Line, 0, len(lines))
	index := make(map[uuid.UUID]int, len(lines))
	for _, l := range lines {
		if l.ServiceID == uuid.Nil || l.Quantity < 1 {
			out = append(out, l)
			continue
		}
		if i, ok := index[l.ServiceID]; ok {
			out[i].Quantity += l.Quantity
			continue
		}
		index[l.ServiceID] = len(out)
		out = append(out, l)
	}
	return out
}

// paidTotal sums the snapshotted lines the customer was charged for.
func paidTotal(lines []resolvedLine) decimal.Decimal {
	total := decimal.Zero
	for _, rl := range lines {
		if invalidLine(rl.line) != "" {
			continue
		}
		total = total.Add(rl.line.Total())
	}
	return total.Round(2)
}

func snapshotName(l Line, svc *models.Service) string {
	if name := strings.TrimSpace(l.Name); name != "" {
		return name
	}
	return svc.Name
}

func failed(l Line, reason enums.LineFailureReason, err error) *LineResult {
	return &LineResult{
		Line:      l,
		Status:    LineFailed,
		Reason:    reason,
		Retryable: reason.Retryable(),
		Err:       err,
	}
}

func countVouchers(report []LineResult) int {
	n := 0
	for _, lr := range report {
		n += len(lr.VoucherCodes)
	}
	return n
}

func countFailed(report []LineResult) int {
	n := 0
	for _, lr := range report {
		if lr.Status == LineFailed {
			n++
		}
	}
	return n
}
