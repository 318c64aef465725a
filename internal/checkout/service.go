package checkout

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/pawpass-backend/internal/cart"
	"github.com/angelmondragon/pawpass-backend/internal/orders"
	pkgcheckout "github.com/angelmondragon/pawpass-backend/pkg/checkout"
	"github.com/angelmondragon/pawpass-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/pawpass-backend/pkg/errors"
	"github.com/angelmondragon/pawpass-backend/pkg/logger"
)

// Reconciliation statuses reported to the success page.
const (
	StatusPaid    = "paid"
	StatusPending = "pending"
	StatusUnpaid  = "unpaid"
)

type cartReader interface {
	View(ctx context.Context, sessionID string) (*cart.View, error)
}

type orderFinder interface {
	FindBySession(ctx context.Context, paymentSessionID string) (*models.Order, error)
}

type materializer interface {
	Materialize(ctx context.Context, in orders.Input) (*orders.Result, error)
}

type lineFailureRecorder interface {
	RecordLineFailures(ctx context.Context, in orders.Input, res *orders.Result) error
}

type ServiceParams struct {
	Carts        cartReader
	Sessions     SessionAPI
	Orders       orderFinder
	Materializer materializer
	DeadLetters  lineFailureRecorder
	BaseURL      string
	Currency     string
	Logger       *logger.Logger
}

// Service opens provider checkout sessions for carts and reconciles them when
// the customer returns.
type Service struct {
	carts        cartReader
	sessions     SessionAPI
	orders       orderFinder
	materializer materializer
	deadLetters  lineFailureRecorder
	baseURL      string
	currency     string
	logg         *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Carts == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "cart service required")
	}
	if params.Sessions == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "checkout session api required")
	}
	if params.Orders == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "orders repository required")
	}
	if params.Materializer == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "materializer required")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(params.BaseURL), "/")
	if baseURL == "" {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "base url required")
	}
	currency := strings.ToLower(strings.TrimSpace(params.Currency))
	if currency == "" {
		currency = "eur"
	}
	return &Service{
		carts:        params.Carts,
		sessions:     params.Sessions,
		orders:       params.Orders,
		materializer: params.Materializer,
		deadLetters:  params.DeadLetters,
		baseURL:      baseURL,
		currency:     currency,
		logg:         params.Logger,
	}, nil
}

// Session is the provider checkout the customer is redirected to.
type Session struct {
	ID  string `json:"session_id"`
	URL string `json:"url"`
}

// Reconciliation is the outcome of a success-page visit.
type Reconciliation struct {
	Status      string
	SessionID   string
	Order       *models.Order
	Created     bool
	FailedLines int
}

// CreateSession snapshots the cart into checkout metadata and opens a provider
// session for it. The cart itself is left untouched.
func (s *Service) CreateSession(ctx context.Context, userID uuid.UUID, cartSession string) (*Session, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	view, err := s.carts.View(ctx, cartSession)
	if err != nil {
		return nil, err
	}
	if view.IsEmpty() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
	}

	meta := pkgcheckout.Metadata{UserID: userID, CartSession: cartSession}
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(s.baseURL + "/api/v1/checkout/success?session_id={CHECKOUT_SESSION_ID}"),
		CancelURL:         stripe.String(s.baseURL + "/api/v1/cart"),
		ClientReferenceID: stripe.String(userID.String()),
	}
	for _, line := range view.Lines {
		meta.Items = append(meta.Items, pkgcheckout.LineSnapshot{
			ID:       line.ServiceID,
			Name:     line.Name,
			Price:    line.UnitPrice,
			Quantity: line.Quantity,
		})
		params.LineItems = append(params.LineItems, &stripe.CheckoutSessionLineItemParams{
			Quantity: stripe.Int64(int64(line.Quantity)),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(s.currency),
				UnitAmount: stripe.Int64(line.UnitPrice.Shift(2).Round(0).IntPart()),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(line.Name),
				},
			},
		})
	}

	encoded, err := meta.Encode()
	if err != nil {
		return nil, metadataValidation(err)
	}
	for key, value := range encoded {
		params.AddMetadata(key, value)
	}

	sess, err := s.sessions.Create(ctx, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create checkout session")
	}
	if s.logg != nil {
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"payment_session_id": sess.ID,
			"lines":              len(view.Lines),
			"total":              view.Total.StringFixed(2),
		}), "checkout.session_created")
	}
	return &Session{ID: sess.ID, URL: sess.URL}, nil
}

// Reconcile reports the state of a checkout session owned by userID and
// materializes the order when the provider confirms payment but the webhook
// has not been processed yet.
func (s *Service) Reconcile(ctx context.Context, sessionID string, userID uuid.UUID) (*Reconciliation, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "session_id is required")
	}
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.HTTPStatusCode == http.StatusNotFound {
			return nil, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "checkout session not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fetch checkout session")
	}

	meta, err := pkgcheckout.Parse(sess.Metadata)
	if err != nil {
		return nil, metadataValidation(err)
	}
	if meta.UserID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "checkout session belongs to another user")
	}

	out := &Reconciliation{SessionID: sessionID}
	if sess.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
		out.Status = StatusUnpaid
		if sess.Status == stripe.CheckoutSessionStatusComplete {
			// completed but funds not captured yet (delayed payment methods)
			out.Status = StatusPending
		}
		return out, nil
	}

	out.Status = StatusPaid
	order, err := s.orders.FindBySession(ctx, sessionID)
	if err == nil {
		out.Order = order
		return out, nil
	}
	if !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		return nil, err
	}

	in := MaterializeInput(sessionID, string(sess.Currency), meta, s.currency)
	res, err := s.materializer.Materialize(ctx, in)
	if err != nil {
		return nil, err
	}
	out.Order = res.Order
	out.Created = res.Created
	out.FailedLines = len(res.FailedLines())
	if res.Created && out.FailedLines > 0 && s.deadLetters != nil {
		if err := s.deadLetters.RecordLineFailures(ctx, in, res); err != nil && s.logg != nil {
			s.logg.Error(ctx, "checkout.record_line_failures", err)
		}
	}
	return out, nil
}

// MaterializeInput converts parsed checkout metadata into materializer input.
func MaterializeInput(sessionID, sessionCurrency string, meta *pkgcheckout.Metadata, fallbackCurrency string) orders.Input {
	currency := strings.ToLower(strings.TrimSpace(sessionCurrency))
	if currency == "" {
		currency = fallbackCurrency
	}
	lines := make([]orders.Line, 0, len(meta.Items))
	for _, item := range meta.Items {
		lines = append(lines, orders.Line{
			ServiceID: item.ID,
			Name:      item.Name,
			UnitPrice: item.Price,
			Quantity:  item.Quantity,
		})
	}
	return orders.Input{
		UserID:           meta.UserID,
		PaymentSessionID: sessionID,
		Currency:         currency,
		Lines:            lines,
		CartSession:      meta.CartSession,
	}
}

func metadataValidation(err error) error {
	var metaErr *pkgcheckout.MetadataError
	if errors.As(err, &metaErr) {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "checkout metadata invalid").WithDetails(map[string]any{
			"key":    metaErr.Key,
			"reason": metaErr.Reason,
		})
	}
	return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "checkout metadata invalid")
}
