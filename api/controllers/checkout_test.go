package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/pawpass-backend/api/middleware"
	checkoutsvc "github.com/angelmondragon/pawpass-backend/internal/checkout"
	"github.com/angelmondragon/pawpass-backend/pkg/db/models"
	"github.com/angelmondragon/pawpass-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/pawpass-backend/pkg/errors"
)

type stubCheckout struct {
	gotUser    uuid.UUID
	gotCart    string
	gotSession string
	result     *checkoutsvc.Reconciliation
	err        error
}

func (s *stubCheckout) CreateSession(_ context.Context, userID uuid.UUID, cartSession string) (*checkoutsvc.Session, error) {
	s.gotUser = userID
	s.gotCart = cartSession
	if s.err != nil {
		return nil, s.err
	}
	return &checkoutsvc.Session{ID: "cs_test_1", URL: "https://checkout.stripe.com/c/pay/cs_test_1"}, nil
}

func (s *stubCheckout) Reconcile(_ context.Context, sessionID string, userID uuid.UUID) (*checkoutsvc.Reconciliation, error) {
	s.gotUser = userID
	s.gotSession = sessionID
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

func withCustomer(r *http.Request, userID uuid.UUID) *http.Request {
	ctx := middleware.WithActor(r.Context(), userID, enums.RoleCustomer)
	ctx = middleware.WithCartSession(ctx, "cart-1")
	return r.WithContext(ctx)
}

func TestCheckoutCreateReturnsSession(t *testing.T) {
	svc := &stubCheckout{}
	userID := uuid.New()

	resp := httptest.NewRecorder()
	CheckoutCreate(svc, nil).ServeHTTP(resp, withCustomer(httptest.NewRequest(http.MethodPost, "/api/v1/checkout", nil), userID))

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d (%s)", resp.Code, resp.Body.String())
	}
	if svc.gotUser != userID || svc.gotCart != "cart-1" {
		t.Fatalf("unexpected inputs user=%s cart=%q", svc.gotUser, svc.gotCart)
	}
	var envelope struct {
		Data checkoutsvc.Session `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if envelope.Data.ID != "cs_test_1" || envelope.Data.URL == "" {
		t.Fatalf("unexpected session %+v", envelope.Data)
	}
}

func TestCheckoutCreateEmptyCart(t *testing.T) {
	svc := &stubCheckout{err: pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")}

	resp := httptest.NewRecorder()
	CheckoutCreate(svc, nil).ServeHTTP(resp, withCustomer(httptest.NewRequest(http.MethodPost, "/api/v1/checkout", nil), uuid.New()))

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestCheckoutCreateRequiresActor(t *testing.T) {
	resp := httptest.NewRecorder()
	CheckoutCreate(&stubCheckout{}, nil).ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/api/v1/checkout", nil))

	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestCheckoutSuccessRequiresSessionID(t *testing.T) {
	resp := httptest.NewRecorder()
	CheckoutSuccess(&stubCheckout{}, nil).ServeHTTP(resp, withCustomer(httptest.NewRequest(http.MethodGet, "/api/v1/checkout/success", nil), uuid.New()))

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestCheckoutSuccessRendersOrder(t *testing.T) {
	userID := uuid.New()
	sessionID := "cs_test_1"
	serviceID := uuid.New()
	order := &models.Order{
		ID:               uuid.New(),
		UserID:           userID,
		PaymentSessionID: &sessionID,
		IsPaid:           true,
		TotalAmount:      decimal.RequireFromString("25.00"),
		Currency:         "eur",
		Items: []models.OrderItem{{
			ServiceID:   serviceID,
			ServiceName: "Dog walk",
			Quantity:    2,
			UnitPrice:   decimal.RequireFromString("12.50"),
			Vouchers:    []models.Voucher{{Code: "ABCD2345"}, {Code: "EFGH6789"}},
		}},
	}
	svc := &stubCheckout{result: &checkoutsvc.Reconciliation{
		Status:    checkoutsvc.StatusPaid,
		SessionID: sessionID,
		Order:     order,
		Created:   true,
	}}

	resp := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/checkout/success?session_id="+sessionID, nil)
	CheckoutSuccess(svc, nil).ServeHTTP(resp, withCustomer(req, userID))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d (%s)", resp.Code, resp.Body.String())
	}
	if svc.gotSession != sessionID || svc.gotUser != userID {
		t.Fatalf("unexpected reconcile inputs %q %s", svc.gotSession, svc.gotUser)
	}
	var envelope struct {
		Data struct {
			Status  string        `json:"status"`
			Created bool          `json:"created"`
			Order   orderResponse `json:"order"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if envelope.Data.Status != checkoutsvc.StatusPaid || !envelope.Data.Created {
		t.Fatalf("unexpected result %+v", envelope.Data)
	}
	if envelope.Data.Order.Total != "25.00" || len(envelope.Data.Order.Items) != 1 {
		t.Fatalf("unexpected order %+v", envelope.Data.Order)
	}
	item := envelope.Data.Order.Items[0]
	if item.LineTotal != "25.00" || len(item.VoucherCodes) != 2 {
		t.Fatalf("unexpected item %+v", item)
	}
}

func TestCheckoutSuccessPendingHasNoOrder(t *testing.T) {
	svc := &stubCheckout{result: &checkoutsvc.Reconciliation{Status: checkoutsvc.StatusPending, SessionID: "cs_test_2"}}

	resp := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/checkout/success?session_id=cs_test_2", nil)
	CheckoutSuccess(svc, nil).ServeHTTP(resp, withCustomer(req, uuid.New()))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	var envelope struct {
		Data map[string]any `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, ok := envelope.Data["order"]; ok {
		t.Fatalf("pending reconciliation must not include an order: %+v", envelope.Data)
	}
	if envelope.Data["status"] != checkoutsvc.StatusPending {
		t.Fatalf("unexpected status %v", envelope.Data["status"])
	}
}

func TestCheckoutSuccessForeignSession(t *testing.T) {
	svc := &stubCheckout{err: pkgerrors.New(pkgerrors.CodeForbidden, "checkout session belongs to another user")}

	resp := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/checkout/success?session_id=cs_test_3", nil)
	CheckoutSuccess(svc, nil).ServeHTTP(resp, withCustomer(req, uuid.New()))

	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", resp.Code)
	}
}
