package vouchers

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/pawpass-backend/internal/testdb"
	"github.com/angelmondragon/pawpass-backend/pkg/auth"
	"github.com/angelmondragon/pawpass-backend/pkg/db"
	"github.com/angelmondragon/pawpass-backend/pkg/db/models"
	"github.com/angelmondragon/pawpass-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/pawpass-backend/pkg/errors"
	"github.com/angelmondragon/pawpass-backend/pkg/outbox"
)

type fixture struct {
	db       *gorm.DB
	svc      *Service
	repo     *Repository
	issuer   *Issuer
	owner    models.User
	staff    models.User
	service  models.Service
	item     models.OrderItem
	now      time.Time
	recorder *fakeRecorder
}

type fakeRecorder struct {
	outcomes []string
	expired  int64
}

func (f *fakeRecorder) Redemption(outcome string) { f.outcomes = append(f.outcomes, outcome) }
func (f *fakeRecorder) VouchersExpired(n int64)   { f.expired += n }

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn := testdb.Open(t)
	repo := NewRepository(conn)
	rec := &fakeRecorder{}
	blobs := newMemoryBlobs()
	builder, err := NewArtifactBuilder(blobs, "https://pawpass.example", nil)
	require.NoError(t, err)

	svc, err := NewService(ServiceParams{
		Repo:      repo,
		Tx:        db.FromGorm(conn),
		Outbox:    outbox.NewService(outbox.NewRepository(conn), nil),
		Artifacts: builder,
		Metrics:   rec,
	})
	require.NoError(t, err)
	now := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	owner := testdb.SeedUser(t, conn, enums.RoleCustomer)
	staff := testdb.SeedUser(t, conn, enums.RoleStaff)
	service := testdb.SeedService(t, conn, "Dog walk", "12.50", true)

	session := "cs_test_" + uuid.NewString()
	order := models.Order{
		UserID:           owner.ID,
		PaymentSessionID: &session,
		IsPaid:           true,
		TotalAmount:      decimal.RequireFromString("25.00"),
		Currency:         "eur",
	}
	require.NoError(t, conn.Create(&order).Error)
	item := models.OrderItem{
		OrderID:     order.ID,
		ServiceID:   service.ID,
		ServiceName: service.Name,
		Quantity:    2,
		UnitPrice:   service.Price,
	}
	require.NoError(t, conn.Create(&item).Error)

	return &fixture{
		db:       conn,
		svc:      svc,
		repo:     repo,
		issuer:   NewIssuer(repo, 18, 5),
		owner:    owner,
		staff:    staff,
		service:  service,
		item:     item,
		now:      now,
		recorder: rec,
	}
}

func (f *fixture) issue(t *testing.T, issuedAt time.Time) []models.Voucher {
	t.Helper()
	vouchers, err := f.issuer.Issue(context.Background(), f.db, f.item, f.owner.ID, issuedAt)
	require.NoError(t, err)
	return vouchers
}

func (f *fixture) staffActor() auth.Actor {
	return auth.Actor{UserID: f.staff.ID, Role: enums.RoleStaff}
}

func (f *fixture) ownerActor() auth.Actor {
	return auth.Actor{UserID: f.owner.ID, Role: enums.RoleCustomer}
}

func countOutbox(t *testing.T, conn *gorm.DB, eventType enums.OutboxEventType) int64 {
	t.Helper()
	var n int64
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Where("event_type = ?", eventType).Count(&n).Error)
	return n
}

func TestIssueCreatesOneVoucherPerUnit(t *testing.T) {
	f := newFixture(t)
	vouchers := f.issue(t, f.now)

	require.Len(t, vouchers, 2)
	for _, v := range vouchers {
		assert.Equal(t, enums.VoucherStatusIssued, v.Status)
		assert.Equal(t, QRKey(v.Code), v.QRAssetKey)
		assert.True(t, v.ExpiresAt.Equal(f.now.AddDate(0, 18, 0)))
	}
	assert.NotEqual(t, vouchers[0].Code, vouchers[1].Code)
}

func TestIssueRegeneratesOnCodeCollision(t *testing.T) {
	f := newFixture(t)
	first := f.issue(t, f.now)[0]

	codes := []string{first.Code, first.Code, "ZZZZZZZZZZZZZZZZ"}
	f.issuer.generate = func() (string, error) {
		next := codes[0]
		codes = codes[1:]
		return next, nil
	}
	item := f.item
	item.Quantity = 1
	out, err := f.issuer.Issue(context.Background(), f.db, item, f.owner.ID, f.now)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "ZZZZZZZZZZZZZZZZ", out[0].Code)
}

func TestIssueGivesUpAfterRetryBound(t *testing.T) {
	f := newFixture(t)
	first := f.issue(t, f.now)[0]
	f.issuer.generate = func() (string, error) { return first.Code, nil }
	item := f.item
	item.Quantity = 1

	_, err := f.issuer.Issue(context.Background(), f.db, item, f.owner.ID, f.now)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInternal))
}

func TestRedeemByStaffSucceedsOnceAndEmitsEvent(t *testing.T) {
	f := newFixture(t)
	v := f.issue(t, f.now)[0]

	redeemed, err := f.svc.Redeem(context.Background(), v.Code, f.staffActor())
	require.NoError(t, err)
	assert.Equal(t, enums.VoucherStatusRedeemed, redeemed.Status)
	require.NotNil(t, redeemed.RedeemedBy)
	assert.Equal(t, f.staff.ID, *redeemed.RedeemedBy)
	assert.Equal(t, int64(1), countOutbox(t, f.db, enums.EventVoucherRedeemed))

	_, err = f.svc.Redeem(context.Background(), v.Code, f.staffActor())
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeStateConflict, typed.Code())
	assert.Equal(t, ReasonAlreadyRedeemed, typed.Details().(map[string]any)["reason"])
	assert.Equal(t, int64(1), countOutbox(t, f.db, enums.EventVoucherRedeemed))
	assert.Equal(t, []string{"redeemed", ReasonAlreadyRedeemed}, f.recorder.outcomes)
}

func TestRedeemAcceptsLowercaseCode(t *testing.T) {
	f := newFixture(t)
	v := f.issue(t, f.now)[0]
	_, err := f.svc.Redeem(context.Background(), "  "+strings.ToLower(v.Code), f.staffActor())
	require.NoError(t, err)
}

func TestRedeemCheckOrder(t *testing.T) {
	f := newFixture(t)
	v := f.issue(t, f.now)[0]

	_, err := f.svc.Redeem(context.Background(), "ZZZZZZZZZZZZZZZZ", f.ownerActor())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound), "unknown code is NotFound even for customers")

	_, err = f.svc.Redeem(context.Background(), v.Code, f.ownerActor())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	stored, err := f.repo.FindByCode(context.Background(), v.Code)
	require.NoError(t, err)
	assert.Equal(t, enums.VoucherStatusIssued, stored.Status)
}

func TestRedeemPastExpiryPersistsExpired(t *testing.T) {
	f := newFixture(t)
	v := f.issue(t, f.now.AddDate(-2, 0, 0))[0]

	_, err := f.svc.Redeem(context.Background(), v.Code, f.staffActor())
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeStateConflict, typed.Code())
	assert.Equal(t, ReasonExpired, typed.Details().(map[string]any)["reason"])

	stored, err := f.repo.FindByCode(context.Background(), v.Code)
	require.NoError(t, err)
	assert.Equal(t, enums.VoucherStatusExpired, stored.Status)
	assert.Nil(t, stored.RedeemedAt)
}

func TestViewHidesForeignVouchers(t *testing.T) {
	f := newFixture(t)
	v := f.issue(t, f.now)[0]
	stranger := auth.Actor{UserID: uuid.New(), Role: enums.RoleCustomer}

	_, foreignErr := f.svc.View(context.Background(), v.Code, stranger)
	_, unknownErr := f.svc.View(context.Background(), "ZZZZZZZZZZZZZZZZ", stranger)
	require.Error(t, foreignErr)
	require.Error(t, unknownErr)
	assert.Equal(t, foreignErr.Error(), unknownErr.Error())

	owned, err := f.svc.View(context.Background(), v.Code, f.ownerActor())
	require.NoError(t, err)
	assert.False(t, owned.CanRedeem)

	staffView, err := f.svc.View(context.Background(), v.Code, f.staffActor())
	require.NoError(t, err)
	assert.True(t, staffView.CanRedeem)
	assert.Equal(t, "Dog walk", staffView.Voucher.Service.Name)
}

func TestWalletGroupsByEffectiveStatus(t *testing.T) {
	f := newFixture(t)
	fresh := f.issue(t, f.now)
	stale := f.issue(t, f.now.AddDate(-2, 0, 0))
	_, err := f.svc.Redeem(context.Background(), fresh[0].Code, f.staffActor())
	require.NoError(t, err)

	wallet, err := f.svc.Wallet(context.Background(), f.owner.ID)
	require.NoError(t, err)
	assert.Len(t, wallet.Active, 1)
	assert.Len(t, wallet.Redeemed, 1)
	assert.Len(t, wallet.Expired, len(stale))
}

func TestExpireDueSweepsAndEmitsSummary(t *testing.T) {
	f := newFixture(t)
	f.issue(t, f.now)
	f.issue(t, f.now.AddDate(-2, 0, 0))

	n, err := f.svc.ExpireDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, int64(1), countOutbox(t, f.db, enums.EventVouchersExpired))
	assert.Equal(t, int64(2), f.recorder.expired)

	n, err = f.svc.ExpireDue(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, int64(1), countOutbox(t, f.db, enums.EventVouchersExpired))
}

func TestQRURLRebuildsMissingArtifact(t *testing.T) {
	f := newFixture(t)
	v := f.issue(t, f.now)[0]

	url, err := f.svc.QRURL(context.Background(), v.Code, f.ownerActor())
	require.NoError(t, err)
	assert.Equal(t, "https://blobs.test/"+QRKey(v.Code), url)
}
