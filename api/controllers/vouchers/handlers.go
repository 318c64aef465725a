package vouchers

import (
	"context"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	voucherdto "github.com/angelmondragon/pawpass-backend/api/controllers/vouchers/dto"
	"github.com/angelmondragon/pawpass-backend/api/middleware"
	"github.com/angelmondragon/pawpass-backend/api/responses"
	vouchersvc "github.com/angelmondragon/pawpass-backend/internal/vouchers"
	"github.com/angelmondragon/pawpass-backend/pkg/auth"
	"github.com/angelmondragon/pawpass-backend/pkg/db/models"
	"github.com/angelmondragon/pawpass-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/pawpass-backend/pkg/errors"
	"github.com/angelmondragon/pawpass-backend/pkg/logger"
	"github.com/angelmondragon/pawpass-backend/pkg/types"
)

const (
	// WalletPath is where hidden or unknown vouchers send non-staff callers.
	WalletPath = "/api/v1/vouchers"

	noticeParam      = "notice"
	noticeNotVisible = "not_found"
	redeemedMessage  = "Voucher redeemed."
)

// walletNotices maps the notice keys redirects may carry to their text. Other
// values are dropped so a crafted link cannot put words on the page.
var walletNotices = map[string]string{
	noticeNotVisible: "We couldn't find that voucher in your wallet.",
}

type Service interface {
	Redeem(ctx context.Context, code string, actor auth.Actor) (*models.Voucher, error)
	View(ctx context.Context, code string, actor auth.Actor) (*vouchersvc.Details, error)
	Wallet(ctx context.Context, userID uuid.UUID) (*vouchersvc.Wallet, error)
	QRURL(ctx context.Context, code string, actor auth.Actor) (string, error)
}

// Wallet lists the caller's vouchers grouped by effective status. A known
// notice key tells redirected callers why they landed here.
func Wallet(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}
		wallet, err := svc.Wallet(r.Context(), actor.UserID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := voucherdto.Wallet{
			Active:   newVoucherList(wallet.Active, enums.VoucherStatusIssued),
			Redeemed: newVoucherList(wallet.Redeemed, enums.VoucherStatusRedeemed),
			Expired:  newVoucherList(wallet.Expired, enums.VoucherStatusExpired),
		}
		if message, ok := walletNotices[r.URL.Query().Get(noticeParam)]; ok {
			out.Notice = &types.Notice{Level: types.NoticeWarning, Message: message}
		}
		responses.WriteSuccess(w, out)
	}
}

// Detail shows a voucher to its owner or to staff.
func Detail(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}
		code := chi.URLParam(r, "code")
		details, err := svc.View(r.Context(), code, actor)
		if err != nil {
			writeViewError(w, r, logg, actor, err)
			return
		}
		responses.WriteSuccess(w, voucherdto.Detail{
			Voucher:   newVoucher(details.Voucher, details.Status),
			QRURL:     "/voucher/" + details.Voucher.Code + "/qr",
			CanRedeem: details.CanRedeem,
		})
	}
}

// QR redirects to the stored QR image, regenerating it when missing.
func QR(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}
		target, err := svc.QRURL(r.Context(), chi.URLParam(r, "code"), actor)
		if err != nil {
			writeViewError(w, r, logg, actor, err)
			return
		}
		http.Redirect(w, r, target, http.StatusFound)
	}
}

// RedeemConfirm is the staff confirmation view shown before redeeming.
func RedeemConfirm(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}
		details, err := svc.View(r.Context(), chi.URLParam(r, "code"), actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, voucherdto.Detail{
			Voucher:   newVoucher(details.Voucher, details.Status),
			QRURL:     "/voucher/" + details.Voucher.Code + "/qr",
			CanRedeem: details.CanRedeem,
		})
	}
}

// Redeem performs the ISSUED -> REDEEMED transition.
func Redeem(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}
		ctx := r.Context()
		code := chi.URLParam(r, "code")
		if logg != nil {
			ctx = logg.WithField(ctx, "voucher_code", code)
		}
		v, err := svc.Redeem(ctx, code, actor)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if logg != nil {
			logg.Info(ctx, "voucher.redeemed")
		}
		responses.WriteSuccess(w, voucherdto.RedeemResult{
			Voucher: newVoucher(*v, enums.VoucherStatusRedeemed),
			Message: redeemedMessage,
		})
	}
}

func requireActor(w http.ResponseWriter, r *http.Request, logg *logger.Logger) (auth.Actor, bool) {
	actor, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required"))
		return auth.Actor{}, false
	}
	return actor, true
}

// writeViewError sends non-staff callers back to their wallet for unknown and
// foreign vouchers alike.
func writeViewError(w http.ResponseWriter, r *http.Request, logg *logger.Logger, actor auth.Actor, err error) {
	if !actor.IsStaff() && pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		q := url.Values{}
		q.Set(noticeParam, noticeNotVisible)
		http.Redirect(w, r, WalletPath+"?"+q.Encode(), http.StatusSeeOther)
		return
	}
	responses.WriteError(r.Context(), logg, w, err)
}
