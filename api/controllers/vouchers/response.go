package vouchers

import (
	voucherdto "github.com/angelmondragon/pawpass-backend/api/controllers/vouchers/dto"
	"github.com/angelmondragon/pawpass-backend/pkg/db/models"
	"github.com/angelmondragon/pawpass-backend/pkg/enums"
)

func newVoucher(v models.Voucher, status enums.VoucherStatus) voucherdto.Voucher {
	out := voucherdto.Voucher{
		Code:       v.Code,
		Status:     string(status),
		ServiceID:  v.ServiceID,
		IssuedAt:   v.IssuedAt,
		ExpiresAt:  v.ExpiresAt,
		RedeemedAt: v.RedeemedAt,
	}
	if v.Service != nil {
		out.ServiceName = v.Service.Name
	}
	return out
}

func newVoucherList(rows []models.Voucher, status enums.VoucherStatus) []voucherdto.Voucher {
	out := make([]voucherdto.Voucher, 0, len(rows))
	for _, v := range rows {
		out = append(out, newVoucher(v, status))
	}
	return out
}
