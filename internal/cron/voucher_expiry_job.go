package cron

import (
	"context"
	"fmt"

	"github.com/angelmondragon/pawpass-backend/pkg/logger"
)

type voucherExpirer interface {
	ExpireDue(ctx context.Context) (int64, error)
}

type voucherExpiryJob struct {
	logg     *logger.Logger
	vouchers voucherExpirer
}

// NewVoucherExpiryJob persists ISSUED -> EXPIRED for vouchers past their expiry.
func NewVoucherExpiryJob(logg *logger.Logger, vouchers voucherExpirer) (Job, error) {
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if vouchers == nil {
		return nil, fmt.Errorf("voucher service required")
	}
	return &voucherExpiryJob{logg: logg, vouchers: vouchers}, nil
}

func (j *voucherExpiryJob) Name() string { return "voucher_expiry" }

func (j *voucherExpiryJob) Run(ctx context.Context) error {
	expired, err := j.vouchers.ExpireDue(ctx)
	if err != nil {
		return fmt.Errorf("expire vouchers: %w", err)
	}
	j.logg.Info(j.logg.WithField(ctx, "expired", expired), "cron.vouchers_expired")
	return nil
}
