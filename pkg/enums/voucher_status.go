package enums

// VoucherStatus tracks a voucher through redemption.
type VoucherStatus string

const (
	VoucherStatusIssued   VoucherStatus = "ISSUED"
	VoucherStatusRedeemed VoucherStatus = "REDEEMED"
	VoucherStatusExpired  VoucherStatus = "EXPIRED"
)

var voucherStatuses = []VoucherStatus{VoucherStatusIssued, VoucherStatusRedeemed, VoucherStatusExpired}

func (s VoucherStatus) String() string { return string(s) }

func (s VoucherStatus) IsValid() bool {
	_, err := ParseVoucherStatus(string(s))
	return err == nil
}

// IsTerminal reports whether no further transition is allowed.
func (s VoucherStatus) IsTerminal() bool {
	return s == VoucherStatusRedeemed || s == VoucherStatusExpired
}

func ParseVoucherStatus(value string) (VoucherStatus, error) {
	return parse("voucher status", value, voucherStatuses)
}
