package stake

import "errors"

var (
	ErrNilState             = errors.New("stake engine: state not configured")
	ErrInvalidAmount        = errors.New("stake engine: amount must not be negative")
	ErrInsufficientBalance  = errors.New("stake engine: insufficient balance")
	ErrTreasuryInsufficient = errors.New("stake engine: treasury cannot cover pending reward")
	ErrInvalidTreasury      = errors.New("stake engine: treasury address required")
	ErrInvalidRewardRate    = errors.New("stake engine: reward rate must not be negative")
)
