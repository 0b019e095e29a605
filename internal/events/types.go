package events

import "math/big"

type Deposited struct {
	Operator string   `json:"operator"`
	To       string   `json:"to"`
	Token    string   `json:"token"`
	Amount   *big.Int `json:"amount"`
	Referrer string   `json:"referrer,omitempty"`
}

type InstantWithdrawal struct {
	Operator string   `json:"operator"`
	From     string   `json:"from"`
	Token    string   `json:"token"`
	Amount   *big.Int `json:"amount"`
	Redeemed *big.Int `json:"redeemed"`
	ExitFee  *big.Int `json:"exit_fee"`
}

type TimelockedWithdrawal struct {
	Operator string   `json:"operator"`
	From     string   `json:"from"`
	Token    string   `json:"token"`
	Amount   *big.Int `json:"amount"`
	UnlockAt int64    `json:"unlock_at"`
}

type TimelockDeposited struct {
	Operator string   `json:"operator"`
	To       string   `json:"to"`
	Token    string   `json:"token"`
	Amount   *big.Int `json:"amount"`
}

type TimelockSwept struct {
	Holder string   `json:"holder"`
	Amount *big.Int `json:"amount"`
}

type CreditBurned struct {
	Holder string   `json:"holder"`
	Token  string   `json:"token"`
	Amount *big.Int `json:"amount"`
}

type CreditMinted struct {
	Holder string   `json:"holder"`
	Token  string   `json:"token"`
	Amount *big.Int `json:"amount"`
}

type ReserveWithdrawn struct {
	To     string   `json:"to"`
	Amount *big.Int `json:"amount"`
}

type Awarded struct {
	Winner string   `json:"winner"`
	Token  string   `json:"token"`
	Amount *big.Int `json:"amount"`
}

type AwardedExternalERC20 struct {
	Winner string   `json:"winner"`
	Token  string   `json:"token"`
	Amount *big.Int `json:"amount"`
}

type AwardedExternalERC721 struct {
	Winner     string   `json:"winner"`
	Collection string   `json:"collection"`
	TokenIDs   []string `json:"token_ids"`
}

type AwardStarted struct {
	Operator  string   `json:"operator"`
	RequestID string   `json:"request_id"`
	Award     *big.Int `json:"award"`
}

type AwardCompleted struct {
	RequestID    string   `json:"request_id"`
	RandomNumber *big.Int `json:"random_number"`
	Winners      []string `json:"winners"`
}

type NoWinner struct {
	RequestID string   `json:"request_id"`
	Award     *big.Int `json:"award"`
}

type AwardCancelled struct {
	RequestID string `json:"request_id"`
}

type ExternalAwardAdded struct {
	Token    string   `json:"token"`
	TokenIDs []string `json:"token_ids,omitempty"`
}

type DripClaimed struct {
	Holder    string   `json:"holder"`
	DripToken string   `json:"drip_token"`
	Amount    *big.Int `json:"amount"`
	Owed      *big.Int `json:"owed"`
}

type BalanceDripActivated struct {
	Source        string   `json:"source"`
	Measure       string   `json:"measure"`
	DripToken     string   `json:"drip_token"`
	RatePerSecond *big.Int `json:"rate_per_second"`
}

type BalanceDripDeactivated struct {
	Source    string `json:"source"`
	Measure   string `json:"measure"`
	DripToken string `json:"drip_token"`
}

type VolumeDripActivated struct {
	Source        string   `json:"source"`
	Measure       string   `json:"measure"`
	DripToken     string   `json:"drip_token"`
	Referral      bool     `json:"referral"`
	PeriodSeconds int64    `json:"period_seconds"`
	DripAmount    *big.Int `json:"drip_amount"`
}

type VolumeDripDeactivated struct {
	Source    string `json:"source"`
	Measure   string `json:"measure"`
	DripToken string `json:"drip_token"`
	Referral  bool   `json:"referral"`
}

type ConfigChanged struct {
	Setting string `json:"setting"`
	Value   string `json:"value"`
}

func (Deposited) EventName() string              { return "deposited" }
func (InstantWithdrawal) EventName() string      { return "instant_withdrawal" }
func (TimelockedWithdrawal) EventName() string   { return "timelocked_withdrawal" }
func (TimelockDeposited) EventName() string      { return "timelock_deposited" }
func (TimelockSwept) EventName() string          { return "timelock_swept" }
func (CreditBurned) EventName() string           { return "credit_burned" }
func (CreditMinted) EventName() string           { return "credit_minted" }
func (ReserveWithdrawn) EventName() string       { return "reserve_withdrawn" }
func (Awarded) EventName() string                { return "awarded" }
func (AwardedExternalERC20) EventName() string   { return "awarded_external_erc20" }
func (AwardedExternalERC721) EventName() string  { return "awarded_external_erc721" }
func (AwardStarted) EventName() string           { return "award_started" }
func (AwardCompleted) EventName() string         { return "award_completed" }
func (NoWinner) EventName() string               { return "no_winner" }
func (AwardCancelled) EventName() string         { return "award_cancelled" }
func (ExternalAwardAdded) EventName() string     { return "external_award_added" }
func (DripClaimed) EventName() string            { return "drip_claimed" }
func (BalanceDripActivated) EventName() string   { return "balance_drip_activated" }
func (BalanceDripDeactivated) EventName() string { return "balance_drip_deactivated" }
func (VolumeDripActivated) EventName() string    { return "volume_drip_activated" }
func (VolumeDripDeactivated) EventName() string  { return "volume_drip_deactivated" }
func (ConfigChanged) EventName() string          { return "config_changed" }
