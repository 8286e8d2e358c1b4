package domain

import "time"

// ChannelPrefs is the per-channel enable/disable switch for one notification
// type, plus an optional minimum-amount threshold: when MinAmount > 0, only
// notifications whose payload amount meets it are delivered.
type ChannelPrefs struct {
	Push      bool    `json:"push"`
	Email     bool    `json:"email"`
	SMS       bool    `json:"sms"`
	MinAmount float64 `json:"min_amount,omitempty"`
}

// Enabled reports whether the channel is switched on.
// The websocket channel ignores preferences: in-app delivery is always on.
func (p ChannelPrefs) Enabled(ch Channel) bool {
	switch ch {
	case ChannelPush:
		return p.Push
	case ChannelEmail:
		return p.Email
	case ChannelSMS:
		return p.SMS
	case ChannelWebsocket:
		return true
	}
	return false
}

// Preferences is the per-user notification configuration. Created lazily
// with defaults on first access; mutated only via explicit update.
type Preferences struct {
	UserID    string                             `json:"user_id"`
	Types     map[NotificationType]ChannelPrefs  `json:"types"`
	UpdatedAt time.Time                          `json:"updated_at"`
}

// Allows applies the preference gate for a (type, channel) pair.
// Unknown types fall back to enabled on push and email, matching the
// default matrix. amount is compared against MinAmount when set.
func (p *Preferences) Allows(t NotificationType, ch Channel, amount float64) bool {
	cp, ok := p.Types[t]
	if !ok {
		cp = ChannelPrefs{Push: true, Email: true}
	}
	if !cp.Enabled(ch) {
		return false
	}
	if cp.MinAmount > 0 && amount > 0 && amount < cp.MinAmount {
		return false
	}
	return true
}

// DefaultPreferences is the matrix a user starts with: SMS is opt-in except
// for security alerts, market news is email-only.
func DefaultPreferences(userID string) *Preferences {
	return &Preferences{
		UserID: userID,
		Types: map[NotificationType]ChannelPrefs{
			TypeTransactionAlert: {Push: true, Email: true},
			TypeBudgetAlert:      {Push: true, Email: true},
			TypeInvestmentUpdate: {Push: true, Email: true},
			TypeSecurityAlert:    {Push: true, Email: true, SMS: true},
			TypeMarketNews:       {Email: true},
			TypePaymentReminder:  {Push: true, Email: true},
			TypeGoalMilestone:    {Push: true, Email: true},
			TypeSystem:           {Push: true, Email: true},
		},
		UpdatedAt: time.Now().UTC(),
	}
}
