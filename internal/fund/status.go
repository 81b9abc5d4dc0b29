package fund

import (
	"time"

	"github.com/ethereum/go-ethereum/common"

	"DCAKeeper/internal/model"
)

// Status is a consistent read of the whole vault, rendered for display.
type Status struct {
	Owner           string            `json:"owner"`
	Mode            model.Mode        `json:"mode"`
	SourceAsset     string            `json:"source_asset"`
	DestAsset       string            `json:"dest_asset,omitempty"`
	Recipient       string            `json:"recipient,omitempty"`
	Amount          string            `json:"amount"`
	IntervalSeconds int64             `json:"interval_seconds"`
	LastTimestamp   int64             `json:"last_timestamp"`
	NextDue         int64             `json:"next_due,omitempty"`
	State           string            `json:"state"`
	TotalFunds      string            `json:"total_funds"`
	Users           int               `json:"users"`
	Holdings        map[string]string `json:"holdings"`
}

// Status takes a snapshot under a single lock.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	c := m.state
	now := m.now()
	st := Status{
		Owner:           c.policy.Owner().Hex(),
		Mode:            m.settings.Mode,
		SourceAsset:     m.settings.SourceAsset.Hex(),
		Amount:          c.policy.Amount().Dec(),
		IntervalSeconds: int64(c.clock.Interval() / time.Second),
		LastTimestamp:   c.clock.LastTimestamp(),
		State:           c.clock.Evaluate(now, c.ledger.Total()).String(),
		TotalFunds:      c.ledger.Total().Dec(),
		Users:           c.ledger.Len(),
		Holdings:        make(map[string]string),
	}
	if m.settings.Mode == model.ModeSwap {
		st.DestAsset = m.settings.DestAsset.Hex()
	}
	if (m.settings.Recipient != common.Address{}) {
		st.Recipient = m.settings.Recipient.Hex()
	}
	if st.LastTimestamp != 0 {
		st.NextDue = st.LastTimestamp + st.IntervalSeconds
	}
	for asset, v := range c.holdings.Assets() {
		st.Holdings[asset.Hex()] = v.Dec()
	}
	return st
}
