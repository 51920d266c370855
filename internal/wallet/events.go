package wallet

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"
)

// AccountsChanged is published when the wallet's authorized accounts change.
type AccountsChanged struct {
	Accounts []common.Address
}

// ChainChanged is published when the wallet switches network.
type ChainChanged struct {
	ChainID int64
}

// Events fans wallet notifications out to subscribers. The zero value is
// ready to use. Publish blocks until every subscriber has received the
// event, so subscribers should use buffered channels.
type Events struct {
	accounts event.Feed
	chains   event.Feed
}

// NewEvents returns an empty event source.
func NewEvents() *Events { return &Events{} }

func (e *Events) SubscribeAccountsChanged(ch chan<- AccountsChanged) event.Subscription {
	return e.accounts.Subscribe(ch)
}

func (e *Events) SubscribeChainChanged(ch chan<- ChainChanged) event.Subscription {
	return e.chains.Subscribe(ch)
}

// PublishAccountsChanged returns the number of subscribers notified.
func (e *Events) PublishAccountsChanged(accounts []common.Address) int {
	return e.accounts.Send(AccountsChanged{Accounts: accounts})
}

// PublishChainChanged returns the number of subscribers notified.
func (e *Events) PublishChainChanged(chainID int64) int {
	return e.chains.Send(ChainChanged{ChainID: chainID})
}
