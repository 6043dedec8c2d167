// Package event defines the wallet events the glue raises toward test
// clients, and the bus that fans them out.
package event

import "time"

// Kind names an observable wallet condition. Kinds are mutually
// exclusive at any single detection instant.
type Kind string

const (
	// KindRequestAccounts is the dapp connection prompt.
	KindRequestAccounts Kind = "requestaccounts"
	// KindSignMessage is the signature request screen.
	KindSignMessage Kind = "signmessage"
	// KindSendTransaction is the transaction confirmation screen.
	KindSendTransaction Kind = "sendtransaction"
	// KindAddEthereumChain is the add-network approval screen.
	KindAddEthereumChain Kind = "addethereumchain"
	// KindSwitchEthereumChain is the switch-network approval screen.
	KindSwitchEthereumChain Kind = "switchethereumchain"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindRequestAccounts, KindSignMessage, KindSendTransaction,
		KindAddEthereumChain, KindSwitchEthereumChain:
		return true
	}
	return false
}

// Event is a raised wallet condition with its correlation id. The id
// must accompany the command that eventually resolves it.
type Event struct {
	Kind          Kind
	CorrelationID string
	Timestamp     time.Time
	Data          map[string]any
}
