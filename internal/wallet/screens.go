// Package wallet binds the glue's generic detection and command
// machinery to the concrete MetaMask Android screens. Each screen is
// identified by a marker element (the approve button testID exported as
// an accessibility id) that is present iff the screen is showing.
package wallet

import "github.com/wallet-test-framework/glue-metamask-android/internal/event"

type screen struct {
	kind event.Kind
	// marker is present exactly when this screen is in front.
	marker  string
	approve string
	reject  string
	// fields maps payload keys to the accessibility ids of the
	// elements whose text carries them. Missing fields are omitted
	// from the payload rather than failing the detection.
	fields map[string]string
}

var screens = []screen{
	{
		kind:    event.KindRequestAccounts,
		marker:  "connect-approve-button",
		approve: "connect-approve-button",
		reject:  "connect-cancel-button",
		fields: map[string]string{
			"account": "account-address-text",
		},
	},
	{
		kind:    event.KindSignMessage,
		marker:  "request-signature-confirm-button",
		approve: "request-signature-confirm-button",
		reject:  "request-signature-cancel-button",
		fields: map[string]string{
			"message": "signature-request-message-text",
		},
	},
	{
		kind:    event.KindSendTransaction,
		marker:  "txn-confirm-send-button",
		approve: "txn-confirm-send-button",
		reject:  "txn-cancel-button",
		fields: map[string]string{
			"to":    "txn-to-address-text",
			"value": "txn-value-text",
		},
	},
	{
		kind:    event.KindAddEthereumChain,
		marker:  "add-network-approve-button",
		approve: "add-network-approve-button",
		reject:  "add-network-cancel-button",
		fields: map[string]string{
			"chainName": "network-name-text",
		},
	},
	{
		kind:    event.KindSwitchEthereumChain,
		marker:  "switch-network-approve-button",
		approve: "switch-network-approve-button",
		reject:  "switch-network-cancel-button",
		fields: map[string]string{
			"chainName": "network-name-text",
		},
	},
}

func screenFor(kind event.Kind) (screen, bool) {
	for _, sc := range screens {
		if sc.kind == kind {
			return sc, true
		}
	}
	return screen{}, false
}
