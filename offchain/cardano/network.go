package cardano

import (
	"fmt"
	"strings"
)

// Network is a Cardano test network the service can mint on.
type Network uint8

const (
	NetworkPreview Network = iota + 1
	NetworkPreprod
)

// Both test networks share network id 0 in address headers.
const testnetID = 0

func ParseNetwork(s string) (Network, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "preview":
		return NetworkPreview, nil
	case "preprod":
		return NetworkPreprod, nil
	default:
		return 0, fmt.Errorf("unknown network %q (want Preview or Preprod)", s)
	}
}

func (n Network) String() string {
	switch n {
	case NetworkPreview:
		return "Preview"
	case NetworkPreprod:
		return "Preprod"
	default:
		return fmt.Sprintf("Network(%d)", uint8(n))
	}
}

func (n Network) Valid() bool { return n == NetworkPreview || n == NetworkPreprod }

// ID is the network id carried in the low nibble of Shelley address headers.
func (n Network) ID() byte { return testnetID }

// AddressHRP is the bech32 prefix of payment addresses on n.
func (n Network) AddressHRP() string { return "addr_test" }

func (n Network) MarshalText() ([]byte, error) { return []byte(n.String()), nil }

func (n *Network) UnmarshalText(b []byte) error {
	v, err := ParseNetwork(string(b))
	if err != nil {
		return err
	}
	*n = v
	return nil
}

// ExplorerTxURL links a transaction on cardanoscan.
func ExplorerTxURL(n Network, txHash string) string {
	return fmt.Sprintf("https://%s.cardanoscan.io/transaction/%s", strings.ToLower(n.String()), txHash)
}
