package chain

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
)

// Receipt is the outcome of a successful token send.
type Receipt struct {
	TransactionHash string
}

// Sender dispatches faucet tokens to a wallet.
type Sender interface {
	Send(ctx context.Context, wallet, token, chainID string, amount float64) (Receipt, error)
}

// SimulatedSender fabricates a deterministic transaction hash without
// touching any network.
type SimulatedSender struct{}

func NewSimulatedSender() *SimulatedSender {
	return &SimulatedSender{}
}

func (s *SimulatedSender) Send(ctx context.Context, wallet, token, chainID string, amount float64) (Receipt, error) {
	if err := ctx.Err(); err != nil {
		return Receipt{}, err
	}
	return Receipt{TransactionHash: SimulatedTxHash(wallet, token, amount)}, nil
}

// SimulatedTxHash is keccak256("<wallet>-<token>-<amount>") as 0x-hex.
func SimulatedTxHash(wallet, token string, amount float64) string {
	payload := fmt.Sprintf("%s-%s-%s", strings.ToLower(wallet), token, FormatAmount(amount))
	return crypto.Keccak256Hash([]byte(payload)).Hex()
}

// FormatAmount renders amount with the shortest exact decimal form.
func FormatAmount(amount float64) string {
	return strconv.FormatFloat(amount, 'f', -1, 64)
}
