package chain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	ErrInvalidAddress    = errors.New("invalid wallet address")
	ErrInvalidSignature  = errors.New("invalid signature")
	ErrSignatureMismatch = errors.New("signature does not match wallet")
)

// NormalizeAddress validates a hex address and returns it lowercased.
func NormalizeAddress(addr string) (string, error) {
	if !common.IsHexAddress(addr) {
		return "", ErrInvalidAddress
	}
	return strings.ToLower(common.HexToAddress(addr).Hex()), nil
}

// LoginMessage is the text a wallet signs to authenticate.
func LoginMessage(domain, wallet string) string {
	return fmt.Sprintf("%s login: %s", domain, strings.ToLower(wallet))
}

// RecoverPersonalSign returns the address that produced an EIP-191
// personal_sign signature over message.
func RecoverPersonalSign(message, signatureHex string) (common.Address, error) {
	sig, err := hexutil.Decode(signatureHex)
	if err != nil || len(sig) != crypto.SignatureLength {
		return common.Address{}, ErrInvalidSignature
	}

	// Wallets emit V as 27/28, SigToPub expects 0/1.
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}

	pub, err := crypto.SigToPub(accounts.TextHash([]byte(message)), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// VerifyPersonalSign checks that signatureHex over message was produced by wallet.
func VerifyPersonalSign(wallet, message, signatureHex string) error {
	recovered, err := RecoverPersonalSign(message, signatureHex)
	if err != nil {
		return err
	}
	if !strings.EqualFold(recovered.Hex(), wallet) {
		return ErrSignatureMismatch
	}
	return nil
}
