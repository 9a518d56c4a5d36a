package chain

import (
	"context"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimulatedSenderIsDeterministic(t *testing.T) {
	s := NewSimulatedSender()
	wallet := "0x00000000000000000000000000000000000000aa"

	r1, err := s.Send(context.Background(), wallet, "HLS", "helios-testnet", 80)
	require.NoError(t, err)
	r2, err := s.Send(context.Background(), strings.ToUpper(wallet[2:]), "HLS", "helios-testnet", 80)
	require.NoError(t, err)

	want := crypto.Keccak256Hash([]byte(wallet + "-HLS-80")).Hex()
	assert.Equal(t, want, r1.TransactionHash)
	assert.Len(t, r1.TransactionHash, 66)
	assert.NotEqual(t, r1.TransactionHash, r2.TransactionHash)
}

func TestSimulatedSenderHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewSimulatedSender().Send(ctx, "0x1", "HLS", "helios-testnet", 1)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "80", FormatAmount(80))
	assert.Equal(t, "0.1", FormatAmount(0.1))
}

func TestNormalizeAddress(t *testing.T) {
	got, err := NormalizeAddress("0xAbCdEf0123456789abcdef0123456789ABCDEF01")
	require.NoError(t, err)
	assert.Equal(t, "0xabcdef0123456789abcdef0123456789abcdef01", got)

	_, err = NormalizeAddress("0x123")
	assert.ErrorIs(t, err, ErrInvalidAddress)
}

func TestVerifyPersonalSign(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	wallet := strings.ToLower(crypto.PubkeyToAddress(key.PublicKey).Hex())
	message := LoginMessage("Helios Testnet", wallet)

	sig, err := crypto.Sign(accounts.TextHash([]byte(message)), key)
	require.NoError(t, err)
	sig[crypto.RecoveryIDOffset] += 27

	assert.NoError(t, VerifyPersonalSign(wallet, message, hexutil.Encode(sig)))

	other, err := crypto.GenerateKey()
	require.NoError(t, err)
	otherWallet := crypto.PubkeyToAddress(other.PublicKey).Hex()
	assert.ErrorIs(t, VerifyPersonalSign(otherWallet, message, hexutil.Encode(sig)), ErrSignatureMismatch)

	assert.ErrorIs(t, VerifyPersonalSign(wallet, message, "0xdeadbeef"), ErrInvalidSignature)
}

func TestStatsReaderWithoutRPC(t *testing.T) {
	r, err := NewStatsReader(context.Background(), "")
	require.NoError(t, err)
	_, err = r.NetworkStats(context.Background())
	assert.ErrorIs(t, err, ErrNoRPC)
}
