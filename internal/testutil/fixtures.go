package testutil

import (
	"fmt"
	"time"

	"helios.network/testnetapi/internal/entity"
)

// Epoch is the fixed start time used by service tests.
var Epoch = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// NewUser returns an unsaved user whose wallet is derived from n.
func NewUser(n int) *entity.User {
	return &entity.User{
		WalletAddress: Wallet(n),
		CreatedAt:     Epoch.Add(time.Duration(n) * time.Minute),
	}
}

// Wallet returns a deterministic lowercase wallet address.
func Wallet(n int) string {
	return fmt.Sprintf("0x%040x", n)
}
