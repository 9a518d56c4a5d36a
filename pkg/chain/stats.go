package chain

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/ethclient"
)

// ErrNoRPC is returned when no RPC endpoint is configured.
var ErrNoRPC = errors.New("evm rpc endpoint is not configured")

// NetworkStats is a snapshot of the connected chain.
type NetworkStats struct {
	ChainID     string `json:"chain_id"`
	LatestBlock uint64 `json:"latest_block"`
	GasPrice    string `json:"gas_price_wei"`
}

// StatsReader reads live network information.
type StatsReader interface {
	NetworkStats(ctx context.Context) (NetworkStats, error)
}

type rpcStats struct {
	client *ethclient.Client
}

// NewStatsReader dials rpcURL once. An empty URL yields a reader that
// always returns ErrNoRPC.
func NewStatsReader(ctx context.Context, rpcURL string) (StatsReader, error) {
	if rpcURL == "" {
		return noRPC{}, nil
	}
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial evm rpc: %w", err)
	}
	return &rpcStats{client: client}, nil
}

func (r *rpcStats) NetworkStats(ctx context.Context) (NetworkStats, error) {
	chainID, err := r.client.ChainID(ctx)
	if err != nil {
		return NetworkStats{}, fmt.Errorf("chain id: %w", err)
	}
	block, err := r.client.BlockNumber(ctx)
	if err != nil {
		return NetworkStats{}, fmt.Errorf("block number: %w", err)
	}
	stats := NetworkStats{ChainID: chainID.String(), LatestBlock: block}

	// Gas price is informational; some testnet nodes do not serve it.
	if gas, err := r.client.SuggestGasPrice(ctx); err == nil {
		stats.GasPrice = gas.String()
	}
	return stats, nil
}

type noRPC struct{}

func (noRPC) NetworkStats(context.Context) (NetworkStats, error) {
	return NetworkStats{}, ErrNoRPC
}
