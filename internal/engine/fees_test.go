package engine

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSplitFees(t *testing.T) {
	tests := []struct {
		name             string
		gross            int64
		feeBps           uint64
		referrerShareBps uint64
		total            string
		referrer         string
		protocol         string
		net              string
	}{
		{
			name:   "ten bps seventy thirty",
			gross:  10_000,
			feeBps: 10, referrerShareBps: 70,
			total: "10", referrer: "7", protocol: "3", net: "9990",
		},
		{
			name:   "rounding remainder goes to protocol",
			gross:  999,
			feeBps: 100, referrerShareBps: 50,
			// floor(999*100/10000) = 9, floor(9*50/100) = 4, protocol 5
			total: "9", referrer: "4", protocol: "5", net: "990",
		},
		{
			name:   "amount too small to fee",
			gross:  9,
			feeBps: 10, referrerShareBps: 70,
			total: "0", referrer: "0", protocol: "0", net: "9",
		},
		{
			name:   "full referrer share",
			gross:  10_000,
			feeBps: 250, referrerShareBps: 100,
			total: "250", referrer: "250", protocol: "0", net: "9750",
		},
		{
			name:   "zero rate",
			gross:  10_000,
			feeBps: 0, referrerShareBps: 70,
			total: "0", referrer: "0", protocol: "0", net: "10000",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := FeeConfig{
				Enabled:          true,
				Treasury:         treasuryAddr,
				FeeBps:           tt.feeBps,
				ReferrerShareBps: tt.referrerShareBps,
				ProtocolShareBps: 100 - tt.referrerShareBps,
			}
			split := splitFees(big.NewInt(tt.gross), cfg)

			require.Equal(t, tt.total, split.Total.String())
			require.Equal(t, tt.referrer, split.Referrer.String())
			require.Equal(t, tt.protocol, split.Protocol.String())
			require.Equal(t, tt.net, split.Net.String())

			// The split is always exact, nothing is minted or destroyed.
			sum := new(big.Int).Add(split.Referrer, split.Protocol)
			require.Equal(t, split.Total.String(), sum.String())
			require.Equal(t, big.NewInt(tt.gross).String(), sum.Add(sum, split.Net).String())
		})
	}
}

func TestSplitFees_Disabled(t *testing.T) {
	cfg := defaultFees()
	cfg.Enabled = false

	split := splitFees(big.NewInt(10_000), cfg)
	require.Equal(t, "0", split.Total.String())
	require.Equal(t, "10000", split.Net.String())
}

func TestFeeConfigValidate(t *testing.T) {
	require.NoError(t, defaultFees().Validate())

	tooHigh := defaultFees()
	tooHigh.FeeBps = 10_001
	require.Error(t, tooHigh.Validate())

	badShares := defaultFees()
	badShares.ReferrerShareBps = 60
	require.Error(t, badShares.Validate())
}
