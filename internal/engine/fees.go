package engine

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

const bpsDenominator = 10_000

// FeeConfig holds the fee parameters. Enabled and Treasury are owner-mutable
// at runtime; the rates are fixed at construction.
type FeeConfig struct {
	Enabled  bool
	Treasury common.Address

	// FeeBps is the fee rate in basis points of the gross amount.
	FeeBps uint64
	// ReferrerShareBps and ProtocolShareBps split the fee between the
	// referrer and the treasury, in percent. They must sum to 100.
	ReferrerShareBps uint64
	ProtocolShareBps uint64
}

// Validate checks the fixed fee parameters.
func (c FeeConfig) Validate() error {
	if c.FeeBps > bpsDenominator {
		return fmt.Errorf("fee bps %d exceeds %d", c.FeeBps, bpsDenominator)
	}
	if c.ReferrerShareBps+c.ProtocolShareBps != 100 {
		return fmt.Errorf("fee shares must sum to 100, got %d + %d", c.ReferrerShareBps, c.ProtocolShareBps)
	}
	return nil
}

// FeeSplit is the exact decomposition of one gross amount.
// Referrer + Protocol == Total and Net + Total == gross always hold; the
// rounding remainder of the referrer share is absorbed by the protocol side.
type FeeSplit struct {
	Total    *big.Int
	Referrer *big.Int
	Protocol *big.Int
	Net      *big.Int
}

// splitFees computes the proportional fee split for a gross amount. With
// fees disabled the whole gross amount passes through net.
func splitFees(gross *big.Int, cfg FeeConfig) FeeSplit {
	if !cfg.Enabled || cfg.FeeBps == 0 {
		return FeeSplit{
			Total:    new(big.Int),
			Referrer: new(big.Int),
			Protocol: new(big.Int),
			Net:      new(big.Int).Set(gross),
		}
	}

	total := new(big.Int).Mul(gross, new(big.Int).SetUint64(cfg.FeeBps))
	total.Div(total, big.NewInt(bpsDenominator))

	referrer := new(big.Int).Mul(total, new(big.Int).SetUint64(cfg.ReferrerShareBps))
	referrer.Div(referrer, big.NewInt(100))

	protocol := new(big.Int).Sub(total, referrer)
	net := new(big.Int).Sub(gross, total)

	return FeeSplit{
		Total:    total,
		Referrer: referrer,
		Protocol: protocol,
		Net:      net,
	}
}
