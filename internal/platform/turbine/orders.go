package turbine

import (
	"fmt"
	"math/big"
	"time"

	"github.com/quantfold/turbinebot/internal/crypto"
	"github.com/quantfold/turbinebot/internal/domain"
)

// zeroAddress is the default maker fee recipient.
const zeroAddress = "0x0000000000000000000000000000000000000000"

// defaultOrderTTL bounds orders that arrive without an explicit expiration.
const defaultOrderTTL = 5 * time.Minute

// OrderBuilder constructs and signs Turbine orders against a market's
// settlement contract.
type OrderBuilder struct {
	signer *crypto.Signer
}

// NewOrderBuilder creates an OrderBuilder using the given signer.
func NewOrderBuilder(signer *crypto.Signer) *OrderBuilder {
	return &OrderBuilder{signer: signer}
}

// Build validates the order parameters, signs the EIP-712 payload, and
// returns a SignedOrder ready for submission. The permit, when non-nil, is
// attached to cover the order's collateral without a prior max approval.
func (b *OrderBuilder) Build(o domain.Order, settlementAddress string, permit *crypto.PermitSignature) (SignedOrder, error) {
	if o.PriceTicks < 1 || o.PriceTicks > domain.PriceScale-1 {
		return SignedOrder{}, fmt.Errorf("turbine: %w: price %d out of range", domain.ErrInvalidOrder, o.PriceTicks)
	}
	if o.SizeUnits <= 0 {
		return SignedOrder{}, fmt.Errorf("turbine: %w: size must be positive", domain.ErrInvalidOrder)
	}
	if settlementAddress == "" {
		return SignedOrder{}, fmt.Errorf("turbine: %w: settlement address required", domain.ErrInvalidOrder)
	}

	expiration := o.Expiration
	if expiration.IsZero() {
		expiration = time.Now().Add(defaultOrderTTL)
	}

	payload := crypto.OrderPayload{
		MarketID:          o.MarketID,
		Trader:            b.signer.Address().Hex(),
		Side:              int(o.Side),
		Outcome:           int(o.Outcome),
		Price:             o.PriceTicks,
		Size:              o.SizeUnits,
		Nonce:             time.Now().UnixNano(),
		Expiration:        expiration.Unix(),
		MakerFeeRecipient: zeroAddress,
	}

	sig, orderHash, err := b.signer.SignOrder(payload, settlementAddress)
	if err != nil {
		return SignedOrder{}, fmt.Errorf("turbine: %w: %v", domain.ErrSigningFailed, err)
	}

	return SignedOrder{
		Payload:   payload,
		Signature: sig,
		OrderHash: orderHash,
		Permit:    permit,
	}, nil
}

// CostWithBuffer returns the collateral a buy order can consume, padded 20%
// for fees, in 1e6 units. Used to size per-order permits.
func CostWithBuffer(priceTicks, sizeUnits int64) *big.Int {
	cost := new(big.Int).Mul(big.NewInt(priceTicks), big.NewInt(sizeUnits))
	cost.Div(cost, big.NewInt(domain.PriceScale))
	cost.Mul(cost, big.NewInt(12))
	cost.Div(cost, big.NewInt(10))
	return cost
}
