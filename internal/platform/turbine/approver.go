package turbine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/quantfold/turbinebot/internal/crypto"
)

// Approver grants a settlement contract a max USDC allowance through a
// gasless EIP-2612 permit. The relayer executes the permit on-chain, so
// approval is idempotent: re-permitting an already approved spender just
// rewrites the same allowance.
type Approver struct {
	api         *Client
	relayer     *RelayerClient
	signer      *crypto.Signer
	usdcAddress string
	chainID     int
	logger      *slog.Logger
}

// NewApprover creates an Approver for the configured USDC token.
func NewApprover(api *Client, relayer *RelayerClient, signer *crypto.Signer, usdcAddress string, chainID int, logger *slog.Logger) *Approver {
	return &Approver{
		api:         api,
		relayer:     relayer,
		signer:      signer,
		usdcAddress: usdcAddress,
		chainID:     chainID,
		logger:      logger.With(slog.String("component", "approver")),
	}
}

// permitDomain returns the EIP-2612 domain name and version for the
// deployed USDC contract. Mainnet USDC signs as "USD Coin" version 2; the
// testnet mock uses its own name at version 1.
func (a *Approver) permitDomain() (string, string) {
	if a.chainID == 1 {
		return "USD Coin", "2"
	}
	return "Mock USDC", "1"
}

// Approve signs and submits a max-value permit for spender.
func (a *Approver) Approve(ctx context.Context, spender string) error {
	owner := a.signer.Address().Hex()

	nonce, err := a.api.GetContractNonce(ctx, a.usdcAddress, owner, a.chainID)
	if err != nil {
		return fmt.Errorf("turbine: permit nonce: %w", err)
	}

	name, version := a.permitDomain()
	permit, err := a.signer.SignPermit(name, version, a.usdcAddress, spender, crypto.MaxUint256, nonce, crypto.MaxUint256)
	if err != nil {
		return fmt.Errorf("turbine: sign permit: %w", err)
	}

	result, err := a.relayer.SubmitUSDCPermit(ctx, owner, spender, permit)
	if err != nil {
		return err
	}

	a.logger.Info("usdc max approval submitted",
		slog.String("spender", spender),
		slog.String("tx_hash", result.TxHash))
	return nil
}
