package crypto

import (
	"encoding/hex"
	"fmt"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Well-known development key; never funded.
const (
	testKey     = "0x59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d"
	testAddress = "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"
	testChainID = 10143
)

func newTestSigner(t *testing.T) *Signer {
	t.Helper()
	s, err := NewSigner(testKey, testChainID)
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}
	return s
}

func testOrder() OrderPayload {
	return OrderPayload{
		MarketID:   "mkt-btc-15m-1756641600",
		Trader:     testAddress,
		Side:       0,
		Outcome:    0,
		Price:      550_000,
		Size:       5_000_000,
		Nonce:      7,
		Expiration: 1_756_642_500,
	}
}

func TestNewSignerDerivesAddress(t *testing.T) {
	s := newTestSigner(t)
	if s.Address() != common.HexToAddress(testAddress) {
		t.Errorf("address = %s, want %s", s.Address(), testAddress)
	}
}

func TestNewSignerRejectsBadKey(t *testing.T) {
	if _, err := NewSigner("0xnothex", 1); err == nil {
		t.Error("expected error for malformed key")
	}
}

func TestSignOrderShapeAndDeterminism(t *testing.T) {
	s := newTestSigner(t)

	sig, hash, err := s.SignOrder(testOrder(), "0x1111111111111111111111111111111111111111")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if !strings.HasPrefix(sig, "0x") || len(sig) != 132 {
		t.Errorf("signature = %q, want 0x-prefixed 65 bytes", sig)
	}
	if !strings.HasPrefix(hash, "0x") || len(hash) != 66 {
		t.Errorf("order hash = %q, want 0x-prefixed 32 bytes", hash)
	}

	sig2, hash2, err := s.SignOrder(testOrder(), "0x1111111111111111111111111111111111111111")
	if err != nil {
		t.Fatal(err)
	}
	if sig2 != sig || hash2 != hash {
		t.Error("signing the same order twice must be deterministic")
	}
}

func TestSignOrderRecoversSigner(t *testing.T) {
	s := newTestSigner(t)

	sig, hash, err := s.SignOrder(testOrder(), "0x1111111111111111111111111111111111111111")
	if err != nil {
		t.Fatal(err)
	}

	raw, err := hex.DecodeString(strings.TrimPrefix(sig, "0x"))
	if err != nil {
		t.Fatal(err)
	}
	raw[64] -= 27
	digest, err := hex.DecodeString(strings.TrimPrefix(hash, "0x"))
	if err != nil {
		t.Fatal(err)
	}

	pub, err := ethcrypto.SigToPub(digest, raw)
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if got := ethcrypto.PubkeyToAddress(*pub); got != s.Address() {
		t.Errorf("recovered %s, want %s", got, s.Address())
	}
}

func TestSignOrderBindsSettlementContract(t *testing.T) {
	s := newTestSigner(t)

	_, hashA, err := s.SignOrder(testOrder(), "0x1111111111111111111111111111111111111111")
	if err != nil {
		t.Fatal(err)
	}
	_, hashB, err := s.SignOrder(testOrder(), "0x2222222222222222222222222222222222222222")
	if err != nil {
		t.Fatal(err)
	}
	if hashA == hashB {
		t.Error("different settlement contracts must produce different digests")
	}
}

func TestSignPermit(t *testing.T) {
	s := newTestSigner(t)

	sig, err := s.SignPermit("Mock USDC", "1",
		"0xf817257fed379853cDe0fa4F97AB987181B1E5Ea",
		"0x1111111111111111111111111111111111111111",
		MaxUint256, 3, MaxUint256)
	if err != nil {
		t.Fatalf("sign permit: %v", err)
	}
	if sig.V != 27 && sig.V != 28 {
		t.Errorf("v = %d, want 27 or 28", sig.V)
	}
	if len(sig.R) != 66 || len(sig.S) != 66 {
		t.Errorf("r/s = %q/%q, want 32-byte hex", sig.R, sig.S)
	}
	if sig.Nonce != 3 || sig.Value.Cmp(MaxUint256) != 0 {
		t.Error("permit fields must pass through")
	}
}

func TestSignRedeem(t *testing.T) {
	s := newTestSigner(t)

	sig, err := s.SignRedeem(
		"0x3333333333333333333333333333333333333333",
		"0xf817257fed379853cDe0fa4F97AB987181B1E5Ea",
		"0x4444444444444444444444444444444444444444444444444444444444444444",
		[]int64{1}, 9, 1_756_645_200)
	if err != nil {
		t.Fatalf("sign redeem: %v", err)
	}
	if sig.V != 27 && sig.V != 28 {
		t.Errorf("v = %d", sig.V)
	}
	if sig.Nonce != 9 || sig.Deadline != 1_756_645_200 {
		t.Error("redeem fields must pass through")
	}

	// The index set is part of the signed struct.
	other, err := s.SignRedeem(
		"0x3333333333333333333333333333333333333333",
		"0xf817257fed379853cDe0fa4F97AB987181B1E5Ea",
		"0x4444444444444444444444444444444444444444444444444444444444444444",
		[]int64{2}, 9, 1_756_645_200)
	if err != nil {
		t.Fatal(err)
	}
	if other.R == sig.R && other.S == sig.S {
		t.Error("different index sets must produce different signatures")
	}
}

func TestSignAuthMessageRecoversSigner(t *testing.T) {
	s := newTestSigner(t)

	message := "turbine-auth:" + strings.ToLower(testAddress) + ":1756641600"
	sig, err := s.SignAuthMessage(message)
	if err != nil {
		t.Fatalf("sign auth: %v", err)
	}

	raw, err := hex.DecodeString(strings.TrimPrefix(sig, "0x"))
	if err != nil {
		t.Fatal(err)
	}
	raw[64] -= 27

	prefixed := fmt.Sprintf("\x19Ethereum Signed Message:\n%d%s", len(message), message)
	digest := ethcrypto.Keccak256([]byte(prefixed))

	pub, err := ethcrypto.SigToPub(digest, raw)
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if got := ethcrypto.PubkeyToAddress(*pub); got != s.Address() {
		t.Errorf("recovered %s, want %s", got, s.Address())
	}
}
