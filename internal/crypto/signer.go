// Package crypto provides EIP-712 signing for Turbine orders, EIP-2612
// permit signing for gasless USDC approvals, and the wallet-signature auth
// message used to obtain a bearer token.
package crypto

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// --------------------------------------------------------------------------
// EIP-712 type hashes (pre-computed keccak256 of the canonical type strings).
// --------------------------------------------------------------------------

var (
	// EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)
	eip712DomainTypeHash = ethcrypto.Keccak256(
		[]byte("EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)"),
	)

	// Order(string marketId,address trader,uint8 side,uint8 outcome,uint256 price,uint256 size,uint256 nonce,uint256 expiration,address makerFeeRecipient)
	orderTypeHash = ethcrypto.Keccak256(
		[]byte("Order(string marketId,address trader,uint8 side,uint8 outcome,uint256 price,uint256 size,uint256 nonce,uint256 expiration,address makerFeeRecipient)"),
	)

	// Permit(address owner,address spender,uint256 value,uint256 nonce,uint256 deadline)
	permitTypeHash = ethcrypto.Keccak256(
		[]byte("Permit(address owner,address spender,uint256 value,uint256 nonce,uint256 deadline)"),
	)

	// RedeemPositions(address owner,address collateralToken,bytes32 parentCollectionId,bytes32 conditionId,uint256[] indexSets,uint256 nonce,uint256 deadline)
	redeemTypeHash = ethcrypto.Keccak256(
		[]byte("RedeemPositions(address owner,address collateralToken,bytes32 parentCollectionId,bytes32 conditionId,uint256[] indexSets,uint256 nonce,uint256 deadline)"),
	)
)

// zeroCollectionID is the parent collection for plain collateral positions.
var zeroCollectionID = make([]byte, 32)

// MaxUint256 is the max permit value and deadline for one-time max approvals.
var MaxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// OrderPayload holds the fields of a Turbine order that are signed via
// EIP-712 and submitted to the orderbook. Price and size are 1e6 fixed point.
type OrderPayload struct {
	MarketID          string
	Trader            string
	Side              int // 0 = BUY, 1 = SELL
	Outcome           int // 0 = YES, 1 = NO
	Price             int64
	Size              int64
	Nonce             int64
	Expiration        int64 // unix seconds
	MakerFeeRecipient string
}

// PermitSignature is a decomposed EIP-2612 signature ready for relayer
// submission.
type PermitSignature struct {
	Nonce    int64
	Value    *big.Int
	Deadline *big.Int
	V        int
	R        string
	S        string
}

// Signer signs Turbine orders and USDC permits with a secp256k1 key.
type Signer struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
	chainID    int
}

// NewSigner creates a Signer from a hex-encoded secp256k1 private key and
// the target chain ID.
func NewSigner(privateKeyHex string, chainID int) (*Signer, error) {
	keyHex := strings.TrimPrefix(privateKeyHex, "0x")
	pk, err := ethcrypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, fmt.Errorf("crypto/signer: invalid private key: %w", err)
	}

	return &Signer{
		privateKey: pk,
		address:    ethcrypto.PubkeyToAddress(pk.PublicKey),
		chainID:    chainID,
	}, nil
}

// Address returns the Ethereum address derived from the signer's private key.
func (s *Signer) Address() common.Address {
	return s.address
}

// SignOrder signs an order against the settlement contract's EIP-712 domain.
// It returns the hex-encoded 65-byte signature and the order digest, which
// the venue uses as the order hash.
func (s *Signer) SignOrder(order OrderPayload, settlementAddress string) (sig string, orderHash string, err error) {
	domainSep := s.buildDomainSeparator("Turbine", "1", settlementAddress)

	trader := common.HexToAddress(order.Trader)
	feeRecipient := common.HexToAddress(order.MakerFeeRecipient)

	structHash := ethcrypto.Keccak256(
		concatBytes(
			orderTypeHash,
			ethcrypto.Keccak256([]byte(order.MarketID)),
			common.LeftPadBytes(trader.Bytes(), 32),
			bigIntTo32Bytes(big.NewInt(int64(order.Side))),
			bigIntTo32Bytes(big.NewInt(int64(order.Outcome))),
			bigIntTo32Bytes(big.NewInt(order.Price)),
			bigIntTo32Bytes(big.NewInt(order.Size)),
			bigIntTo32Bytes(big.NewInt(order.Nonce)),
			bigIntTo32Bytes(big.NewInt(order.Expiration)),
			common.LeftPadBytes(feeRecipient.Bytes(), 32),
		),
	)

	digest := eip712Hash(domainSep, structHash)
	sig, err = s.signDigest(digest)
	if err != nil {
		return "", "", err
	}
	return sig, "0x" + hex.EncodeToString(digest), nil
}

// SignPermit signs an EIP-2612 permit for the given token granting spender
// the value until deadline. tokenName and tokenVersion must match the
// token's own EIP-712 domain ("USD Coin"/"2" on mainnets, "Mock USDC"/"1"
// on testnets).
func (s *Signer) SignPermit(tokenName, tokenVersion, tokenAddress, spender string, value *big.Int, nonce int64, deadline *big.Int) (PermitSignature, error) {
	domainSep := s.buildDomainSeparator(tokenName, tokenVersion, tokenAddress)

	structHash := ethcrypto.Keccak256(
		concatBytes(
			permitTypeHash,
			common.LeftPadBytes(s.address.Bytes(), 32),
			common.LeftPadBytes(common.HexToAddress(spender).Bytes(), 32),
			bigIntTo32Bytes(value),
			bigIntTo32Bytes(big.NewInt(nonce)),
			bigIntTo32Bytes(deadline),
		),
	)

	digest := eip712Hash(domainSep, structHash)
	raw, err := ethcrypto.Sign(digest, s.privateKey)
	if err != nil {
		return PermitSignature{}, fmt.Errorf("crypto/signer: permit signing: %w", err)
	}

	v := int(raw[64])
	if v < 27 {
		v += 27
	}
	return PermitSignature{
		Nonce:    nonce,
		Value:    value,
		Deadline: deadline,
		V:        v,
		R:        "0x" + hex.EncodeToString(raw[:32]),
		S:        "0x" + hex.EncodeToString(raw[32:64]),
	}, nil
}

// RedeemSignature is a decomposed signature authorizing a gasless
// RedeemPositions call on the conditional tokens contract.
type RedeemSignature struct {
	Nonce    int64
	Deadline int64
	V        int
	R        string
	S        string
}

// SignRedeem signs a RedeemPositions permit against the conditional tokens
// contract, authorizing the relayer to redeem winning shares for collateral.
// indexSets selects the winning outcome slots (1 for YES, 2 for NO).
func (s *Signer) SignRedeem(ctfAddress, collateralToken, conditionID string, indexSets []int64, nonce, deadline int64) (RedeemSignature, error) {
	domainSep := s.buildDomainSeparator("ConditionalTokensWithPermit", "1", ctfAddress)

	sets := make([]byte, 0, len(indexSets)*32)
	for _, ix := range indexSets {
		sets = append(sets, bigIntTo32Bytes(big.NewInt(ix))...)
	}

	structHash := ethcrypto.Keccak256(
		concatBytes(
			redeemTypeHash,
			common.LeftPadBytes(s.address.Bytes(), 32),
			common.LeftPadBytes(common.HexToAddress(collateralToken).Bytes(), 32),
			zeroCollectionID,
			common.HexToHash(conditionID).Bytes(),
			ethcrypto.Keccak256(sets),
			bigIntTo32Bytes(big.NewInt(nonce)),
			bigIntTo32Bytes(big.NewInt(deadline)),
		),
	)

	digest := eip712Hash(domainSep, structHash)
	raw, err := ethcrypto.Sign(digest, s.privateKey)
	if err != nil {
		return RedeemSignature{}, fmt.Errorf("crypto/signer: redeem signing: %w", err)
	}

	v := int(raw[64])
	if v < 27 {
		v += 27
	}
	return RedeemSignature{
		Nonce:    nonce,
		Deadline: deadline,
		V:        v,
		R:        "0x" + hex.EncodeToString(raw[:32]),
		S:        "0x" + hex.EncodeToString(raw[32:64]),
	}, nil
}

// SignAuthMessage signs the login challenge with the EIP-191 personal-sign
// prefix. The venue verifies the recovered address and issues a bearer token.
func (s *Signer) SignAuthMessage(message string) (string, error) {
	prefixed := fmt.Sprintf("\x19Ethereum Signed Message:\n%d%s", len(message), message)
	digest := ethcrypto.Keccak256([]byte(prefixed))
	return s.signDigest(digest)
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// buildDomainSeparator returns keccak256(abi.encode(typeHash, nameHash,
// versionHash, chainId, verifyingContract)).
func (s *Signer) buildDomainSeparator(name, version, verifyingContract string) []byte {
	return ethcrypto.Keccak256(
		concatBytes(
			eip712DomainTypeHash,
			ethcrypto.Keccak256([]byte(name)),
			ethcrypto.Keccak256([]byte(version)),
			bigIntTo32Bytes(big.NewInt(int64(s.chainID))),
			common.LeftPadBytes(common.HexToAddress(verifyingContract).Bytes(), 32),
		),
	)
}

// eip712Hash computes the final EIP-712 digest:
//
//	keccak256("\x19\x01" || domainSeparator || structHash)
func eip712Hash(domainSep, structHash []byte) []byte {
	return ethcrypto.Keccak256(
		concatBytes(
			[]byte{0x19, 0x01},
			domainSep,
			structHash,
		),
	)
}

// signDigest signs a 32-byte digest using secp256k1 and returns the
// hex-encoded signature (r || s || v, 65 bytes).
func (s *Signer) signDigest(digest []byte) (string, error) {
	sig, err := ethcrypto.Sign(digest, s.privateKey)
	if err != nil {
		return "", fmt.Errorf("crypto/signer: signing: %w", err)
	}

	// go-ethereum returns v in {0,1}; EIP-712 expects v in {27,28}.
	if sig[64] < 27 {
		sig[64] += 27
	}

	return "0x" + hex.EncodeToString(sig), nil
}

// bigIntTo32Bytes returns a 32-byte big-endian representation of n.
func bigIntTo32Bytes(n *big.Int) []byte {
	b := n.Bytes()
	if len(b) >= 32 {
		return b[:32]
	}
	padded := make([]byte, 32)
	copy(padded[32-len(b):], b)
	return padded
}

// concatBytes concatenates multiple byte slices into one.
func concatBytes(slices ...[]byte) []byte {
	total := 0
	for _, s := range slices {
		total += len(s)
	}
	buf := make([]byte, 0, total)
	for _, s := range slices {
		buf = append(buf, s...)
	}
	return buf
}
