package intent

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

var (
	// ErrMalformedSignature indicates a signature that is not 65 bytes or
	// carries an out-of-range recovery byte.
	ErrMalformedSignature = errors.New("intent: malformed signature")

	// ErrRecoveryFailure indicates the signature did not yield a valid
	// public key (e.g. invalid curve point).
	ErrRecoveryFailure = errors.New("intent: signature recovery failure")

	// ErrInvalidSignature indicates the recovered signer does not match the
	// claimed user.
	ErrInvalidSignature = errors.New("intent: signature does not match user")
)

// SignatureLength is the expected (r, s, v) signature size.
const SignatureLength = 65

// Typed-data descriptor for DepositIntent. Field order is part of the wire
// contract with the off-chain signing tool; never reorder.
var intentTypes = apitypes.Types{
	"EIP712Domain": []apitypes.Type{
		{Name: "name", Type: "string"},
		{Name: "version", Type: "string"},
		{Name: "chainId", Type: "uint256"},
		{Name: "verifyingContract", Type: "address"},
	},
	"DepositIntent": []apitypes.Type{
		{Name: "user", Type: "address"},
		{Name: "vault", Type: "address"},
		{Name: "asset", Type: "address"},
		{Name: "amount", Type: "uint256"},
		{Name: "nonce", Type: "uint256"},
		{Name: "deadline", Type: "uint256"},
		{Name: "kol", Type: "address"},
	},
}

// Verifier reconstructs the domain-bound digest of a DepositIntent and
// checks that the claimed user signed it. It owns no durable state; all
// methods are pure functions of their inputs plus the domain parameters.
type Verifier struct {
	domain apitypes.TypedDataDomain
}

// NewVerifier creates a verifier bound to the given signing domain. chainID
// and verifyingContract must match the parameters the signing tool uses or
// every signature will fail verification.
func NewVerifier(name, version string, chainID int64, verifyingContract common.Address) *Verifier {
	return &Verifier{
		domain: apitypes.TypedDataDomain{
			Name:              name,
			Version:           version,
			ChainId:           math.NewHexOrDecimal256(chainID),
			VerifyingContract: verifyingContract.Hex(),
		},
	}
}

// Digest computes the EIP-712 hash of the intent under the verifier's domain.
func (v *Verifier) Digest(in *DepositIntent) (common.Hash, error) {
	amount := in.Amount
	if amount == nil {
		amount = new(big.Int)
	}
	typedData := apitypes.TypedData{
		Types:       intentTypes,
		PrimaryType: "DepositIntent",
		Domain:      v.domain,
		Message: apitypes.TypedDataMessage{
			"user":     in.User.Hex(),
			"vault":    in.Vault.Hex(),
			"asset":    in.Asset.Hex(),
			"amount":   (*math.HexOrDecimal256)(amount),
			"nonce":    (*math.HexOrDecimal256)(new(big.Int).SetUint64(in.Nonce)),
			"deadline": (*math.HexOrDecimal256)(new(big.Int).SetUint64(in.Deadline)),
			"kol":      in.Referrer.Hex(),
		},
	}

	hash, _, err := apitypes.TypedDataAndHash(typedData)
	if err != nil {
		return common.Hash{}, fmt.Errorf("hash typed data: %w", err)
	}
	return common.BytesToHash(hash), nil
}

// RecoverSigner recovers the signing address from a 65-byte (r, s, v)
// signature over digest. Both v in {0, 1} and the legacy {27, 28} encoding
// are accepted.
func (v *Verifier) RecoverSigner(digest common.Hash, signature []byte) (common.Address, error) {
	if len(signature) != SignatureLength {
		return common.Address{}, fmt.Errorf("%w: got %d bytes, want %d", ErrMalformedSignature, len(signature), SignatureLength)
	}

	sig := make([]byte, SignatureLength)
	copy(sig, signature)
	if sig[64] >= 27 {
		sig[64] -= 27
	}
	if sig[64] > 1 {
		return common.Address{}, fmt.Errorf("%w: invalid recovery byte %d", ErrMalformedSignature, signature[64])
	}

	pub, err := crypto.SigToPub(digest.Bytes(), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrRecoveryFailure, err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// Verify checks the signature against the intent's digest and returns the
// deterministic intent id on success. Idempotent and side-effect free.
func (v *Verifier) Verify(in *DepositIntent, signature []byte) (common.Hash, error) {
	digest, err := v.Digest(in)
	if err != nil {
		return common.Hash{}, err
	}

	signer, err := v.RecoverSigner(digest, signature)
	if err != nil {
		return common.Hash{}, err
	}
	if signer != in.User {
		return common.Hash{}, fmt.Errorf("%w: recovered %s, claimed %s", ErrInvalidSignature, signer.Hex(), in.User.Hex())
	}

	return in.ID(), nil
}
