// Package anchor implements C15: OP_RETURN encoding of epoch checkpoints
// and batch payout fee/dust splitting, grounded on the third-party
// Bitcoin stack pulled in alongside the teacher's stack
// (github.com/btcsuite/btcd/txscript, github.com/btcsuite/btcd/btcutil)
// for the one settlement interface spec §1 carves out as external.
package anchor

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"

	"github.com/edgecoder/mesh/internal/identity"
)

// magicPrefix is the ASCII "EC" + version byte prefix of every OP_RETURN
// payload (spec §4.15, §6: "45 43 01 <32-byte-hash>").
var magicPrefix = []byte{0x45, 0x43, 0x01}

// PayloadSize is the exact OP_RETURN payload length: 2-byte magic + 1
// version byte + 32-byte hash.
const PayloadSize = len(magicPrefix) + sha256.Size

// ErrInvalidPayload is returned when a decode input isn't exactly
// PayloadSize bytes with the expected magic/version prefix.
var ErrInvalidPayload = errors.New("anchor: invalid OP_RETURN payload")

// Allocation is one account's issued tokens in an epoch checkpoint.
type Allocation struct {
	AccountID    string  `json:"account_id"`
	IssuedTokens float64 `json:"issued_tokens"`
}

// Checkpoint is the epoch checkpoint payload anchored on-chain (spec §4.15).
type Checkpoint struct {
	Epoch       int64        `json:"epoch"`
	LoadIndex   float64      `json:"load_index"`
	Allocations []Allocation `json:"allocations"`
}

// Hash returns the SHA-256 hash of the checkpoint's canonical JSON
// encoding.
func Hash(cp Checkpoint) ([32]byte, error) {
	canon, err := canonicalJSON(cp)
	if err != nil {
		return [32]byte{}, err
	}
	return sha256.Sum256(canon), nil
}

// canonicalJSON renders cp with object keys sorted at every level via
// identity.Canonical. Allocations is an ordered slice; its element order
// is meaningful and preserved.
func canonicalJSON(cp Checkpoint) ([]byte, error) {
	return identity.Canonical(cp)
}

// EncodePayload builds the exact 35-byte OP_RETURN payload for hash.
func EncodePayload(hash [32]byte) []byte {
	out := make([]byte, 0, PayloadSize)
	out = append(out, magicPrefix...)
	out = append(out, hash[:]...)
	return out
}

// DecodePayload validates and extracts the 32-byte hash from an
// OP_RETURN payload. Anything other than exactly PayloadSize bytes with
// the expected magic/version prefix is rejected (spec §4.15: "Decoder
// rejects anything else").
func DecodePayload(payload []byte) ([32]byte, error) {
	if len(payload) != PayloadSize {
		return [32]byte{}, ErrInvalidPayload
	}
	for i, b := range magicPrefix {
		if payload[i] != b {
			return [32]byte{}, ErrInvalidPayload
		}
	}
	var hash [32]byte
	copy(hash[:], payload[len(magicPrefix):])
	return hash, nil
}

// BuildScript wraps an OP_RETURN payload in a Bitcoin null-data output
// script via txscript's script builder.
func BuildScript(payload []byte) ([]byte, error) {
	script, err := txscript.NewScriptBuilder().
		AddOp(txscript.OP_RETURN).
		AddData(payload).
		Script()
	if err != nil {
		return nil, fmt.Errorf("anchor: build OP_RETURN script: %w", err)
	}
	return script, nil
}

// FeeBps are the fee basis-points deducted from a batch payout, in the
// order they are applied (spec §4.15: "coordinator 500, reserve 500").
var FeeBps = []struct {
	Name string
	Bps  int64
}{
	{Name: "coordinator", Bps: 500},
	{Name: "reserve", Bps: 500},
}

// PayoutShare is one participant's share of a batch payout's residual.
type PayoutShare struct {
	AccountID       string
	AllocationShare float64
}

// BatchPayout is the result of splitting a gross amount by fee
// basis-points and distributing the residual proportional to
// allocation_share with integer-floor amounts. Amounts are
// btcutil.Amount (satoshis) since a batch payout only ever settles
// on-chain.
type BatchPayout struct {
	Gross    btcutil.Amount
	Fees     map[string]btcutil.Amount
	Residual btcutil.Amount
	Payouts  map[string]btcutil.Amount
	Dust     btcutil.Amount
}

// SplitBatchPayout implements spec §4.15's payout split: deduct fee
// basis-points in FeeBps order, then distribute the residual
// proportional to each share's AllocationShare using integer floor,
// with any leftover tracked as dust.
func SplitBatchPayout(gross btcutil.Amount, shares []PayoutShare) BatchPayout {
	fees := make(map[string]btcutil.Amount, len(FeeBps))
	residual := gross
	for _, fee := range FeeBps {
		amount := residual * btcutil.Amount(fee.Bps) / 10000
		fees[fee.Name] = amount
		residual -= amount
	}

	payouts := make(map[string]btcutil.Amount, len(shares))
	var distributed btcutil.Amount
	for _, s := range shares {
		amount := btcutil.Amount(float64(residual) * s.AllocationShare)
		payouts[s.AccountID] = amount
		distributed += amount
	}

	return BatchPayout{
		Gross:    gross,
		Fees:     fees,
		Residual: residual,
		Payouts:  payouts,
		Dust:     residual - distributed,
	}
}
