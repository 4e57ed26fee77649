package anchor

import (
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodePayloadRoundTrip(t *testing.T) {
	cp := Checkpoint{
		Epoch:     42,
		LoadIndex: 1.25,
		Allocations: []Allocation{
			{AccountID: "agent-1", IssuedTokens: 10},
		},
	}
	hash, err := Hash(cp)
	require.NoError(t, err)

	payload := EncodePayload(hash)
	require.Len(t, payload, PayloadSize)
	require.Len(t, payload, 35)
	require.Equal(t, []byte{0x45, 0x43, 0x01}, payload[:3])

	decoded, err := DecodePayload(payload)
	require.NoError(t, err)
	require.Equal(t, hash, decoded)
}

func TestDecodePayloadRejectsWrongLength(t *testing.T) {
	_, err := DecodePayload([]byte{0x45, 0x43, 0x01})
	require.ErrorIs(t, err, ErrInvalidPayload)
}

func TestDecodePayloadRejectsBadMagic(t *testing.T) {
	payload := EncodePayload([32]byte{1, 2, 3})
	payload[0] = 0xFF
	_, err := DecodePayload(payload)
	require.ErrorIs(t, err, ErrInvalidPayload)
}

func TestBuildScriptProducesOpReturn(t *testing.T) {
	hash, err := Hash(Checkpoint{Epoch: 1})
	require.NoError(t, err)
	script, err := BuildScript(EncodePayload(hash))
	require.NoError(t, err)
	require.NotEmpty(t, script)
	// OP_RETURN opcode is 0x6a.
	require.Equal(t, byte(0x6a), script[0])
}

func TestSplitBatchPayoutDeductsFeesThenDistributesProportionally(t *testing.T) {
	// spec scenario S6: gross 100000, bps (500,500), shares {0.6,0.3,0.1}.
	shares := []PayoutShare{
		{AccountID: "a1", AllocationShare: 0.6},
		{AccountID: "a2", AllocationShare: 0.3},
		{AccountID: "a3", AllocationShare: 0.1},
	}
	result := SplitBatchPayout(100000, shares)

	require.Equal(t, btcutil.Amount(5000), result.Fees["coordinator"])
	require.Equal(t, btcutil.Amount(4750), result.Fees["reserve"])
	require.Equal(t, btcutil.Amount(90250), result.Residual)
	require.Equal(t, btcutil.Amount(54150), result.Payouts["a1"])
	require.Equal(t, btcutil.Amount(27075), result.Payouts["a2"])
	require.Equal(t, btcutil.Amount(9025), result.Payouts["a3"])
	require.Equal(t, btcutil.Amount(0), result.Dust)
}

func TestSplitBatchPayoutTracksDustFromFlooring(t *testing.T) {
	shares := []PayoutShare{
		{AccountID: "a", AllocationShare: 1.0 / 3},
		{AccountID: "b", AllocationShare: 1.0 / 3},
		{AccountID: "c", AllocationShare: 1.0 / 3},
	}
	result := SplitBatchPayout(100, shares)

	var sum btcutil.Amount
	for _, v := range result.Payouts {
		sum += v
	}
	require.Equal(t, result.Residual-sum, result.Dust)
	require.Less(t, result.Dust, btcutil.Amount(len(shares)))
}
