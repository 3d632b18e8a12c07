package receipt

import (
	"testing"

	"github.com/chainkit/node/internal/types"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	to := types.Address{0x02}
	r := Receipt{
		TxHash:      types.Hash{0x01},
		TxIndex:     3,
		BlockHash:   types.Hash{0x02},
		BlockNumber: 10,
		From:        types.Address{0x03},
		To:          &to,
		Status:      1,
		GasUsed:     21000,
		Logs: []Log{
			{Address: types.Address{0x04}, Topics: []types.Hash{{0x05}}, Data: []byte("x")},
		},
	}
	r.LogsBloom = BloomForLog(r.Logs[0])

	decoded, err := Decode(r.Encode())
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if decoded.TxHash != r.TxHash || decoded.TxIndex != r.TxIndex || decoded.Status != r.Status {
		t.Errorf("round-trip mismatch: %+v vs %+v", decoded, r)
	}
	if decoded.To == nil || *decoded.To != *r.To {
		t.Errorf("to mismatch: %v vs %v", decoded.To, r.To)
	}
	if len(decoded.Logs) != 1 || decoded.Logs[0].Address != r.Logs[0].Address {
		t.Errorf("logs mismatch: %+v", decoded.Logs)
	}
	if decoded.LogsBloom != r.LogsBloom {
		t.Errorf("bloom mismatch")
	}
}

func TestContractCreationReceiptHasNilTo(t *testing.T) {
	r := Receipt{TxHash: types.Hash{0x01}, From: types.Address{0x02}, Status: 1}
	decoded, err := Decode(r.Encode())
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if decoded.To != nil {
		t.Errorf("expected nil To, got %v", decoded.To)
	}
	if decoded.ContractAddress != nil {
		t.Errorf("expected nil ContractAddress, got %v", decoded.ContractAddress)
	}
}

func TestBloomOrAccumulatesAcrossReceipts(t *testing.T) {
	log1 := Log{Address: types.Address{0xAA}}
	log2 := Log{Address: types.Address{0xBB}}

	var block Bloom
	b1 := BloomForLog(log1)
	b2 := BloomForLog(log2)
	block.OrWith(b1)
	block.OrWith(b2)

	if !block.Test(log1.Address[:]) {
		t.Error("expected block bloom to match log1's address")
	}
	if !block.Test(log2.Address[:]) {
		t.Error("expected block bloom to match log2's address")
	}
}

func TestContractAddressDeterministic(t *testing.T) {
	sender := types.Address{0x01}
	a := ContractAddress(sender, 0)
	b := ContractAddress(sender, 0)
	c := ContractAddress(sender, 1)
	if a != b {
		t.Error("expected deterministic contract address for same sender/nonce")
	}
	if a == c {
		t.Error("expected different contract address for different nonce")
	}
}
