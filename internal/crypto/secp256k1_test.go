package crypto

import (
	"errors"
	"testing"

	"github.com/chainkit/node/internal/chainerr"
	"github.com/chainkit/node/internal/types"
)

func TestSignAndRecoverRoundTrip(t *testing.T) {
	priv, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	msgHash := Keccak256([]byte("transfer 1 wei"))

	sig, err := Sign(msgHash, priv.Private, 1)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	recovered, chainID, err := RecoverAddress(msgHash, sig)
	if err != nil {
		t.Fatalf("RecoverAddress: %v", err)
	}
	if recovered != priv.Address {
		t.Errorf("recovered address = %s, want %s", recovered.Hex(), priv.Address.Hex())
	}
	if chainID != 1 {
		t.Errorf("chainID = %d, want 1", chainID)
	}
	if !Verify(msgHash, sig, priv.Address) {
		t.Error("Verify returned false for a valid signature")
	}
}

func TestSignProducesCanonicalLowS(t *testing.T) {
	priv, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	msgHash := Keccak256([]byte("canonical check"))

	sig, err := Sign(msgHash, priv.Private, 1)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if sig.S.Cmp(secp256k1HalfN) > 0 {
		t.Errorf("s = %s exceeds half the curve order, signature is not canonical", sig.S)
	}
}

func TestVerifyRejectsWrongAddress(t *testing.T) {
	priv, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	other, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	msgHash := Keccak256([]byte("wrong signer"))

	sig, err := Sign(msgHash, priv.Private, 1)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if Verify(msgHash, sig, other.Address) {
		t.Error("Verify returned true against a mismatched address")
	}
}

func TestRecoverAddressRejectsLegacyV(t *testing.T) {
	priv, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	msgHash := Keccak256([]byte("legacy v"))
	sig, err := Sign(msgHash, priv.Private, 1)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	sig.V = 27

	if _, _, err := RecoverAddress(msgHash, sig); !errors.Is(err, chainerr.ErrLegacySignature) {
		t.Fatalf("error = %v, want legacy-signature", err)
	}
}

func TestKeypairFromHexMatchesGenerated(t *testing.T) {
	priv, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	hexKey := HexEncode(priv.Private.Serialize())

	reloaded, err := KeypairFromHex(hexKey)
	if err != nil {
		t.Fatalf("KeypairFromHex: %v", err)
	}
	if reloaded.Address != priv.Address {
		t.Errorf("reloaded address = %s, want %s", reloaded.Address.Hex(), priv.Address.Hex())
	}
}

func TestKeccak256IsDeterministicAndSensitiveToInput(t *testing.T) {
	a := Keccak256([]byte("hello"))
	b := Keccak256([]byte("hello"))
	c := Keccak256([]byte("world"))

	if a != b {
		t.Error("Keccak256 is not deterministic for identical input")
	}
	if a == c {
		t.Error("Keccak256 produced the same digest for different input")
	}
	if types.Hash(a).Hex() == (types.Hash{}).Hex() {
		t.Error("digest of non-empty input should not be the zero hash")
	}
}
