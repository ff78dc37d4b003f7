package cipher

import "testing"

func TestNewObfuscationLayerRejectsNoOpSpec(t *testing.T) {
	if _, err := newObfuscationLayer(nil); err == nil {
		t.Fatal("expected empty op chain to be rejected as a no-op")
	}
	// reversebits then reversebits again is also a no-op overall, but each
	// individual layer only ever holds one resolved chain; xorpos alone is
	// not a no-op since it depends on position, so use a genuine identity:
	// xor(0) is the clearest no-op single op.
	if _, err := newObfuscationLayer([]cipherOp{{kind: opXor, n: 0x00}}); err == nil {
		t.Fatal("expected xor(0) to be rejected as a no-op")
	}
}

func TestObfuscationLayerDecodeEncodeRoundTrip(t *testing.T) {
	ops := []cipherOp{{kind: opXor, n: 0x7b}, {kind: opReversebits}}
	layer, err := newObfuscationLayer(ops)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	clientPlain := "4x dog,5x cat\n"
	// simulate the wire: a client-side layer with the same ops encodes
	// what our layer will decode.
	clientSide, err := newObfuscationLayer(ops)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	wire := clientSide.encode(clientPlain)

	got := layer.decode(wire)
	if got != clientPlain {
		t.Fatalf("decode mismatch: got %q want %q", got, clientPlain)
	}
}

func TestObfuscationLayerPositionsTrackIndependently(t *testing.T) {
	ops := []cipherOp{{kind: opAddpos}}
	layer, err := newObfuscationLayer(ops)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	encoded := layer.encode("ab")
	if layer.serverPos != 2 {
		t.Fatalf("expected serverPos to advance by 2, got %d", layer.serverPos)
	}
	decoded := layer.decode(encoded)
	if decoded != "ab" {
		t.Fatalf("got %q", decoded)
	}
	if layer.clientPos != 2 {
		t.Fatalf("expected clientPos to advance independently by 2, got %d", layer.clientPos)
	}
}
