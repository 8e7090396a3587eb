package crypto

import "testing"

func TestAddressRoundTrip(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("key generation failed: %v", err)
	}
	addr := key.PubKey().Address()
	if addr.Prefix() != SalePrefix {
		t.Fatalf("prefix = %q", addr.Prefix())
	}

	encoded := addr.String()
	decoded, err := DecodeAddress(encoded)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if decoded.Array() != addr.Array() {
		t.Fatalf("round trip mismatch: %x vs %x", decoded.Bytes(), addr.Bytes())
	}
}

func TestDecodeAddressRejectsGarbage(t *testing.T) {
	if _, err := DecodeAddress("not-an-address"); err == nil {
		t.Fatalf("garbage input must fail")
	}
	if _, err := DecodeAddress("sale1qqqq"); err == nil {
		t.Fatalf("truncated payload must fail")
	}
}
