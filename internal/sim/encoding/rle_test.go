package encoding

import "testing"

func TestRLE_RoundTrip(t *testing.T) {
	in := []uint32{0, 0, 0, 100, 100, 50, 0, 0, 1 << 20, 1 << 20, 7}
	s := EncodeRLE(in)
	out, err := DecodeRLE(s, len(in))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("len mismatch: %d vs %d", len(out), len(in))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Fatalf("mismatch at %d: %d vs %d", i, out[i], in[i])
		}
	}
}

func TestRLE_CompressesUniformLayer(t *testing.T) {
	in := make([]uint32, 4096)
	s := EncodeRLE(in)
	if len(s) > 8 {
		t.Fatalf("uniform layer should encode to one pair, got %q", s)
	}
	out, err := DecodeRLE(s, len(in))
	if err != nil || len(out) != len(in) {
		t.Fatalf("decode: %v len=%d", err, len(out))
	}
}

func TestRLE_RejectsWrongLength(t *testing.T) {
	s := EncodeRLE([]uint32{1, 1, 2})
	if _, err := DecodeRLE(s, 2); err == nil {
		t.Fatalf("expected overflow error")
	}
	if _, err := DecodeRLE(s, 4); err == nil {
		t.Fatalf("expected short layer error")
	}
	if _, err := DecodeRLE("!!", 1); err == nil {
		t.Fatalf("expected base64 error")
	}
}
