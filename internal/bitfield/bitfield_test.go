package bitfield

import "testing"

type nodeTag struct {
	ChildrenAreLeaves bool   `bitfield:",1"`
	Reserved          uint32 `bitfield:",31"`
}

func TestPackUnpackRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		in   nodeTag
	}{
		{"leaf children", nodeTag{ChildrenAreLeaves: true}},
		{"node children", nodeTag{ChildrenAreLeaves: false}},
		{"reserved bits preserved", nodeTag{ChildrenAreLeaves: true, Reserved: 0x123}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			packed, err := Pack(tt.in, &Config{NumBits: 32})
			if err != nil {
				t.Fatalf("Pack: %v", err)
			}

			var out nodeTag
			if err := Unpack(&out, packed, &Config{NumBits: 32}); err != nil {
				t.Fatalf("Unpack: %v", err)
			}
			if out != tt.in {
				t.Fatalf("round trip mismatch: got %+v, want %+v", out, tt.in)
			}
		})
	}
}

func TestPackOverflow(t *testing.T) {
	type oneBit struct {
		V uint32 `bitfield:",1"`
	}
	if _, err := Pack(oneBit{V: 2}, &Config{NumBits: 32}); err == nil {
		t.Fatal("expected an error packing a value that doesn't fit in 1 bit")
	}
}
