package codec

import (
	"encoding/json"
	"testing"

	"github.com/ssargent/slotkv/pkg/xcrypto"
)

type widget struct {
	Name  string
	Price int
}

func (w widget) MarshalBinary() ([]byte, error) {
	return json.Marshal(w)
}

func (w *widget) UnmarshalBinary(data []byte) error {
	return json.Unmarshal(data, w)
}

func TestCodecRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		opts Options
	}{
		{"gob plain", Options{Serializer: BinaryContractless}},
		{"gob compressed", Options{Serializer: BinaryContractless, Compress: true}},
		{"json plain", Options{Serializer: JSONUTF8}},
		{"json compressed", Options{Serializer: JSONUTF8, Compress: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New[string, widget](tt.opts)

			data, err := c.Encode("sprocket", widget{Name: "sprocket", Price: 42})
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}

			key, value, err := c.Decode(data)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if key != "sprocket" || value.Name != "sprocket" || value.Price != 42 {
				t.Fatalf("round trip mismatch: key=%q value=%+v", key, value)
			}
		})
	}
}

func TestCodecBinaryContract(t *testing.T) {
	c := New[int, widget](Options{Serializer: BinaryContract})

	data, err := c.Encode(7, widget{Name: "gear", Price: 99})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	key, value, err := c.Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if key != 7 || value.Name != "gear" || value.Price != 99 {
		t.Fatalf("round trip mismatch: key=%d value=%+v", key, value)
	}
}

func TestCodecBinaryContractRejectsNonConformingValue(t *testing.T) {
	c := New[string, int](Options{Serializer: BinaryContract})

	if _, err := c.Encode("x", 5); err == nil {
		t.Fatal("expected error encoding a value that does not implement encoding.BinaryMarshaler")
	}
}

func TestCodecEncryptedRoundTrip(t *testing.T) {
	salt, err := xcrypto.GenerateSalt()
	if err != nil {
		t.Fatalf("GenerateSalt: %v", err)
	}
	cipher, err := xcrypto.Derive("correct horse battery staple", salt, xcrypto.SHA256)
	if err != nil {
		t.Fatalf("Derive: %v", err)
	}

	c := New[string, widget](Options{Serializer: JSONUTF8, Compress: true, Cipher: cipher})

	data, err := c.Encode("sprocket", widget{Name: "sprocket", Price: 42})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	wrongCipher, err := xcrypto.Derive("wrong password", salt, xcrypto.SHA256)
	if err != nil {
		t.Fatalf("Derive: %v", err)
	}
	wrongCodec := New[string, widget](Options{Serializer: JSONUTF8, Compress: true, Cipher: wrongCipher})
	if _, _, err := wrongCodec.Decode(data); err == nil {
		t.Fatal("expected decode with wrong password to fail")
	}

	key, value, err := c.Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if key != "sprocket" || value.Name != "sprocket" || value.Price != 42 {
		t.Fatalf("round trip mismatch: key=%q value=%+v", key, value)
	}
}
