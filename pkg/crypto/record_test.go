package crypto

import (
	"errors"
	"testing"
)

type sample struct {
	Name  string   `json:"name"`
	Items []string `json:"items"`
}

func TestSealOpenJSON(t *testing.T) {
	key := testKey(t)
	in := sample{Name: "vault", Items: []string{"a", "b"}}

	rec, err := SealJSON(key, in)
	if err != nil {
		t.Fatalf("SealJSON failed: %v", err)
	}
	if rec.Version != RecordVersion || rec.Algorithm != RecordAlgorithm {
		t.Errorf("envelope = v%d %q", rec.Version, rec.Algorithm)
	}

	data, err := MarshalRecord(rec)
	if err != nil {
		t.Fatalf("MarshalRecord failed: %v", err)
	}
	back, err := UnmarshalRecord(data)
	if err != nil {
		t.Fatalf("UnmarshalRecord failed: %v", err)
	}

	var out sample
	if err := OpenJSON(key, back, &out); err != nil {
		t.Fatalf("OpenJSON failed: %v", err)
	}
	if out.Name != in.Name || len(out.Items) != 2 || out.Items[1] != "b" {
		t.Errorf("OpenJSON = %+v, want %+v", out, in)
	}
}

func TestOpenJSONWrongKey(t *testing.T) {
	rec, err := SealJSON(testKey(t), sample{Name: "x"})
	if err != nil {
		t.Fatalf("SealJSON failed: %v", err)
	}
	var out sample
	if err := OpenJSON(testKey(t), rec, &out); !errors.Is(err, ErrDecryptionFailed) {
		t.Errorf("OpenJSON with wrong key error = %v, want ErrDecryptionFailed", err)
	}
}

func TestOpenUnsupportedRecord(t *testing.T) {
	key := testKey(t)
	rec, _ := Seal(key, []byte("x"))

	rec.Version = 2
	if _, err := Open(key, rec); !errors.Is(err, ErrUnsupportedRecord) {
		t.Errorf("Open(v2) error = %v, want ErrUnsupportedRecord", err)
	}

	rec.Version = RecordVersion
	rec.Algorithm = "AES-128-CBC"
	if _, err := Open(key, rec); !errors.Is(err, ErrUnsupportedRecord) {
		t.Errorf("Open(alg) error = %v, want ErrUnsupportedRecord", err)
	}

	if _, err := Open(key, nil); !errors.Is(err, ErrDecryptionFailed) {
		t.Errorf("Open(nil) error = %v, want ErrDecryptionFailed", err)
	}
}

func TestUnmarshalRecordMalformed(t *testing.T) {
	if _, err := UnmarshalRecord([]byte("{not json")); !errors.Is(err, ErrUnsupportedRecord) {
		t.Errorf("UnmarshalRecord error = %v, want ErrUnsupportedRecord", err)
	}
}
