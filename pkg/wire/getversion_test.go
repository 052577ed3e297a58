//go:build unit

package wire

import "testing"

func TestGetVersionResponseRoundTrip(t *testing.T) {
	resp := GetVersionResponse{
		FwUpdateRevision: 3,
		ExtensionFlag:    true,
		Entries: []ComponentVersionEntry{
			{Version: Version{Major: 1, Minor: 2, Variant: 0}, ProductInfo: ProductInfo{ProductID: 0x1111}},
			{Version: Version{Major: 4, Minor: 5, Variant: 6}, ProductInfo: ProductInfo{ProductID: 0x2222, Bank: 1}},
		},
	}
	packed := resp.Pack()
	got, err := ParseGetVersionResponse(packed)
	if err != nil {
		t.Fatalf("ParseGetVersionResponse: %v", err)
	}
	if got.FwUpdateRevision != resp.FwUpdateRevision || got.ExtensionFlag != resp.ExtensionFlag {
		t.Errorf("header mismatch: got %+v", got)
	}
	if len(got.Entries) != len(resp.Entries) {
		t.Fatalf("entry count = %d, want %d", len(got.Entries), len(resp.Entries))
	}
	for i := range resp.Entries {
		if got.Entries[i] != resp.Entries[i] {
			t.Errorf("entry %d = %+v, want %+v", i, got.Entries[i], resp.Entries[i])
		}
	}
}

func TestGetVersionResponseEmptyRegistry(t *testing.T) {
	resp := GetVersionResponse{}
	packed := resp.Pack()
	if len(packed) != GetVersionHeaderSize {
		t.Errorf("packed length = %d, want %d", len(packed), GetVersionHeaderSize)
	}
	got, err := ParseGetVersionResponse(packed)
	if err != nil {
		t.Fatalf("ParseGetVersionResponse: %v", err)
	}
	if len(got.Entries) != 0 {
		t.Errorf("expected no entries, got %d", len(got.Entries))
	}
}

func TestGetVersionResponseTruncated(t *testing.T) {
	resp := GetVersionResponse{Entries: []ComponentVersionEntry{{}}}
	packed := resp.Pack()
	_, err := ParseGetVersionResponse(packed[:len(packed)-1])
	if err == nil {
		t.Fatal("expected error for truncated response")
	}
}
