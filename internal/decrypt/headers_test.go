package decrypt

import "testing"

func TestHeaderValueCaseInsensitive(t *testing.T) {
	pairs := []HeaderPair{
		{Name: "Content-Type", Value: "image/jpeg"},
		{Name: "etag", Value: "abc"},
		{Name: "Etag", Value: "ignored-duplicate"},
	}

	if got := HeaderValue(pairs, "ETAG"); got != "abc" {
		t.Errorf("Expected first match abc, got %q", got)
	}
	if got := HeaderValue(pairs, "X-Missing"); got != "" {
		t.Errorf("Expected empty for absent header, got %q", got)
	}
}

func TestHeaderListAddDedup(t *testing.T) {
	l := newHeaderList()

	if !l.Add("Etag", "first") {
		t.Error("First Add should succeed")
	}
	if l.Add("ETAG", "second") {
		t.Error("Duplicate Add should be rejected case-insensitively")
	}

	pairs := l.Pairs()
	if len(pairs) != 1 || pairs[0].Value != "first" {
		t.Errorf("Earlier entry must win: %+v", pairs)
	}
}

func TestHeaderListSetOverwrites(t *testing.T) {
	l := newHeaderList()
	l.Add("X-Object-Meta-Color", "red")
	l.Set("x-object-meta-color", "blue")
	l.Set("X-New", "v")

	pairs := l.Pairs()
	if len(pairs) != 2 {
		t.Fatalf("Expected 2 pairs, got %d", len(pairs))
	}
	if pairs[0].Value != "blue" {
		t.Errorf("Set should overwrite in place, got %q", pairs[0].Value)
	}
	if pairs[1].Name != "X-New" {
		t.Errorf("Set should append missing names, got %+v", pairs[1])
	}
}

func TestIsTransientHeader(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"X-Object-Transient-Sysmeta-Crypto-Meta-Color", true},
		{"x-object-transient-sysmeta-crypto-meta-color", true},
		{"X-Container-Transient-Sysmeta-Crypto-Meta-Owner", true},
		{"X-Object-Meta-Color", false},
		{"Etag", false},
	}
	for _, tt := range tests {
		if got := IsTransientHeader(tt.name); got != tt.want {
			t.Errorf("IsTransientHeader(%s) = %v, want %v", tt.name, got, tt.want)
		}
	}
}
