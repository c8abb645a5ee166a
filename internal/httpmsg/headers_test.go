package httpmsg

import "testing"

func TestHeadersAddPreservesFirstOccurrence(t *testing.T) {
	h := NewHeaders()
	h.Add("X-Forwarded-For", "1.1.1.1")
	h.Add("x-forwarded-for", "2.2.2.2")

	v, ok := h.Get("X-FORWARDED-FOR")
	if !ok {
		t.Fatal("expected header to be present")
	}
	if v != "1.1.1.1" {
		t.Fatalf("got %q, want first-occurrence value %q", v, "1.1.1.1")
	}
	if h.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", h.Len())
	}
}

func TestHeadersSetOverridesExisting(t *testing.T) {
	h := NewHeaders()
	h.Add("Connection", "keep-alive")
	h.Set("Connection", "close")

	v, _ := h.Get("connection")
	if v != "close" {
		t.Fatalf("got %q, want %q", v, "close")
	}
}

func TestHeadersDel(t *testing.T) {
	h := NewHeaders()
	h.Add("Host", "example.com")
	h.Del("host")
	if h.Has("Host") {
		t.Fatal("expected header to be removed")
	}
	if h.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", h.Len())
	}
}

func TestHeadersRangePreservesOrder(t *testing.T) {
	h := NewHeaders()
	h.Add("Host", "example.com")
	h.Add("Accept", "*/*")
	h.Add("User-Agent", "test")

	var names []string
	h.Range(func(name, value string) bool {
		names = append(names, name)
		return true
	})
	want := []string{"Host", "Accept", "User-Agent"}
	for i, n := range want {
		if names[i] != n {
			t.Fatalf("order[%d] = %q, want %q", i, names[i], n)
		}
	}
}

func TestHeadersClone(t *testing.T) {
	h := NewHeaders()
	h.Add("A", "1")
	c := h.Clone()
	c.Set("A", "2")

	v, _ := h.Get("A")
	if v != "1" {
		t.Fatalf("original mutated by clone: got %q", v)
	}
}
