package cache

import (
	"net/url"
	"testing"
)

func TestKey_String(t *testing.T) {
	tests := []struct {
		name string
		key  Key
		want string
	}{
		{
			name: "simple read no params",
			key: Key{
				Method: "GET",
				Path:   "/products",
			},
			want: "sfc:GET:products",
		},
		{
			name: "method is upper-cased",
			key: Key{
				Method: "get",
				Path:   "/products",
			},
			want: "sfc:GET:products",
		},
		{
			name: "read with query params",
			key: Key{
				Method: "GET",
				Path:   "/products",
				Query: url.Values{
					"category": []string{"shoes"},
				},
			},
			want: "sfc:GET:products:category=shoes",
		},
		{
			name: "multiple query params (sorted)",
			key: Key{
				Method: "GET",
				Path:   "/products",
				Query: url.Values{
					"page":     []string{"2"},
					"category": []string{"shoes"},
				},
			},
			want: "sfc:GET:products:category=shoes:page=2",
		},
		{
			name: "per-user namespace",
			key: Key{
				Method: "GET",
				Path:   "/carts",
				UserID: "u-42",
			},
			want: "sfc:GET:carts:user=u-42",
		},
		{
			name: "trailing slash normalized",
			key: Key{
				Method: "GET",
				Path:   "/carts/",
				UserID: "u-42",
			},
			want: "sfc:GET:carts:user=u-42",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.key.String()
			if got != tt.want {
				t.Errorf("Key.String() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestKey_String_QueryOrderInsensitive(t *testing.T) {
	a := Key{
		Method: "GET",
		Path:   "/search",
		Query:  url.Values{"q": {"boots"}, "sort": {"price"}, "page": {"1"}},
	}
	b := Key{
		Method: "GET",
		Path:   "/search",
		Query:  url.Values{"page": {"1"}, "sort": {"price"}, "q": {"boots"}},
	}

	if a.String() != b.String() {
		t.Errorf("Keys differ for identical logical requests: %q vs %q", a.String(), b.String())
	}
}

func TestKey_String_BodyFingerprint(t *testing.T) {
	withBody := func(body string) Key {
		return Key{Method: "POST", Path: "/carts/items", Body: []byte(body)}
	}

	same1 := withBody(`{"productId":"p1","quantity":2}`)
	same2 := withBody(`{"productId":"p1","quantity":2}`)
	other := withBody(`{"productId":"p1","quantity":3}`)

	if same1.String() != same2.String() {
		t.Error("Equal bodies must produce equal keys")
	}
	if same1.String() == other.String() {
		t.Error("Different bodies must produce different keys")
	}
}

func TestKey_String_NamespacesDisjoint(t *testing.T) {
	public := Key{Method: "GET", Path: "/products/p1"}
	private := Key{Method: "GET", Path: "/products/p1", UserID: "u-1"}
	otherUser := Key{Method: "GET", Path: "/products/p1", UserID: "u-2"}

	if public.String() == private.String() {
		t.Error("Public and per-user keys must be disjoint")
	}
	if private.String() == otherUser.String() {
		t.Error("Keys for different users must be disjoint")
	}
}
