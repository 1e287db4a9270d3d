package vision

import "testing"

func TestExtractBalancedJSON(t *testing.T) {
	cases := []struct {
		name string
		text string
		want string
		ok   bool
	}{
		{
			name: "plain object",
			text: `{"tienda": "Mercadona", "total": 12.5}`,
			want: `{"tienda": "Mercadona", "total": 12.5}`,
			ok:   true,
		},
		{
			name: "object with brace inside a string value",
			text: `noise {"tienda": "{weird}", "total": 1} trailing`,
			want: `{"tienda": "{weird}", "total": 1}`,
			ok:   true,
		},
		{
			name: "nested object",
			text: `{"tienda": "X", "productos": [{"nombre": "Pan"}]}`,
			want: `{"tienda": "X", "productos": [{"nombre": "Pan"}]}`,
			ok:   true,
		},
		{
			name: "no object",
			text: "no json here",
			ok:   false,
		},
		{
			name: "escaped quote inside string does not end it early",
			text: `{"tienda": "say \"hi\"", "total": 1}`,
			want: `{"tienda": "say \"hi\"", "total": 1}`,
			ok:   true,
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, ok := extractBalancedJSON(c.text)
			if ok != c.ok {
				t.Fatalf("ok = %v, want %v", ok, c.ok)
			}
			if ok && got != c.want {
				t.Errorf("got %q, want %q", got, c.want)
			}
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Timeout.Seconds() != 30 {
		t.Errorf("expected 30s default timeout, got %v", cfg.Timeout)
	}
}
