package crm

import "testing"

func TestNormalizePhone(t *testing.T) {
	cases := []struct {
		name   string
		raw    string
		region string
		want   string // empty means nil expected
	}{
		{"us national format", "(415) 555-2671", "US", "+14155552671"},
		{"already e164", "+31612345678", "US", "+31612345678"},
		{"dutch national with region", "06 1234 5678", "NL", "+31612345678"},
		{"blank", "   ", "US", ""},
		{"garbage", "call me maybe", "US", ""},
		{"too short", "12", "US", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := NormalizePhone(tc.raw, tc.region)
			if tc.want == "" {
				if got != nil {
					t.Fatalf("expected nil, got %q", *got)
				}
				return
			}
			if got == nil {
				t.Fatalf("expected %q, got nil", tc.want)
			}
			if *got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, *got)
			}
		})
	}
}
