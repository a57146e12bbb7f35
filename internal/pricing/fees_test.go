package pricing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSchedule() FeeSchedule {
	return FeeSchedule{
		Defaults:  Fees{Shipping: 40, Convenience: 5, Platform: 2},
		FreeAbove: 999,
		Rules: []FeeRule{
			{ScopeType: ScopeAll, ScopeValue: "*", ShippingFee: 30, ConvenienceFee: 3, PlatformFee: 1},
			{ScopeType: ScopeCategory, ScopeValue: "Electronics", ShippingFee: 80, ConvenienceFee: 0, PlatformFee: 10},
			{ScopeType: ScopeProduct, ScopeValue: "p-heavy", ShippingFee: 150, ConvenienceFee: 1, PlatformFee: 0},
		},
	}
}

func TestLineFees_Precedence(t *testing.T) {
	s := testSchedule()

	cases := []struct {
		name string
		line FeeLine
		want Fees
	}{
		{"product beats category", FeeLine{ProductID: "p-heavy", Category: "electronics"}, Fees{150, 1, 0}},
		{"category case-insensitive", FeeLine{ProductID: "p1", Category: "ELECTRONICS"}, Fees{80, 0, 10}},
		{"catch-all", FeeLine{ProductID: "p2", Category: "books"}, Fees{30, 3, 1}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, s.LineFees(tc.line))
		})
	}

	s.Rules = s.Rules[1:]
	assert.Equal(t, s.Defaults, s.LineFees(FeeLine{ProductID: "p2", Category: "books"}), "no catch-all falls back to defaults")
}

func TestResolveFees_IsPerCategoryMaximum(t *testing.T) {
	s := testSchedule()
	lineSets := [][]FeeLine{
		{{ProductID: "p-heavy"}, {ProductID: "p1", Category: "electronics"}},
		{{ProductID: "p2", Category: "books"}, {ProductID: "p1", Category: "electronics"}},
		{{ProductID: "p2", Category: "books"}},
		{{ProductID: "p-heavy"}, {ProductID: "p2"}, {ProductID: "p3", Category: "Electronics"}},
	}
	for _, lines := range lineSets {
		got := s.ResolveFees(lines)
		var want Fees
		for i, l := range lines {
			f := s.LineFees(l)
			if i == 0 || f.Shipping > want.Shipping {
				want.Shipping = f.Shipping
			}
			if i == 0 || f.Convenience > want.Convenience {
				want.Convenience = f.Convenience
			}
			if i == 0 || f.Platform > want.Platform {
				want.Platform = f.Platform
			}
		}
		require.Equal(t, want, got)
	}

	assert.Equal(t, Fees{150, 1, 10}, s.ResolveFees(lineSets[0]))
}

func TestResolveFees_EmptyCartUsesDefaults(t *testing.T) {
	s := testSchedule()
	assert.Equal(t, s.Defaults, s.ResolveFees(nil))
}
