package reorder

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPlan(t *testing.T) {
	tests := []struct {
		name string
		drop Drop
		want Instruction
		ok   bool
	}{
		{
			name: "same list later position is corrected",
			drop: Drop{Kind: KindActuator, FromGroup: 0, From: 0, ToGroup: 0, Over: 2, Upper: false},
			want: Instruction{Kind: KindActuator, FromGroup: 0, From: 0, ToGroup: 0, To: 2},
			ok:   true,
		},
		{
			name: "same list earlier position",
			drop: Drop{Kind: KindActuator, FromGroup: 0, From: 2, ToGroup: 0, Over: 0, Upper: true},
			want: Instruction{Kind: KindActuator, FromGroup: 0, From: 2, ToGroup: 0, To: 0},
			ok:   true,
		},
		{
			name: "cross list has no correction",
			drop: Drop{Kind: KindActuator, FromGroup: 0, From: 1, ToGroup: 1, Over: 0, Upper: true},
			want: Instruction{Kind: KindActuator, FromGroup: 0, From: 1, ToGroup: 1, To: 0},
			ok:   true,
		},
		{
			name: "cross list lower half appends after",
			drop: Drop{Kind: KindActuator, FromGroup: 0, From: 0, ToGroup: 1, Over: 0, Upper: false},
			want: Instruction{Kind: KindActuator, FromGroup: 0, From: 0, ToGroup: 1, To: 1},
			ok:   true,
		},
		{
			name: "empty group inserts at zero",
			drop: Drop{Kind: KindActuator, FromGroup: 0, From: 1, ToGroup: 2, Over: 2, Upper: false, Empty: true},
			want: Instruction{Kind: KindActuator, FromGroup: 0, From: 1, ToGroup: 2, To: 0},
			ok:   true,
		},
		{
			name: "upper half of self is a no-op",
			drop: Drop{Kind: KindActuator, FromGroup: 0, From: 1, ToGroup: 0, Over: 1, Upper: true},
		},
		{
			name: "lower half of previous row is a no-op",
			drop: Drop{Kind: KindActuator, FromGroup: 0, From: 1, ToGroup: 0, Over: 0, Upper: false},
		},
		{
			name: "upper half of next row is a no-op",
			drop: Drop{Kind: KindActuator, FromGroup: 0, From: 1, ToGroup: 0, Over: 2, Upper: true},
		},
		{
			name: "group moved down",
			drop: Drop{Kind: KindGroup, From: 0, Over: 2, Upper: false},
			want: Instruction{Kind: KindGroup, FromGroup: 0, From: 0, ToGroup: 2, To: 2},
			ok:   true,
		},
		{
			name: "group onto itself",
			drop: Drop{Kind: KindGroup, From: 1, Over: 1, Upper: false},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Plan(tt.drop)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
