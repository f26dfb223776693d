package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func intPtr(v int) *int { return &v }

func TestResolveEffective(t *testing.T) {
	independent := Course{IntervalsConfigMode: ConfigIndependent}
	unified := Course{IntervalsConfigMode: ConfigUnified}
	custom := &CourseInterval{ConfigMode: IntervalCustom}
	inherit := &CourseInterval{ConfigMode: IntervalInherit}
	group := CourseGroup{AgeMin: intPtr(4), AgeMax: intPtr(8)}
	sub := CourseSubgroup{MaxParticipants: 10}
	override := Overrides{
		Group:    &CourseIntervalGroup{Active: true, AgeMax: intPtr(6)},
		Subgroup: &CourseIntervalSubgroup{Active: true, MaxParticipants: intPtr(2)},
	}

	t.Run("custom interval uses overrides", func(t *testing.T) {
		eff, ok := ResolveEffective(independent, custom, group, sub, override)
		assert.True(t, ok)
		assert.Equal(t, 2, eff.MaxParticipants)
		assert.Equal(t, 4, *eff.AgeMin)
		assert.Equal(t, 6, *eff.AgeMax)
	})

	t.Run("inherit interval ignores overrides", func(t *testing.T) {
		eff, ok := ResolveEffective(independent, inherit, group, sub, override)
		assert.True(t, ok)
		assert.Equal(t, 10, eff.MaxParticipants)
	})

	t.Run("unified course ignores overrides", func(t *testing.T) {
		eff, ok := ResolveEffective(unified, custom, group, sub, override)
		assert.True(t, ok)
		assert.Equal(t, 10, eff.MaxParticipants)
	})

	t.Run("null override falls back to base", func(t *testing.T) {
		ov := Overrides{Subgroup: &CourseIntervalSubgroup{Active: true}}
		eff, ok := ResolveEffective(independent, custom, group, sub, ov)
		assert.True(t, ok)
		assert.Equal(t, 10, eff.MaxParticipants)
	})

	t.Run("group override applies when subgroup has none", func(t *testing.T) {
		ov := Overrides{Group: &CourseIntervalGroup{Active: true, MaxParticipants: intPtr(5)}}
		eff, _ := ResolveEffective(independent, custom, group, sub, ov)
		assert.Equal(t, 5, eff.MaxParticipants)
	})

	t.Run("inactive override excludes subgroup", func(t *testing.T) {
		_, ok := ResolveEffective(independent, custom, group, sub, Overrides{Subgroup: &CourseIntervalSubgroup{}})
		assert.False(t, ok)
		_, ok = ResolveEffective(independent, custom, group, sub, Overrides{Group: &CourseIntervalGroup{}})
		assert.False(t, ok)
	})

	t.Run("no interval uses base", func(t *testing.T) {
		eff, ok := ResolveEffective(independent, nil, group, CourseSubgroup{MaxParticipants: 0}, override)
		assert.True(t, ok)
		assert.Equal(t, 0, eff.MaxParticipants)
	})
}
