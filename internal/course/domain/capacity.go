package domain

// Overrides holds the interval override rows that apply to one subgroup.
type Overrides struct {
	Group    *CourseIntervalGroup
	Subgroup *CourseIntervalSubgroup
}

// Effective is a subgroup's configuration after overrides.
type Effective struct {
	MaxParticipants int
	AgeMin          *int
	AgeMax          *int
}

// ResolveEffective applies interval overrides to the base group and subgroup.
// Overrides only count for custom intervals of independent courses; any
// override field left null falls back to the base value. An inactive
// override row removes the subgroup from the interval (offered=false).
func ResolveEffective(course Course, interval *CourseInterval, group CourseGroup, subgroup CourseSubgroup, ov Overrides) (Effective, bool) {
	eff := Effective{
		MaxParticipants: subgroup.MaxParticipants,
		AgeMin:          group.AgeMin,
		AgeMax:          group.AgeMax,
	}
	if interval == nil || !interval.UsesOverrides(course) {
		return clampEffective(eff), true
	}

	if ov.Group != nil {
		if !ov.Group.Active {
			return Effective{}, false
		}
		if ov.Group.MaxParticipants != nil {
			eff.MaxParticipants = *ov.Group.MaxParticipants
		}
		if ov.Group.AgeMin != nil {
			eff.AgeMin = ov.Group.AgeMin
		}
		if ov.Group.AgeMax != nil {
			eff.AgeMax = ov.Group.AgeMax
		}
	}
	if ov.Subgroup != nil {
		if !ov.Subgroup.Active {
			return Effective{}, false
		}
		if ov.Subgroup.MaxParticipants != nil {
			eff.MaxParticipants = *ov.Subgroup.MaxParticipants
		}
	}
	return clampEffective(eff), true
}

func clampEffective(eff Effective) Effective {
	if eff.MaxParticipants < 0 {
		eff.MaxParticipants = 0
	}
	return eff
}
