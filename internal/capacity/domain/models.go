package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// SlotLock is the row-level lock target for one subgroup on one date. It
// carries no data beyond its identity.
type SlotLock struct {
	ID               snowflake.ID `gorm:"primaryKey"`
	CourseSubgroupID snowflake.ID
	CourseDateID     snowflake.ID
	CreatedAt        time.Time
}

func (SlotLock) TableName() string { return "course_slot_locks" }

type Availability struct {
	SubgroupID snowflake.ID `json:"subgroup_id"`
	DateID     snowflake.ID `json:"date_id"`
	Max        int          `json:"max"`
	Occupied   int          `json:"occupied"`
	Remaining  int          `json:"remaining"`
}

func NewAvailability(subgroupID, dateID snowflake.ID, max, occupied int) Availability {
	remaining := max - occupied
	if remaining < 0 {
		remaining = 0
	}
	return Availability{
		SubgroupID: subgroupID,
		DateID:     dateID,
		Max:        max,
		Occupied:   occupied,
		Remaining:  remaining,
	}
}

// Admits reports whether n more participants fit. A zero max admits nobody.
func (a Availability) Admits(n int) bool {
	if a.Max <= 0 || n <= 0 {
		return false
	}
	return a.Occupied+n <= a.Max
}
