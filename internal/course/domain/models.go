package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type IntervalsConfigMode string

const (
	ConfigUnified     IntervalsConfigMode = "unified"
	ConfigIndependent IntervalsConfigMode = "independent"
)

type IntervalConfigMode string

const (
	IntervalInherit IntervalConfigMode = "inherit"
	IntervalCustom  IntervalConfigMode = "custom"
)

type DateGenerationMethod string

const (
	GenerateConsecutive DateGenerationMethod = "consecutive"
	GenerateWeekly      DateGenerationMethod = "weekly"
	GenerateManual      DateGenerationMethod = "manual"
	GenerateFirstDay    DateGenerationMethod = "first_day"
)

type BookingMode string

const (
	BookingFlexible BookingMode = "flexible"
	BookingPackage  BookingMode = "package"
)

// CourseSettings is the typed form of the course settings JSON column.
type CourseSettings struct {
	PriceMode                 BookingMode `json:"price_mode,omitempty"`
	MaxParticipantsPerBooking int         `json:"max_participants_per_booking,omitempty"`
	ExcludedDates             []string    `json:"excluded_dates,omitempty"`
}

// EffectivePriceMode falls back to package pricing when unset.
func (s CourseSettings) EffectivePriceMode() BookingMode {
	if s.PriceMode == BookingFlexible {
		return BookingFlexible
	}
	return BookingPackage
}

// WeeklyPattern is the typed form of course_intervals.weekly_pattern.
type WeeklyPattern struct {
	Monday    bool `json:"monday,omitempty"`
	Tuesday   bool `json:"tuesday,omitempty"`
	Wednesday bool `json:"wednesday,omitempty"`
	Thursday  bool `json:"thursday,omitempty"`
	Friday    bool `json:"friday,omitempty"`
	Saturday  bool `json:"saturday,omitempty"`
	Sunday    bool `json:"sunday,omitempty"`
}

func (p WeeklyPattern) Allows(day time.Weekday) bool {
	switch day {
	case time.Monday:
		return p.Monday
	case time.Tuesday:
		return p.Tuesday
	case time.Wednesday:
		return p.Wednesday
	case time.Thursday:
		return p.Thursday
	case time.Friday:
		return p.Friday
	case time.Saturday:
		return p.Saturday
	default:
		return p.Sunday
	}
}

func (p WeeklyPattern) Empty() bool {
	return p == WeeklyPattern{}
}

type Course struct {
	ID                  snowflake.ID                       `json:"id" gorm:"primaryKey"`
	SchoolID            snowflake.ID                       `json:"school_id"`
	SportID             snowflake.ID                       `json:"sport_id"`
	Name                string                             `json:"name"`
	IntervalsConfigMode IntervalsConfigMode                `json:"intervals_config_mode"`
	Price               decimal.Decimal                    `json:"price"`
	Currency            string                             `json:"currency"`
	StartDate           time.Time                          `json:"start_date"`
	EndDate             time.Time                          `json:"end_date"`
	Settings            datatypes.JSONType[CourseSettings] `json:"settings"`
	Active              bool                               `json:"active"`
	CreatedAt           time.Time                          `json:"created_at"`
	UpdatedAt           time.Time                          `json:"updated_at"`
	DeletedAt           *time.Time                         `json:"deleted_at,omitempty"`
}

func (Course) TableName() string { return "courses" }

func (c Course) Independent() bool {
	return c.IntervalsConfigMode == ConfigIndependent
}

type CourseInterval struct {
	ID                   snowflake.ID                      `json:"id" gorm:"primaryKey"`
	CourseID             snowflake.ID                      `json:"course_id"`
	Name                 string                            `json:"name"`
	StartDate            time.Time                         `json:"start_date"`
	EndDate              time.Time                         `json:"end_date"`
	ConfigMode           IntervalConfigMode                `json:"config_mode"`
	DateGenerationMethod DateGenerationMethod              `json:"date_generation_method"`
	ConsecutiveDays      int                               `json:"consecutive_days"`
	WeeklyPattern        datatypes.JSONType[WeeklyPattern] `json:"weekly_pattern"`
	ManualDates          datatypes.JSONSlice[string]       `json:"manual_dates"`
	HourStart            string                            `json:"hour_start"`
	HourEnd              string                            `json:"hour_end"`
	BookingMode          BookingMode                       `json:"booking_mode"`
	DisplayOrder         int                               `json:"display_order"`
	CreatedAt            time.Time                         `json:"created_at"`
	UpdatedAt            time.Time                         `json:"updated_at"`
	DeletedAt            *time.Time                        `json:"deleted_at,omitempty"`
}

func (CourseInterval) TableName() string { return "course_intervals" }

// UsesOverrides reports whether interval override rows apply for this course.
func (i CourseInterval) UsesOverrides(course Course) bool {
	return course.Independent() && i.ConfigMode == IntervalCustom
}

type CourseDate struct {
	ID               snowflake.ID  `json:"id" gorm:"primaryKey"`
	CourseID         snowflake.ID  `json:"course_id"`
	CourseIntervalID *snowflake.ID `json:"course_interval_id,omitempty"`
	Date             time.Time     `json:"date"`
	HourStart        string        `json:"hour_start"`
	HourEnd          string        `json:"hour_end"`
	Active           bool          `json:"active"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
	DeletedAt        *time.Time    `json:"deleted_at,omitempty"`
}

func (CourseDate) TableName() string { return "course_dates" }

// Key identifies a date for deduplication within a course.
func (d CourseDate) Key() string {
	return DateKey(d.Date, d.HourStart, d.HourEnd)
}

func DateKey(date time.Time, hourStart, hourEnd string) string {
	return date.UTC().Format("2006-01-02") + "|" + strings.TrimSpace(hourStart) + "|" + strings.TrimSpace(hourEnd)
}

type CourseGroup struct {
	ID               snowflake.ID  `json:"id" gorm:"primaryKey"`
	CourseID         snowflake.ID  `json:"course_id"`
	DegreeID         snowflake.ID  `json:"degree_id"`
	AgeMin           *int          `json:"age_min,omitempty"`
	AgeMax           *int          `json:"age_max,omitempty"`
	TeacherMinDegree *snowflake.ID `json:"teacher_min_degree,omitempty"`
	RequiredDegree   bool          `json:"required_degree"`
	CreatedAt        time.Time     `json:"created_at"`
	DeletedAt        *time.Time    `json:"deleted_at,omitempty"`
}

func (CourseGroup) TableName() string { return "course_groups" }

type CourseSubgroup struct {
	ID              snowflake.ID  `json:"id" gorm:"primaryKey"`
	CourseID        snowflake.ID  `json:"course_id"`
	CourseGroupID   snowflake.ID  `json:"course_group_id"`
	CourseDateID    *snowflake.ID `json:"course_date_id,omitempty"`
	MaxParticipants int           `json:"max_participants"`
	MonitorID       *snowflake.ID `json:"monitor_id,omitempty"`
	SubgroupDatesID string        `json:"subgroup_dates_id"`
	CreatedAt       time.Time     `json:"created_at"`
	DeletedAt       *time.Time    `json:"deleted_at,omitempty"`
}

func (CourseSubgroup) TableName() string { return "course_subgroups" }

type CourseSubgroupDate struct {
	ID               snowflake.ID `json:"id" gorm:"primaryKey"`
	CourseSubgroupID snowflake.ID `json:"course_subgroup_id"`
	CourseDateID     snowflake.ID `json:"course_date_id"`
	CreatedAt        time.Time    `json:"created_at"`
}

func (CourseSubgroupDate) TableName() string { return "course_subgroup_dates" }

type CourseIntervalGroup struct {
	ID               snowflake.ID `json:"id" gorm:"primaryKey"`
	CourseIntervalID snowflake.ID `json:"course_interval_id"`
	CourseGroupID    snowflake.ID `json:"course_group_id"`
	MaxParticipants  *int         `json:"max_participants,omitempty"`
	AgeMin           *int         `json:"age_min,omitempty"`
	AgeMax           *int         `json:"age_max,omitempty"`
	Active           bool         `json:"active"`
	CreatedAt        time.Time    `json:"created_at"`
	UpdatedAt        time.Time    `json:"updated_at"`
}

func (CourseIntervalGroup) TableName() string { return "course_interval_groups" }

type CourseIntervalSubgroup struct {
	ID                    snowflake.ID `json:"id" gorm:"primaryKey"`
	CourseIntervalGroupID snowflake.ID `json:"course_interval_group_id"`
	CourseSubgroupID      snowflake.ID `json:"course_subgroup_id"`
	MaxParticipants       *int         `json:"max_participants,omitempty"`
	Active                bool         `json:"active"`
	CreatedAt             time.Time    `json:"created_at"`
	UpdatedAt             time.Time    `json:"updated_at"`
}

func (CourseIntervalSubgroup) TableName() string { return "course_interval_subgroups" }

// BookableUnit is one (interval, group, subgroup, date) combination that can
// take reservations, with its overrides already applied.
type BookableUnit struct {
	IntervalID      *snowflake.ID `json:"interval_id,omitempty"`
	IntervalName    string        `json:"interval_name,omitempty"`
	GroupID         snowflake.ID  `json:"group_id"`
	SubgroupID      snowflake.ID  `json:"subgroup_id"`
	SubgroupLabel   string        `json:"subgroup_label"`
	DateID          snowflake.ID  `json:"date_id"`
	Date            time.Time     `json:"date"`
	HourStart       string        `json:"hour_start"`
	HourEnd         string        `json:"hour_end"`
	MaxParticipants int           `json:"max_participants"`
	AgeMin          *int          `json:"age_min,omitempty"`
	AgeMax          *int          `json:"age_max,omitempty"`
}

// Slot is a validated (subgroup, date) pair ready for capacity accounting.
type Slot struct {
	CourseID        snowflake.ID
	GroupID         snowflake.ID
	SubgroupID      snowflake.ID
	DateID          snowflake.ID
	Date            time.Time
	Interval        *CourseInterval
	MaxParticipants int
	BaseMonitorID   *snowflake.ID
	DegreeID        snowflake.ID
}

// IntervalID returns the slot's interval id, if any.
func (s Slot) IntervalID() *snowflake.ID {
	if s.Interval == nil {
		return nil
	}
	id := s.Interval.ID
	return &id
}
