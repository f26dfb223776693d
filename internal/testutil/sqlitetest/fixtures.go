package sqlitetest

import (
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Fixture inserts course structure rows with raw SQL so tests in any
// package can seed data without importing each other's domain types.
type Fixture struct {
	t    *testing.T
	db   *gorm.DB
	node *snowflake.Node
	Now  time.Time
}

func NewFixture(t *testing.T, db *gorm.DB) *Fixture {
	t.Helper()
	return &Fixture{
		t:    t,
		db:   db,
		node: MustNode(t),
		Now:  time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC),
	}
}

func (f *Fixture) exec(sql string, args ...any) {
	f.t.Helper()
	if err := f.db.Exec(sql, args...).Error; err != nil {
		f.t.Fatalf("fixture exec: %v\n%s", err, sql)
	}
}

func (f *Fixture) NextID() snowflake.ID {
	return f.node.Generate()
}

type CourseOpts struct {
	Mode     string
	Price    string
	Settings string
	SchoolID int64
	SportID  int64
}

func (f *Fixture) Course(o CourseOpts) snowflake.ID {
	f.t.Helper()
	if o.Mode == "" {
		o.Mode = "unified"
	}
	if o.Price == "" {
		o.Price = "100"
	}
	if o.Settings == "" {
		o.Settings = "{}"
	}
	if o.SchoolID == 0 {
		o.SchoolID = 1
	}
	if o.SportID == 0 {
		o.SportID = 2
	}
	id := f.NextID()
	f.exec(`INSERT INTO courses (id, school_id, sport_id, name, intervals_config_mode, price, currency,
		start_date, end_date, settings, active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, 'CHF', ?, ?, ?, ?, ?, ?)`,
		id, o.SchoolID, o.SportID, "Course "+id.String(), o.Mode, o.Price,
		Day(2026, 1, 1), Day(2026, 3, 31), o.Settings, true, f.Now, f.Now)
	return id
}

type IntervalOpts struct {
	ConfigMode      string
	Method          string
	BookingMode     string
	Start           time.Time
	End             time.Time
	ConsecutiveDays int
	WeeklyPattern   string
	ManualDates     string
	HourStart       string
	HourEnd         string
}

func (f *Fixture) Interval(courseID snowflake.ID, o IntervalOpts) snowflake.ID {
	f.t.Helper()
	if o.ConfigMode == "" {
		o.ConfigMode = "inherit"
	}
	if o.Method == "" {
		o.Method = "consecutive"
	}
	if o.BookingMode == "" {
		o.BookingMode = "package"
	}
	if o.Start.IsZero() {
		o.Start = Day(2026, 1, 10)
	}
	if o.End.IsZero() {
		o.End = Day(2026, 1, 31)
	}
	if o.WeeklyPattern == "" {
		o.WeeklyPattern = "{}"
	}
	if o.ManualDates == "" {
		o.ManualDates = "[]"
	}
	if o.HourStart == "" {
		o.HourStart = "09:00"
	}
	if o.HourEnd == "" {
		o.HourEnd = "12:00"
	}
	id := f.NextID()
	f.exec(`INSERT INTO course_intervals (id, course_id, name, start_date, end_date, config_mode,
		date_generation_method, consecutive_days, weekly_pattern, manual_dates, hour_start, hour_end,
		booking_mode, display_order, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?)`,
		id, courseID, "Interval "+id.String(), o.Start, o.End, o.ConfigMode, o.Method,
		o.ConsecutiveDays, o.WeeklyPattern, o.ManualDates, o.HourStart, o.HourEnd, o.BookingMode,
		f.Now, f.Now)
	return id
}

// Date inserts an active course date; intervalID may be zero.
func (f *Fixture) Date(courseID, intervalID snowflake.ID, day time.Time) snowflake.ID {
	f.t.Helper()
	id := f.NextID()
	var interval any
	if intervalID != 0 {
		interval = intervalID
	}
	f.exec(`INSERT INTO course_dates (id, course_id, course_interval_id, date, hour_start, hour_end,
		active, created_at, updated_at) VALUES (?, ?, ?, ?, '09:00', '12:00', ?, ?, ?)`,
		id, courseID, interval, day, true, f.Now, f.Now)
	return id
}

func (f *Fixture) Group(courseID snowflake.ID) snowflake.ID {
	f.t.Helper()
	id := f.NextID()
	f.exec(`INSERT INTO course_groups (id, course_id, degree_id, age_min, age_max, required_degree, created_at)
		VALUES (?, ?, 7, 4, 12, ?, ?)`, id, courseID, false, f.Now)
	return id
}

// Subgroup inserts a subgroup; monitorID may be zero for none.
func (f *Fixture) Subgroup(courseID, groupID snowflake.ID, maxParticipants int, monitorID int64) snowflake.ID {
	f.t.Helper()
	id := f.NextID()
	var monitor any
	if monitorID != 0 {
		monitor = monitorID
	}
	f.exec(`INSERT INTO course_subgroups (id, course_id, course_group_id, max_participants, monitor_id,
		subgroup_dates_id, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, courseID, groupID, maxParticipants, monitor, "A1", f.Now)
	return id
}

func (f *Fixture) Link(subgroupID, dateID snowflake.ID) {
	f.t.Helper()
	f.exec(`INSERT INTO course_subgroup_dates (id, course_subgroup_id, course_date_id, created_at)
		VALUES (?, ?, ?, ?)`, f.NextID(), subgroupID, dateID, f.Now)
}

// IntervalGroup inserts an override row; maxParticipants may be nil.
func (f *Fixture) IntervalGroup(intervalID, groupID snowflake.ID, maxParticipants *int, active bool) snowflake.ID {
	f.t.Helper()
	id := f.NextID()
	f.exec(`INSERT INTO course_interval_groups (id, course_interval_id, course_group_id, max_participants,
		active, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, intervalID, groupID, maxParticipants, active, f.Now, f.Now)
	return id
}

func (f *Fixture) IntervalSubgroup(intervalGroupID, subgroupID snowflake.ID, maxParticipants *int, active bool) snowflake.ID {
	f.t.Helper()
	id := f.NextID()
	f.exec(`INSERT INTO course_interval_subgroups (id, course_interval_group_id, course_subgroup_id,
		max_participants, active, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, intervalGroupID, subgroupID, maxParticipants, active, f.Now, f.Now)
	return id
}

func (f *Fixture) IntervalMonitor(intervalID, subgroupID snowflake.ID, monitorID int64, active bool) snowflake.ID {
	f.t.Helper()
	id := f.NextID()
	f.exec(`INSERT INTO course_interval_monitors (id, course_interval_id, course_subgroup_id, monitor_id,
		active, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, intervalID, subgroupID, monitorID, active, f.Now, f.Now)
	return id
}

type DiscountOpts struct {
	Type            string
	Value           string
	Priority        int
	MinParticipants int
	MinDays         int
	ValidFrom       *time.Time
	ValidTo         *time.Time
	Active          *bool
	CreatedAt       time.Time
}

func (o *DiscountOpts) defaults(now time.Time) {
	if o.Type == "" {
		o.Type = "percentage"
	}
	if o.Active == nil {
		active := true
		o.Active = &active
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
}

func (f *Fixture) CourseDiscount(courseID snowflake.ID, o DiscountOpts) snowflake.ID {
	f.t.Helper()
	o.defaults(f.Now)
	id := f.NextID()
	f.exec(`INSERT INTO course_discounts (id, course_id, name, discount_type, value, valid_from, valid_to,
		min_participants, min_days, priority, active, created_at)
		VALUES (?, ?, 'course discount', ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, courseID, o.Type, o.Value, o.ValidFrom, o.ValidTo, o.MinParticipants, o.MinDays,
		o.Priority, *o.Active, o.CreatedAt)
	return id
}

func (f *Fixture) IntervalDiscount(courseID, intervalID snowflake.ID, o DiscountOpts) snowflake.ID {
	f.t.Helper()
	o.defaults(f.Now)
	id := f.NextID()
	f.exec(`INSERT INTO course_interval_discounts (id, course_id, course_interval_id, name, discount_type,
		value, valid_from, valid_to, min_participants, min_days, priority, active, created_at)
		VALUES (?, ?, ?, 'interval discount', ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, courseID, intervalID, o.Type, o.Value, o.ValidFrom, o.ValidTo, o.MinParticipants,
		o.MinDays, o.Priority, *o.Active, o.CreatedAt)
	return id
}

type CodeOpts struct {
	Code              string
	Type              string
	Value             string
	TotalUses         *int
	RemainingUses     *int
	MaxUsesPerUser    *int
	ValidFrom         *time.Time
	ValidTo           *time.Time
	SchoolIDs         string
	SportIDs          string
	CourseIDs         string
	DegreeIDs         string
	ClientIDs         string
	MinPurchaseAmount *string
	MaxDiscountAmount *string
	Active            *bool
}

func (f *Fixture) DiscountCode(o CodeOpts) snowflake.ID {
	f.t.Helper()
	if o.Type == "" {
		o.Type = "percentage"
	}
	for _, list := range []*string{&o.SchoolIDs, &o.SportIDs, &o.CourseIDs, &o.DegreeIDs, &o.ClientIDs} {
		if *list == "" {
			*list = "[]"
		}
	}
	active := true
	if o.Active != nil {
		active = *o.Active
	}
	id := f.NextID()
	f.exec(`INSERT INTO discount_codes (id, code, discount_type, value, total_uses, remaining_uses,
		max_uses_per_user, valid_from, valid_to, school_ids, sport_ids, course_ids, degree_ids, client_ids,
		min_purchase_amount, max_discount_amount, active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, o.Code, o.Type, o.Value, o.TotalUses, o.RemainingUses, o.MaxUsesPerUser, o.ValidFrom,
		o.ValidTo, o.SchoolIDs, o.SportIDs, o.CourseIDs, o.DegreeIDs, o.ClientIDs,
		o.MinPurchaseAmount, o.MaxDiscountAmount, active, f.Now, f.Now)
	return id
}

// Booking inserts a confirmed booking with one participant row per slot.
func (f *Fixture) Booking(courseID snowflake.ID, subgroupID, dateID, groupID snowflake.ID, participants int) snowflake.ID {
	f.t.Helper()
	bookingID := f.NextID()
	f.exec(`INSERT INTO bookings (id, school_id, course_id, client_id, created_by, status, participants, days,
		currency, original_price, discount_amount, final_price, created_at, updated_at)
		VALUES (?, 1, ?, 99, 99, 'confirmed', ?, 1, 'CHF', 0, 0, 0, ?, ?)`,
		bookingID, courseID, participants, f.Now, f.Now)
	for i := 0; i < participants; i++ {
		f.exec(`INSERT INTO booking_users (id, booking_id, course_id, course_group_id, course_subgroup_id,
			course_date_id, participant_id, status, original_price, discount_amount, final_price, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, 'active', 0, 0, 0, ?, ?)`,
			f.NextID(), bookingID, courseID, groupID, subgroupID, dateID, 1000+i, f.Now, f.Now)
	}
	return bookingID
}

func Day(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func IntPtr(v int) *int { return &v }

func StrPtr(v string) *string { return &v }

func TimePtr(v time.Time) *time.Time { return &v }

func BoolPtr(v bool) *bool { return &v }
