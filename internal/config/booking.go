package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

const (
	// DiscountCodeFallback books at full price when a submitted code is declined.
	DiscountCodeFallback = "fallback"
	// DiscountCodeReject rejects the booking when a submitted code is declined.
	DiscountCodeReject = "reject"
)

// BookingPolicy tunes the reservation coordinator.
type BookingPolicy struct {
	DiscountCodePolicy string        `mapstructure:"discountCodePolicy"`
	MaxAttempts        int           `mapstructure:"maxAttempts"`
	InitialBackoff     time.Duration `mapstructure:"initialBackoff"`
	MaxBackoff         time.Duration `mapstructure:"maxBackoff"`
	LockTimeout        time.Duration `mapstructure:"lockTimeout"`
	SlotLockTTL        time.Duration `mapstructure:"slotLockTTL"`
	CourseCacheTTL     time.Duration `mapstructure:"courseCacheTTL"`
}

func DefaultBookingPolicy() BookingPolicy {
	return BookingPolicy{
		DiscountCodePolicy: DiscountCodeFallback,
		MaxAttempts:        4,
		InitialBackoff:     25 * time.Millisecond,
		MaxBackoff:         500 * time.Millisecond,
		LockTimeout:        3 * time.Second,
		SlotLockTTL:        10 * time.Second,
		CourseCacheTTL:     time.Minute,
	}
}

// RejectDeclinedCodes reports whether a declined promo code aborts the booking.
func (p BookingPolicy) RejectDeclinedCodes() bool {
	return strings.EqualFold(strings.TrimSpace(p.DiscountCodePolicy), DiscountCodeReject)
}

type BookingPolicyHolder struct {
	current atomic.Value // holds BookingPolicy
}

// NewStaticBookingPolicy returns a holder that never reloads.
func NewStaticBookingPolicy(policy BookingPolicy) *BookingPolicyHolder {
	holder := &BookingPolicyHolder{}
	holder.current.Store(policy)
	return holder
}

func NewBookingPolicyHolder(cfg Config) (*BookingPolicyHolder, error) {
	v := viper.New()

	if path := strings.TrimSpace(cfg.BookingPolicyFile); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("booking")
		v.SetConfigType("yml")
		v.AddConfigPath("/etc/boukii")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("BOUKII")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultBookingPolicy()
	v.SetDefault("booking.discountCodePolicy", defaults.DiscountCodePolicy)
	v.SetDefault("booking.maxAttempts", defaults.MaxAttempts)
	v.SetDefault("booking.initialBackoff", defaults.InitialBackoff)
	v.SetDefault("booking.maxBackoff", defaults.MaxBackoff)
	v.SetDefault("booking.lockTimeout", defaults.LockTimeout)
	v.SetDefault("booking.slotLockTTL", defaults.SlotLockTTL)
	v.SetDefault("booking.courseCacheTTL", defaults.CourseCacheTTL)

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileLoaded = false
	}

	policy, err := decodeBookingPolicy(v)
	if err != nil {
		return nil, err
	}

	holder := NewStaticBookingPolicy(policy)
	if !fileLoaded {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := decodeBookingPolicy(v)
		if err != nil {
			log.Printf("[booking-config] reload ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[booking-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

// decodeBookingPolicy overlays the booking section onto the defaults; keys
// missing from the file keep their default value.
func decodeBookingPolicy(v *viper.Viper) (BookingPolicy, error) {
	policy := DefaultBookingPolicy()
	if err := v.UnmarshalKey("booking", &policy); err != nil {
		return BookingPolicy{}, err
	}
	if err := validateBookingPolicy(policy); err != nil {
		return BookingPolicy{}, err
	}
	return policy, nil
}

func (h *BookingPolicyHolder) Get() BookingPolicy {
	if h == nil {
		return DefaultBookingPolicy()
	}
	return h.current.Load().(BookingPolicy)
}

func validateBookingPolicy(p BookingPolicy) error {
	switch strings.ToLower(strings.TrimSpace(p.DiscountCodePolicy)) {
	case DiscountCodeFallback, DiscountCodeReject:
	default:
		return errors.New("booking.discountCodePolicy must be fallback or reject")
	}
	if p.MaxAttempts < 1 {
		return errors.New("booking.maxAttempts must be at least 1")
	}
	if p.LockTimeout <= 0 {
		return errors.New("booking.lockTimeout must be positive")
	}
	if p.MaxBackoff < p.InitialBackoff {
		return errors.New("booking.maxBackoff must not be below initialBackoff")
	}
	return nil
}
