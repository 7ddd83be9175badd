package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// BillingPolicy holds the reconciliation windows and the default pricing
// applied when a venue has no platform override.
type BillingPolicy struct {
	LeadDays     int `mapstructure:"leadDays"`
	ReminderDays int `mapstructure:"reminderDays"`
	GraceDays    int `mapstructure:"graceDays"`

	DefaultAmount   int64  `mapstructure:"defaultAmount"`
	DefaultCurrency string `mapstructure:"defaultCurrency"`
	TrialDays       int    `mapstructure:"trialDays"`
	PeriodMonths    int    `mapstructure:"periodMonths"`
	DueDays         int    `mapstructure:"dueDays"`
}

func DefaultBillingPolicy() BillingPolicy {
	return BillingPolicy{
		LeadDays:        5,
		ReminderDays:    3,
		GraceDays:       7,
		DefaultAmount:   5000_00,
		DefaultCurrency: "RUB",
		TrialDays:       14,
		PeriodMonths:    1,
		DueDays:         5,
	}
}

type BillingPolicyHolder struct {
	current atomic.Value // holds BillingPolicy
}

func NewBillingPolicyHolder() (*BillingPolicyHolder, error) {
	v := viper.New()

	v.SetConfigName("billing")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/tapmenu/config")
	v.AddConfigPath("/etc/tapmenu")
	v.AddConfigPath(".")

	v.SetEnvPrefix("TAPMENU")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultBillingPolicy()
	v.SetDefault("billing.leadDays", defaults.LeadDays)
	v.SetDefault("billing.reminderDays", defaults.ReminderDays)
	v.SetDefault("billing.graceDays", defaults.GraceDays)
	v.SetDefault("billing.defaultAmount", defaults.DefaultAmount)
	v.SetDefault("billing.defaultCurrency", defaults.DefaultCurrency)
	v.SetDefault("billing.trialDays", defaults.TrialDays)
	v.SetDefault("billing.periodMonths", defaults.PeriodMonths)
	v.SetDefault("billing.dueDays", defaults.DueDays)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var policy BillingPolicy
	if err := v.UnmarshalKey("billing", &policy); err != nil {
		return nil, err
	}
	if err := validateBillingPolicy(policy); err != nil {
		return nil, err
	}

	holder := &BillingPolicyHolder{}
	holder.current.Store(policy)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated BillingPolicy
		if err := v.UnmarshalKey("billing", &updated); err != nil {
			log.Printf("[billing-policy] reload failed: %v", err)
			return
		}
		if err := validateBillingPolicy(updated); err != nil {
			log.Printf("[billing-policy] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[billing-policy] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *BillingPolicyHolder) Get() BillingPolicy {
	return h.current.Load().(BillingPolicy)
}

// NewStaticBillingPolicyHolder pins a fixed policy, bypassing file watching.
func NewStaticBillingPolicyHolder(policy BillingPolicy) *BillingPolicyHolder {
	holder := &BillingPolicyHolder{}
	holder.current.Store(policy)
	return holder
}

func validateBillingPolicy(policy BillingPolicy) error {
	if policy.GraceDays <= 0 {
		return errors.New("billing.graceDays must be positive")
	}
	if policy.DefaultAmount <= 0 {
		return errors.New("billing.defaultAmount must be positive")
	}
	if strings.TrimSpace(policy.DefaultCurrency) == "" {
		return errors.New("billing.defaultCurrency cannot be empty")
	}
	if policy.PeriodMonths <= 0 {
		return errors.New("billing.periodMonths must be positive")
	}
	return nil
}
