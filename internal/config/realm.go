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
	// SlugPolicyReject fails realm creation when the derived id is taken.
	SlugPolicyReject = "reject"
	// SlugPolicySuffix appends -2, -3, ... until a free id is found.
	SlugPolicySuffix = "suffix"
)

// RealmConfig tunes realm creation and the onboarding workflow.
type RealmConfig struct {
	SlugPolicy    string        `mapstructure:"slugPolicy"`
	MaxSlugSuffix int           `mapstructure:"maxSlugSuffix"`
	LockTTL       time.Duration `mapstructure:"lockTTL"`
	LockWait      time.Duration `mapstructure:"lockWait"`
}

func DefaultRealmConfig() RealmConfig {
	return RealmConfig{
		SlugPolicy:    SlugPolicyReject,
		MaxSlugSuffix: 50,
		LockTTL:       30 * time.Second,
		LockWait:      5 * time.Second,
	}
}

type RealmConfigHolder struct {
	current atomic.Value // holds RealmConfig
}

// NewStaticRealmConfig returns a holder that never reloads.
func NewStaticRealmConfig(cfg RealmConfig) *RealmConfigHolder {
	holder := &RealmConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewRealmConfigHolder(appCfg Config) (*RealmConfigHolder, error) {
	v := viper.New()

	if appCfg.RealmConfigPath != "" {
		v.SetConfigFile(appCfg.RealmConfigPath)
	} else {
		v.SetConfigName("realm")
		v.SetConfigType("yml")
		v.AddConfigPath("/etc/bazaar")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("BAZAAR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultRealmConfig()
	v.SetDefault("realm.slugPolicy", defaults.SlugPolicy)
	v.SetDefault("realm.maxSlugSuffix", defaults.MaxSlugSuffix)
	v.SetDefault("realm.lockTTL", defaults.LockTTL)
	v.SetDefault("realm.lockWait", defaults.LockWait)

	watch := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		watch = false
	}

	var cfg RealmConfig
	if err := v.UnmarshalKey("realm", &cfg); err != nil {
		return nil, err
	}
	if err := validateRealmConfig(cfg); err != nil {
		return nil, err
	}

	holder := &RealmConfigHolder{}
	holder.current.Store(cfg)

	if watch {
		v.WatchConfig()
		v.OnConfigChange(func(e fsnotify.Event) {
			var updated RealmConfig
			if err := v.UnmarshalKey("realm", &updated); err != nil {
				log.Printf("[realm-config] reload failed: %v", err)
				return
			}
			if err := validateRealmConfig(updated); err != nil {
				log.Printf("[realm-config] invalid config ignored: %v", err)
				return
			}
			holder.current.Store(updated)
			log.Printf("[realm-config] reloaded from %s", e.Name)
		})
	}

	return holder, nil
}

func (h *RealmConfigHolder) Get() RealmConfig {
	if h == nil {
		return DefaultRealmConfig()
	}
	return h.current.Load().(RealmConfig)
}

func validateRealmConfig(cfg RealmConfig) error {
	switch cfg.SlugPolicy {
	case SlugPolicyReject, SlugPolicySuffix:
	default:
		return errors.New("realm.slugPolicy must be reject or suffix")
	}
	if cfg.SlugPolicy == SlugPolicySuffix && cfg.MaxSlugSuffix < 2 {
		return errors.New("realm.maxSlugSuffix must be at least 2")
	}
	if cfg.LockTTL <= 0 {
		return errors.New("realm.lockTTL must be positive")
	}
	if cfg.LockWait < 0 {
		return errors.New("realm.lockWait cannot be negative")
	}
	return nil
}
