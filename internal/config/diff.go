package config

import (
	"reflect"
	"sort"

	logx "blazealert/pkg/logx"
)

// Section names reported by Changed.
const (
	SectionLogging    = "logging"
	SectionStorage    = "storage"
	SectionFeed       = "feed"
	SectionGenerator  = "generator"
	SectionPermission = "permission"
	SectionDelivery   = "delivery"
	SectionHTTP       = "http"
)

// Changed lists the sections that differ, plus safe log fields (never the
// telegram token).
func Changed(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	var (
		changed []string
		attrs   []logx.Field
	)
	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, SectionLogging)
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}
	if !reflect.DeepEqual(oldCfg.Storage, newCfg.Storage) {
		changed = append(changed, SectionStorage)
		attrs = append(attrs, logx.String("storage.driver", newCfg.Storage.Driver))
	}
	if !reflect.DeepEqual(oldCfg.Feed, newCfg.Feed) {
		changed = append(changed, SectionFeed)
	}
	if !reflect.DeepEqual(oldCfg.Generator, newCfg.Generator) {
		changed = append(changed, SectionGenerator)
		if newCfg.Generator.Probability != nil {
			attrs = append(attrs, logx.Float64("generator.probability", *newCfg.Generator.Probability))
		}
	}
	if !reflect.DeepEqual(oldCfg.Permission, newCfg.Permission) {
		changed = append(changed, SectionPermission)
	}
	if !reflect.DeepEqual(oldCfg.Delivery, newCfg.Delivery) {
		changed = append(changed, SectionDelivery)
		p := newCfg.Delivery.Push
		attrs = append(attrs,
			logx.String("delivery.push.driver", p.Driver),
			logx.Bool("delivery.push.high_priority_only", p.HighPriorityOnly),
			logx.Bool("delivery.push.telegram_token_set", p.Telegram.Token != ""),
		)
	}
	if !reflect.DeepEqual(oldCfg.HTTP, newCfg.HTTP) {
		changed = append(changed, SectionHTTP)
	}
	sort.Strings(changed)
	return changed, attrs
}

// Hot lists the sections applied without a restart.
var Hot = map[string]bool{SectionLogging: true, SectionDelivery: true, SectionGenerator: true}

// NeedsRestart filters changed down to sections that only take effect on restart.
func NeedsRestart(changed []string) []string {
	var out []string
	for _, s := range changed {
		if !Hot[s] {
			out = append(out, s)
		}
	}
	return out
}
