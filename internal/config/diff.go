package config

import (
	"strings"

	logx "inkwell/pkg/logx"
)

// SummarizeChange returns a compact list of changed sections plus safe
// structured attrs for logging. Secrets (tokens, SMTP password) are never
// included, only whether they are set.
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 16)

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	if oldCfg.Storage != newCfg.Storage {
		changed = append(changed, "storage")
		attrs = append(attrs, logx.String("storage.path", newCfg.Storage.Path))
	}

	if oldCfg.Dispatch != newCfg.Dispatch {
		changed = append(changed, "dispatch")
		attrs = append(attrs,
			logx.Bool("dispatch.enabled", newCfg.Dispatch.Enabled),
			logx.String("dispatch.tick_interval", newCfg.Dispatch.TickInterval),
			logx.Int("dispatch.workers", newCfg.Dispatch.Workers),
		)
	}

	if strings.TrimSpace(oldCfg.Vendor.BaseURL) != strings.TrimSpace(newCfg.Vendor.BaseURL) ||
		oldCfg.Vendor.Token != newCfg.Vendor.Token ||
		oldCfg.Vendor.RatePerSec != newCfg.Vendor.RatePerSec {
		changed = append(changed, "vendor")
		attrs = append(attrs,
			logx.String("vendor.base_url", strings.TrimSpace(newCfg.Vendor.BaseURL)),
			logx.Bool("vendor.token_set", newCfg.Vendor.Token != ""),
		)
	}

	if !polishEqual(oldCfg.Polish, newCfg.Polish) {
		changed = append(changed, "polish")
		attrs = append(attrs, logx.Bool("polish.enabled", newCfg.Polish != nil && newCfg.Polish.Enabled))
	}

	if !telegramEqual(oldCfg.Telegram, newCfg.Telegram) {
		changed = append(changed, "telegram")
		attrs = append(attrs, logx.Bool("telegram.configured", newCfg.Telegram != nil))
	}

	if !smtpEqual(oldCfg.SMTP, newCfg.SMTP) {
		changed = append(changed, "smtp")
		if newCfg.SMTP != nil {
			attrs = append(attrs,
				logx.String("smtp.host", newCfg.SMTP.Host),
				logx.String("smtp.from", newCfg.SMTP.From),
			)
		} else {
			attrs = append(attrs, logx.Bool("smtp.configured", false))
		}
	}

	return changed, attrs
}

func polishEqual(a, b *PolishConfig) bool {
	if (a == nil) != (b == nil) {
		return false
	}
	return a == nil || *a == *b
}

func telegramEqual(a, b *TelegramConfig) bool {
	if (a == nil) != (b == nil) {
		return false
	}
	return a == nil || *a == *b
}

func smtpEqual(a, b *SMTPConfig) bool {
	if (a == nil) != (b == nil) {
		return false
	}
	return a == nil || *a == *b
}
