// Package i18n renders operator-facing messages in the terminal's language.
package i18n

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
)

//go:embed locales/*.json
var localeFS embed.FS

var (
	mu            sync.RWMutex
	bundle        *i18n.Bundle
	defaultLocale = "en"
	loadOnce      sync.Once
	loadErr       error
)

type ctxKey struct{}

func load() {
	b := i18n.NewBundle(language.English)
	b.RegisterUnmarshalFunc("json", json.Unmarshal)

	entries, err := localeFS.ReadDir("locales")
	if err != nil {
		loadErr = fmt.Errorf("i18n: read locales dir: %w", err)
		return
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		data, err := localeFS.ReadFile("locales/" + e.Name())
		if err != nil {
			loadErr = fmt.Errorf("i18n: read %s: %w", e.Name(), err)
			return
		}
		if _, err := b.ParseMessageFileBytes(data, e.Name()); err != nil {
			loadErr = fmt.Errorf("i18n: parse %s: %w", e.Name(), err)
			return
		}
	}
	mu.Lock()
	bundle = b
	mu.Unlock()
}

// Init loads all locale files and sets the default locale.
func Init(defLocale string) error {
	loadOnce.Do(load)
	if loadErr != nil {
		return loadErr
	}
	if defLocale != "" {
		mu.Lock()
		defaultLocale = defLocale
		mu.Unlock()
	}
	log.Printf("i18n: locales loaded, default=%s", LocaleFromContext(context.Background()))
	return nil
}

// WithLocale returns a new context carrying the given locale string (e.g. "hi", "en").
func WithLocale(ctx context.Context, locale string) context.Context {
	return context.WithValue(ctx, ctxKey{}, locale)
}

// LocaleFromContext extracts the locale from the context.
// Returns the configured default locale if not set.
func LocaleFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKey{}).(string); ok && v != "" {
		return v
	}
	mu.RLock()
	defer mu.RUnlock()
	return defaultLocale
}

// T translates a message ID using the locale from the context.
// Optional templateData provides values for template placeholders.
func T(ctx context.Context, messageID string, templateData ...map[string]any) string {
	loadOnce.Do(load)
	mu.RLock()
	b := bundle
	mu.RUnlock()
	if b == nil {
		return messageID
	}

	l := i18n.NewLocalizer(b, LocaleFromContext(ctx), "en")

	cfg := &i18n.LocalizeConfig{MessageID: messageID}
	if len(templateData) > 0 && templateData[0] != nil {
		cfg.TemplateData = templateData[0]
	}

	msg, err := l.Localize(cfg)
	if err != nil {
		return messageID
	}
	return msg
}
