// Package stealth builds the CDP tasks that present a consistent browser
// persona: user agent, platform, languages, timezone, locale and viewport.
// It is camouflage, not a guarantee.
package stealth

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/reelpost/internal/config"
)

//go:embed evasions.js
var evasionsScript string

// Persona defines the browser characteristics to emulate.
type Persona struct {
	UserAgent     string   `json:"userAgent"`
	Platform      string   `json:"platform"`
	Languages     []string `json:"languages"`
	Timezone      string   `json:"-"`
	Locale        string   `json:"-"`
	Width         int      `json:"-"`
	Height        int      `json:"-"`
	WebGLVendor   string   `json:"webglVendor,omitempty"`
	WebGLRenderer string   `json:"webglRenderer,omitempty"`
}

// DefaultPersona provides a realistic default browser profile.
var DefaultPersona = Persona{
	UserAgent:     "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
	Platform:      "Win32",
	Languages:     []string{"en-US", "en"},
	Timezone:      "America/Los_Angeles",
	Locale:        "en-US",
	Width:         1366,
	Height:        900,
	WebGLVendor:   "Google Inc. (Intel)",
	WebGLRenderer: "ANGLE (Intel, Intel(R) UHD Graphics 620 Direct3D11 vs_5_0 ps_5_0, D3D11)",
}

// PersonaFromConfig fills a Persona from browser configuration, keeping
// DefaultPersona values for anything left empty.
func PersonaFromConfig(cfg config.BrowserConfig) Persona {
	p := DefaultPersona
	if cfg.Persona.UserAgent != "" {
		p.UserAgent = cfg.Persona.UserAgent
	}
	if cfg.Persona.Platform != "" {
		p.Platform = cfg.Persona.Platform
	}
	if len(cfg.Persona.Languages) > 0 {
		p.Languages = append([]string(nil), cfg.Persona.Languages...)
	}
	if cfg.Persona.Timezone != "" {
		p.Timezone = cfg.Persona.Timezone
	}
	if cfg.Persona.Locale != "" {
		p.Locale = cfg.Persona.Locale
	}
	if cfg.Viewport.Width > 0 && cfg.Viewport.Height > 0 {
		p.Width, p.Height = cfg.Viewport.Width, cfg.Viewport.Height
	}
	return p
}

// AcceptLanguage renders the persona's languages as an Accept-Language
// header value with descending quality factors.
func (p Persona) AcceptLanguage() string {
	if len(p.Languages) == 0 {
		return "en-US,en;q=0.9"
	}
	parts := make([]string, 0, len(p.Languages))
	for i, lang := range p.Languages {
		if i == 0 {
			parts = append(parts, lang)
			continue
		}
		q := 1.0 - 0.1*float64(i)
		if q < 0.1 {
			q = 0.1
		}
		parts = append(parts, fmt.Sprintf("%s;q=%.1f", lang, q))
	}
	return strings.Join(parts, ",")
}

// Script returns the document-start script: the persona as a global followed
// by the evasions that consume it.
func (p Persona) Script() (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("stealth: failed to encode persona: %w", err)
	}
	return fmt.Sprintf("window.__rpPersona = %s;\n%s", data, evasionsScript), nil
}

// Apply constructs the CDP actions that make the tab present the persona.
// They must be run with chromedp.Run against a tab context.
func Apply(p Persona, logger *zap.Logger) chromedp.Tasks {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Debug("Applying browser stealth persona",
		zap.String("userAgent", p.UserAgent),
		zap.String("platform", p.Platform),
		zap.String("timezone", p.Timezone),
	)

	tasks := chromedp.Tasks{
		emulation.SetUserAgentOverride(p.UserAgent).
			WithPlatform(p.Platform).
			WithAcceptLanguage(p.AcceptLanguage()),

		// AddScriptToEvaluateOnNewDocument returns an identifier as well as an
		// error, so it needs an ActionFunc wrapper.
		chromedp.ActionFunc(func(ctx context.Context) error {
			script, err := p.Script()
			if err != nil {
				return err
			}
			if _, err := page.AddScriptToEvaluateOnNewDocument(script).Do(ctx); err != nil {
				return fmt.Errorf("failed to inject evasions script: %w", err)
			}
			return nil
		}),

		network.SetExtraHTTPHeaders(network.Headers{
			"Accept-Language": p.AcceptLanguage(),
		}),
	}

	if p.Timezone != "" {
		tasks = append(tasks, emulation.SetTimezoneOverride(p.Timezone))
	}
	if p.Locale != "" {
		tasks = append(tasks, emulation.SetLocaleOverride().WithLocale(p.Locale))
	}
	if p.Width > 0 && p.Height > 0 {
		tasks = append(tasks, emulation.SetDeviceMetricsOverride(int64(p.Width), int64(p.Height), 1, false))
	}
	return tasks
}
