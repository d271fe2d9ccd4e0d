package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Tone - тон общения ассистента
type Tone string

const (
	ToneProfessional Tone = "professional"
	ToneWarm         Tone = "warm"
	ToneFormal       Tone = "formal"
	ToneFriendly     Tone = "friendly"
)

// toneAliases - испанские значения, которые присылает дашборд
var toneAliases = map[string]Tone{
	"profesional": ToneProfessional,
	"cercano":     ToneWarm,
	"formal":      ToneFormal,
	"amigable":    ToneFriendly,
}

// Valid проверяет каноническое значение тона
func (t Tone) Valid() bool {
	switch t {
	case ToneProfessional, ToneWarm, ToneFormal, ToneFriendly:
		return true
	}
	return false
}

// ParseTone принимает как английские, так и испанские названия тона
func ParseTone(s string) (Tone, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if t := Tone(s); t.Valid() {
		return t, nil
	}
	if t, ok := toneAliases[s]; ok {
		return t, nil
	}
	return "", fmt.Errorf("unknown tone %q", s)
}

// Language - язык генерируемых сообщений
type Language string

const (
	LanguageES Language = "es"
	LanguageEN Language = "en"
)

// Valid проверяет поддерживаемый язык
func (l Language) Valid() bool {
	return l == LanguageES || l == LanguageEN
}

// MessageLength - границы длины сообщения в словах
type MessageLength struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// AssistantConfig - единственная на процесс конфигурация ассистента
type AssistantConfig struct {
	ID                     int64               `json:"id"`
	Name                   string              `json:"name"`
	Tone                   Tone                `json:"tone"`
	Language               Language            `json:"language"`
	Brands                 []string            `json:"brands"`
	Models                 map[string][]string `json:"models"`
	Branches               []string            `json:"branches"`
	MessageLength          MessageLength       `json:"messageLength"`
	Signature              string              `json:"signature"`
	UseEmojis              bool                `json:"useEmojis"`
	AdditionalInstructions string              `json:"additionalInstructions"`
	FollowUpDays           int                 `json:"followUpDays"`
	CreatedAt              time.Time           `json:"createdAt"`
	UpdatedAt              time.Time           `json:"updatedAt"`
}

// Значения по умолчанию
const (
	DefaultFollowUpDays = 7
	DefaultMessageMin   = 120
	DefaultMessageMax   = 180
)

// DefaultAssistantConfig возвращает конфигурацию для чилийской автомотора
func DefaultAssistantConfig() AssistantConfig {
	return AssistantConfig{
		Name:     "Carla",
		Tone:     ToneProfessional,
		Language: LanguageES,
		Brands:   []string{"Toyota", "Hyundai", "Chevrolet", "Suzuki", "Mazda"},
		Models: map[string][]string{
			"Toyota":    {"Corolla", "RAV4"},
			"Hyundai":   {"Tucson", "Elantra"},
			"Chevrolet": {"Tracker", "Onix"},
			"Suzuki":    {"Swift"},
			"Mazda":     {"CX-5"},
		},
		Branches:      []string{"Providencia", "Maipú", "La Florida"},
		MessageLength: MessageLength{Min: DefaultMessageMin, Max: DefaultMessageMax},
		Signature:     "Carla — Automotora",
		UseEmojis:     true,
		FollowUpDays:  DefaultFollowUpDays,
	}
}

// AssistantConfigPatch - частичное обновление: nil означает «оставить как есть»
type AssistantConfigPatch struct {
	Name                   *string
	Tone                   *Tone
	Language               *Language
	Brands                 []string
	Models                 map[string][]string
	Branches               []string
	MessageLength          *MessageLength
	Signature              *string
	UseEmojis              *bool
	AdditionalInstructions *string
	FollowUpDays           *int
}

// Empty сообщает, что патч ничего не меняет
func (p AssistantConfigPatch) Empty() bool {
	return p.Name == nil && p.Tone == nil && p.Language == nil &&
		p.Brands == nil && p.Models == nil && p.Branches == nil &&
		p.MessageLength == nil && p.Signature == nil && p.UseEmojis == nil &&
		p.AdditionalInstructions == nil && p.FollowUpDays == nil
}

// Apply возвращает копию cfg с применёнными полями патча
func (p AssistantConfigPatch) Apply(cfg AssistantConfig) AssistantConfig {
	if p.Name != nil {
		cfg.Name = *p.Name
	}
	if p.Tone != nil {
		cfg.Tone = *p.Tone
	}
	if p.Language != nil {
		cfg.Language = *p.Language
	}
	if p.Brands != nil {
		cfg.Brands = append([]string(nil), p.Brands...)
	}
	if p.Models != nil {
		cfg.Models = copyModels(p.Models)
	}
	if p.Branches != nil {
		cfg.Branches = append([]string(nil), p.Branches...)
	}
	if p.MessageLength != nil {
		cfg.MessageLength = *p.MessageLength
	}
	if p.Signature != nil {
		cfg.Signature = *p.Signature
	}
	if p.UseEmojis != nil {
		cfg.UseEmojis = *p.UseEmojis
	}
	if p.AdditionalInstructions != nil {
		cfg.AdditionalInstructions = *p.AdditionalInstructions
	}
	if p.FollowUpDays != nil {
		cfg.FollowUpDays = *p.FollowUpDays
	}
	return cfg
}

// Validate проверяет только заданные поля патча
func (p AssistantConfigPatch) Validate() error {
	var errs []error
	if p.Name != nil && (strings.TrimSpace(*p.Name) == "" || len([]rune(*p.Name)) > 50) {
		errs = append(errs, errors.New("name must be 1-50 characters"))
	}
	if p.Tone != nil && !p.Tone.Valid() {
		errs = append(errs, fmt.Errorf("unknown tone %q", *p.Tone))
	}
	if p.Language != nil && !p.Language.Valid() {
		errs = append(errs, fmt.Errorf("unknown language %q", *p.Language))
	}
	for _, b := range p.Brands {
		if strings.TrimSpace(b) == "" {
			errs = append(errs, errors.New("brand names must not be empty"))
			break
		}
	}
	for _, b := range p.Branches {
		if strings.TrimSpace(b) == "" {
			errs = append(errs, errors.New("branch names must not be empty"))
			break
		}
	}
	if l := p.MessageLength; l != nil {
		switch {
		case l.Min < 50 || l.Min > 300:
			errs = append(errs, errors.New("messageLength.min must be between 50 and 300"))
		case l.Max < 100 || l.Max > 500:
			errs = append(errs, errors.New("messageLength.max must be between 100 and 500"))
		case l.Min > l.Max:
			errs = append(errs, errors.New("messageLength.min must not exceed messageLength.max"))
		}
	}
	if p.Signature != nil && len([]rune(*p.Signature)) > 100 {
		errs = append(errs, errors.New("signature must be at most 100 characters"))
	}
	if p.AdditionalInstructions != nil && len([]rune(*p.AdditionalInstructions)) > 1000 {
		errs = append(errs, errors.New("additionalInstructions must be at most 1000 characters"))
	}
	if p.FollowUpDays != nil && (*p.FollowUpDays < 1 || *p.FollowUpDays > 365) {
		errs = append(errs, errors.New("followUpDays must be between 1 and 365"))
	}
	return errors.Join(errs...)
}

func copyModels(in map[string][]string) map[string][]string {
	out := make(map[string][]string, len(in))
	for brand, list := range in {
		out[brand] = append([]string(nil), list...)
	}
	return out
}

// Clone возвращает глубокую копию конфигурации
func (c AssistantConfig) Clone() AssistantConfig {
	c.Brands = append([]string(nil), c.Brands...)
	c.Branches = append([]string(nil), c.Branches...)
	if c.Models != nil {
		c.Models = copyModels(c.Models)
	}
	return c
}
