package classify

import (
	"slices"

	"piigate/internal/core"
)

// Config holds the tunable classifier parameters of a ruleset.
type Config struct {
	// Disabled lists categories whose classifier is not run.
	Disabled []core.Category `yaml:"disabled,omitempty" json:"disabled,omitempty"`

	Phone    PhoneConfig    `yaml:"phone" json:"phone"`
	Passport PassportConfig `yaml:"passport" json:"passport"`
	UPI      UPIConfig      `yaml:"upi" json:"upi"`
	Email    EmailConfig    `yaml:"email" json:"email"`
	Name     NameConfig     `yaml:"name" json:"name"`
	Address  AddressConfig  `yaml:"address" json:"address"`

	KeyHints []KeyHint `yaml:"key_hints" json:"key_hints"`
}

// PhoneConfig describes the national numbering plan phone numbers are checked against.
type PhoneConfig struct {
	CountryCode    string `yaml:"country_code" json:"country_code"`
	NationalLength int    `yaml:"national_length" json:"national_length"`
	// LeadingDigits lists the digits a mobile number may start with.
	LeadingDigits string `yaml:"leading_digits" json:"leading_digits"`
	MinDigits     int    `yaml:"min_digits" json:"min_digits"`
	MaxDigits     int    `yaml:"max_digits" json:"max_digits"`
}

type PassportConfig struct {
	Patterns []string `yaml:"patterns" json:"patterns"`
}

type UPIConfig struct {
	Providers []string `yaml:"providers" json:"providers"`
}

type EmailConfig struct {
	MaxLocalLength  int `yaml:"max_local_length" json:"max_local_length"`
	MaxDomainLength int `yaml:"max_domain_length" json:"max_domain_length"`
}

// NameConfig bounds what looks like a personal name.
type NameConfig struct {
	MinTokens int `yaml:"min_tokens" json:"min_tokens"`
	MaxTokens int `yaml:"max_tokens" json:"max_tokens"`
	MaxLength int `yaml:"max_length" json:"max_length"`
	// Keys are leaf keys under which a single capitalised token counts as a name.
	Keys []string `yaml:"keys" json:"keys"`
	// Stopwords are capitalised words that never form part of a name.
	Stopwords []string `yaml:"stopwords" json:"stopwords"`
}

type AddressConfig struct {
	PinDigits int `yaml:"pin_digits" json:"pin_digits"`
}

// DefaultConfig returns parameters tuned for Indian identifiers.
func DefaultConfig() Config {
	return Config{
		Phone: PhoneConfig{
			CountryCode:    "91",
			NationalLength: 10,
			LeadingDigits:  "6789",
			MinDigits:      10,
			MaxDigits:      13,
		},
		Passport: PassportConfig{
			Patterns: []string{`^[A-Z][0-9]{7}$`},
		},
		UPI: UPIConfig{
			Providers: []string{
				"paytm", "ybl", "ibl", "axl", "upi", "apl", "okaxis", "okhdfcbank",
				"oksbi", "okicici", "axisbank", "hdfcbank", "icici", "sbi", "kotak",
				"phonepe", "unionbank", "canara", "pnb", "federal", "yesbank", "indianbank",
			},
		},
		Email: EmailConfig{
			MaxLocalLength:  64,
			MaxDomainLength: 255,
		},
		Name: NameConfig{
			MinTokens: 2,
			MaxTokens: 4,
			MaxLength: 64,
			Keys: []string{
				"name", "full_name", "fullname", "first_name", "firstname",
				"last_name", "lastname", "middle_name", "surname", "given_name",
				"family_name", "customer_name",
			},
			Stopwords: []string{
				"the", "and", "of", "for", "in", "on", "at", "to", "by", "with",
				"new", "test", "hello", "world", "order", "status", "active",
				"pending", "failed", "success", "error", "true", "false", "none",
				"null", "unknown", "admin", "user", "customer", "account", "india",
				"street", "road", "lane", "nagar", "city", "state", "bank",
				"limited", "ltd", "private", "pvt", "inc", "company",
			},
		},
		Address: AddressConfig{
			PinDigits: 6,
		},
		KeyHints: DefaultKeyHints(),
	}
}

// withDefaults fills zero-valued parameters from DefaultConfig.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Phone.CountryCode == "" {
		c.Phone.CountryCode = def.Phone.CountryCode
	}
	if c.Phone.NationalLength == 0 {
		c.Phone.NationalLength = def.Phone.NationalLength
	}
	if c.Phone.LeadingDigits == "" {
		c.Phone.LeadingDigits = def.Phone.LeadingDigits
	}
	if c.Phone.MinDigits == 0 {
		c.Phone.MinDigits = def.Phone.MinDigits
	}
	if c.Phone.MaxDigits == 0 {
		c.Phone.MaxDigits = def.Phone.MaxDigits
	}
	if len(c.Passport.Patterns) == 0 {
		c.Passport.Patterns = def.Passport.Patterns
	}
	if len(c.UPI.Providers) == 0 {
		c.UPI.Providers = def.UPI.Providers
	}
	if c.Email.MaxLocalLength == 0 {
		c.Email.MaxLocalLength = def.Email.MaxLocalLength
	}
	if c.Email.MaxDomainLength == 0 {
		c.Email.MaxDomainLength = def.Email.MaxDomainLength
	}
	if c.Name.MinTokens == 0 {
		c.Name.MinTokens = def.Name.MinTokens
	}
	if c.Name.MaxTokens == 0 {
		c.Name.MaxTokens = def.Name.MaxTokens
	}
	if c.Name.MaxLength == 0 {
		c.Name.MaxLength = def.Name.MaxLength
	}
	if c.Name.Keys == nil {
		c.Name.Keys = def.Name.Keys
	}
	if c.Name.Stopwords == nil {
		c.Name.Stopwords = def.Name.Stopwords
	}
	if c.Address.PinDigits == 0 {
		c.Address.PinDigits = def.Address.PinDigits
	}
	if c.KeyHints == nil {
		c.KeyHints = def.KeyHints
	}
	return c
}

func (c Config) disabled(cat core.Category) bool {
	return slices.Contains(c.Disabled, cat)
}
