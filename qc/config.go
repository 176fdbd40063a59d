package qc

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config carries every gate threshold and penalty. Thresholds are
// configuration, not constants: deployments tune them without code changes,
// and DefaultConfig documents the shipped values.
type Config struct {
	// BlockedBelow and WarningBelow map a criterion score to its status:
	// score < BlockedBelow blocks, score < WarningBelow warns, else passes.
	BlockedBelow int `yaml:"blocked_below"`
	WarningBelow int `yaml:"warning_below"`

	Preflight  PreflightConfig  `yaml:"preflight"`
	Structure  StructureConfig  `yaml:"structure"`
	Anchor     AnchorConfig     `yaml:"anchor"`
	Trust      TrustConfig      `yaml:"trust"`
	Intent     IntentConfig     `yaml:"intent"`
	Density    DensityConfig    `yaml:"density"`
	Tone       ToneConfig       `yaml:"tone"`
	Compliance ComplianceConfig `yaml:"compliance"`
}

// PreflightConfig governs bridge-type versus intent-alignment consistency.
type PreflightConfig struct {
	MismatchPenalty   int `yaml:"mismatch_penalty"`
	StrongOffPenalty  int `yaml:"strong_off_penalty"`
	WrapperOffPenalty int `yaml:"wrapper_off_penalty"`
}

// StructureConfig governs word count, headings, and topic coverage.
type StructureConfig struct {
	MinWords           int     `yaml:"min_words"`
	MinHeadings        int     `yaml:"min_headings"`
	MinTopicCoverage   float64 `yaml:"min_topic_coverage"`
	UnderWordPenalty   int     `yaml:"under_word_penalty"`
	FewHeadingsPenalty int     `yaml:"few_headings_penalty"`
	LowCoveragePenalty int     `yaml:"low_coverage_penalty"`
}

// AnchorConfig governs anchor risk and placement.
type AnchorConfig struct {
	HighRiskPenalty      int `yaml:"high_risk_penalty"`
	MediumRiskPenalty    int `yaml:"medium_risk_penalty"`
	TopHeadingPenalty    int `yaml:"top_heading_penalty"`
	SubHeadingPenalty    int `yaml:"sub_heading_penalty"`
	FirstSentencePenalty int `yaml:"first_sentence_penalty"`
}

// TrustConfig governs source credibility.
type TrustConfig struct {
	NoSourcePenalty   int `yaml:"no_source_penalty"`
	LowTierPenalty    int `yaml:"low_tier_penalty"`
	UnresolvedPenalty int `yaml:"unresolved_penalty"`
	FallbackPenalty   int `yaml:"fallback_penalty"`
}

// IntentConfig governs intent-alignment scoring.
type IntentConfig struct {
	OverallOffPenalty    int     `yaml:"overall_off_penalty"`
	ComponentOffPenalty  int     `yaml:"component_off_penalty"`
	LowConfidencePenalty int     `yaml:"low_confidence_penalty"`
	MinConfidence        float64 `yaml:"min_confidence"`
}

// DensityConfig governs supporting-term density in the near window.
type DensityConfig struct {
	MinTerms            int `yaml:"min_terms"`
	MaxTerms            int `yaml:"max_terms"`
	BelowMinPenalty     int `yaml:"below_min_penalty"`
	AboveMaxPenalty     int `yaml:"above_max_penalty"`
	MinWindowSentences  int `yaml:"min_window_sentences"`
	NarrowWindowPenalty int `yaml:"narrow_window_penalty"`
	NoSubtopicPenalty   int `yaml:"no_subtopic_penalty"`
	// WindowSentences is the span measured on each side of the anchor.
	WindowSentences int `yaml:"window_sentences"`
}

// ToneConfig governs readability and analytical-signal checks.
type ToneConfig struct {
	ReadabilityMin        float64 `yaml:"readability_min"`
	ReadabilityMax        float64 `yaml:"readability_max"`
	OutsideBandPenalty    int     `yaml:"outside_band_penalty"`
	AutofixMarkerPenalty  int     `yaml:"autofix_marker_penalty"`
	MissingSignalPenalty  int     `yaml:"missing_signal_penalty"`
}

// Family is one regulated-topic keyword family and the disclaimer markers
// that satisfy it.
type Family struct {
	Name        string   `yaml:"name"`
	Keywords    []string `yaml:"keywords"`
	Disclaimers []string `yaml:"disclaimers"`
}

// ComplianceConfig governs regulated-topic disclaimer checks.
type ComplianceConfig struct {
	FamilyPenalty int      `yaml:"family_penalty"`
	Families      []Family `yaml:"families"`
}

// DefaultConfig returns the shipped thresholds.
func DefaultConfig() Config {
	return Config{
		BlockedBelow: 50,
		WarningBelow: 80,
		Preflight: PreflightConfig{
			MismatchPenalty:   30,
			StrongOffPenalty:  50,
			WrapperOffPenalty: 40,
		},
		Structure: StructureConfig{
			MinWords:           800,
			MinHeadings:        2,
			MinTopicCoverage:   0.60,
			UnderWordPenalty:   40,
			FewHeadingsPenalty: 20,
			LowCoveragePenalty: 30,
		},
		Anchor: AnchorConfig{
			HighRiskPenalty:      50,
			MediumRiskPenalty:    15,
			TopHeadingPenalty:    60,
			SubHeadingPenalty:    40,
			FirstSentencePenalty: 10,
		},
		Trust: TrustConfig{
			NoSourcePenalty:   40,
			LowTierPenalty:    10,
			UnresolvedPenalty: 20,
			FallbackPenalty:   5,
		},
		Intent: IntentConfig{
			OverallOffPenalty:    70,
			ComponentOffPenalty:  20,
			LowConfidencePenalty: 15,
			MinConfidence:        0.5,
		},
		Density: DensityConfig{
			MinTerms:            6,
			MaxTerms:            10,
			BelowMinPenalty:     40,
			AboveMaxPenalty:     15,
			MinWindowSentences:  2,
			NarrowWindowPenalty: 20,
			NoSubtopicPenalty:   30,
			WindowSentences:     3,
		},
		Tone: ToneConfig{
			ReadabilityMin:       50,
			ReadabilityMax:       70,
			OutsideBandPenalty:   20,
			AutofixMarkerPenalty: 5,
			MissingSignalPenalty: 10,
		},
		Compliance: ComplianceConfig{
			// A single uncovered regulated family must block on its own:
			// 100-60 = 40 is under BlockedBelow, whereas a 40-point
			// penalty would leave the criterion passing at 60.
			FamilyPenalty: 60,
			Families: []Family{
				{
					Name:        "gambling",
					Keywords:    []string{"casino", "betting", "wager", "jackpot", "slots", "bookmaker"},
					Disclaimers: []string{"gamble responsibly", "18+", "gambling can be addictive"},
				},
				{
					Name:        "finance",
					Keywords:    []string{"investment", "trading", "loan", "mortgage", "portfolio returns"},
					Disclaimers: []string{"not financial advice", "capital at risk"},
				},
				{
					Name:        "health",
					Keywords:    []string{"treatment", "diagnosis", "medication", "supplement", "cure"},
					Disclaimers: []string{"consult a doctor", "not medical advice"},
				},
				{
					Name:        "crypto",
					Keywords:    []string{"cryptocurrency", "bitcoin", "token sale", "defi", "staking"},
					Disclaimers: []string{"not financial advice", "highly volatile"},
				},
			},
		},
	}
}

// LoadConfig reads a YAML thresholds file layered over DefaultConfig, so a
// partial file overrides only what it names.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("qc: read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("qc: parse config: %w", err)
	}
	return cfg, nil
}
