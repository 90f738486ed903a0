package match

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidSettings marks every settings validation failure so the API
// layer can distinguish caller mistakes from internal faults.
var ErrInvalidSettings = errors.New("match: invalid settings")

// Mode selects the candidate-selection strategy.
type Mode string

const (
	ModeRandom   Mode = "random"
	ModeNearby   Mode = "nearby"
	ModeInterest Mode = "interest"
)

// AnonymityPref states what the user accepts from a counterpart.
type AnonymityPref string

const (
	AnonymityAll  AnonymityPref = "all"  // anonymous or not, both fine
	AnonymityOnly AnonymityPref = "only" // counterpart must be anonymous
	AnonymityNone AnonymityPref = "none" // counterpart must not be anonymous
)

// Settings is the value object controlling one seeking attempt. It is
// validated once at the API boundary; everything downstream can assume a
// normalized value.
type Settings struct {
	Mode             Mode          `json:"matching_mode"`
	AgeFilterEnabled bool          `json:"age_filter_enabled"`
	MinAge           int           `json:"min_age"`
	MaxAge           int           `json:"max_age"`
	Gender           string        `json:"preferred_gender,omitempty"`
	Location         string        `json:"preferred_location,omitempty"`
	MaxDistanceKM    int           `json:"max_distance_km"`
	Anonymity        AnonymityPref `json:"anonymity"`
	Anonymous        bool          `json:"anonymous"`
}

// DefaultSettings returns the settings applied when a field is absent.
func DefaultSettings() Settings {
	return Settings{
		Mode:          ModeRandom,
		MinAge:        18,
		MaxAge:        99,
		MaxDistanceKM: 50,
		Anonymity:     AnonymityAll,
	}
}

// Normalize fills zero-valued fields with their defaults.
func (s *Settings) Normalize() {
	defaults := DefaultSettings()
	if s.Mode == "" {
		s.Mode = defaults.Mode
	}
	if s.MinAge == 0 {
		s.MinAge = defaults.MinAge
	}
	if s.MaxAge == 0 {
		s.MaxAge = defaults.MaxAge
	}
	if s.MaxDistanceKM == 0 {
		s.MaxDistanceKM = defaults.MaxDistanceKM
	}
	if s.Anonymity == "" {
		s.Anonymity = defaults.Anonymity
	}
	s.Gender = strings.ToLower(strings.TrimSpace(s.Gender))
	s.Location = strings.ToLower(strings.TrimSpace(s.Location))
}

// Validate rejects malformed settings. Call after Normalize.
func (s Settings) Validate() error {
	switch s.Mode {
	case ModeRandom, ModeNearby, ModeInterest:
	default:
		return fmt.Errorf("%w: matching mode %q", ErrInvalidSettings, s.Mode)
	}
	switch s.Anonymity {
	case AnonymityAll, AnonymityOnly, AnonymityNone:
	default:
		return fmt.Errorf("%w: anonymity preference %q", ErrInvalidSettings, s.Anonymity)
	}
	if s.MinAge < 18 || s.MaxAge > 120 || s.MinAge > s.MaxAge {
		return fmt.Errorf("%w: age range %d-%d", ErrInvalidSettings, s.MinAge, s.MaxAge)
	}
	if s.MaxDistanceKM < 0 {
		return fmt.Errorf("%w: distance %d", ErrInvalidSettings, s.MaxDistanceKM)
	}
	return nil
}

// CompatibleWith reports whether two users' settings target the same kind
// of match. Used only for the queue-count display, not for pairing.
func (s Settings) CompatibleWith(other Settings) bool {
	if s.Mode != other.Mode {
		return false
	}
	if s.Gender != "" && other.Gender != "" && s.Gender != other.Gender {
		return false
	}
	if s.Location != "" && other.Location != "" &&
		!strings.Contains(other.Location, s.Location) && !strings.Contains(s.Location, other.Location) {
		return false
	}
	if s.AgeFilterEnabled && other.AgeFilterEnabled {
		if s.MaxAge < other.MinAge || other.MaxAge < s.MinAge {
			return false
		}
	}
	return true
}

// anonymityCompatible checks both directions of the anonymity contract:
// "only" requires the other side to be anonymous, "none" forbids it.
func anonymityCompatible(aAnonymous bool, aPref AnonymityPref, bAnonymous bool, bPref AnonymityPref) bool {
	if aPref == AnonymityOnly && !bAnonymous {
		return false
	}
	if aPref == AnonymityNone && bAnonymous {
		return false
	}
	if bPref == AnonymityOnly && !aAnonymous {
		return false
	}
	if bPref == AnonymityNone && aAnonymous {
		return false
	}
	return true
}
