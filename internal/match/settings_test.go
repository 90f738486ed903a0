package match

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeFillsDefaults(t *testing.T) {
	var s Settings
	s.Normalize()

	require.Equal(t, ModeRandom, s.Mode)
	require.Equal(t, 18, s.MinAge)
	require.Equal(t, 99, s.MaxAge)
	require.Equal(t, 50, s.MaxDistanceKM)
	require.Equal(t, AnonymityAll, s.Anonymity)
}

func TestNormalizeLowercasesFilters(t *testing.T) {
	s := Settings{Gender: " Female ", Location: "Seoul"}
	s.Normalize()

	require.Equal(t, "female", s.Gender)
	require.Equal(t, "seoul", s.Location)
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Settings)
		wantErr bool
	}{
		{"defaults", func(*Settings) {}, false},
		{"nearby mode", func(s *Settings) { s.Mode = ModeNearby }, false},
		{"bogus mode", func(s *Settings) { s.Mode = "soulmate" }, true},
		{"bogus anonymity", func(s *Settings) { s.Anonymity = "maybe" }, true},
		{"under 18", func(s *Settings) { s.MinAge = 12 }, true},
		{"inverted age range", func(s *Settings) { s.MinAge = 40; s.MaxAge = 20 }, true},
		{"age over cap", func(s *Settings) { s.MaxAge = 130 }, true},
		{"negative distance", func(s *Settings) { s.MaxDistanceKM = -1 }, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := DefaultSettings()
			tc.mutate(&s)
			err := s.Validate()
			if tc.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestCompatibleWith(t *testing.T) {
	base := DefaultSettings()

	other := DefaultSettings()
	require.True(t, base.CompatibleWith(other))

	other.Mode = ModeNearby
	require.False(t, base.CompatibleWith(other), "different modes never count")

	a := DefaultSettings()
	a.Gender = "f"
	b := DefaultSettings()
	b.Gender = "m"
	require.False(t, a.CompatibleWith(b))

	b.Gender = ""
	require.True(t, a.CompatibleWith(b), "an unset filter matches anything")

	a = DefaultSettings()
	a.Location = "seoul"
	b = DefaultSettings()
	b.Location = "seoul gangnam"
	require.True(t, a.CompatibleWith(b), "substring locations overlap")

	b.Location = "busan"
	require.False(t, a.CompatibleWith(b))

	a = DefaultSettings()
	a.AgeFilterEnabled = true
	a.MinAge = 20
	a.MaxAge = 30
	b = DefaultSettings()
	b.AgeFilterEnabled = true
	b.MinAge = 31
	b.MaxAge = 40
	require.False(t, a.CompatibleWith(b), "disjoint age ranges")

	b.MinAge = 25
	require.True(t, a.CompatibleWith(b))
}

func TestAnonymityCompatible(t *testing.T) {
	cases := []struct {
		name  string
		aAnon bool
		aPref AnonymityPref
		bAnon bool
		bPref AnonymityPref
		want  bool
	}{
		{"both all", false, AnonymityAll, false, AnonymityAll, true},
		{"only met", false, AnonymityOnly, true, AnonymityAll, true},
		{"only unmet", false, AnonymityOnly, false, AnonymityAll, false},
		{"none met", false, AnonymityNone, false, AnonymityAll, true},
		{"none unmet", false, AnonymityNone, true, AnonymityAll, false},
		{"reverse only unmet", false, AnonymityAll, false, AnonymityOnly, false},
		{"reverse none unmet", true, AnonymityAll, false, AnonymityNone, false},
		{"both only both anon", true, AnonymityOnly, true, AnonymityOnly, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := anonymityCompatible(tc.aAnon, tc.aPref, tc.bAnon, tc.bPref)
			require.Equal(t, tc.want, got)
		})
	}
}
