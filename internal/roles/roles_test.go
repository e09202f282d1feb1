package roles

import (
	"reflect"
	"testing"
)

func TestEnsureGuestAddsWithoutRemoving(t *testing.T) {
	cases := [][]string{
		nil,
		{},
		{Guest},
		{Host},
		{Host, PropertyManager},
		{Guest, Host, PropertyManager},
		{"", Host, Host}, // scalar-era dirt
	}

	for _, existing := range cases {
		got := EnsureGuest(existing)
		if !Has(got, Guest) {
			t.Errorf("EnsureGuest(%v) missing guest: %v", existing, got)
		}
		for _, r := range existing {
			if r != "" && !Has(got, r) {
				t.Errorf("EnsureGuest(%v) dropped role %q: %v", existing, r, got)
			}
		}
	}
}

func TestEnsureGuestIdempotent(t *testing.T) {
	once := EnsureGuest([]string{Host})
	twice := EnsureGuest(once)
	if !reflect.DeepEqual(once, twice) {
		t.Errorf("EnsureGuest not idempotent: %v vs %v", once, twice)
	}
}

func TestNormalizeDeduplicates(t *testing.T) {
	got := Normalize([]string{Guest, Guest, Host, "", Host})
	want := []string{Guest, Host}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Normalize = %v, want %v", got, want)
	}
}

func TestPrimaryPriority(t *testing.T) {
	cases := []struct {
		roles []string
		want  string
	}{
		{[]string{Guest, Host, PropertyManager}, Host},
		{[]string{Guest, PropertyManager}, PropertyManager},
		{[]string{Guest}, Guest},
		{nil, Guest},
	}
	for _, c := range cases {
		if got := Primary(c.roles); got != c.want {
			t.Errorf("Primary(%v) = %q, want %q", c.roles, got, c.want)
		}
	}
}

func TestDashboardPath(t *testing.T) {
	if got := DashboardPath([]string{Guest, Host}); got != "/host/dashboard" {
		t.Errorf("DashboardPath = %q", got)
	}
	if got := DashboardPath([]string{Guest}); got != "/guest/dashboard" {
		t.Errorf("DashboardPath = %q", got)
	}
}

func TestEqualComparesContentsNotLength(t *testing.T) {
	cases := []struct {
		a, b []string
		want bool
	}{
		{nil, nil, true},
		{[]string{Guest, Host}, []string{Guest, Host}, true},
		{[]string{Guest, Host}, []string{Host, Guest}, false},
		// same length, different members: the scalar-era trap
		{[]string{Host, ""}, []string{Guest, Host}, false},
		{[]string{Host, Host}, []string{Guest, Host}, false},
		{[]string{Guest}, []string{Guest, Host}, false},
	}

	for _, c := range cases {
		if got := Equal(c.a, c.b); got != c.want {
			t.Errorf("Equal(%v, %v) = %v, want %v", c.a, c.b, got, c.want)
		}
	}
}
