package profile

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/ayusman/eightball/internal/detector"
	"github.com/ayusman/eightball/internal/store"
)

// FromRecord converts a stored profile row into a Profile.
func FromRecord(r *store.Profile) Profile {
	return Profile{
		Name: r.Name,
		Config: detector.Config{
			Range: detector.HSVRange{
				Lower: detector.HSV{H: r.HueMin, S: r.SatMin, V: r.ValMin},
				Upper: detector.HSV{H: r.HueMax, S: r.SatMax, V: r.ValMax},
			},
			MinArea:    r.MinArea,
			KernelSize: r.KernelSize,
		},
	}
}

// Record converts p into a row for the store. An empty id gets a new UUID.
func Record(p Profile, id string, builtin bool) *store.Profile {
	if id == "" {
		id = uuid.New().String()
	}
	rng := p.Config.Range
	return &store.Profile{
		ID:         id,
		Name:       p.Name,
		HueMin:     rng.Lower.H,
		HueMax:     rng.Upper.H,
		SatMin:     rng.Lower.S,
		SatMax:     rng.Upper.S,
		ValMin:     rng.Lower.V,
		ValMax:     rng.Upper.V,
		MinArea:    p.Config.MinArea,
		KernelSize: p.Config.KernelSize,
		Builtin:    builtin,
	}
}

// SeedBuiltins inserts any built-in profile missing from the store and
// returns how many were added. Existing rows are left untouched so user
// edits to a built-in survive restarts.
func SeedBuiltins(repo *store.ProfileRepository) (int, error) {
	added := 0
	for _, p := range Builtins() {
		_, err := repo.GetByName(p.Name)
		if err == nil {
			continue
		}
		if !errors.Is(err, store.ErrNotFound) {
			return added, fmt.Errorf("failed to look up profile %s: %w", p.Name, err)
		}
		if err := repo.Create(Record(p, "", true)); err != nil {
			return added, fmt.Errorf("failed to seed profile %s: %w", p.Name, err)
		}
		added++
	}
	return added, nil
}

// Resolve finds a profile by name, ignoring case, preferring the store and
// falling back to the built-ins. A nil store only consults the built-ins.
func Resolve(st *store.Store, name string) (Profile, error) {
	name = strings.TrimSpace(name)
	if st != nil {
		rec, err := st.Profiles().GetByName(name)
		if err == nil {
			return FromRecord(rec), nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return Profile{}, err
		}
	}
	return Lookup(name)
}

// Active returns the name of the active profile recorded in settings, or
// DefaultName when none is set.
func Active(st *store.Store) (string, error) {
	if st == nil {
		return DefaultName, nil
	}
	name, err := st.Settings().Get(store.SettingActiveProfile)
	if errors.Is(err, store.ErrNotFound) {
		return DefaultName, nil
	}
	if err != nil {
		return "", err
	}
	return name, nil
}
