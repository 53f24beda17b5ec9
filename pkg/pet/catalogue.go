package pet

import (
	"errors"
	"fmt"
)

// ErrUnknownPet is returned for pet types outside the catalogue.
var ErrUnknownPet = errors.New("pet: unknown pet type")

// Pet is one selectable character.
type Pet struct {
	Name string `json:"name"`
	// AssetDir holds one animation per mood.
	AssetDir string `json:"asset_dir"`
	// ScaleFactor compensates for the native size of the assets.
	ScaleFactor float64 `json:"scale_factor"`
}

// DefaultPet is used when the requested type is unknown.
const DefaultPet = "westie"

var catalogue = []Pet{
	{Name: "westie", AssetDir: "westie_gif", ScaleFactor: 1.0},
	{Name: "tom", AssetDir: "tom_gif", ScaleFactor: 0.4},
	{Name: "panda", AssetDir: "panda_gif", ScaleFactor: 0.5},
}

// Catalogue returns every pet.
func Catalogue() []Pet {
	return append([]Pet(nil), catalogue...)
}

// Names returns the pet type names.
func Names() []string {
	names := make([]string, len(catalogue))
	for i, p := range catalogue {
		names[i] = p.Name
	}
	return names
}

// Lookup finds a pet by name.
func Lookup(name string) (Pet, error) {
	for _, p := range catalogue {
		if p.Name == name {
			return p, nil
		}
	}
	return Pet{}, fmt.Errorf("%w: %q", ErrUnknownPet, name)
}

// Resolve is Lookup falling back to the default pet.
func Resolve(name string) Pet {
	if p, err := Lookup(name); err == nil {
		return p
	}
	p, _ := Lookup(DefaultPet)
	return p
}

// EffectiveScale is the on-screen scale for a user-chosen scale.
func (p Pet) EffectiveScale(scale float64) float64 {
	return scale * p.ScaleFactor
}
