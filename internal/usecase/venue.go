package usecase

import (
	"BarPull/internal/domain/models"
)

// VenueResolver tries one strategy for deciding which venue a descriptor/bar
// pair belongs to. Returning false passes to the next resolver in the chain.
type VenueResolver func(desc models.InstrumentDescriptor, instrumentID string) (models.Venue, bool)

// DescriptorVenue uses the venue embedded in the loaded descriptor.
func DescriptorVenue(desc models.InstrumentDescriptor, _ string) (models.Venue, bool) {
	if desc.Venue != "" {
		return desc.Venue, true
	}
	return "", false
}

// InstrumentIDVenue derives the venue from the id's "SYMBOL.VENUE" suffix.
func InstrumentIDVenue(_ models.InstrumentDescriptor, instrumentID string) (models.Venue, bool) {
	if _, venue := models.SplitInstrumentID(instrumentID); venue != "" {
		return venue, true
	}
	return "", false
}

// DefaultVenue always resolves to the simulation venue. Terminal entry of
// the chain: real venues must win over it, never the other way around.
func DefaultVenue(_ models.InstrumentDescriptor, _ string) (models.Venue, bool) {
	return models.SimulationVenue, true
}

// DefaultVenueChain is the resolution order used per request (not per bar):
// descriptor venue, then instrument-id venue, then the simulation venue.
func DefaultVenueChain() []VenueResolver {
	return []VenueResolver{DescriptorVenue, InstrumentIDVenue, DefaultVenue}
}

// ResolveVenue walks the chain and returns the first hit.
func ResolveVenue(chain []VenueResolver, desc models.InstrumentDescriptor, instrumentID string) models.Venue {
	for _, r := range chain {
		if v, ok := r(desc, instrumentID); ok {
			return v
		}
	}
	return models.SimulationVenue
}
