package device

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDiscoveredDevice_Enrich(t *testing.T) {
	advertised := DiscoveredDevice{ID: "X1", Name: "Thermo", LocalName: "Thermo-LE", ManufacturerData: []byte{1}, RSSI: -40}

	live := DiscoveredDevice{ID: "X1", Name: "Thermo v2"}
	got := live.Enrich(advertised)
	assert.Equal(t, DiscoveredDevice{ID: "X1", Name: "Thermo v2", LocalName: "Thermo-LE", ManufacturerData: []byte{1}, RSSI: -40}, got,
		"live fields MUST win and empty ones MUST fall back to the advertisement")

	assert.Equal(t, advertised, DiscoveredDevice{}.Enrich(advertised))
	assert.Equal(t, "X1 - Thermo v2 - Thermo-LE", got.DisplayName())
}
