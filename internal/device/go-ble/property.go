package goble

import (
	"strings"

	"github.com/go-ble/ble"
	"github.com/srg/blemon/internal/device"
)

var propertyNames = []struct {
	value ble.Property
	name  string
}{
	{ble.CharBroadcast, "Broadcast"},
	{ble.CharRead, "Read"},
	{ble.CharWriteNR, "WriteWithoutResponse"},
	{ble.CharWrite, "Write"},
	{ble.CharNotify, "Notify"},
	{ble.CharIndicate, "Indicate"},
	{ble.CharSignedWrite, "AuthenticatedSignedWrites"},
	{ble.CharExtended, "ExtendedProperties"},
}

// PropertyString renders ble.Property bit flags as a comma-separated list of names.
func PropertyString(p ble.Property) string {
	names := make([]string, 0, len(propertyNames))
	for _, pn := range propertyNames {
		if p&pn.value != 0 {
			names = append(names, pn.name)
		}
	}
	return strings.Join(names, ",")
}

// characteristicFromBLE snapshots a go-ble characteristic into the provider-neutral form.
func characteristicFromBLE(serviceUUID string, c *ble.Characteristic) device.Characteristic {
	return device.Characteristic{
		ServiceUUID:   serviceUUID,
		UUID:          device.NormalizeUUID(c.UUID.String()),
		IsReadable:    c.Property&ble.CharRead != 0,
		IsNotifiable:  c.Property&ble.CharNotify != 0,
		IsIndicatable: c.Property&ble.CharIndicate != 0,
	}
}

// convertProfile flattens a discovered profile into service snapshots, preserving
// the discovery order.
func convertProfile(p *ble.Profile) []device.Service {
	if p == nil {
		return nil
	}
	services := make([]device.Service, 0, len(p.Services))
	for _, s := range p.Services {
		svcUUID := device.NormalizeUUID(s.UUID.String())
		chars := make([]device.Characteristic, 0, len(s.Characteristics))
		for _, c := range s.Characteristics {
			chars = append(chars, characteristicFromBLE(svcUUID, c))
		}
		services = append(services, device.Service{UUID: svcUUID, Characteristics: chars})
	}
	return services
}

// findCharacteristic looks up the go-ble characteristic addressed by char.
func findCharacteristic(p *ble.Profile, char device.Characteristic) *ble.Characteristic {
	if p == nil {
		return nil
	}
	key := char.Key()
	for _, s := range p.Services {
		svcUUID := device.NormalizeUUID(s.UUID.String())
		for _, c := range s.Characteristics {
			if svcUUID+"/"+device.NormalizeUUID(c.UUID.String()) == key {
				return c
			}
		}
	}
	return nil
}
