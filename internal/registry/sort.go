package registry

import (
	"cmp"
	"strings"
)

// compareAddr orders IPv4 addresses numerically by octet. IPv4 sorts
// before IPv6.
func compareAddr(a, b UnitKey) int {
	if a.Addr.Is4() && b.Addr.Is4() {
		x, y := a.Addr.As4(), b.Addr.As4()
		for i := 0; i < 4; i++ {
			if x[i] != y[i] {
				return cmp.Compare(x[i], y[i])
			}
		}
		return 0
	}
	return a.Addr.Compare(b.Addr)
}

func compareUnitKeys(a, b UnitKey) int {
	if c := compareAddr(a, b); c != 0 {
		return c
	}
	return cmp.Compare(a.Port, b.Port)
}

// compareDeviceKeys orders devices by unit, type, name and number.
func compareDeviceKeys(a, b DeviceKey) int {
	if c := compareUnitKeys(a.Unit, b.Unit); c != 0 {
		return c
	}
	if c := strings.Compare(a.DeviceType, b.DeviceType); c != 0 {
		return c
	}
	if c := strings.Compare(a.DeviceName, b.DeviceName); c != 0 {
		return c
	}
	return cmp.Compare(a.DeviceNumber, b.DeviceNumber)
}
