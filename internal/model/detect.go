package model

import (
	"fmt"
	"strings"
)

// RegisterBus is the read-side register access detection needs. The framed
// transport satisfies it.
type RegisterBus interface {
	ReadRegister(window, addr byte) (uint16, error)
}

// DeviceInfo is the identity block read from the device.
type DeviceInfo struct {
	ProductID       string
	SerialNumber    string
	FirmwareVersion string
}

// coreIdentity holds the identity register locations, which are the same on
// every supported model.
var coreIdentity = Registers{
	ProdID: [4]RegisterRef{
		{1, 0x6A}, {1, 0x6C}, {1, 0x6E}, {1, 0x70},
	},
	Version: RegisterRef{1, 0x72},
	SerialNum: [4]RegisterRef{
		{1, 0x74}, {1, 0x76}, {1, 0x78}, {1, 0x7A},
	},
}

// asciiPair splits a 16-bit register into its two ASCII characters, low byte
// first.
func asciiPair(v uint16) []byte {
	return []byte{byte(v), byte(v >> 8)}
}

func readASCII(bus RegisterBus, refs [4]RegisterRef) (string, error) {
	var chars []byte
	for _, ref := range refs {
		v, err := bus.ReadRegister(ref.Window, ref.Addr)
		if err != nil {
			return "", err
		}
		chars = append(chars, asciiPair(v)...)
	}
	return strings.TrimRight(string(chars), "\x00 "), nil
}

// ReadDeviceInfo reads the product ID, serial number, and firmware version
// from the device.
func ReadDeviceInfo(bus RegisterBus) (DeviceInfo, error) {
	var info DeviceInfo

	prodID, err := readASCII(bus, coreIdentity.ProdID)
	if err != nil {
		return info, fmt.Errorf("reading product ID: %w", err)
	}

	serial, err := readASCII(bus, coreIdentity.SerialNum)
	if err != nil {
		return info, fmt.Errorf("reading serial number: %w", err)
	}

	ver, err := bus.ReadRegister(coreIdentity.Version.Window, coreIdentity.Version.Addr)
	if err != nil {
		return info, fmt.Errorf("reading firmware version: %w", err)
	}

	info.ProductID = prodID
	info.SerialNumber = serial
	info.FirmwareVersion = fmt.Sprintf("%X%X", ver>>8, ver&0xFF)
	return info, nil
}

// Detect reads the device identity and resolves it against the registry.
func Detect(bus RegisterBus) (*Capability, DeviceInfo, error) {
	info, err := ReadDeviceInfo(bus)
	if err != nil {
		return nil, info, err
	}

	c, err := Lookup(info.ProductID)
	if err != nil {
		return nil, info, err
	}
	return c, info, nil
}
