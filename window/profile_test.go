package window

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/mobile-next/siminspect/geometry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const iPhone16Profile = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
	<key>mainScreenHeight</key>
	<integer>2556</integer>
	<key>mainScreenScale</key>
	<real>3</real>
	<key>mainScreenWidth</key>
	<integer>1179</integer>
	<key>modelIdentifier</key>
	<string>iPhone17,3</string>
</dict>
</plist>`

func TestLoadDeviceProfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile.plist")
	require.NoError(t, os.WriteFile(path, []byte(iPhone16Profile), 0o600))

	profile, err := LoadDeviceProfile(path)
	require.NoError(t, err)
	assert.Equal(t, geometry.Size{Width: 393, Height: 852}, profile.LogicalSize())
}

func TestLookupDeviceSize(t *testing.T) {
	dir := t.TempDir()
	resources := filepath.Join(dir, "iPhone 16.simdevicetype", "Contents", "Resources")
	require.NoError(t, os.MkdirAll(resources, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(resources, "profile.plist"), []byte(iPhone16Profile), 0o600))

	original := DeviceTypeDirs
	DeviceTypeDirs = []string{filepath.Join(dir, "missing"), dir}
	defer func() { DeviceTypeDirs = original }()

	size, err := LookupDeviceSize("iPhone 16")
	require.NoError(t, err)
	assert.Equal(t, geometry.Size{Width: 393, Height: 852}, size)

	_, err = LookupDeviceSize("iPhone 99")
	assert.Error(t, err)
}

func TestDeviceNameFromTitle(t *testing.T) {
	assert.Equal(t, "iPhone 16", DeviceNameFromTitle("iPhone 16 – iOS 18.6"))
	assert.Equal(t, "iPad Air 11-inch (M2)", DeviceNameFromTitle("iPad Air 11-inch (M2) - iOS 17.5"))
	assert.Equal(t, "Apple Watch", DeviceNameFromTitle(" Apple Watch "))
}
