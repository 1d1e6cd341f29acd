package window

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mobile-next/siminspect/geometry"
	"howett.net/plist"
)

// DeviceTypeDirs are searched for <name>.simdevicetype bundles.
var DeviceTypeDirs = []string{
	"/Library/Developer/CoreSimulator/Profiles/DeviceTypes",
	"/Applications/Xcode.app/Contents/Developer/Platforms/iPhoneOS.platform/Library/Developer/CoreSimulator/Profiles/DeviceTypes",
}

// DeviceProfile is the screen description from a device type's profile.plist.
type DeviceProfile struct {
	ScreenWidth  float64 `json:"screenWidth"`
	ScreenHeight float64 `json:"screenHeight"`
	ScreenScale  float64 `json:"screenScale"`
}

// LogicalSize is the screen size in points.
func (p DeviceProfile) LogicalSize() geometry.Size {
	scale := p.ScreenScale
	if scale == 0 {
		scale = 1
	}
	return geometry.Size{Width: p.ScreenWidth / scale, Height: p.ScreenHeight / scale}
}

func LoadDeviceProfile(path string) (DeviceProfile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return DeviceProfile{}, fmt.Errorf("failed to read device profile: %w", err)
	}

	var values map[string]interface{}
	if _, err := plist.Unmarshal(data, &values); err != nil {
		return DeviceProfile{}, fmt.Errorf("failed to parse device profile %s: %w", path, err)
	}

	profile := DeviceProfile{
		ScreenWidth:  plistNumber(values["mainScreenWidth"]),
		ScreenHeight: plistNumber(values["mainScreenHeight"]),
		ScreenScale:  plistNumber(values["mainScreenScale"]),
	}
	if profile.ScreenWidth == 0 || profile.ScreenHeight == 0 {
		return DeviceProfile{}, fmt.Errorf("device profile %s has no screen size", path)
	}
	return profile, nil
}

// LookupDeviceSize finds the logical screen size of a simulator device
// type such as "iPhone 16".
func LookupDeviceSize(deviceName string) (geometry.Size, error) {
	for _, dir := range DeviceTypeDirs {
		path := filepath.Join(dir, deviceName+".simdevicetype", "Contents", "Resources", "profile.plist")
		if _, err := os.Stat(path); err != nil {
			continue
		}
		profile, err := LoadDeviceProfile(path)
		if err != nil {
			return geometry.Size{}, err
		}
		return profile.LogicalSize(), nil
	}
	return geometry.Size{}, fmt.Errorf("no device type profile found for %q", deviceName)
}

// DeviceNameFromTitle extracts the device name from a Simulator window
// title like "iPhone 16 – iOS 18.6".
func DeviceNameFromTitle(title string) string {
	for _, sep := range []string{" – ", " - "} {
		if i := strings.Index(title, sep); i >= 0 {
			return strings.TrimSpace(title[:i])
		}
	}
	return strings.TrimSpace(title)
}

func plistNumber(v interface{}) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case uint64:
		return float64(n)
	case int64:
		return float64(n)
	case int:
		return float64(n)
	}
	return 0
}
