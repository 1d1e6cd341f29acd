package elementtree

import (
	"testing"

	"github.com/mobile-next/siminspect/geometry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_IdbDescribeAll(t *testing.T) {
	data := []byte(`[
		{
			"AXFrame": "{{0, 0}, {390, 844}}",
			"AXLabel": "Settings",
			"type": "Application",
			"enabled": true,
			"custom_actions": [],
			"traits": ["UIAccessibilityTraitNone"],
			"children": [
				{
					"frame": {"x": 20, "y": 100, "width": 100, "height": 40},
					"AXLabel": "Wi-Fi",
					"AXUniqueId": "wifi.cell",
					"AXValue": "On",
					"type": "Button",
					"custom_actions": [{"name": "Forget"}, "Share"],
					"traits": "button, selected"
				}
			]
		}
	]`)

	roots, err := Parse(data)
	require.NoError(t, err)
	require.Len(t, roots, 1)

	root := roots[0]
	assert.Equal(t, "0", root.ID)
	assert.Equal(t, "Application", root.Type)
	assert.Equal(t, geometry.NewRect(0, 0, 390, 844), root.Frame)
	assert.Equal(t, []string{"UIAccessibilityTraitNone"}, root.Traits)
	assert.Equal(t, []string{}, root.CustomActions)

	require.Len(t, root.Children, 1)
	cell := root.Children[0]
	assert.Equal(t, "0.0", cell.ID)
	assert.Equal(t, "Wi-Fi", *cell.Label)
	assert.Equal(t, "wifi.cell", *cell.Identifier)
	assert.Equal(t, "On", *cell.Value)
	assert.True(t, cell.Enabled)
	assert.Equal(t, []string{"button", "selected"}, cell.Traits)
	assert.Equal(t, []string{"Forget", "Share"}, cell.CustomActions)
}

func TestParse_DeviceKitHierarchy(t *testing.T) {
	data := []byte(`{
		"depth": 0,
		"axElement": {
			"identifier": "",
			"frame": {"X": 0, "Y": 0, "Width": 393, "Height": 852},
			"label": "",
			"elementType": 1,
			"enabled": true,
			"children": [
				{"identifier": "search", "frame": {"X": 16, "Y": 60, "Width": 361, "Height": 36}, "label": "Search", "elementType": 49, "enabled": false}
			]
		}
	}`)

	roots, err := Parse(data)
	require.NoError(t, err)
	require.Len(t, roots, 1)

	root := roots[0]
	assert.Equal(t, "Other", root.Type)
	assert.Nil(t, root.Label)
	assert.Equal(t, geometry.Size{Width: 393, Height: 852}, root.Frame.Size())

	search := root.Children[0]
	assert.Equal(t, "SearchField", search.Type)
	assert.Equal(t, "search", *search.Identifier)
	assert.False(t, search.Enabled)
}

func TestParse_WebDriverAgentEnvelope(t *testing.T) {
	data := []byte(`{
		"sessionId": "abc",
		"value": {
			"type": "XCUIElementTypeApplication",
			"name": "Maps",
			"rect": {"x": 0, "y": 0, "width": 430, "height": 932},
			"isEnabled": "1",
			"children": [{"type": "XCUIElementTypeButton", "rawIdentifier": "locate", "rect": {"x": 370, "y": 800, "width": 44, "height": 44}}]
		}
	}`)

	roots, err := Parse(data)
	require.NoError(t, err)
	require.Len(t, roots, 1)
	assert.Equal(t, "Maps", *roots[0].Label)
	assert.True(t, roots[0].Enabled)
	assert.Equal(t, "locate", *roots[0].Children[0].Identifier)
}

func TestParse_MalformedFieldsDegradeToDefaults(t *testing.T) {
	data := []byte(`[
		{"type": "Window", "frame": "garbage", "traits": 7, "enabled": "maybe", "children": "nope"},
		"not a node",
		{"id": "explicit", "frame": {"x": 1, "y": 2, "width": "10", "height": 20}}
	]`)

	roots, err := Parse(data)
	require.NoError(t, err)
	require.Len(t, roots, 2)

	broken := roots[0]
	assert.Equal(t, "Window", broken.Type)
	assert.Equal(t, geometry.Rect{}, broken.Frame)
	assert.Equal(t, []string{}, broken.Traits)
	assert.True(t, broken.Enabled)
	assert.Empty(t, broken.Children)

	assert.Equal(t, "explicit", roots[1].ID)
	assert.Equal(t, geometry.NewRect(1, 2, 10, 20), roots[1].Frame)
}

func TestParse_HardFailures(t *testing.T) {
	_, err := Parse([]byte(`{not json`))
	assert.Error(t, err)

	_, err = Parse([]byte(`"just a string"`))
	assert.ErrorIs(t, err, ErrUnrecognizedTree)
}

func TestParseFrameString(t *testing.T) {
	rect, ok := parseFrameString("{{-10.5, 20}, {100, 44.25}}")
	require.True(t, ok)
	assert.Equal(t, geometry.NewRect(-10.5, 20, 100, 44.25), rect)

	_, ok = parseFrameString("{10, 20, 30}")
	assert.False(t, ok)
}
