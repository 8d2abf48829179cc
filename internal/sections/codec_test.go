package sections

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_LegacyDocumentIsUpgraded(t *testing.T) {
	raw := []byte(`{"sections":[{"id":"hero-abc123","type":"hero","title":"Hero","layout":{},"styles":{},"elements":[{"id":"heading-x1y2z3","type":"heading","props":{"text":"Hi","level":1}}]}]}`)

	doc, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, CurrentVersion, doc.Version)
	require.Len(t, doc.Sections, 1)
	require.Len(t, doc.Sections[0].Elements, 1)
	assert.Equal(t, HeadingProps{Text: "Hi", Level: 1}, doc.Sections[0].Elements[0].Props)
}

func TestDecode_MissingOrWrongSections(t *testing.T) {
	cases := map[string]string{
		"missing": `{}`,
		"object":  `{"sections":{}}`,
		"null":    `{"sections":null}`,
		"string":  `{"sections":"[]"}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Decode([]byte(body))
			assert.ErrorIs(t, err, ErrMissingSections)
		})
	}
}

func TestDecode_Malformed(t *testing.T) {
	for _, body := range []string{`[]`, `not json`, `{"sections":[{"id":1}]}`} {
		_, err := Decode([]byte(body))
		assert.ErrorIs(t, err, ErrMalformed, body)
	}
}

func TestDecode_RejectsNewerVersion(t *testing.T) {
	_, err := Decode([]byte(`{"version":2,"sections":[]}`))
	assert.ErrorIs(t, err, ErrUnsupportedVersion)
}

func TestDecode_RejectsMistypedPropKey(t *testing.T) {
	raw := []byte(`{"sections":[{"id":"s","type":"hero","layout":{},"styles":{},"elements":[{"id":"b","type":"button","props":{"text":"Go","hreff":"/x"}}]}]}`)
	_, err := Decode(raw)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformed))
}

func TestDecode_UnknownElementTypeSurvivesRoundTrip(t *testing.T) {
	raw := []byte(`{"version":1,"sections":[{"id":"custom-aaaaaa","type":"custom","layout":{},"styles":{},"elements":[{"id":"map-bbbbbb","type":"map","props":{"lat":1.5,"zoom":3,"n":12345678901234567890,"f":1.0}}]}]}`)

	doc, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, RawProps{
		"lat":  json.Number("1.5"),
		"zoom": json.Number("3"),
		"n":    json.Number("12345678901234567890"),
		"f":    json.Number("1.0"),
	}, doc.Sections[0].Elements[0].Props)

	out, err := Marshal(doc)
	require.NoError(t, err)
	assert.JSONEq(t, string(raw), string(out))
	assert.Contains(t, string(out), `"n":12345678901234567890`)
	assert.Contains(t, string(out), `"f":1.0`)
}

func TestDecode_FreeFormLayoutAndStylesSurviveRoundTrip(t *testing.T) {
	raw := []byte(`{"version":1,"sections":[` +
		`{"id":"hero-aaaaaa","type":"hero","layout":{"padding":"1rem","background":"#111","columns":{"md":2}},"styles":{"padding":10,"color":"red","shadow":null},"elements":[]},` +
		`{"id":"canvas-bbbbbb","type":"canvas","layout":{"canvasHeight":600.5},"styles":{},"elements":[` +
		`{"id":"text-cccccc","type":"text","props":{"text":"A"},"layout":{"top":1,"left":2,"width":30,"height":20,"z":1.5,"rotate":5}}]}]}`)

	doc, err := Decode(raw)
	require.NoError(t, err)

	hero := doc.Sections[0]
	assert.Equal(t, "#111", hero.Layout.Background)
	assert.Equal(t, map[string]json.RawMessage{
		"padding": json.RawMessage(`"1rem"`),
		"columns": json.RawMessage(`{"md":2}`),
	}, hero.Layout.Extra)
	assert.Equal(t, json.Number("10"), hero.Styles["padding"])

	canvas := doc.Sections[1]
	assert.Equal(t, 600.5, canvas.CanvasHeight())
	layout := canvas.Elements[0].Layout
	require.NotNil(t, layout)
	assert.Equal(t, 30.0, layout.Width)
	assert.Zero(t, layout.Z)
	assert.Contains(t, layout.Extra, "rotate")
	assert.Contains(t, layout.Extra, "z")

	out, err := Marshal(doc)
	require.NoError(t, err)
	assert.JSONEq(t, string(raw), string(out))
}

func TestCanvasLayout_TypedFieldOverridesKeptValue(t *testing.T) {
	var l CanvasLayout
	require.NoError(t, json.Unmarshal([]byte(`{"top":"auto","left":1,"width":2,"height":3,"z":1}`), &l))
	assert.Zero(t, l.Top)

	out, err := json.Marshal(l)
	require.NoError(t, err)
	assert.JSONEq(t, `{"top":"auto","left":1,"width":2,"height":3,"z":1}`, string(out))

	l.Top = 25
	out, err = json.Marshal(l)
	require.NoError(t, err)
	assert.JSONEq(t, `{"top":25,"left":1,"width":2,"height":3,"z":1}`, string(out))
}

func TestMarshal_ContainerAlwaysHasChildren(t *testing.T) {
	doc := New().AddSection(SectionCustom)
	doc, err := doc.AddElement(0, ElementContainer)
	require.NoError(t, err)
	doc, err = doc.AddElement(0, ElementText)
	require.NoError(t, err)

	out, err := Marshal(doc)
	require.NoError(t, err)

	back, err := Decode(out)
	require.NoError(t, err)
	assert.NotNil(t, back.Sections[0].Elements[0].Children)
	assert.Nil(t, back.Sections[0].Elements[1].Children)
	assert.Contains(t, string(out), `"children":[]`)
	assert.NotContains(t, string(out), `"z":`)
}

func TestMarshal_CanonicalIsStable(t *testing.T) {
	doc := New().AddSection(SectionCanvas)
	doc, err := doc.AddElement(0, ElementVideo)
	require.NoError(t, err)

	first, err := Marshal(doc)
	require.NoError(t, err)
	back, err := Decode(first)
	require.NoError(t, err)
	second, err := Marshal(back)
	require.NoError(t, err)

	assert.Equal(t, string(first), string(second))
	if diff := cmp.Diff(doc, back); diff != "" {
		t.Fatalf("document changed across round trip (-want +got):\n%s", diff)
	}
}

func TestMarshal_EmptyDocument(t *testing.T) {
	out, err := Marshal(Document{})
	require.NoError(t, err)
	assert.Equal(t, `{"version":1,"sections":[]}`, string(out))
}

func TestValidate_ReportsDuplicatesAndDeepNesting(t *testing.T) {
	doc := Document{Version: CurrentVersion, Sections: []Section{{
		ID:   "s1",
		Type: SectionCustom,
		Elements: []Element{
			{ID: "dup", Type: ElementText, Props: TextProps{}},
			{ID: "dup", Type: ElementText, Props: TextProps{}},
			{ID: "c1", Type: ElementContainer, Props: ContainerProps{}, Children: []Element{
				{ID: "c2", Type: ElementContainer, Props: ContainerProps{}, Children: []Element{
					{ID: "deep", Type: ElementText, Props: TextProps{}},
				}},
			}},
		},
	}}}

	warnings := doc.Validate()
	require.Len(t, warnings, 2)
	assert.Equal(t, "dup", warnings[0].ElementID)
	assert.Equal(t, "c2", warnings[1].ElementID)
}

func TestNewID_Format(t *testing.T) {
	id := NewID("heading")
	assert.Regexp(t, `^heading-[0-9a-z]{6}$`, id)
	assert.NotEqual(t, id, NewID("heading"))
}
