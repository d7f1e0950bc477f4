package jsonreader

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const configuredDevices = "HTTP/1.0 200 OK\r\n" +
	"Content-Type: application/json\r\n\r\n" +
	`{"Value":[` +
	`{"DeviceName":"Focuser-MoonLite","DeviceType":"Focuser","DeviceNumber":0,"UniqueID":"a1"},` +
	`{"DeviceName":"ZWO ASI1600","DeviceType":"Camera","DeviceNumber":1,"UniqueID":"b2"}],` +
	`"ClientTransactionID":0,"ServerTransactionID":17,"ErrorNumber":0,"ErrorMessage":"",` +
	`"Version":"AlpacaPi - V0.7.0","upTime_Days":3,"cpuTemp_DegF":117.5}`

func TestParseDiscoveryResponse(t *testing.T) {
	doc, err := Parse([]byte(`{"AlpacaPort": 6800}`))
	require.NoError(t, err)

	port, ok := doc.Int("alpacaport")
	require.True(t, ok)
	assert.Equal(t, 6800, port)
	assert.Equal(t, []Token{{Key: "ALPACAPORT", Value: "6800"}}, doc.Tokens)
}

func TestParseSkipsHTTPHeaders(t *testing.T) {
	doc, err := Parse([]byte(configuredDevices))
	require.NoError(t, err)

	assert.Equal(t, Token{Key: MarkerArray, Value: "VALUE"}, doc.Tokens[0])

	v, ok := doc.Get("Version")
	require.True(t, ok)
	assert.Equal(t, "AlpacaPi - V0.7.0", v)

	temp, ok := doc.Float("CPUTEMP_DEGF")
	require.True(t, ok)
	assert.InDelta(t, 117.5, temp, 0.001)
}

func TestRecords(t *testing.T) {
	doc, err := Parse([]byte(configuredDevices))
	require.NoError(t, err)

	records := doc.Records("value")
	require.Len(t, records, 2)
	assert.Equal(t, "Focuser", records[0]["DEVICETYPE"])
	assert.Equal(t, "0", records[0]["DEVICENUMBER"])
	assert.Equal(t, "ZWO ASI1600", records[1]["DEVICENAME"])
	assert.Equal(t, "b2", records[1]["UNIQUEID"])

	assert.Nil(t, doc.Records("missing"))
}

func TestRecordsEmptyArray(t *testing.T) {
	doc, err := Parse([]byte(`{"Value":[],"ErrorNumber":0}`))
	require.NoError(t, err)
	assert.Empty(t, doc.Records("Value"))
	assert.NotNil(t, doc.Records("Value"))
}

func TestParsePrefixAndTrailingJunk(t *testing.T) {
	doc, err := Parse([]byte("garbage before {\"a\":1} and after"))
	require.NoError(t, err)
	v, ok := doc.Get("A")
	require.True(t, ok)
	assert.Equal(t, "1", v)
}

func TestParseScalars(t *testing.T) {
	doc, err := Parse([]byte(`{"s":"x \"q\" é","t":true,"f":false,"n":null,"nested":{"inner":2}}`))
	require.NoError(t, err)

	tests := []struct {
		key  string
		want string
	}{
		{"S", `x "q" é`},
		{"T", "true"},
		{"F", "false"},
		{"N", "null"},
		{"INNER", "2"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			got, ok := doc.Get(tt.key)
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPrefixed(t *testing.T) {
	doc, err := Parse([]byte(`{"library-0":"software-opencv-4.5.1","Library-1":"camera-ZWO-1.20","platform":"x86"}`))
	require.NoError(t, err)

	libs := doc.Prefixed("LIBRARY")
	require.Len(t, libs, 2)
	assert.Equal(t, "software-opencv-4.5.1", libs[0].Value)
	assert.Equal(t, "LIBRARY-1", libs[1].Key)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  error
	}{
		{"empty", "", ErrNoJSON},
		{"headers only", "HTTP/1.0 404 Not Found\r\n\r\n", ErrNoJSON},
		{"truncated", `{"Value":[{"DeviceName":"x"`, ErrMalformed},
		{"bad key", `{1:2}`, ErrMalformed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.input))
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestNestedArrayMarkers(t *testing.T) {
	doc, err := Parse([]byte(`{"a":[[1,2],{"b":3}]}`))
	require.NoError(t, err)

	want := []Token{
		{MarkerArray, "A"},
		{MarkerArray, ""},
		{"", "1"},
		{"", "2"},
		{MarkerArrayEnd, ""},
		{"B", "3"},
		{MarkerArrayNext, ""},
		{MarkerArrayEnd, ""},
	}
	assert.Equal(t, want, doc.Tokens)
}
