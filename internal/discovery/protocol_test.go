package discovery

import (
	"testing"
)

func TestMatchRequest(t *testing.T) {
	tests := []struct {
		payload string
		want    RequestKind
	}{
		{"alpacadiscovery1", RequestCurrent},
		{"ALPACADISCOVERY1", RequestCurrent},
		{"AlpacaDiscovery1", RequestCurrent},
		{"alpacadiscovery", RequestCurrent},
		{"alpaca discovery", RequestLegacy},
		{"Alpaca Discovery please", RequestLegacy},
		{"alpacaX", RequestLoose},
		{"alpaca", RequestLoose},
		{"alpac", RequestNone},
		{"", RequestNone},
		{"discovery", RequestNone},
		{" alpacadiscovery1", RequestNone},
	}
	for _, tt := range tests {
		t.Run(tt.payload, func(t *testing.T) {
			got := MatchRequest([]byte(tt.payload))
			if got != tt.want {
				t.Errorf("MatchRequest(%q) = %v, want %v", tt.payload, got, tt.want)
			}
			if got.Answered() != (tt.want != RequestNone) {
				t.Errorf("Answered() = %v for %v", got.Answered(), got)
			}
		})
	}
}

func TestBuildResponse(t *testing.T) {
	got := string(BuildResponse(6800))
	if got != `{"AlpacaPort": 6800}` {
		t.Errorf("BuildResponse(6800) = %q", got)
	}
}

func TestParseResponse(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    uint16
		wantErr bool
	}{
		{"exact", `{"AlpacaPort": 6800}`, 6800, false},
		{"compact", `{"alpacaport":11111}`, 11111, false},
		{"extra keys", `{"AlpacaPort": 80, "Name": "x"}`, 80, false},
		{"missing", `{"Port": 80}`, 0, true},
		{"zero", `{"AlpacaPort": 0}`, 0, true},
		{"too large", `{"AlpacaPort": 70000}`, 0, true},
		{"garbage", `hello`, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseResponse([]byte(tt.payload))
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseResponse() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseResponse() = %d, want %d", got, tt.want)
			}
		})
	}
}
