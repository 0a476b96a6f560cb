package connectivity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		tags []Technology
		want Status
	}{
		{"empty batch is ambiguous", nil, StatusUnknown},
		{"single none", []Technology{TechNone}, StatusOffline},
		{"single wifi", []Technology{TechWifi}, StatusOnline},
		{"cellular and ethernet", []Technology{TechCellular, TechEthernet}, StatusOnline},
		{"real link beats spurious none", []Technology{TechNone, TechWifi}, StatusOnline},
		{"vpn only", []Technology{TechVPN}, StatusOnline},
		{"bluetooth only", []Technology{TechBluetooth}, StatusOnline},
		{"other only", []Technology{TechOther}, StatusOnline},
		{"degenerate repeated none", []Technology{TechNone, TechNone}, StatusOffline},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.tags))
		})
	}
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "online", StatusOnline.String())
	assert.Equal(t, "offline", StatusOffline.String())
	assert.Equal(t, "unknown", StatusUnknown.String())
	assert.Equal(t, "unknown", Status(99).String())
}
