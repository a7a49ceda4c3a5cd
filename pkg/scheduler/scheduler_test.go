package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCronSpec(t *testing.T) {
	tests := []struct {
		name     string
		at       string
		fallback string
		want     string
		wantErr  bool
	}{
		{name: "explicit time", at: "01:30", fallback: "02:00", want: "30 1 * * *"},
		{name: "fallback applies", at: "", fallback: "02:00", want: "0 2 * * *"},
		{name: "midnight", at: "00:00", fallback: "01:00", want: "0 0 * * *"},
		{name: "end of day", at: "23:59", fallback: "01:00", want: "59 23 * * *"},
		{name: "missing colon", at: "0130", fallback: "01:00", wantErr: true},
		{name: "hour out of range", at: "24:00", fallback: "01:00", wantErr: true},
		{name: "minute out of range", at: "12:60", fallback: "01:00", wantErr: true},
		{name: "not a number", at: "ab:cd", fallback: "01:00", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec, err := cronSpec(tt.at, tt.fallback)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, spec)
		})
	}
}

func TestNewRequiresCoordinator(t *testing.T) {
	_, err := New(nil, Config{})
	require.Error(t, err)
}
