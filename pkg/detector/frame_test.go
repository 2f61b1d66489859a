package detector

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-gaze/pkg/gaze"
)

func TestParseFrame(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		in      string
		want    Frame
		wantErr bool
	}{
		{
			name: "bare frame",
			in:   `{"seq":3,"located":true,"hr":0.6,"vr":0.8,"iris":50}`,
			want: NewFrame(3, 0.6, 0.8, 50),
		},
		{
			name: "message envelope",
			in:   `{"type":"frame","ts":1,"data":{"seq":4,"located":true,"hr":0.5,"vr":0.7}}`,
			want: NewFrame(4, 0.5, 0.7, 0),
		},
		{
			name: "lost pupils",
			in:   `  {"seq":5,"located":false}  `,
			want: Lost(5),
		},
		{name: "wrong message type", in: `{"type":"command","data":{"name":"x"}}`, wantErr: true},
		{name: "ratio out of range", in: `{"located":true,"hr":1.5,"vr":0.5}`, wantErr: true},
		{name: "negative iris", in: `{"located":true,"iris":-1}`, wantErr: true},
		{name: "not json", in: `hello`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseFrame([]byte(tt.in))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFrame_Detector(t *testing.T) {
	t.Parallel()
	f := NewFrame(1, 0.6, 0.8, 42)
	r, ok := gaze.ReadRatio(f)
	require.True(t, ok)
	assert.Equal(t, gaze.Ratio{H: 0.6, V: 0.8}, r)
	assert.Equal(t, 42.0, f.MeasureIrisDiameter())

	_, ok = gaze.ReadRatio(Lost(2))
	assert.False(t, ok)

	located := Frame{}
	located.Located = true
	nan := math.NaN()
	located.H = &nan
	_, ok = located.HorizontalRatio()
	assert.False(t, ok, "NaN ratio is absent")
	_, ok = located.VerticalRatio()
	assert.False(t, ok)
}

func TestFrame_BytesRoundTrip(t *testing.T) {
	t.Parallel()
	f := NewFrame(9, 0.55, 0.75, 47.5)
	b, err := f.Bytes()
	require.NoError(t, err)
	got, err := ParseFrame(b)
	require.NoError(t, err)
	assert.Equal(t, f, got)
}
