package market

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func validBar(min int) Bar {
	return Bar{
		Time: time.Date(2024, 3, 4, 9, 30+min, 0, 0, time.UTC),
		Open: 100.2, High: 101, Low: 100, Close: 100.8, Volume: 500,
	}
}

func TestValidate(t *testing.T) {
	prev := validBar(0)

	cases := []struct {
		name   string
		mutate func(*Bar)
		ok     bool
	}{
		{"well formed", func(b *Bar) {}, true},
		{"zero timestamp", func(b *Bar) { b.Time = time.Time{} }, false},
		{"high below low", func(b *Bar) { b.High, b.Low = 100, 101 }, false},
		{"open above high", func(b *Bar) { b.Open = 101.5 }, false},
		{"close below low", func(b *Bar) { b.Close = 99.5 }, false},
		{"negative volume", func(b *Bar) { b.Volume = -1 }, false},
		{"zero volume ok", func(b *Bar) { b.Volume = 0 }, true},
		{"duplicate timestamp", func(b *Bar) { b.Time = prev.Time }, false},
		{"timestamp before previous", func(b *Bar) { b.Time = prev.Time.Add(-time.Minute) }, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b := validBar(1)
			tc.mutate(&b)
			err := Validate(b, &prev)
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestValidate_NoPrevSkipsOrderCheck(t *testing.T) {
	assert.NoError(t, Validate(validBar(0), nil))
}

func TestBiasAgrees(t *testing.T) {
	assert.True(t, BiasLong.Agrees(Long))
	assert.False(t, BiasLong.Agrees(Short))
	assert.True(t, BiasShort.Agrees(Short))
	assert.False(t, BiasNone.Agrees(Long))
	assert.False(t, BiasNone.Agrees(Short))
}

func TestDirectionOpposite(t *testing.T) {
	assert.Equal(t, Short, Long.Opposite())
	assert.Equal(t, Long, Short.Opposite())
}

func TestSessionKeyUsesLocation(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	assert.NoError(t, err)

	// 01:30 UTC is still the previous trading date in New York
	ts := time.Date(2024, 3, 5, 1, 30, 0, 0, time.UTC)
	assert.Equal(t, "2024-03-04", SessionKey(ts, ny))
	assert.Equal(t, "2024-03-05", SessionKey(ts, time.UTC))
}
