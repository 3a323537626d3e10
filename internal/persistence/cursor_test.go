package persistence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/trackme/internal/domain"
)

func TestCursorRoundTrip(t *testing.T) {
	in := &domain.Cursor{RecordedAt: time.Date(2024, 5, 6, 7, 8, 9, 123456789, time.UTC), ID: "abc|def"}

	token := EncodeCursor(in)
	require.NotEmpty(t, token)

	out, err := DecodeCursor(token)
	require.NoError(t, err)
	require.True(t, in.RecordedAt.Equal(out.RecordedAt))
	require.Equal(t, in.ID, out.ID)
}

func TestDecodeCursorEmptyAndInvalid(t *testing.T) {
	c, err := DecodeCursor("  ")
	require.NoError(t, err)
	require.Nil(t, c)
	require.Empty(t, EncodeCursor(nil))

	_, err = DecodeCursor("!!!")
	require.Error(t, err)

	_, err = DecodeCursor(EncodeCursor(&domain.Cursor{RecordedAt: time.Now(), ID: ""}))
	require.Error(t, err)
}

func TestClampLimit(t *testing.T) {
	require.Equal(t, DefaultPageSize, ClampLimit(0))
	require.Equal(t, 10, ClampLimit(10))
	require.Equal(t, MaxPageSize, ClampLimit(MaxPageSize+1))
}

func TestBefore(t *testing.T) {
	ts := time.Date(2024, 5, 6, 0, 0, 0, 0, time.UTC)
	c := &domain.Cursor{RecordedAt: ts, ID: "m"}

	require.True(t, Before(ts.Add(-time.Second), "z", c))
	require.True(t, Before(ts, "a", c))
	require.False(t, Before(ts, "m", c))
	require.False(t, Before(ts.Add(time.Second), "a", c))
	require.True(t, Before(ts, "m", nil))
}
