package cache

import (
	"testing"
	"time"

	"trailhead/pkg/models"
)

func TestSetAndGet(t *testing.T) {
	c := NewMemoryCache(time.Minute)

	c.Set("key", "value")

	got, found := c.Get("key")
	if !found {
		t.Fatal("Get() found = false after Set")
	}
	if got != "value" {
		t.Errorf("Get() = %v, want %q", got, "value")
	}

	if _, found := c.Get("missing"); found {
		t.Error("Get() found = true for unknown key")
	}
}

func TestExpiry(t *testing.T) {
	c := NewMemoryCache(10 * time.Millisecond)

	c.Set("key", "value")
	time.Sleep(30 * time.Millisecond)

	if _, found := c.Get("key"); found {
		t.Error("Get() found = true after TTL elapsed")
	}
}

func TestDeleteAndClear(t *testing.T) {
	c := NewMemoryCache(time.Minute)

	c.Set("a", 1)
	c.Set("b", 2)

	c.Delete("a")
	if _, found := c.Get("a"); found {
		t.Error("Get() found deleted key")
	}
	if _, found := c.Get("b"); !found {
		t.Error("Delete() removed an unrelated key")
	}

	c.Clear()
	if _, found := c.Get("b"); found {
		t.Error("Get() found key after Clear")
	}
}

func TestCoordinateHelpers(t *testing.T) {
	c := NewMemoryCache(time.Minute)

	ele := 512.5
	coords := map[int64][]models.Coordinate{
		7: {
			{Latitude: 47.37, Longitude: 8.54, Elevation: &ele},
			{Latitude: 47.38, Longitude: 8.55},
		},
	}

	c.SetCoordinates("batch", coords)

	got, found := c.GetCoordinates("batch")
	if !found {
		t.Fatal("GetCoordinates() found = false after SetCoordinates")
	}
	if len(got[7]) != 2 || got[7][0].Latitude != 47.37 {
		t.Errorf("GetCoordinates() = %v", got)
	}

	// A non-coordinate value under the same key does not satisfy the
	// typed accessor.
	c.Set("other", "not coordinates")
	if _, found := c.GetCoordinates("other"); found {
		t.Error("GetCoordinates() returned a mistyped entry")
	}
}
