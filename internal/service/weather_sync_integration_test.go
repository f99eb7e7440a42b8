//go:build integration
// +build integration

package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/kjstillabower/weather-location-sync/internal/kvstore"
	"github.com/kjstillabower/weather-location-sync/internal/models"
	"github.com/kjstillabower/weather-location-sync/internal/testhelpers"
)

// TestHandleLocationChange_Integration selects Hà Nội against the live API and
// checks that the pointer and the cache survive a reload from the backend.
func TestHandleLocationChange_Integration(t *testing.T) {
	cfg := testhelpers.GetIntegrationConfig(t)
	stack := testhelpers.SetupIntegrationSync(t, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	loc := models.Location{PlaceID: "it-hanoi", DisplayName: "Hà Nội", Lat: 21.0285, Lon: 105.8542}
	fr, err := stack.Sync.HandleLocationChange(ctx, loc)
	if err != nil {
		t.Fatalf("HandleLocationChange() error = %v", err)
	}
	if fr.Key != "21.0285,105.8542" || fr.Cached {
		t.Errorf("FetchResult = key %q cached %v", fr.Key, fr.Cached)
	}

	cur, ok, err := stack.Locations.Current(ctx)
	if err != nil || !ok || cur != loc {
		t.Errorf("Current() = %+v, %v, %v", cur, ok, err)
	}

	again := testhelpers.SetupIntegrationSync(t, cfg)
	if err := again.Cache.Restore(ctx); err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	if _, inMemory := stack.Store.(*kvstore.InMemoryStore); !inMemory {
		if _, ok := again.Cache.Get("21.0285,105.8542"); !ok {
			t.Error("restored cache missed the committed key")
		}
	}
}
