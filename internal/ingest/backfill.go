package ingest

import (
	"trailhead/internal/geo"

	"github.com/sirupsen/logrus"
)

// backfillBatchSize is how many empty-geohash rows each backfill batch
// fetches; progress is logged once per batch.
const backfillBatchSize = 100

// StartGeohashBackfill launches a background pass that computes and persists
// the geohash of every track missing one. It returns false when a backfill
// is already in flight. The pass may run alongside an ingestion pass and
// read queries; distinct rows never conflict.
func (c *Coordinator) StartGeohashBackfill() bool {
	if !c.backfilling.CompareAndSwap(false, true) {
		return false
	}

	go func() {
		defer c.backfilling.Store(false)
		c.backfillGeohashes()
	}()

	return true
}

// backfillGeohashes drains the empty-geohash rows in batches. A database
// error ends the pass; the next trigger resumes where this one stopped,
// since each processed row leaves the empty set.
func (c *Coordinator) backfillGeohashes() {
	processed := 0

	for {
		tracks, err := c.db.TracksWithoutGeohash(backfillBatchSize)
		if err != nil {
			c.logger.WithError(err).Error("Geohash backfill: failed to fetch batch")
			return
		}
		if len(tracks) == 0 {
			break
		}

		for _, track := range tracks {
			hash := geo.CentroidHash(track.Bounds, c.precision)
			if err := c.db.UpdateTrackGeohash(track.ID, hash); err != nil {
				c.logger.WithError(err).WithField("track_id", track.ID).Error("Geohash backfill: failed to update track")
				return
			}
			processed++
		}

		c.logger.WithFields(logrus.Fields{
			"processed": processed,
		}).Info("Geohash backfill progress")
	}

	if processed > 0 {
		c.logger.WithField("processed", processed).Info("Geohash backfill completed")
	}
}
