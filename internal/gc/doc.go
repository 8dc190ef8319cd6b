// Package gc removes objects left behind by failed ingestions.
//
// A file is converted by two branches that upload independently. When a
// file fails after either branch may have written, the ingestion service
// records an orphan marker in the metadata store at:
//
//	/gridlake/v1/gc/orphans/<markerId>
//
// The marker lists every key the branches were writing. The
// [OrphanSweeper] periodically scans the markers and, once a marker is older
// than the orphan TTL, deletes its objects and then the marker itself. Keys
// that a catalogued file of the marker's table still owns are skipped.
//
// # Usage
//
//	sweeper := gc.NewOrphanSweeper(metaStore, objStore, catalog.New(metaStore), gc.OrphanSweeperConfig{
//	    ScanIntervalMs: 60000,
//	    OrphanTTLMs:    3600000,
//	})
//	sweeper.Start()
//	defer sweeper.Stop()
package gc
