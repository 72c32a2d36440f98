// Package hashroot aggregates ingested records into a single root hash.
//
// Every record is canonically encoded and hashed twice with SHA-256. Leaf
// hashes are grouped per level; when a level fills up (100 entries by
// default) the group collapses into one hash at the next level, cascading
// upward. A bounded index remembers the most recent entries across all
// levels, and the root hash is derived from that index on demand.
//
// # Quick Start
//
//	engine, err := hashroot.New(
//	    hashroot.WithOwner("camera-7"),
//	    hashroot.WithTTL(time.Minute),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer engine.Close()
//
//	res, err := engine.CollectBatch(ctx, "camera-7", []codec.Record{
//	    {"frame": 1, "time": 1700000000.5},
//	})
//	fmt.Println(res.Root)
//
// Raw audio is hashed byte for byte:
//
//	h, err := engine.CollectAudio(ctx, "camera-7", hashroot.Audio{
//	    Data:       pcm,
//	    SampleRate: 48000,
//	})
//
// # Exporting
//
// An Exporter writes the root and the index ("menu") to a blobstore sink and
// then runs any configured syncers in the background:
//
//	store, _ := blobstore.NewLocalStore("./hash_data")
//	exp := hashroot.NewExporter(engine, store,
//	    hashroot.WithSyncers(&syncer.Git{Remote: "origin", Branch: "main"}),
//	)
//	snap, err := exp.Save(ctx)
//
// # Periodic Operation
//
// A Daemon polls sources, feeds the engine, adapts throughput to CPU load,
// and exports on every cycle:
//
//	d := hashroot.NewDaemon(engine, exp, hashroot.DaemonConfig{
//	    Requester: "camera-7",
//	    Interval:  10 * time.Second,
//	    Sources:   []source.Source{queue},
//	})
//	err := d.Run(ctx) // until ctx is done or Stop is called
//
// # Determinism
//
// For a fixed input presented in one CollectBatch call the root is stable.
// Which hashes end up grouped together depends on arrival order across group
// boundaries, so differently chunked input can yield a different root.
package hashroot
