/*
Package storage provides a BoltDB-backed archive of the cluster documents
fed to the reconciler.

Every archived input keeps the raw document bytes together with a
monotonically increasing sequence number, the class of the run that
consumed it, a timestamp and an xxhash digest of the content. Archived
inputs can be listed, fetched and replayed later to reproduce a run.

# Architecture

	┌──────────────────── INPUT ARCHIVE ────────────────────┐
	│                                                        │
	│  ┌──────────────────────────────────────┐             │
	│  │            BoltStore                 │             │
	│  │  - File: <dataDir>/inputs.db         │             │
	│  │  - One bucket: inputs                │             │
	│  │  - Key: big-endian sequence number   │             │
	│  └──────────────────┬───────────────────┘             │
	│                     │                                  │
	│  ┌──────────────────▼───────────────────┐             │
	│  │             Record (JSON)            │             │
	│  │  seq, class, timestamp, format,      │             │
	│  │  digest, data                        │             │
	│  └──────────────────────────────────────┘             │
	└────────────────────────────────────────────────────────┘

Keys sort in sequence order, so List returns the oldest input first and
Latest walks the bucket backwards.

# Classes and Retention

A run is classified by ClassFor:

  - error: the run aborted or recorded configuration errors
  - warn: the run recorded data-integrity warnings
  - input: everything else

Retention per class comes from the pe-input-series-max,
pe-warn-series-max and pe-error-series-max cluster options. A negative
value keeps everything; zero disables archiving for the class. Archive
saves an input and prunes its class in one call.

# Usage

	store, err := storage.NewBoltStore("/var/lib/crmcore")
	if err != nil {
		return err
	}
	defer store.Close()

	class := storage.ClassFor(ws, err)
	keep := storage.Retention(ws.Config, class)
	rec, err := storage.Archive(store, class, keep, "yaml", data, time.Now())

# Thread Safety

BoltStore is safe for concurrent use within one process. BoltDB holds an
exclusive file lock, so only one process can open an archive at a time.
*/
package storage
