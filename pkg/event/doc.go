// Package event defines the core record types for the replay intake pipeline.
//
// # Records
//
// EnrichedRecord is what the recorder appends to the segment queue. Records
// are kept as raw JSON; the pipeline never inspects individual snapshot
// records:
//
//	rec := event.EnrichedRecord{
//	    Context: event.RecordContext{
//	        ApplicationID: "app-id",
//	        SessionID:     "session-id",
//	        ViewID:        "view-id",
//	    },
//	    Records:           []json.RawMessage{[]byte(`{"type":10}`)},
//	    HasFullSnapshot:   true,
//	    EarliestTimestamp: 1700000000000,
//	    LatestTimestamp:   1700000001000,
//	}
//
// ResourceRecord carries binary assets uploaded through the resource queue.
//
// # Context
//
// Context holds the site, credentials and device description used when
// building upload requests. It is supplied per call and never mutated.
//
// # Dead letters
//
// DeadLetter rows describe batches that could not be decoded and were
// archived in Parquet or Avro format instead of blocking the queue.
package event
