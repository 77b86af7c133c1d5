package persistence

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"
)

type numberedEvent struct {
	Writer int `json:"w"`
	Seq    int `json:"n"`
}

func TestPipeline_ConcurrentWritersDeliverEachEventOnce(t *testing.T) {
	const (
		writers         = 4
		eventsPerWriter = 500
	)

	config := testConfig(t)
	config.MaxObjectsInFile = 7
	config.MaxFileAgeForWrite = time.Second
	p := newTestPipeline(t, config)

	seen := make(map[numberedEvent]int)
	consume := func() int {
		batch := p.reader.NextBatch()
		if batch == nil {
			return 0
		}
		var events []numberedEvent
		if err := json.Unmarshal(batch.Data, &events); err != nil {
			t.Errorf("batch %s is not a JSON array: %v", batch.FileName(), err)
		}
		for _, e := range events {
			seen[e]++
		}
		p.reader.Commit(batch)
		return len(events)
	}

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for n := 0; n < eventsPerWriter; n++ {
				if err := p.writer.Append([]byte(fmt.Sprintf(`{"w":%d,"n":%d}`, w, n))); err != nil {
					t.Errorf("Append() error = %v", err)
				}
			}
		}(w)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	running := true
	for running {
		select {
		case <-done:
			running = false
		default:
			consume()
		}
	}

	// Release the last writable file and drain.
	p.clock.Advance(time.Hour)
	for consume() > 0 {
	}

	dups := 0
	for e, count := range seen {
		if count > 1 {
			dups++
			t.Errorf("event %+v delivered %d times", e, count)
		}
	}
	if got, want := len(seen), writers*eventsPerWriter; got != want || dups != 0 {
		t.Errorf("unique events = %d, duplicates = %d, want %d, 0", got, dups, want)
	}
	if p.metrics.eventsWritten["success"] != writers*eventsPerWriter {
		t.Errorf("eventsWritten[success] = %d, want %d", p.metrics.eventsWritten["success"], writers*eventsPerWriter)
	}
}
