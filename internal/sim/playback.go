package sim

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"owl-traffic-gen/internal/clock"
	"owl-traffic-gen/internal/sample"
)

// ReplayLog replays samples recorded as JSONL from r to writer, keeping the
// recorded spacing between RxTimestamps. A speed >0 accelerates playback.
// If speed <= 0, no artificial delay is inserted. It returns the number of
// samples written.
func ReplayLog(ctx context.Context, r io.Reader, writer SampleWriter, speed float64) (int, error) {
	return replayLog(ctx, r, writer, speed, clock.NewReal())
}

func replayLog(ctx context.Context, r io.Reader, writer SampleWriter, speed float64, clk clock.Clock) (int, error) {
	dec := json.NewDecoder(r)
	var prev int64
	n := 0
	for {
		var s sample.Sample
		if err := dec.Decode(&s); err != nil {
			if err == io.EOF {
				return n, nil
			}
			return n, fmt.Errorf("sample %d: %w", n+1, err)
		}
		if n > 0 && speed > 0 {
			diff := time.Duration(s.RxTimestamp-prev) * time.Millisecond
			if speed != 1 {
				diff = time.Duration(float64(diff) / speed)
			}
			if diff > 0 {
				if err := clk.Sleep(ctx, diff); err != nil {
					return n, err
				}
			}
		}
		if err := ctx.Err(); err != nil {
			return n, err
		}
		if err := writer.Write(s); err != nil {
			return n, err
		}
		prev = s.RxTimestamp
		n++
	}
}

// ReplayLogFile opens a file and replays its samples.
func ReplayLogFile(ctx context.Context, path string, writer SampleWriter, speed float64) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return ReplayLog(ctx, f, writer, speed)
}
