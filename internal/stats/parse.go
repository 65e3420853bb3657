package stats

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// ParsedTopApp is one decoded top_app_<i> line.
type ParsedTopApp struct {
	Name      string
	Weighted  float64
	Raw       int
	Preloaded bool
	Pool      string
	SizeBytes int64
}

// Parsed is the read-back form of a Write-produced blob: the control
// CLI's view of the daemon's last dumped stats, field-for-field.
type Parsed struct {
	Version              string
	UptimeSeconds        float64
	AppsTracked          int
	PoolPriority         int
	PoolObservation      int
	Hits                 int64
	Misses               int64
	HitRate              float64
	PreloadCount         int64
	MemoryPressureEvents int64
	TopApps              []ParsedTopApp
}

// Parse decodes a stats blob written by Write. Unknown keys are
// ignored rather than rejected, so a newer daemon's extra fields
// don't break an older preheatctl.
func Parse(r *bufio.Scanner) (Parsed, error) {
	var p Parsed
	for r.Scan() {
		line := strings.TrimSpace(r.Text())
		if line == "" {
			continue
		}
		key, val, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		switch {
		case key == "version":
			p.Version = val
		case key == "uptime_seconds":
			p.UptimeSeconds, _ = strconv.ParseFloat(val, 64)
		case key == "apps_tracked":
			p.AppsTracked, _ = strconv.Atoi(val)
		case key == "pool_priority":
			p.PoolPriority, _ = strconv.Atoi(val)
		case key == "pool_observation":
			p.PoolObservation, _ = strconv.Atoi(val)
		case key == "hits":
			p.Hits, _ = strconv.ParseInt(val, 10, 64)
		case key == "misses":
			p.Misses, _ = strconv.ParseInt(val, 10, 64)
		case key == "hit_rate":
			p.HitRate, _ = strconv.ParseFloat(val, 64)
		case key == "preload_count":
			p.PreloadCount, _ = strconv.ParseInt(val, 10, 64)
		case key == "memory_pressure_events":
			p.MemoryPressureEvents, _ = strconv.ParseInt(val, 10, 64)
		case strings.HasPrefix(key, "top_app_"):
			app, err := parseTopAppLine(val)
			if err != nil {
				return Parsed{}, fmt.Errorf("stats: %s: %w", key, err)
			}
			p.TopApps = append(p.TopApps, app)
		}
	}
	return p, r.Err()
}

// ParseFile opens and parses path in one call.
func ParseFile(path string) (Parsed, error) {
	f, err := os.Open(path)
	if err != nil {
		return Parsed{}, err
	}
	defer f.Close()
	return Parse(bufio.NewScanner(f))
}

func parseTopAppLine(val string) (ParsedTopApp, error) {
	fields := strings.Split(val, ":")
	if len(fields) != 6 {
		return ParsedTopApp{}, fmt.Errorf("malformed top_app value %q", val)
	}
	weighted, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return ParsedTopApp{}, err
	}
	raw, err := strconv.Atoi(fields[2])
	if err != nil {
		return ParsedTopApp{}, err
	}
	size, err := strconv.ParseInt(fields[5], 10, 64)
	if err != nil {
		return ParsedTopApp{}, err
	}
	return ParsedTopApp{
		Name:      fields[0],
		Weighted:  weighted,
		Raw:       raw,
		Preloaded: fields[3] == "true",
		Pool:      fields[4],
		SizeBytes: size,
	}, nil
}
