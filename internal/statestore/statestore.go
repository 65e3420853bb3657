// Package statestore persists and restores the Model as a textual,
// checksummed, versioned record stream per spec.md §4.6.
package statestore

import (
	"bufio"
	"fmt"
	"hash/crc32"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/ja7ad/preheatd/internal/model"
)

// Version is the state file's format tag, carried in the header so a
// future incompatible layout can be detected and rejected rather than
// misparsed.
const Version = 1

const (
	recMap     = "MAP"
	recBadExe  = "BADEXE"
	recExe     = "EXE"
	recExeMap  = "EXEMAP"
	recMarkov  = "MARKOV"
	recCRC32   = "CRC32"
)

// Save writes m to w in the versioned, checksummed record format,
// emitting every record in sequence order for determinism (I9).
func Save(w io.Writer, m *model.Model) error {
	var body strings.Builder
	bw := bufio.NewWriter(&body)

	fmt.Fprintf(bw, "VERSION\t%d\n", Version)

	for _, mp := range m.Maps() {
		fmt.Fprintf(bw, "%s\t%d\t%d\t%s\t%d\t%d\n", recMap, mp.ID, mp.RefCount, encodePath(mp.Path), mp.Offset, mp.Length)
	}
	badExes := m.BadExes()
	badPaths := make([]string, 0, len(badExes))
	for path := range badExes {
		badPaths = append(badPaths, path)
	}
	sort.Strings(badPaths) // bad exes carry no sequence number; path order keeps output stable
	for _, path := range badPaths {
		fmt.Fprintf(bw, "%s\t%d\t%s\n", recBadExe, badExes[path], encodePath(path))
	}
	for _, e := range m.Exes() {
		// Field order: seq, update_time, time, expansion(=size), pool,
		// weighted_launches, raw_launches, total_duration_sec, path.
		fmt.Fprintf(bw, "%s\t%d\t%s\t%s\t%d\t%s\t%s\t%s\t%s\t%s\n",
			recExe, e.ID,
			formatFloat(e.UpdateTime), formatFloat(e.Time), e.Size, e.Pool.String(),
			formatFloat(e.WeightedLaunches), strconv.Itoa(e.RawLaunches),
			formatFloat(e.TotalDurationSec), encodePath(e.Path))
		for _, em := range e.ExeMaps {
			fmt.Fprintf(bw, "%s\t%d\t%s\n", recExeMap, em.Map, formatFloat(em.Prob))
		}
	}
	for _, mk := range m.Markovs() {
		fmt.Fprintf(bw, "%s\t%d\t%d\t%d", recMarkov, mk.A, mk.B, mk.State)
		for s := 0; s < 4; s++ {
			fmt.Fprintf(bw, "\t%s", formatFloat(mk.TimeToLeave[s]))
		}
		for s1 := 0; s1 < 4; s1++ {
			for s2 := 0; s2 < 4; s2++ {
				fmt.Fprintf(bw, "\t%s", formatFloat(mk.Weight[s1][s2]))
			}
		}
		for s := 0; s < 4; s++ {
			fmt.Fprintf(bw, "\t%s", formatFloat(mk.Time[s]))
		}
		bw.WriteString("\n")
	}
	if err := bw.Flush(); err != nil {
		return err
	}

	sum := crc32.ChecksumIEEE([]byte(body.String()))
	if _, err := io.WriteString(w, body.String()); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "%s\t%08x\n", recCRC32, sum)
	return err
}

// SaveAtomic writes the state to path via a sibling temp file plus
// rename, matching spec.md §5's "writes use an atomic rename" rule.
func SaveAtomic(path string, m *model.Model) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".statestore-*.tmp")
	if err != nil {
		return fmt.Errorf("statestore: create temp: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if err := Save(tmp, m); err != nil {
		tmp.Close()
		return fmt.Errorf("statestore: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("statestore: close temp: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("statestore: rename: %w", err)
	}
	return nil
}

// Load parses a state stream into a fresh Model. On any parse or
// checksum failure it returns an error and the caller MUST discard
// whatever partial Model it was building — per spec.md's "start
// clean" policy, Load never returns a partially populated Model.
func Load(r io.Reader) (*model.Model, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("statestore: read: %w", err)
	}

	nl := strings.LastIndexByte(strings.TrimRight(string(raw), "\n"), '\n')
	if nl < 0 {
		return nil, fmt.Errorf("statestore: truncated stream")
	}
	trimmed := strings.TrimRight(string(raw), "\n")
	body, trailer := trimmed[:nl+1], trimmed[nl+1:]

	fields := strings.Split(trailer, "\t")
	if len(fields) != 2 || fields[0] != recCRC32 {
		return nil, fmt.Errorf("statestore: missing trailing checksum")
	}
	want, err := strconv.ParseUint(fields[1], 16, 32)
	if err != nil {
		return nil, fmt.Errorf("statestore: malformed checksum: %w", err)
	}
	if got := crc32.ChecksumIEEE([]byte(body)); uint32(got) != uint32(want) {
		return nil, fmt.Errorf("statestore: checksum mismatch")
	}

	return parseBody(body)
}

// LoadFile is a convenience wrapper matching spec.md's "on any parse
// or checksum failure, discard partial state and start clean" policy:
// callers should treat a non-nil error as "use model.New() instead",
// never as fatal.
func LoadFile(path string) (*model.Model, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Load(f)
}

func parseBody(body string) (*model.Model, error) {
	m := model.New()
	sc := bufio.NewScanner(strings.NewReader(body))
	sc.Buffer(make([]byte, 0, 64*1024), 4<<20)

	var curExe *model.Exe
	exeByID := make(map[int]*model.Exe)
	mapIDBySeq := make(map[int]model.MapID)

	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		switch fields[0] {
		case "VERSION":
			v, err := strconv.Atoi(fields[1])
			if err != nil || v != Version {
				return nil, fmt.Errorf("statestore: unsupported version %q", fields[1])
			}
		case recMap:
			if len(fields) != 6 {
				return nil, fmt.Errorf("statestore: malformed MAP record")
			}
			seqN, _ := strconv.Atoi(fields[1])
			path, err := decodePath(fields[3])
			if err != nil {
				return nil, err
			}
			offset, _ := strconv.ParseInt(fields[4], 10, 64)
			length, _ := strconv.ParseInt(fields[5], 10, 64)
			mp := m.InternMap(path, offset, length)
			mapIDBySeq[seqN] = mp.ID
		case recBadExe:
			if len(fields) != 3 {
				return nil, fmt.Errorf("statestore: malformed BADEXE record")
			}
			size, _ := strconv.ParseInt(fields[1], 10, 64)
			path, err := decodePath(fields[2])
			if err != nil {
				return nil, err
			}
			m.MarkBadExe(path, size)
		case recExe:
			if len(fields) != 10 {
				return nil, fmt.Errorf("statestore: malformed EXE record")
			}
			seqN, _ := strconv.Atoi(fields[1])
			updateTime, _ := strconv.ParseFloat(fields[2], 64)
			timeVal, _ := strconv.ParseFloat(fields[3], 64)
			size, _ := strconv.ParseInt(fields[4], 10, 64)
			pool := model.PoolObservation
			if fields[5] == "PRIORITY" {
				pool = model.PoolPriority
			}
			weighted, _ := strconv.ParseFloat(fields[6], 64)
			raw, _ := strconv.Atoi(fields[7])
			totalDur, _ := strconv.ParseFloat(fields[8], 64)
			path, err := decodePath(fields[9])
			if err != nil {
				return nil, err
			}
			e := &model.Exe{
				Path:             path,
				Pool:             pool,
				Size:             size,
				Time:             timeVal,
				UpdateTime:       updateTime,
				WeightedLaunches: weighted,
				RawLaunches:      raw,
				TotalDurationSec: totalDur,
			}
			m.RegisterExe(e, false, 0)
			exeByID[seqN] = e
			curExe = e
		case recExeMap:
			if curExe == nil || len(fields) != 3 {
				return nil, fmt.Errorf("statestore: EXEMAP without owning EXE")
			}
			mapSeq, _ := strconv.Atoi(fields[1])
			prob, _ := strconv.ParseFloat(fields[2], 64)
			mapID, ok := mapIDBySeq[mapSeq]
			if !ok {
				return nil, fmt.Errorf("statestore: EXEMAP references unknown map %d", mapSeq)
			}
			mp, _ := m.MapByID(mapID)
			m.AddExeMap(curExe, mp, prob)
		case recMarkov:
			if len(fields) != 1+3+4+16+4 {
				return nil, fmt.Errorf("statestore: malformed MARKOV record")
			}
			aSeq, _ := strconv.Atoi(fields[1])
			bSeq, _ := strconv.Atoi(fields[2])
			state, _ := strconv.Atoi(fields[3])
			a, aok := exeByID[aSeq]
			b, bok := exeByID[bSeq]
			if !aok || !bok {
				return nil, fmt.Errorf("statestore: MARKOV references unknown exe")
			}
			rebuildMarkov(m, a, b, state, fields[4:])
		default:
			return nil, fmt.Errorf("statestore: unknown record kind %q", fields[0])
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return m, nil
}

// rebuildMarkov parses the 24 trailing numeric fields of a MARKOV
// record (4 time_to_leave, 16 weight, 4 time, in that order) and
// restores the edge via Model.RestoreMarkov.
func rebuildMarkov(m *model.Model, a, b *model.Exe, state int, rest []string) *model.Markov {
	var timeToLeave [4]float64
	for i := 0; i < 4; i++ {
		timeToLeave[i], _ = strconv.ParseFloat(rest[i], 64)
	}
	var weight [4][4]float64
	for i := 0; i < 16; i++ {
		v, _ := strconv.ParseFloat(rest[4+i], 64)
		weight[i/4][i%4] = v
	}
	var timeOcc [4]float64
	for i := 0; i < 4; i++ {
		timeOcc[i], _ = strconv.ParseFloat(rest[20+i], 64)
	}
	return m.RestoreMarkov(a, b, state, timeToLeave, weight, timeOcc)
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// encodePath percent-encodes path into a file:// URI when it contains
// a control byte (tab included) or a non-ASCII byte; paths of
// printable ASCII only (the overwhelming common case) are emitted
// verbatim.
func encodePath(path string) string {
	for i := 0; i < len(path); i++ {
		c := path[i]
		if c < 0x20 || c > 0x7e || c == '\t' {
			return "file://" + (&url.URL{Path: path}).EscapedPath()
		}
	}
	return path
}

// decodePath accepts either a plain path or a file:// URI, per
// spec.md's "readers MUST transparently accept either form".
func decodePath(raw string) (string, error) {
	if !strings.HasPrefix(raw, "file://") {
		return raw, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("statestore: malformed path URI %q: %w", raw, err)
	}
	return u.Path, nil
}
