package statslog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/klauspost/compress/zstd"

	"voxelview.ai/internal/protocol"
)

// Files lists the rotated logs for prefix under dir, oldest first.
func Files(dir, prefix string) ([]string, error) {
	paths, err := filepath.Glob(filepath.Join(dir, prefix+"-*.jsonl.zst"))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	return paths, nil
}

// ReadLines calls fn for every line of one compressed log.
func ReadLines(path string, fn func(line []byte) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	defer dec.Close()

	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	n := 0
	for sc.Scan() {
		n++
		if len(sc.Bytes()) == 0 {
			continue
		}
		if err := fn(sc.Bytes()); err != nil {
			return fmt.Errorf("%s:%d: %w", filepath.Base(path), n, err)
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return nil
}

// ReadFrames decodes every frame record under dataDir in file order.
func ReadFrames(dataDir string, fn func(protocol.StatsMsg) error) error {
	paths, err := Files(filepath.Join(dataDir, FramesPrefix), FramesPrefix)
	if err != nil {
		return err
	}
	for _, p := range paths {
		err := ReadLines(p, func(line []byte) error {
			var m protocol.StatsMsg
			if err := json.Unmarshal(line, &m); err != nil {
				return err
			}
			return fn(m)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// ReadEdits decodes every edit record under dataDir in file order.
func ReadEdits(dataDir string, fn func(EditRecord) error) error {
	paths, err := Files(filepath.Join(dataDir, EditsPrefix), EditsPrefix)
	if err != nil {
		return err
	}
	for _, p := range paths {
		err := ReadLines(p, func(line []byte) error {
			var e EditRecord
			if err := json.Unmarshal(line, &e); err != nil {
				return err
			}
			return fn(e)
		})
		if err != nil {
			return err
		}
	}
	return nil
}
