// Package tuning handles parmark.toml tunables.
package tuning

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/chazu/parmark/marking"
)

// Tuning represents a parmark.toml configuration.
type Tuning struct {
	Workers Workers `toml:"workers"`
	Queue   Queue   `toml:"queue"`
	Spin    Spin    `toml:"spin"`
	Bench   Bench   `toml:"bench"`

	// Dir is the directory containing the parmark.toml file (set at load time).
	Dir string `toml:"-"`
}

// Workers configures the worker pool.
type Workers struct {
	Count int `toml:"count"`
}

// Queue configures the per-worker task queues.
type Queue struct {
	Capacity int `toml:"capacity"`
}

// Spin configures the termination spin ladder.
type Spin struct {
	HardSpins         int `toml:"hard-spins"`
	SpinToYieldRatio  int `toml:"spin-to-yield-ratio"`
	YieldsBeforeSleep int `toml:"yields-before-sleep"`
	SleepMillis       int `toml:"sleep-millis"`
}

// Bench configures the synthetic markbench workload.
type Bench struct {
	Objects  int   `toml:"objects"`
	Arrays   int   `toml:"arrays"`
	ArrayLen int   `toml:"array-len"`
	Fanout   int   `toml:"fanout"`
	Seed     int64 `toml:"seed"`
}

// Default returns a Tuning with every field at its default.
func Default() *Tuning {
	t := &Tuning{}
	t.applyDefaults()
	return t
}

func (t *Tuning) applyDefaults() {
	if t.Workers.Count <= 0 {
		t.Workers.Count = runtime.GOMAXPROCS(0)
	}
	if t.Queue.Capacity <= 0 {
		t.Queue.Capacity = marking.DefaultQueueCapacity
	}
	d := marking.DefaultSpinConfig()
	if t.Spin.HardSpins <= 0 {
		t.Spin.HardSpins = d.HardSpins
	}
	if t.Spin.SpinToYieldRatio <= 0 {
		t.Spin.SpinToYieldRatio = d.SpinToYieldRatio
	}
	if t.Spin.YieldsBeforeSleep <= 0 {
		t.Spin.YieldsBeforeSleep = d.YieldsBeforeSleep
	}
	if t.Spin.SleepMillis <= 0 {
		t.Spin.SleepMillis = int(d.SleepInterval / time.Millisecond)
	}
	if t.Bench.Objects <= 0 {
		t.Bench.Objects = 100000
	}
	if t.Bench.Arrays <= 0 {
		t.Bench.Arrays = 64
	}
	if t.Bench.ArrayLen <= 0 {
		t.Bench.ArrayLen = 1 << 16
	}
	if t.Bench.Fanout <= 0 {
		t.Bench.Fanout = 4
	}
	if t.Bench.Seed == 0 {
		t.Bench.Seed = 1
	}
}

// SpinConfig converts the spin section into the marking package's form.
func (t *Tuning) SpinConfig() marking.SpinConfig {
	return marking.SpinConfig{
		HardSpins:         t.Spin.HardSpins,
		SpinToYieldRatio:  t.Spin.SpinToYieldRatio,
		YieldsBeforeSleep: t.Spin.YieldsBeforeSleep,
		SleepInterval:     time.Duration(t.Spin.SleepMillis) * time.Millisecond,
	}
}

// Load parses a parmark.toml file from the given directory.
func Load(dir string) (*Tuning, error) {
	path := filepath.Join(dir, "parmark.toml")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var t Tuning
	if err := toml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	t.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	t.applyDefaults()
	return &t, nil
}

// FindAndLoad walks up from startDir to find a parmark.toml file, then loads
// and returns the tuning. Returns nil if no file is found.
func FindAndLoad(startDir string) (*Tuning, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, "parmark.toml")
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return nil, nil
		}
		dir = parent
	}
}
