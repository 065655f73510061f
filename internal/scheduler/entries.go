package scheduler

import (
	"fmt"
	"os"

	"github.com/k1rakishou/chanfetch/internal/engine"
	"gopkg.in/yaml.v3"
)

// Entry is one line of a batch file:
//
//	- link: https://i.example/g/1700000000000.webm
//	  op: cat.webm
//	  dirs: [g, "98765432"]
//	  size: 3145728
//	  hash: 1B2M2Y8AsgTpgAmY7PhCfg==
//	  algo: md5
type Entry struct {
	Link        string   `yaml:"link"`
	OutputPath  string   `yaml:"op,omitempty"`
	Dirs        []string `yaml:"dirs,omitempty"`
	Size        int64    `yaml:"size,omitempty"`
	Hash        string   `yaml:"hash,omitempty"`
	Algo        string   `yaml:"algo,omitempty"`
	Connections int      `yaml:"connections,omitempty"`
}

func (e Entry) Extra() engine.ExtraInfo {
	return engine.ExtraInfo{FileSize: e.Size, FileHash: e.Hash, HashAlgorithm: engine.HashAlgorithm(e.Algo)}
}

func ReadEntries(path string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading YAML file: %v", err)
	}
	var entries []Entry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("error parsing YAML file: %v", err)
	}
	for i, entry := range entries {
		if entry.Link == "" {
			return nil, fmt.Errorf("missing link for entry %d", i+1)
		}
		if entry.Size < 0 {
			return nil, fmt.Errorf("negative size for entry %d", i+1)
		}
		if _, err := engine.NewHash(engine.HashAlgorithm(entry.Algo)); err != nil {
			return nil, fmt.Errorf("entry %d: %v", i+1, err)
		}
	}
	return entries, nil
}
