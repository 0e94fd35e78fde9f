// Package machine records descriptions of the machines that benchmarks are run on.
//
// Descriptions are kept in a JSON file keyed by machine name, so results from different
// machines can be told apart. Nothing in here is needed by the build cache itself.
package machine

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/op/go-logging.v1"

	"github.com/thought-machine/revcache/src/fs"
)

var log = logging.MustGetLogger("machine")

// fileVersion is the version of the file format we read & write.
const fileVersion = 1

// versionKey is the top-level key holding the file format version.
const versionKey = "version"

// ErrNotFound is returned when a machine isn't present in a collection.
var ErrNotFound = errors.New("machine not found")

// hostname is overridden in tests.
var hostname = os.Hostname

// A Descriptor describes a single machine.
type Descriptor struct {
	Machine string `json:"machine"`
	OS      string `json:"os"`
	Arch    string `json:"arch"`
	CPU     string `json:"cpu"`
	NumCPU  int    `json:"num_cpu,omitempty"`
	RAM     string `json:"ram"`
	GPU     string `json:"gpu,omitempty"`
}

// A Collection is a file holding descriptions of some machines.
type Collection struct {
	path string
}

// NewCollection returns a collection backed by the given file, which needn't exist yet.
func NewCollection(path string) *Collection {
	return &Collection{path: path}
}

// Path returns the file backing this collection.
func (c *Collection) Path() string {
	return c.path
}

// Load returns the descriptor for the given machine.
// If the file holds exactly one machine and the name is this host's name, that machine is
// returned regardless of what it's called, since the file has clearly been written on this host.
func (c *Collection) Load(name string) (Descriptor, error) {
	machines, err := c.read()
	if err != nil {
		return Descriptor{}, err
	}
	if d, present := machines[name]; present {
		return d, nil
	}
	if len(machines) == 1 {
		if host, err := hostname(); err == nil && host == name {
			for _, d := range machines {
				return d, nil
			}
		}
	}
	return Descriptor{}, fmt.Errorf("%w: %s isn't in %s (known machines: %s)", ErrNotFound, name, c.path, strings.Join(names(machines), ", "))
}

// Names returns the names of all the machines in this collection, sorted.
func (c *Collection) Names() ([]string, error) {
	machines, err := c.read()
	return names(machines), err
}

// Save records the descriptor for the given machine, replacing any existing one.
// The file is replaced atomically.
func (c *Collection) Save(name string, d Descriptor) error {
	if name == "" || name == versionKey {
		return fmt.Errorf("Invalid machine name %q", name)
	}
	machines, err := c.read()
	if err != nil {
		return err
	}
	machines[name] = d
	doc := make(map[string]interface{}, len(machines)+1)
	doc[versionKey] = fileVersion
	for k, v := range machines {
		doc[k] = v
	}
	b, err := json.MarshalIndent(doc, "", "    ")
	if err != nil {
		return err
	}
	log.Debug("Writing description of %s to %s", name, c.path)
	return fs.WriteFile(bytes.NewReader(append(b, '\n')), c.path, 0644)
}

// read reads the collection's file. It's not an error if it doesn't exist.
func (c *Collection) read() (map[string]Descriptor, error) {
	machines := map[string]Descriptor{}
	b, err := os.ReadFile(c.path)
	if os.IsNotExist(err) {
		return machines, nil
	} else if err != nil {
		return nil, err
	}
	doc := map[string]json.RawMessage{}
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("Failed to parse %s: %w", c.path, err)
	}
	var version int
	if v, present := doc[versionKey]; !present {
		return nil, fmt.Errorf("%s has no version; it's not a machine file", c.path)
	} else if err := json.Unmarshal(v, &version); err != nil {
		return nil, fmt.Errorf("Invalid version in %s: %w", c.path, err)
	} else if version != fileVersion {
		return nil, fmt.Errorf("%s has version %d, but we only understand version %d", c.path, version, fileVersion)
	}
	delete(doc, versionKey)
	for name, raw := range doc {
		var d Descriptor
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, fmt.Errorf("Invalid description of %s in %s: %w", name, c.path, err)
		}
		machines[name] = d
	}
	return machines, nil
}

func names(machines map[string]Descriptor) []string {
	ret := make([]string, 0, len(machines))
	for name := range machines {
		ret = append(ret, name)
	}
	sort.Strings(ret)
	return ret
}
