// Package ganglia decodes the XML snapshots that gmetad leaves in its cache
// directory. Aggregate snapshots hold CLUSTER -> HOST -> METRIC trees; per-host
// snapshots hold a flat list of METRIC elements under a single root.
//
// Reading a file, validating its structure and looking up a metric are
// separate steps, each with its own failure kind (ErrRead, ErrSyntax,
// ErrStructure).
package ganglia

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
)

var (
	// ErrRead means the snapshot could not be opened or read.
	ErrRead = errors.New("snapshot unreadable")

	// ErrSyntax means the snapshot is not well-formed XML.
	ErrSyntax = errors.New("snapshot is not well-formed XML")

	// ErrStructure means the XML is well formed but an element the
	// scanner depends on is missing its NAME attribute.
	ErrStructure = errors.New("snapshot structure invalid")
)

// Metric is one METRIC element. Value is the VAL attribute exactly as
// written by gmetad; it is never converted to a number here.
type Metric struct {
	Name  string `xml:"NAME,attr"`
	Value string `xml:"VAL,attr"`
	Type  string `xml:"TYPE,attr"`
	Units string `xml:"UNITS,attr"`
}

// Host is one HOST element of an aggregate snapshot.
type Host struct {
	Name    string   `xml:"NAME,attr"`
	IP      string   `xml:"IP,attr"`
	Metrics []Metric `xml:"METRIC"`
}

// Cluster is one CLUSTER element of an aggregate snapshot.
type Cluster struct {
	Name  string `xml:"NAME,attr"`
	Hosts []Host `xml:"HOST"`
}

// Snapshot is an aggregate snapshot: every CLUSTER directly under the root.
type Snapshot struct {
	Clusters []Cluster `xml:"CLUSTER"`
}

// HostSnapshot is a per-host snapshot: every METRIC directly under the root.
// The name of the root element is not checked.
type HostSnapshot struct {
	Metrics []Metric `xml:"METRIC"`
}

// WalkFunc is called by Snapshot.Walk for every metric.
type WalkFunc func(cluster *Cluster, host *Host, metric *Metric) error

// Walk visits every cluster, host and metric in document order. A non-nil
// error from fn stops the walk and is returned unchanged.
func (s *Snapshot) Walk(fn WalkFunc) error {
	for ci := range s.Clusters {
		c := &s.Clusters[ci]
		for hi := range c.Hosts {
			h := &c.Hosts[hi]
			for mi := range h.Metrics {
				if err := fn(c, h, &h.Metrics[mi]); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// Lookup returns the first metric named name. Duplicates after the first
// are ignored.
func (s *HostSnapshot) Lookup(name string) (Metric, bool) {
	for _, m := range s.Metrics {
		if m.Name == name {
			return m, true
		}
	}
	return Metric{}, false
}

// ReadSnapshot decodes an aggregate snapshot from r.
func ReadSnapshot(r io.Reader) (*Snapshot, error) {
	var s Snapshot
	if err := decode(r, &s); err != nil {
		return nil, err
	}
	for _, c := range s.Clusters {
		for _, h := range c.Hosts {
			if h.Name == "" {
				return nil, fmt.Errorf("%w: HOST without NAME in cluster %q", ErrStructure, c.Name)
			}
			if err := checkMetrics(h.Metrics); err != nil {
				return nil, fmt.Errorf("%w (host %q)", err, h.Name)
			}
		}
	}
	return &s, nil
}

// ReadHostSnapshot decodes a per-host snapshot from r.
func ReadHostSnapshot(r io.Reader) (*HostSnapshot, error) {
	var s HostSnapshot
	if err := decode(r, &s); err != nil {
		return nil, err
	}
	if err := checkMetrics(s.Metrics); err != nil {
		return nil, err
	}
	return &s, nil
}

// LoadSnapshot reads and decodes the aggregate snapshot at path.
func LoadSnapshot(path string) (*Snapshot, error) {
	data, err := readFile(path)
	if err != nil {
		return nil, err
	}
	return ReadSnapshot(bytes.NewReader(data))
}

// LoadHostSnapshot reads and decodes the per-host snapshot at path.
func LoadHostSnapshot(path string) (*HostSnapshot, error) {
	data, err := readFile(path)
	if err != nil {
		return nil, err
	}
	return ReadHostSnapshot(bytes.NewReader(data))
}

func readFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRead, err)
	}
	return data, nil
}

func checkMetrics(metrics []Metric) error {
	for i, m := range metrics {
		if m.Name == "" {
			return fmt.Errorf("%w: METRIC #%d without NAME", ErrStructure, i+1)
		}
	}
	return nil
}

// decode unmarshals the single root element of r into v and rejects any
// element or text that follows it.
func decode(r io.Reader, v any) error {
	d := xml.NewDecoder(r)
	d.CharsetReader = charsetReader

	if err := d.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: no root element", ErrSyntax)
		}
		return fmt.Errorf("%w: %w", ErrSyntax, err)
	}

	for {
		tok, err := d.Token()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: %w", ErrSyntax, err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			return fmt.Errorf("%w: unexpected element <%s> after root", ErrSyntax, t.Name.Local)
		case xml.CharData:
			if len(bytes.TrimSpace(t)) > 0 {
				return fmt.Errorf("%w: unexpected text after root", ErrSyntax)
			}
		}
	}
}
