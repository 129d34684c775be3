// Package bundle exports and imports container sets as deterministic TAR
// archives, optionally zstd-compressed, for off-line disclosure.
package bundle

import (
	"archive/tar"
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"

	"xdao.co/acdc/acdc"
	"xdao.co/acdc/said"
	"xdao.co/acdc/store"
)

// FormatVersion is the current bundle index schema version.
const FormatVersion = 1

var (
	epoch0 = time.Unix(0, 0).UTC()

	// zstd frame magic, little-endian 0xFD2FB528.
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
)

// ExportOptions controls bundle export behavior.
type ExportOptions struct {
	// Labels is optional, non-authoritative metadata mapping names to
	// identifiers.
	Labels map[string]string
	// IncludeIndex controls whether index.json is included.
	IncludeIndex bool
	// Compress wraps the archive in a zstd frame. Import detects the frame
	// magic, so compressed and plain bundles share one read path.
	Compress bool
}

// Export writes a deterministic bundle containing the containers for the
// given identifiers.
//
// The bundle bytes are deterministic: entry order is lexicographic and TAR
// headers are normalized. All exported bytes are validated against their
// identifiers.
func Export(w io.Writer, s store.Store, ids []string, opts ExportOptions) error {
	if s == nil {
		return fmt.Errorf("bundle: nil store")
	}
	if !opts.Compress {
		return exportTar(w, s, ids, opts)
	}
	zw, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	if err := exportTar(zw, s, ids, opts); err != nil {
		_ = zw.Close()
		return err
	}
	return zw.Close()
}

// ExportChain exports the edge closure of root: the root container plus every
// container reachable through its edges, resolved against s.
//
// NOT edges are not followed (their targets assert absence, not inclusion).
// Compact edge blocks contribute no targets. A missing AND or OR target
// surfaces as store.ErrNotFound.
func ExportChain(w io.Writer, s store.Store, root string, opts ExportOptions) error {
	if s == nil {
		return fmt.Errorf("bundle: nil store")
	}
	ids, err := chainClosure(s, root)
	if err != nil {
		return err
	}
	return Export(w, s, ids, opts)
}

func chainClosure(s store.Store, root string) ([]string, error) {
	var order []string
	seen := map[string]struct{}{}
	queue := []string{root}

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}

		b, err := s.Get(id)
		if err != nil {
			return nil, err
		}
		c, err := acdc.Decode(b)
		if err != nil {
			return nil, err
		}
		order = append(order, id)

		edges, err := c.Edges()
		if err != nil {
			if acdc.IsKind(err, acdc.KindCompactOnly) {
				continue
			}
			return nil, err
		}
		for _, e := range edges {
			if e.Op == acdc.OpNot {
				continue
			}
			queue = append(queue, e.Node)
		}
	}
	return order, nil
}

func exportTar(w io.Writer, s store.Store, ids []string, opts ExportOptions) error {
	uniq := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if !said.IsIdentifier(id) {
			return store.ErrInvalidIdentifier
		}
		uniq[id] = struct{}{}
	}

	ordered := make([]string, 0, len(uniq))
	for id := range uniq {
		ordered = append(ordered, id)
	}
	sort.Strings(ordered)

	tw := tar.NewWriter(w)

	containers := make([]indexContainer, 0, len(ordered))
	for _, id := range ordered {
		b, err := s.Get(id)
		if err != nil {
			_ = tw.Close()
			return err
		}
		got, err := store.Identify(b)
		if err != nil || got != id {
			_ = tw.Close()
			return store.ErrIdentifierMismatch
		}

		if err := writeFile(tw, "containers/"+id, b); err != nil {
			_ = tw.Close()
			return err
		}
		containers = append(containers, indexContainer{SAID: id, Size: len(b)})
	}

	if opts.IncludeIndex {
		idx := indexJSON{
			Version:    FormatVersion,
			Identifier: "said",
			Containers: containers,
			Labels:     nil,
		}

		if len(opts.Labels) > 0 {
			keys := make([]string, 0, len(opts.Labels))
			for k := range opts.Labels {
				keys = append(keys, k)
			}
			sort.Strings(keys)

			labels := make([]indexLabel, 0, len(keys))
			for _, k := range keys {
				if k == "" {
					_ = tw.Close()
					return fmt.Errorf("bundle: empty label key")
				}
				v := opts.Labels[k]
				if !said.IsIdentifier(v) {
					_ = tw.Close()
					return store.ErrInvalidIdentifier
				}
				labels = append(labels, indexLabel{Name: k, SAID: v})
			}
			idx.Labels = labels
		}

		b, err := marshalCanonicalIndexJSON(idx)
		if err != nil {
			_ = tw.Close()
			return err
		}
		if err := writeFile(tw, "index.json", b); err != nil {
			_ = tw.Close()
			return err
		}
	}

	return tw.Close()
}

// ImportOptions controls bundle import behavior.
type ImportOptions struct {
	// IgnoreUnknown controls whether unknown TAR entries are ignored.
	//
	// Default (false) is fail-closed: unknown entries cause Import to return
	// an error.
	IgnoreUnknown bool
}

// Import reads a bundle from r and imports all containers into s.
//
// Default behavior is fail-closed: unknown entries cause an error.
// Use ImportWithOptions to allow ignoring unknown entries.
func Import(r io.Reader, s store.Store) error {
	return ImportWithOptions(r, s, ImportOptions{})
}

// ImportWithOptions reads a bundle from r and imports all containers into s.
//
// It validates that each container's bytes match both the entry name and the
// identifier the store derives on Put. Compressed bundles are detected by the
// zstd frame magic.
func ImportWithOptions(r io.Reader, s store.Store, opts ImportOptions) error {
	if s == nil {
		return fmt.Errorf("bundle: nil store")
	}

	br := bufio.NewReader(r)
	if magic, err := br.Peek(len(zstdMagic)); err == nil && bytes.Equal(magic, zstdMagic) {
		zr, err := zstd.NewReader(br)
		if err != nil {
			return err
		}
		defer zr.Close()
		return importTar(zr, s, opts)
	}
	return importTar(br, s, opts)
}

func importTar(r io.Reader, s store.Store, opts ImportOptions) error {
	tr := tar.NewReader(r)
	seen := map[string]struct{}{}

	for {
		h, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		name := cleanTarPath(h.Name)
		if name == "" {
			return fmt.Errorf("bundle: invalid entry path: %q", h.Name)
		}

		if h.Typeflag != tar.TypeReg {
			if opts.IgnoreUnknown {
				continue
			}
			return fmt.Errorf("bundle: unexpected tar entry type: %v (%s)", h.Typeflag, name)
		}

		// Non-authoritative metadata.
		if name == "index.json" || strings.HasPrefix(name, "manifests/") {
			_, _ = io.Copy(io.Discard, tr)
			continue
		}

		if !strings.HasPrefix(name, "containers/") {
			if opts.IgnoreUnknown {
				_, _ = io.Copy(io.Discard, tr)
				continue
			}
			return fmt.Errorf("bundle: unknown entry: %s", name)
		}

		id := strings.TrimPrefix(name, "containers/")
		if !said.IsIdentifier(id) {
			return store.ErrInvalidIdentifier
		}

		payload, rerr := io.ReadAll(tr)
		if rerr != nil {
			return rerr
		}
		got, verr := store.Identify(payload)
		if verr != nil {
			return verr
		}
		if got != id {
			return store.ErrIdentifierMismatch
		}

		if _, ok := seen[id]; ok {
			return fmt.Errorf("bundle: duplicate container entry: %s", id)
		}
		seen[id] = struct{}{}

		putID, perr := s.Put(payload)
		if perr != nil {
			return perr
		}
		if putID != id {
			return store.ErrIdentifierMismatch
		}
	}
}

type indexJSON struct {
	Version    int              `json:"version"`
	Identifier string           `json:"identifier"`
	Containers []indexContainer `json:"containers"`
	Labels     []indexLabel     `json:"labels,omitempty"`
}

type indexContainer struct {
	SAID string `json:"said"`
	Size int    `json:"size"`
}

type indexLabel struct {
	Name string `json:"name"`
	SAID string `json:"said"`
}

func marshalCanonicalIndexJSON(idx indexJSON) ([]byte, error) {
	// indexJSON is composed only of structs + slices; encoding/json will be
	// deterministic.
	b, err := json.Marshal(idx)
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

func writeFile(tw *tar.Writer, name string, content []byte) error {
	hdr := &tar.Header{
		Name:     name,
		Mode:     0o644,
		Size:     int64(len(content)),
		Uid:      0,
		Gid:      0,
		Uname:    "",
		Gname:    "",
		ModTime:  epoch0,
		Typeflag: tar.TypeReg,
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	_, err := io.Copy(tw, bytes.NewReader(content))
	return err
}

func cleanTarPath(name string) string {
	name = strings.TrimSpace(name)
	name = strings.ReplaceAll(name, "\\", "/")
	name = strings.TrimPrefix(name, "./")
	name = strings.TrimPrefix(name, "/")
	if name == "" {
		return ""
	}

	parts := strings.Split(name, "/")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if part == "" || part == "." {
			return ""
		}
		if part == ".." {
			return ""
		}
		out = append(out, part)
	}
	return strings.Join(out, "/")
}
