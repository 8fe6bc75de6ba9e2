// Package bundle moves configuration documents between archives as a
// deterministic tar file.
//
// Layout:
//
//	configs/<cid>   one regular file per document
//	index.json      format version and entries sorted by CID
//
// Identical inputs give identical bytes: entries are sorted and headers carry
// no owner or time.
package bundle

import (
	"archive/tar"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/ipfs/go-cid"

	"xdao.co/ledger/cidutil"
	"xdao.co/ledger/storage"
)

const FormatVersion = 1

const (
	configDir = "configs/"
	indexName = "index.json"
)

var epoch = time.Unix(0, 0).UTC()

// Entry is one document in a bundle. Label is free-form metadata such as
// "actual_from=100"; it does not affect the document.
type Entry struct {
	ID    cid.Cid
	Label string
}

type index struct {
	Version int          `json:"version"`
	Entries []indexEntry `json:"entries"`
}

type indexEntry struct {
	CID   string `json:"cid"`
	Size  int    `json:"size"`
	Label string `json:"label,omitempty"`
}

// Export writes the documents named by entries, read from cas and checked
// against their CIDs, followed by the index.
func Export(w io.Writer, cas storage.CAS, entries []Entry) error {
	if cas == nil {
		return fmt.Errorf("bundle: nil CAS")
	}
	byID := make(map[string]Entry, len(entries))
	for _, e := range entries {
		if cidutil.Check(e.ID) != nil {
			return storage.ErrInvalidCID
		}
		s := e.ID.String()
		if prev, ok := byID[s]; ok && prev.Label != e.Label {
			return fmt.Errorf("bundle: %s listed with labels %q and %q", s, prev.Label, e.Label)
		}
		byID[s] = e
	}
	ids := make([]string, 0, len(byID))
	for s := range byID {
		ids = append(ids, s)
	}
	sort.Strings(ids)

	tw := tar.NewWriter(w)
	idx := index{Version: FormatVersion, Entries: make([]indexEntry, 0, len(ids))}
	for _, s := range ids {
		e := byID[s]
		b, err := cas.Get(e.ID)
		if err != nil {
			_ = tw.Close()
			return fmt.Errorf("bundle: %s: %w", s, err)
		}
		if !cidutil.Matches(e.ID, b) {
			_ = tw.Close()
			return storage.ErrCIDMismatch
		}
		if err := writeFile(tw, configDir+s, b); err != nil {
			_ = tw.Close()
			return err
		}
		idx.Entries = append(idx.Entries, indexEntry{CID: s, Size: len(b), Label: e.Label})
	}

	b, err := json.Marshal(idx)
	if err != nil {
		_ = tw.Close()
		return err
	}
	if err := writeFile(tw, indexName, append(b, '\n')); err != nil {
		_ = tw.Close()
		return err
	}
	return tw.Close()
}

type ImportOptions struct {
	// IgnoreUnknown skips entries outside the layout instead of failing.
	IgnoreUnknown bool
	// Check, when set, vets each document before it is stored.
	Check func(doc []byte) error
}

// Import stores every document of the bundle in cas and returns the entries,
// labelled from the index when there is one.
//
// Each document must match the CID in its file name. When an index is present
// it must list exactly the documents in the bundle.
func Import(r io.Reader, cas storage.CAS, opts ImportOptions) ([]Entry, error) {
	if cas == nil {
		return nil, fmt.Errorf("bundle: nil CAS")
	}
	tr := tar.NewReader(r)
	docs := map[string]cid.Cid{}
	var idx *index

	for {
		h, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		name := cleanPath(h.Name)
		if name == "" {
			return nil, fmt.Errorf("bundle: invalid entry path %q", h.Name)
		}
		if h.Typeflag != tar.TypeReg {
			if opts.IgnoreUnknown {
				continue
			}
			return nil, fmt.Errorf("bundle: unexpected entry type %v (%s)", h.Typeflag, name)
		}

		switch {
		case name == indexName:
			if idx != nil {
				return nil, fmt.Errorf("bundle: duplicate index")
			}
			idx = &index{}
			if err := json.NewDecoder(tr).Decode(idx); err != nil {
				return nil, fmt.Errorf("bundle: index: %w", err)
			}
			if idx.Version != FormatVersion {
				return nil, fmt.Errorf("bundle: unsupported index version %d", idx.Version)
			}
		case strings.HasPrefix(name, configDir):
			s := strings.TrimPrefix(name, configDir)
			id, err := cidutil.Parse(s)
			if err != nil {
				return nil, storage.ErrInvalidCID
			}
			if _, dup := docs[id.String()]; dup {
				return nil, fmt.Errorf("bundle: duplicate document %s", id)
			}
			doc, err := io.ReadAll(tr)
			if err != nil {
				return nil, err
			}
			if !cidutil.Matches(id, doc) {
				return nil, storage.ErrCIDMismatch
			}
			if opts.Check != nil {
				if err := opts.Check(doc); err != nil {
					return nil, fmt.Errorf("bundle: %s: %w", id, err)
				}
			}
			if _, err := cas.Put(doc); err != nil {
				return nil, err
			}
			docs[id.String()] = id
		default:
			if opts.IgnoreUnknown {
				continue
			}
			return nil, fmt.Errorf("bundle: unknown entry %s", name)
		}
	}

	if idx == nil {
		out := make([]Entry, 0, len(docs))
		for _, id := range docs {
			out = append(out, Entry{ID: id})
		}
		sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
		return out, nil
	}

	if len(idx.Entries) != len(docs) {
		return nil, fmt.Errorf("bundle: index lists %d documents, bundle has %d", len(idx.Entries), len(docs))
	}
	out := make([]Entry, 0, len(idx.Entries))
	for _, ie := range idx.Entries {
		id, ok := docs[ie.CID]
		if !ok {
			return nil, fmt.Errorf("bundle: index names missing document %s", ie.CID)
		}
		out = append(out, Entry{ID: id, Label: ie.Label})
	}
	return out, nil
}

func writeFile(tw *tar.Writer, name string, content []byte) error {
	hdr := &tar.Header{
		Name:     name,
		Mode:     0o644,
		Size:     int64(len(content)),
		ModTime:  epoch,
		Typeflag: tar.TypeReg,
		Format:   tar.FormatUSTAR,
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	_, err := tw.Write(content)
	return err
}

// cleanPath normalizes a tar entry name, returning "" for absolute-looking or
// traversing paths.
func cleanPath(name string) string {
	name = strings.TrimPrefix(strings.TrimSpace(name), "./")
	if name == "" || strings.HasPrefix(name, "/") || strings.Contains(name, "\\") {
		return ""
	}
	for _, part := range strings.Split(name, "/") {
		if part == "" || part == "." || part == ".." {
			return ""
		}
	}
	return name
}
