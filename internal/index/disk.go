package index

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"sort"
	"time"

	apperrors "github.com/goodfilms/picky/pkg/errors"
)

// Bundle file layout: a fixed header, the postings of every token as
// delta-encoded uvarints, a JSON dictionary sorted by token, then a footer
// carrying a crc32 over postings and dictionary.
const (
	BundleMagic   uint32 = 0x504B5942
	BundleVersion uint32 = 1
	HeaderSize           = 64
	FooterSize           = 16
	bundleExt            = ".pkb"
)

type bundleHeader struct {
	Magic      uint32
	Version    uint32
	TokenCount uint32
	IDCount    uint32
	CreatedAt  int64
	PostOffset int64
	PostSize   int64
	DictOffset int64
	DictSize   int64
}

func (h bundleHeader) encode() []byte {
	buf := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(buf[0:4], h.Magic)
	binary.LittleEndian.PutUint32(buf[4:8], h.Version)
	binary.LittleEndian.PutUint32(buf[8:12], h.TokenCount)
	binary.LittleEndian.PutUint32(buf[12:16], h.IDCount)
	binary.LittleEndian.PutUint64(buf[16:24], uint64(h.CreatedAt))
	binary.LittleEndian.PutUint64(buf[24:32], uint64(h.PostOffset))
	binary.LittleEndian.PutUint64(buf[32:40], uint64(h.PostSize))
	binary.LittleEndian.PutUint64(buf[40:48], uint64(h.DictOffset))
	binary.LittleEndian.PutUint64(buf[48:56], uint64(h.DictSize))
	return buf
}

func decodeHeader(buf []byte) bundleHeader {
	return bundleHeader{
		Magic:      binary.LittleEndian.Uint32(buf[0:4]),
		Version:    binary.LittleEndian.Uint32(buf[4:8]),
		TokenCount: binary.LittleEndian.Uint32(buf[8:12]),
		IDCount:    binary.LittleEndian.Uint32(buf[12:16]),
		CreatedAt:  int64(binary.LittleEndian.Uint64(buf[16:24])),
		PostOffset: int64(binary.LittleEndian.Uint64(buf[24:32])),
		PostSize:   int64(binary.LittleEndian.Uint64(buf[32:40])),
		DictOffset: int64(binary.LittleEndian.Uint64(buf[40:48])),
		DictSize:   int64(binary.LittleEndian.Uint64(buf[48:56])),
	}
}

// dictEntry locates one token's postings relative to the postings section.
type dictEntry struct {
	Token  string `json:"t"`
	Offset int64  `json:"o"`
	Length int    `json:"l"`
	Count  int    `json:"n"`
}

// within reports whether the entry's postings lie inside a postings section
// of size bytes.
func (e dictEntry) within(size int64) bool {
	return e.Offset >= 0 && e.Length >= 0 && e.Count >= 0 &&
		e.Offset <= size && int64(e.Length) <= size-e.Offset
}

// DiskBackend keeps one bundle file per category under its data directory.
type DiskBackend struct {
	dataDir string
}

func NewDiskBackend(dataDir string) *DiskBackend {
	return &DiskBackend{dataDir: dataDir}
}

func (b *DiskBackend) Kind() Kind { return KindDisk }

func (b *DiskBackend) path(category string) string {
	return filepath.Join(b.dataDir, category+bundleExt)
}

func (b *DiskBackend) IndexingBundle(category string) IndexingBundle {
	return &diskIndexing{dataDir: b.dataDir, path: b.path(category), postings: make(postings)}
}

func (b *DiskBackend) IndexedBundle(category string) IndexedBundle {
	return &diskIndexed{path: b.path(category)}
}

type diskIndexing struct {
	dataDir  string
	path     string
	postings postings
}

func (d *diskIndexing) Add(id int64, tokens []string) {
	d.postings.add(id, tokens)
}

// Dump writes the bundle to a temporary file and renames it into place, so
// readers never observe a partially written bundle.
func (d *diskIndexing) Dump() error {
	tokens := d.postings.sorted()
	names := make([]string, 0, len(tokens))
	for token := range tokens {
		names = append(names, token)
	}
	sort.Strings(names)

	var post []byte
	dict := make([]dictEntry, 0, len(names))
	idCount := 0
	for _, token := range names {
		ids := tokens[token]
		start := len(post)
		post = appendIDs(post, ids)
		dict = append(dict, dictEntry{
			Token:  token,
			Offset: int64(start),
			Length: len(post) - start,
			Count:  len(ids),
		})
		idCount += len(ids)
	}
	dictData, err := json.Marshal(dict)
	if err != nil {
		return fmt.Errorf("marshaling dictionary: %w", err)
	}

	header := bundleHeader{
		Magic:      BundleMagic,
		Version:    BundleVersion,
		TokenCount: uint32(len(dict)),
		IDCount:    uint32(idCount),
		CreatedAt:  time.Now().Unix(),
		PostOffset: HeaderSize,
		PostSize:   int64(len(post)),
		DictOffset: HeaderSize + int64(len(post)),
		DictSize:   int64(len(dictData)),
	}
	checksum := crc32.NewIEEE()
	checksum.Write(post)
	checksum.Write(dictData)
	footer := make([]byte, FooterSize)
	binary.LittleEndian.PutUint32(footer[0:4], checksum.Sum32())
	binary.LittleEndian.PutUint32(footer[4:8], header.TokenCount)
	binary.LittleEndian.PutUint64(footer[8:16], uint64(header.DictSize))

	if err := os.MkdirAll(d.dataDir, 0o755); err != nil {
		return fmt.Errorf("creating bundle directory: %w", err)
	}
	tmpPath := d.path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("creating temp bundle file: %w", err)
	}
	defer f.Close()
	for _, part := range [][]byte{header.encode(), post, dictData, footer} {
		if _, err := f.Write(part); err != nil {
			os.Remove(tmpPath)
			return fmt.Errorf("writing bundle %s: %w", d.path, err)
		}
	}
	if err := f.Sync(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("syncing bundle file: %w", err)
	}
	f.Close()
	if err := os.Rename(tmpPath, d.path); err != nil {
		return fmt.Errorf("renaming bundle file: %w", err)
	}
	return nil
}

type diskIndexed struct {
	path   string
	header bundleHeader
	post   []byte
	dict   []dictEntry
}

func (d *diskIndexed) Load() error {
	data, err := os.ReadFile(d.path)
	if err != nil {
		return fmt.Errorf("reading bundle %s: %w", d.path, err)
	}
	if len(data) < HeaderSize+FooterSize {
		return fmt.Errorf("%w: %s is truncated", apperrors.ErrCorruptBundle, d.path)
	}
	header := decodeHeader(data[:HeaderSize])
	if header.Magic != BundleMagic {
		return fmt.Errorf("%w: %s has bad magic bytes %x", apperrors.ErrCorruptBundle, d.path, header.Magic)
	}
	if header.Version != BundleVersion {
		return fmt.Errorf("%w: %s has unsupported version %d", apperrors.ErrCorruptBundle, d.path, header.Version)
	}
	end := int64(len(data) - FooterSize)
	if header.PostOffset != HeaderSize ||
		header.PostSize < 0 || header.DictSize < 0 ||
		header.DictOffset != header.PostOffset+header.PostSize ||
		header.DictOffset+header.DictSize != end {
		return fmt.Errorf("%w: %s has inconsistent section offsets", apperrors.ErrCorruptBundle, d.path)
	}
	post := data[header.PostOffset:header.DictOffset]
	dictData := data[header.DictOffset:end]
	footer := data[end:]

	checksum := crc32.NewIEEE()
	checksum.Write(post)
	checksum.Write(dictData)
	if binary.LittleEndian.Uint32(footer[0:4]) != checksum.Sum32() {
		return fmt.Errorf("%w: %s checksum mismatch", apperrors.ErrCorruptBundle, d.path)
	}
	var dict []dictEntry
	if err := json.Unmarshal(dictData, &dict); err != nil {
		return fmt.Errorf("%w: parsing dictionary of %s: %v", apperrors.ErrCorruptBundle, d.path, err)
	}
	for _, entry := range dict {
		if !entry.within(int64(len(post))) {
			return fmt.Errorf("%w: %s token %q points outside its postings", apperrors.ErrCorruptBundle, d.path, entry.Token)
		}
	}

	d.header = header
	d.post = post
	d.dict = dict
	return nil
}

func (d *diskIndexed) IDs(token string) []int64 {
	i := sort.Search(len(d.dict), func(i int) bool {
		return d.dict[i].Token >= token
	})
	if i >= len(d.dict) || d.dict[i].Token != token {
		return nil
	}
	entry := d.dict[i]
	if !entry.within(int64(len(d.post))) {
		return nil
	}
	ids, ok := decodeIDs(d.post[entry.Offset:entry.Offset+int64(entry.Length)], entry.Count)
	if !ok {
		return nil
	}
	return ids
}

func (d *diskIndexed) Tokens() int {
	return len(d.dict)
}

// appendIDs appends ascending ids to buf as uvarint deltas.
func appendIDs(buf []byte, ids []int64) []byte {
	var prev int64
	for _, id := range ids {
		buf = binary.AppendUvarint(buf, uint64(id-prev))
		prev = id
	}
	return buf
}

// decodeIDs reverses appendIDs. sizeHint only presizes the result; every id
// takes at least one byte, so it is capped by len(buf).
func decodeIDs(buf []byte, sizeHint int) ([]int64, bool) {
	ids := make([]int64, 0, max(min(sizeHint, len(buf)), 0))
	var prev int64
	for len(buf) > 0 {
		delta, n := binary.Uvarint(buf)
		if n <= 0 {
			return nil, false
		}
		prev += int64(delta)
		ids = append(ids, prev)
		buf = buf[n:]
	}
	return ids, true
}
