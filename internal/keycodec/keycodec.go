// Package keycodec implements the composite row-key encoding and time
// bucketing formulas that turn a (domain, metric, tags, timestamp) tuple
// into range-scannable keys for the underlying hash+range store.
//
// All encoders here are total functions over strings and integers; none
// perform I/O.
package keycodec

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/amondawa/amondawa/internal/amdwerr"
)

// Tags is an unordered mapping of unique tag names to single values.
type Tags map[string]string

// BaseTime rounds t down to the nearest multiple of blockSize.
func BaseTime(t int64, blockSize int64) int64 {
	m := t % blockSize
	if m < 0 {
		m += blockSize
	}
	return t - m
}

// OffsetTime returns t's offset within its block, in [0, blockSize).
func OffsetTime(t int64, blockSize int64) int64 {
	return t - BaseTime(t, blockSize)
}

// BlockPos returns the ring slot index for t: the position of t's block
// within a ring of `blocks` slots of width blockSize, wrapping modulo
// blocks*blockSize.
func BlockPos(t int64, blockSize int64, blocks int64) int64 {
	history := blocks * blockSize
	return (BaseTime(t, blockSize) % history) / blockSize
}

// TagString renders tags in canonical form: entries sorted ascending by
// name, joined as "name=value" with ";" separators. An empty tagset
// yields the empty string.
func TagString(tags Tags) string {
	if len(tags) == 0 {
		return ""
	}
	names := make([]string, 0, len(tags))
	for k := range tags {
		names = append(names, k)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, k := range names {
		parts = append(parts, k+"="+tags[k])
	}
	return strings.Join(parts, ";")
}

// ParseTagString is the inverse of TagString: each entry is split on its
// first "=". ParseTagString("") is the empty Tags.
func ParseTagString(s string) Tags {
	tags := Tags{}
	if s == "" {
		return tags
	}
	for _, entry := range strings.Split(s, ";") {
		if entry == "" {
			continue
		}
		kv := strings.SplitN(entry, "=", 2)
		if len(kv) == 2 {
			tags[kv[0]] = kv[1]
		} else {
			tags[kv[0]] = ""
		}
	}
	return tags
}

// IndexHashKey is the hash-key component of the per-block index table:
// domain + "|" + metric.
func IndexHashKey(domain, metric string) string {
	return domain + "|" + metric
}

// TbaseWidth zero-pads the tbase component of IndexRangeKey so a lexical
// (string) range scan over the table agrees with numeric ordering across
// differing digit counts (e.g. so tbase=9000 doesn't lexically outrank
// tbase=10000). Sized for any non-negative epoch-millisecond timestamp.
const TbaseWidth = 19

// IndexRangeKey is the range-key component of the per-block index table:
// zero-padded tbase(t) + "|" + tagString(tags).
func IndexRangeKey(t int64, tags Tags, blockSize int64) string {
	return fmt.Sprintf("%0*d|%s", TbaseWidth, BaseTime(t, blockSize), TagString(tags))
}

// datapointKeyString is the pre-hash composite identifying a unique
// (domain, metric, tbase, tagString) within a block.
func datapointKeyString(domain, metric string, t int64, tags Tags, blockSize int64) string {
	return IndexHashKey(domain, metric) + "|" + IndexRangeKey(t, tags, blockSize)
}

// DatapointRowKey is the SHA-1 hex digest of the datapoint key string; it
// is the hash key of the per-block datapoints table.
func DatapointRowKey(domain, metric string, t int64, tags Tags, blockSize int64) string {
	return HashKeyString(datapointKeyString(domain, metric, t, tags, blockSize))
}

// HashKeyString hashes an already-built key string (exposed so IndexKey
// can recompute a datapoint row key from its own components without
// re-deriving the composite string by hand).
func HashKeyString(s string) string {
	sum := sha1.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

// IndexKey lazily parses the stored (indexHashKey, indexRangeKey) pair
// from the index table into its domain/metric/tbase/tagString components.
type IndexKey struct {
	hashKey  string // "domain|metric"
	rangeKey string // "tbase|tagString"

	parsed   bool
	domain   string
	metric   string
	tbase    int64
	tagStr   string
	tags     Tags
}

// NewIndexKey wraps a raw (indexHashKey, indexRangeKey) pair as stored in
// the index table.
func NewIndexKey(hashKey, rangeKey string) *IndexKey {
	return &IndexKey{hashKey: hashKey, rangeKey: rangeKey}
}

func (k *IndexKey) init() error {
	if k.parsed {
		return nil
	}
	dm := strings.SplitN(k.hashKey, "|", 2)
	if len(dm) != 2 {
		return amdwerr.New(amdwerr.KeyDecodeError, "keycodec.IndexKey", fmt.Errorf("malformed hash key %q", k.hashKey))
	}
	tt := strings.SplitN(k.rangeKey, "|", 2)
	if len(tt) != 2 {
		return amdwerr.New(amdwerr.KeyDecodeError, "keycodec.IndexKey", fmt.Errorf("malformed range key %q", k.rangeKey))
	}
	tbase, err := strconv.ParseInt(tt[0], 10, 64)
	if err != nil {
		return amdwerr.New(amdwerr.KeyDecodeError, "keycodec.IndexKey", err)
	}
	k.domain, k.metric = dm[0], dm[1]
	k.tbase = tbase
	k.tagStr = tt[1]
	k.tags = ParseTagString(k.tagStr)
	k.parsed = true
	return nil
}

// mustInit parses lazily and panics on corrupt keys read back from the
// store; corrupt rows indicate a codec bug or storage corruption, not a
// normal runtime condition the caller can recover from inline.
func (k *IndexKey) mustInit() {
	if err := k.init(); err != nil {
		panic(err)
	}
}

func (k *IndexKey) HashKey() string  { return k.hashKey }
func (k *IndexKey) RangeKey() string { return k.rangeKey }

func (k *IndexKey) Tbase() int64 {
	k.mustInit()
	return k.tbase
}

func (k *IndexKey) Domain() string {
	k.mustInit()
	return k.domain
}

func (k *IndexKey) Metric() string {
	k.mustInit()
	return k.metric
}

func (k *IndexKey) TagString() string {
	k.mustInit()
	return k.tagStr
}

func (k *IndexKey) Tags() Tags {
	k.mustInit()
	return k.tags
}

// ToDatapointRowKey returns the datapoints-table hash key this index key
// addresses.
func (k *IndexKey) ToDatapointRowKey(blockSize int64) string {
	k.mustInit()
	return DatapointRowKey(k.domain, k.metric, k.tbase, k.tags, blockSize)
}

// TagFilter maps a tag name to the set of permissible values.
type TagFilter map[string]map[string]struct{}

// NewTagFilter builds a TagFilter from a plain map[string][]string.
func NewTagFilter(m map[string][]string) TagFilter {
	f := make(TagFilter, len(m))
	for k, values := range m {
		set := make(map[string]struct{}, len(values))
		for _, v := range values {
			set[v] = struct{}{}
		}
		f[k] = set
	}
	return f
}

// HasTags returns true iff for every (name, values) in filter, this key's
// tags contain name and its value lies in values. The empty filter always
// matches.
func (k *IndexKey) HasTags(filter TagFilter) bool {
	if len(filter) == 0 {
		return true
	}
	tags := k.Tags()
	for name, values := range filter {
		v, ok := tags[name]
		if !ok {
			return false
		}
		if _, ok := values[v]; !ok {
			return false
		}
	}
	return true
}

// OffsetRange returns the (start, end) toffset bounds, in [0, blockSize],
// for the intersection of [start, end] with the block this index key's
// tbase names.
func OffsetRange(k *IndexKey, start, end int64, blockSize int64) (int64, int64) {
	tbase := k.Tbase()
	a, b := int64(0), blockSize
	if tbase == BaseTime(start, blockSize) {
		a = OffsetTime(start, blockSize)
	}
	if tbase == BaseTime(end, blockSize) {
		b = OffsetTime(end, blockSize)
	}
	return a, b
}
