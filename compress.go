// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package streamwire

import (
	"context"
	"fmt"
	"io"
	"reflect"
	"sync"

	"github.com/google/uuid"
)

// -- compression-table(T, deep) --

// compressionTableSchema carries per-encode mutable dedup state
// (planTable), so unlike every other Schema it is not safe to reuse
// concurrently across overlapping Encode calls; construct a fresh
// CompressionTable per concurrent encode.
type compressionTableSchema struct {
	inner Schema
	deep  bool
	bytes []byte

	mu        sync.Mutex
	planTable *compressDedup
}

// CompressionTable returns the compression-table(T, deep) schema: a
// per-session scratchpad that replaces repeated occurrences of the same
// value with a back-reference index. In identity mode (deep=false) only
// the exact same value (by pointer, for reference types) is deduplicated;
// in deep mode a canonical content key is also checked, catching distinct
// but structurally equal values.
func CompressionTable(inner Schema, deep bool) Schema {
	df := byte(0)
	if deep {
		df = 1
	}
	b := append([]byte{byte(TagCompressionTable), df}, inner.Bytes()...)
	return &compressionTableSchema{inner: inner, deep: deep, bytes: b}
}

func (s *compressionTableSchema) Tag() Tag      { return TagCompressionTable }
func (s *compressionTableSchema) Bytes() []byte { return s.bytes }

func (s *compressionTableSchema) Validate(v any) error { return s.inner.Validate(v) }

func (s *compressionTableSchema) planDedup() *compressDedup {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.planTable == nil {
		s.planTable = newCompressDedup()
	}
	return s.planTable
}

// resetPlan discards the size-phase dedup table, called by
// resetCompressionPlans between a tree's size() sweep and its write()
// sweep so the write phase replays the same hit/miss sequence from an
// empty table (the write-phase table itself lives on WriteContext, not
// here, so the two sweeps never share state directly — they merely agree
// because both start empty and walk identical values in identical order).
func (s *compressionTableSchema) resetPlan() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.planTable = nil
}

func (s *compressionTableSchema) size(v any) (int, error) {
	idx, hit := s.planDedup().lookup(v, s.deep)
	if hit {
		return varintSize(idx + 1), nil
	}
	n, err := s.inner.size(v)
	if err != nil {
		return 0, err
	}
	return varintSize(0) + n, nil
}

func (s *compressionTableSchema) write(wc *WriteContext, v any) error {
	idx, hit := wc.compressTableFor(s).lookup(v, s.deep)
	if hit {
		return wc.PutVarint(idx + 1)
	}
	if err := wc.PutVarint(0); err != nil {
		return err
	}
	return s.inner.write(wc, v)
}

func (s *compressionTableSchema) read(rc *ReadContext) (any, error) {
	idx, err := rc.ReadVarint()
	if err != nil {
		return nil, err
	}
	table := rc.compressReadTable()
	if idx > 0 {
		return table.tap(idx - 1)
	}
	v, err := s.inner.read(rc)
	if err != nil {
		return nil, err
	}
	return table.store(v), nil
}

// resetCompressionPlans recurses through schema's children resetting every
// compression-table node's size-phase dedup table. It type-switches on the
// concrete schema structs defined across this package rather than adding a
// method to the Schema interface, since only this one schema kind needs
// the hook.
func resetCompressionPlans(s Schema) {
	switch x := s.(type) {
	case *compressionTableSchema:
		x.resetPlan()
		resetCompressionPlans(x.inner)
	case *arraySchema:
		resetCompressionPlans(x.elem)
	case *objectSchema:
		for _, f := range x.fields {
			resetCompressionPlans(f)
		}
	case *recordSchema:
		resetCompressionPlans(x.value)
	case *mapSchema:
		resetCompressionPlans(x.key)
		resetCompressionPlans(x.value)
	case *nullableSchema:
		if x.inner != nil {
			resetCompressionPlans(x.inner)
		}
	case *optionalSchema:
		resetCompressionPlans(x.inner)
	case *unionSchema:
		for _, a := range x.alts {
			resetCompressionPlans(a)
		}
	case *pipeSchema:
		resetCompressionPlans(x.inner)
	case *promiseSchema:
		resetCompressionPlans(x.elem)
	case *iteratorSchema:
		resetCompressionPlans(x.elem)
	}
}

// -- write-side dedup table --

// compressDedup is one compression-table node's scratchpad for a single
// sweep (one size() pass, or one write() pass — never both at once, see
// resetCompressionPlans). identityKey is checked first; deep mode also
// checks a canonical content key, salted per table instance so two
// unrelated tables never collide on recycled keys.
type compressDedup struct {
	mu      sync.Mutex
	byIdent map[any]uint64
	byCanon map[string]uint64
	next    uint64
	salt    string
}

func newCompressDedup() *compressDedup {
	return &compressDedup{
		byIdent: make(map[any]uint64),
		byCanon: make(map[string]uint64),
		salt:    uuid.NewString(),
	}
}

// lookup returns (index, true) if v (or, in deep mode, a value
// canonically equal to v) was already recorded, else records v at a new
// index and returns (newIndex, false). In deep mode the canonical key is
// always consulted, even for values with their own identity key: two
// distinct slices or pointers with equal content must still dedupe, which
// an identity-only check would miss.
func (t *compressDedup) lookup(v any, deep bool) (uint64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	identKey, hasIdent := identityKey(v)
	if hasIdent {
		if idx, seen := t.byIdent[identKey]; seen {
			return idx, true
		}
	}

	var canonKey string
	if deep {
		canonKey = t.canon(v)
		if idx, seen := t.byCanon[canonKey]; seen {
			if hasIdent {
				t.byIdent[identKey] = idx
			}
			return idx, true
		}
	}

	idx := t.next
	t.next++
	if hasIdent {
		t.byIdent[identKey] = idx
	}
	if deep {
		t.byCanon[canonKey] = idx
	}
	return idx, false
}

func (t *compressDedup) canon(v any) string {
	return fmt.Sprintf("%s|%#v", t.salt, v)
}

// identityKey returns a comparable key standing in for v's identity: the
// underlying pointer for reference-like kinds, or v itself when v's type
// is already comparable. ok is false for non-comparable value types
// (plain slices/maps of non-pointer kind with no address to key on),
// which deep mode falls back to canonicalizing and identity-only mode
// treats as always-miss.
func identityKey(v any) (any, bool) {
	if v == nil {
		return nil, false
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Chan, reflect.Func:
		if rv.IsNil() {
			return nil, false
		}
		return rv.Pointer(), true
	case reflect.Slice:
		if rv.IsNil() || rv.Len() == 0 {
			return nil, false
		}
		return rv.Pointer(), true
	default:
		t := reflect.TypeOf(v)
		if t != nil && t.Comparable() {
			return v, true
		}
		return nil, false
	}
}

// -- read-side table and copy-safe fan-out --

// compressReadTable is the decode-side mirror of compressDedup: index i
// holds whatever the i-th distinct value decoded. Plain values are shared
// directly (decoded values are treated as immutable once produced);
// streaming values — whether the compression-table node's own value or one
// buried inside an array/object/record/map it decoded — are instead
// recorded as a replay log (teeStreams) so each back-reference gets its own
// independent consumer handle, recursively re-tapped (retapStreams) fresh
// on every read, per spec.md §4.5's "Arrays recurse element-wise" and the
// broader "streaming values are not re-consumable" rule it falls out of.
type compressReadTable struct {
	mu      sync.Mutex
	entries []any
}

func newCompressReadTable() *compressReadTable { return &compressReadTable{} }

func (t *compressReadTable) store(v any) any {
	t.mu.Lock()
	defer t.mu.Unlock()
	stored, out := teeStreams(v)
	t.entries = append(t.entries, stored)
	return out
}

func (t *compressReadTable) tap(idx uint64) (any, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if idx >= uint64(len(t.entries)) {
		return nil, fmt.Errorf("%w: compression table back-reference %d not yet seen", ErrInternal, idx)
	}
	return retapStreams(t.entries[idx]), nil
}

// teeStreams walks a just-decoded value, recursing through the container
// shapes a schema read() can produce (array's []any, object/record's
// map[string]any, map(K,V)'s MapValue), and replaces every *ByteStream or
// *Iterator leaf it finds with a fresh pump into a *broadcastLog. It
// returns two parallel trees of identical shape: stored (leaves replaced by
// *broadcastLog markers, kept in the table so later back-references can
// re-tap it) and out (leaves replaced by this occurrence's own tap, handed
// back to the immediate caller). Non-streaming, non-container values are
// shared between the two trees as-is.
func teeStreams(v any) (stored any, out any) {
	switch x := v.(type) {
	case *ByteStream:
		log := newBroadcastLog()
		go pumpByteStream(x, log)
		return log, tapByteStream(log)
	case *Iterator:
		log := newBroadcastLog()
		log.values = true
		go pumpIterator(x, log)
		return log, tapIterator(log)
	case []any:
		storedArr := make([]any, len(x))
		outArr := make([]any, len(x))
		for i, e := range x {
			storedArr[i], outArr[i] = teeStreams(e)
		}
		return storedArr, outArr
	case map[string]any:
		storedMap := make(map[string]any, len(x))
		outMap := make(map[string]any, len(x))
		for k, e := range x {
			storedMap[k], outMap[k] = teeStreams(e)
		}
		return storedMap, outMap
	case MapValue:
		storedMV := make(MapValue, len(x))
		outMV := make(MapValue, len(x))
		for i, entry := range x {
			sk, ok := teeStreams(entry.Key)
			sv, ov := teeStreams(entry.Value)
			storedMV[i] = MapEntry{Key: sk, Value: sv}
			outMV[i] = MapEntry{Key: ok, Value: ov}
		}
		return storedMV, outMV
	default:
		return x, x
	}
}

// retapStreams mirrors teeStreams' container recursion over an already
// stored tree, replacing every *broadcastLog marker it finds with a fresh,
// independent tap. Called once per compression-table back-reference, so
// two readers of the same index never share a consumer handle.
func retapStreams(v any) any {
	switch x := v.(type) {
	case *broadcastLog:
		if x.values {
			return tapIterator(x)
		}
		return tapByteStream(x)
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = retapStreams(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = retapStreams(e)
		}
		return out
	case MapValue:
		out := make(MapValue, len(x))
		for i, entry := range x {
			out[i] = MapEntry{Key: retapStreams(entry.Key), Value: retapStreams(entry.Value)}
		}
		return out
	default:
		return x
	}
}

// broadcastLog is an append-only, condition-variable-guarded log letting
// any number of taps replay a stream from the beginning regardless of how
// far the original producer has already progressed.
type broadcastLog struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []any
	closed bool
	err    error
	values bool // true for iterator items, false for byte-stream chunks
}

func newBroadcastLog() *broadcastLog {
	b := &broadcastLog{}
	b.cond = sync.NewCond(&b.mu)
	return b
}

func (b *broadcastLog) append(v any) {
	b.mu.Lock()
	b.items = append(b.items, v)
	b.cond.Broadcast()
	b.mu.Unlock()
}

func (b *broadcastLog) close(err error) {
	b.mu.Lock()
	b.closed = true
	b.err = err
	b.cond.Broadcast()
	b.mu.Unlock()
}

// next blocks until index i is available or the log has closed with fewer
// than i+1 items.
func (b *broadcastLog) next(i int) (any, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i >= len(b.items) && !b.closed {
		b.cond.Wait()
	}
	if i < len(b.items) {
		return b.items[i], true, nil
	}
	return nil, false, b.err
}

func pumpByteStream(bs *ByteStream, log *broadcastLog) {
	buf := make([]byte, 4096)
	for {
		n, err := bs.Read(buf)
		if n > 0 {
			cp := make([]byte, n)
			copy(cp, buf[:n])
			log.append(cp)
		}
		if err != nil {
			if err == io.EOF {
				log.close(nil)
			} else {
				log.close(err)
			}
			return
		}
	}
}

func pumpIterator(it *Iterator, log *broadcastLog) {
	ctx := context.Background()
	for {
		v, ok, err := it.Next(ctx)
		if !ok {
			log.close(err)
			return
		}
		log.append(v)
	}
}

func tapByteStream(log *broadcastLog) *ByteStream {
	producer, consumer := NewByteStreamProducer()
	go func() {
		for i := 0; ; i++ {
			item, ok, err := log.next(i)
			if !ok {
				if err != nil {
					_ = err // ByteStreamProducer has no explicit Fail; EOF is all a reader sees.
				}
				producer.Close()
				return
			}
			producer.Write(item.([]byte))
		}
	}()
	return consumer
}

func tapIterator(log *broadcastLog) *Iterator {
	producer, consumer := NewIteratorProducer()
	go func() {
		ctx := context.Background()
		for i := 0; ; i++ {
			item, ok, err := log.next(i)
			if !ok {
				if err != nil {
					producer.Fail(err)
				} else {
					producer.Close()
				}
				return
			}
			producer.Yield(ctx, item)
		}
	}()
	return consumer
}
