// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package streamwire

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"code.hybscloud.com/streamwire/internal/mux"
)

func TestPromiseRoundTripResolved(t *testing.T) {
	ctx := context.Background()
	schema := PromiseSchema(String())
	p := NewPromise()
	p.Resolve("ok")

	b, err := EncodeBytes(ctx, schema, p)
	if err != nil {
		t.Fatalf("EncodeBytes: %v", err)
	}
	v, err := DecodeBytes(ctx, b, schema)
	if err != nil {
		t.Fatalf("DecodeBytes: %v", err)
	}
	got, ok := v.(*Promise)
	if !ok {
		t.Fatalf("expected *Promise, got %T", v)
	}
	val, err := got.Await(ctx)
	if err != nil {
		t.Fatalf("Await: %v", err)
	}
	if val != "ok" {
		t.Fatalf("Await value: got %v want %q", val, "ok")
	}
}

func TestPromiseRoundTripRejectedWithStreamError(t *testing.T) {
	ctx := context.Background()
	schema := PromiseSchema(String())
	p := NewPromise()
	p.Reject(&StreamError{Schema: String(), Value: "bad"})

	b, err := EncodeBytes(ctx, schema, p)
	if err != nil {
		t.Fatalf("EncodeBytes: %v", err)
	}
	v, err := DecodeBytes(ctx, b, schema)
	if err != nil {
		t.Fatalf("DecodeBytes: %v", err)
	}
	got := v.(*Promise)
	_, awaitErr := got.Await(ctx)
	se, ok := awaitErr.(*StreamError)
	if !ok {
		t.Fatalf("expected *StreamError, got %T (%v)", awaitErr, awaitErr)
	}
	if se.Value != "bad" {
		t.Fatalf("rejection data: got %v want %q", se.Value, "bad")
	}
}

func TestPromiseRejectedWithPlainErrorWrapsAsString(t *testing.T) {
	ctx := context.Background()
	schema := PromiseSchema(Uint())
	p := NewPromise()
	p.Reject(errors.New("boom"))

	b, err := EncodeBytes(ctx, schema, p)
	if err != nil {
		t.Fatalf("EncodeBytes: %v", err)
	}
	v, err := DecodeBytes(ctx, b, schema)
	if err != nil {
		t.Fatalf("DecodeBytes: %v", err)
	}
	got := v.(*Promise)
	_, awaitErr := got.Await(ctx)
	se, ok := awaitErr.(*StreamError)
	if !ok {
		t.Fatalf("expected *StreamError, got %T", awaitErr)
	}
	if se.Value != "boom" {
		t.Fatalf("rejection data: got %v want %q", se.Value, "boom")
	}
}

func TestIteratorRoundTrip(t *testing.T) {
	ctx := context.Background()
	schema := IteratorSchema(Uint())
	producer, consumer := NewIteratorProducer()
	go func() {
		for _, v := range []uint64{1, 2, 3} {
			producer.Yield(ctx, v)
		}
		producer.Close()
	}()

	b, err := EncodeBytes(ctx, schema, consumer)
	if err != nil {
		t.Fatalf("EncodeBytes: %v", err)
	}
	v, err := DecodeBytes(ctx, b, schema)
	if err != nil {
		t.Fatalf("DecodeBytes: %v", err)
	}
	got := v.(*Iterator)

	var results []uint64
	for {
		val, ok, err := got.Next(ctx)
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if !ok {
			break
		}
		results = append(results, val.(uint64))
	}
	want := []uint64{1, 2, 3}
	if len(results) != len(want) {
		t.Fatalf("results: got %v want %v", results, want)
	}
	for i := range want {
		if results[i] != want[i] {
			t.Fatalf("results[%d]: got %v want %v", i, results[i], want[i])
		}
	}
}

func TestIteratorErrorTermination(t *testing.T) {
	ctx := context.Background()
	schema := IteratorSchema(Uint())
	producer, consumer := NewIteratorProducer()
	go func() {
		producer.Yield(ctx, uint64(1))
		producer.Fail(&StreamError{Schema: String(), Value: "broke"})
	}()

	b, err := EncodeBytes(ctx, schema, consumer)
	if err != nil {
		t.Fatalf("EncodeBytes: %v", err)
	}
	v, err := DecodeBytes(ctx, b, schema)
	if err != nil {
		t.Fatalf("DecodeBytes: %v", err)
	}
	got := v.(*Iterator)

	first, ok, err := got.Next(ctx)
	if err != nil || !ok || first.(uint64) != 1 {
		t.Fatalf("first value: got %v/%v/%v want 1/true/nil", first, ok, err)
	}
	_, ok, err = got.Next(ctx)
	if ok {
		t.Fatalf("expected iterator to end")
	}
	se, isStreamErr := err.(*StreamError)
	if !isStreamErr || se.Value != "broke" {
		t.Fatalf("expected terminal *StreamError with data %q, got %v", "broke", err)
	}
}

func TestReadableStreamRoundTrip(t *testing.T) {
	ctx := context.Background()
	schema := ReadableStream()
	b, err := EncodeBytes(ctx, schema, strings.NewReader("hello stream"))
	if err != nil {
		t.Fatalf("EncodeBytes: %v", err)
	}
	v, err := DecodeBytes(ctx, b, schema)
	if err != nil {
		t.Fatalf("DecodeBytes: %v", err)
	}
	bs := v.(*ByteStream)
	data, err := io.ReadAll(bs)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(data) != "hello stream" {
		t.Fatalf("stream contents: got %q want %q", data, "hello stream")
	}
}

// TestIteratorCancelReleasesMuxUsage exercises the onCancel wiring directly:
// dropping the only open consumer handle must quiesce the read session even
// though nothing ever sent a terminal frame for it.
func TestIteratorCancelReleasesMuxUsage(t *testing.T) {
	sess := mux.NewReadSession()
	sess.Register(7, func() (bool, error) { return false, nil })
	_, consumer := NewIteratorProducer()
	consumer.onCancel = func() { sess.Release(7) }

	select {
	case <-sess.Quiesced():
		t.Fatalf("session should not be quiesced before cancellation")
	default:
	}

	consumer.Cancel()

	select {
	case <-sess.Quiesced():
	default:
		t.Fatalf("expected the session to quiesce once its only handle was cancelled")
	}
}

func TestByteStreamCancelReleasesMuxUsage(t *testing.T) {
	sess := mux.NewReadSession()
	sess.Register(3, func() (bool, error) { return false, nil })
	_, consumer := NewByteStreamProducer()
	consumer.onCancel = func() { sess.Release(3) }

	consumer.Cancel()

	select {
	case <-sess.Quiesced():
	default:
		t.Fatalf("expected the session to quiesce once its only handle was cancelled")
	}
}

func TestIteratorCancelIsIdempotent(t *testing.T) {
	calls := 0
	_, consumer := NewIteratorProducer()
	consumer.onCancel = func() { calls++ }
	consumer.Cancel()
	consumer.Cancel()
	if calls != 1 {
		t.Fatalf("onCancel should fire exactly once, fired %d times", calls)
	}
}
